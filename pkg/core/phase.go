package core

// Phase is one recorded before/after configuration pair.
// Connector and path lists are captured at phase start and at phase end;
// only the start lists are revealed during playback.
type Phase struct {
	StartPositions    map[string]Point `json:"startPositions"`
	EndPositions      map[string]Point `json:"endPositions"`
	ConnectorsAtStart []Connector      `json:"connectorsAtStart"`
	PathsAtStart      []FreehandPath   `json:"pathsAtStart"`
	ConnectorsAtEnd   []Connector      `json:"connectorsAtEnd"`
	PathsAtEnd        []FreehandPath   `json:"pathsAtEnd"`
	Duration          float64          `json:"duration"` // ms
	Overlay           []byte           `json:"overlay,omitempty"`
}

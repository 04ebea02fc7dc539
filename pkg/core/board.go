package core

// Point is a position on the field. Board state stores field coordinates;
// animation steps store the same type normalized to the unit square.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// TokenKind is the kind of marker placed on the board.
type TokenKind string

const (
	TokenPlayer   TokenKind = "player"
	TokenBall     TokenKind = "ball"
	TokenCone     TokenKind = "cone"
	TokenMinigoal TokenKind = "minigoal"
)

// Team identifies which side a token belongs to.
type Team string

const (
	TeamHome    Team = "home"
	TeamAway    Team = "away"
	TeamNeutral Team = "neutral"
)

// MaxPlayersPerTeam is the upper bound of player tokens on one side.
const MaxPlayersPerTeam = 11

// Token is a single marker on the board.
type Token struct {
	ID       string    `json:"id"`
	Team     Team      `json:"team"`
	Number   int       `json:"number"`
	Position Point     `json:"position"`
	Kind     TokenKind `json:"kind"`
	Size     float64   `json:"size"`
}

// LineStyle is how a connector or path is stroked.
type LineStyle string

const (
	StyleSolid  LineStyle = "solid"
	StyleDashed LineStyle = "dashed"
)

// LineType is the tactical meaning of a connector or path.
type LineType string

const (
	LinePass     LineType = "pass"
	LineMovement LineType = "movement"
)

// Connector is an arrow drawn between points.
type Connector struct {
	ID     string    `json:"id"`
	Points []Point   `json:"points"`
	Style  LineStyle `json:"style"`
	Type   LineType  `json:"type"`
}

// FreehandPath is a trajectory drawn by hand.
type FreehandPath struct {
	ID     string    `json:"id"`
	Points []Point   `json:"points"`
	Style  LineStyle `json:"style"`
	Type   LineType  `json:"type"`
}

// ViewSettings holds the field dimensions and display toggles.
// FieldWidth and FieldHeight define the field coordinate system.
type ViewSettings struct {
	FieldWidth  float64 `json:"fieldWidth"`
	FieldHeight float64 `json:"fieldHeight"`
	ShowGrid    bool    `json:"showGrid"`
	Orientation string  `json:"orientation"`
}

// Snapshot is a full copy of the renderable board state and the unit of undo/redo.
type Snapshot struct {
	Tokens     []Token        `json:"tokens"`
	Connectors []Connector    `json:"connectors"`
	Paths      []FreehandPath `json:"paths"`
	View       ViewSettings   `json:"viewSettings"`
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{View: s.View}
	if s.Tokens != nil {
		out.Tokens = append(make([]Token, 0, len(s.Tokens)), s.Tokens...)
	}
	out.Connectors = CloneConnectors(s.Connectors)
	out.Paths = ClonePaths(s.Paths)
	return out
}

// Positions returns the current position of every token keyed by id.
func (s Snapshot) Positions() map[string]Point {
	out := make(map[string]Point, len(s.Tokens))
	for _, t := range s.Tokens {
		out[t.ID] = t.Position
	}
	return out
}

// Token looks up a token by id.
func (s Snapshot) Token(id string) (Token, bool) {
	for _, t := range s.Tokens {
		if t.ID == id {
			return t, true
		}
	}
	return Token{}, false
}

// CloneConnectors deep-copies a connector list, preserving nil.
func CloneConnectors(in []Connector) []Connector {
	if in == nil {
		return nil
	}
	out := make([]Connector, len(in))
	for i, c := range in {
		c.Points = append([]Point(nil), c.Points...)
		out[i] = c
	}
	return out
}

// ClonePaths deep-copies a path list, preserving nil.
func ClonePaths(in []FreehandPath) []FreehandPath {
	if in == nil {
		return nil
	}
	out := make([]FreehandPath, len(in))
	for i, p := range in {
		p.Points = append([]Point(nil), p.Points...)
		out[i] = p
	}
	return out
}

// ClonePositions copies a position map.
func ClonePositions(in map[string]Point) map[string]Point {
	out := make(map[string]Point, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

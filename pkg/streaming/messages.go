// Package streaming defines the messages exchanged with a remote board
// library server over WebSocket.
package streaming

import (
	"encoding/json"

	"github.com/tactiboard/engine/pkg/core"
)

// Message type constants matching the streaming protocol.
const (
	TypeHello          = "hello"
	TypeSaveBoard      = "save_board"
	TypeSaveSequence   = "save_sequence"
	TypeDeleteSequence = "delete_sequence"
	TypeLoadLibrary    = "load_library"
	TypeLibrary        = "library"
	TypeAck            = "ack"
)

// ErrCodeNotFound is set in AckMessage.Error when the target does not exist.
const ErrCodeNotFound = "not_found"

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type  string `json:"type"`            // always "ack"
	For   string `json:"for"`             // the message type being acknowledged
	ID    string `json:"id,omitempty"`    // sequence id, when the message carried one
	Error string `json:"error,omitempty"` // empty on success
}

// HelloPayload identifies the client. It is replayed after every reconnect.
type HelloPayload struct {
	Client  string `json:"client"`
	Version int    `json:"version"`
}

// DeleteSequencePayload names the sequence to delete.
type DeleteSequencePayload struct {
	ID string `json:"id"`
}

// LibraryPayload is the server's answer to load_library.
type LibraryPayload struct {
	Board     *core.Snapshot           `json:"board,omitempty"`
	Sequences []core.AnimationSequence `json:"sequences"`
}

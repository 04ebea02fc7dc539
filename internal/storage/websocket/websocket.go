// Package websocket syncs the board library with a remote server over WebSocket.
package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tactiboard/engine/internal/storage"
	v1 "github.com/tactiboard/engine/internal/storage/memory/export/v1"
	"github.com/tactiboard/engine/pkg/core"
	"github.com/tactiboard/engine/pkg/streaming"
)

// ClientName is sent in the hello message.
const ClientName = "tactiboard"

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend streams library changes over WebSocket to a library server.
// Board saves are fire-and-forget; sequence saves and deletes wait for an ack.
type Backend struct {
	conn *connection
	cfg  Config
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn: newConnection(logger),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server and introduces the client.
func (b *Backend) Init() error {
	if err := b.conn.dial(b.cfg.URL, b.cfg.Secret); err != nil {
		return err
	}

	data, err := marshalEnvelope(streaming.TypeHello, streaming.HelloPayload{Client: ClientName, Version: v1.Version})
	if err != nil {
		return err
	}

	b.conn.setHello(data)

	_, err = b.conn.sendAndWait(data, streaming.TypeHello, "", ackTimeout)
	return err
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelopeAndWait marshals the payload and waits for a server ack.
func (b *Backend) sendEnvelopeAndWait(msgType, id string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	ack, err := b.conn.sendAndWait(data, msgType, id, ackTimeout)
	if err != nil {
		return err
	}
	switch ack.Error {
	case "":
		return nil
	case streaming.ErrCodeNotFound:
		return fmt.Errorf("%s %s: %w", msgType, id, storage.ErrNotFound)
	default:
		return fmt.Errorf("%s %s: server error: %s", msgType, id, ack.Error)
	}
}

// SaveBoard queues the snapshot without waiting for an ack.
func (b *Backend) SaveBoard(snap core.Snapshot) error {
	data, err := marshalEnvelope(streaming.TypeSaveBoard, snap)
	if err != nil {
		return err
	}
	return b.conn.send(data)
}

// SaveSequence sends a sequence and waits for the server to store it.
func (b *Backend) SaveSequence(seq core.AnimationSequence) error {
	if seq.ID == "" {
		return errors.New("save sequence: empty id")
	}
	return b.sendEnvelopeAndWait(streaming.TypeSaveSequence, seq.ID, seq)
}

// DeleteSequence asks the server to delete a sequence.
func (b *Backend) DeleteSequence(id string) error {
	return b.sendEnvelopeAndWait(streaming.TypeDeleteSequence, id, streaming.DeleteSequencePayload{ID: id})
}

// LoadBoard fetches the library and returns its board.
func (b *Backend) LoadBoard() (core.Snapshot, bool, error) {
	lib, err := b.loadLibrary()
	if err != nil {
		return core.Snapshot{}, false, err
	}
	if lib.Board == nil {
		return core.Snapshot{}, false, nil
	}
	return *lib.Board, true, nil
}

// LoadSequences fetches the library and returns its sequences.
func (b *Backend) LoadSequences() ([]core.AnimationSequence, error) {
	lib, err := b.loadLibrary()
	if err != nil {
		return nil, err
	}
	return lib.Sequences, nil
}

func (b *Backend) loadLibrary() (streaming.LibraryPayload, error) {
	data, err := marshalEnvelope(streaming.TypeLoadLibrary, struct{}{})
	if err != nil {
		return streaming.LibraryPayload{}, err
	}
	env, err := b.conn.sendAndReceive(data, streaming.TypeLibrary, ackTimeout)
	if err != nil {
		return streaming.LibraryPayload{}, err
	}
	var lib streaming.LibraryPayload
	if err := json.Unmarshal(env.Payload, &lib); err != nil {
		return streaming.LibraryPayload{}, fmt.Errorf("decode library: %w", err)
	}
	return lib, nil
}

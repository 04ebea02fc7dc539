package streaming

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tactiboard/engine/pkg/core"
)

func TestLibraryPayload_DecodesSteps(t *testing.T) {
	raw := `{"type":"library","payload":{"sequences":[{"id":"s1","title":"t","totalDuration":1000,"steps":[{"type":"revealPath","timestamp":0,"duration":1000,"path":{"id":"p1","points":[{"x":1,"y":2}]}}]}]}}`

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	assert.Equal(t, TypeLibrary, env.Type)

	var lib LibraryPayload
	require.NoError(t, json.Unmarshal(env.Payload, &lib))
	assert.Nil(t, lib.Board)
	require.Len(t, lib.Sequences, 1)
	step, ok := lib.Sequences[0].Steps[0].(core.RevealPathStep)
	require.True(t, ok)
	assert.Equal(t, "p1", step.Path.ID)
}

func TestAckMessage_OmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(AckMessage{Type: TypeAck, For: TypeHello})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ack","for":"hello"}`, string(data))
}

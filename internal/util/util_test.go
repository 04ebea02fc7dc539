package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanArgs(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"h9", "h9"},
		{` "h9" `, "h9"},
		{"'h9'", "'h9'"},
		{`he"llo`, `he"llo`},
		{`""`, ""},
		{`"say ""go"""`, `say "go"`},
		{`a""""b`, `a""b`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanArgs([]string{tt.in})[0])
		})
	}
}

func TestFloatArg(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    float64
		wantErr bool
	}{
		{"valid", []string{"1.5"}, 1.5, false},
		{"negative", []string{"-2"}, -2, false},
		{"missing", nil, 0, true},
		{"empty", []string{""}, 0, true},
		{"garbage", []string{"fast"}, 0, true},
		{"nan", []string{"NaN"}, 0, true},
		{"inf", []string{"+Inf"}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FloatArg(tt.args, 0, "speed")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStringArg(t *testing.T) {
	id, err := StringArg([]string{"seq-1"}, 0, "sequence id")
	require.NoError(t, err)
	assert.Equal(t, "seq-1", id)

	_, err = StringArg([]string{"seq-1"}, 1, "token id")
	assert.ErrorIs(t, err, ErrMissingArg)
	assert.Contains(t, err.Error(), "token id")
}

func TestMillisArg(t *testing.T) {
	d, err := MillisArg([]string{"1500"}, 0, "duration")
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, d)

	d, err = MillisArg([]string{"0.5"}, 0, "duration")
	require.NoError(t, err)
	assert.Equal(t, 500*time.Microsecond, d)

	d, err = MillisArg(nil, 0, "duration")
	require.NoError(t, err)
	assert.Zero(t, d)

	_, err = MillisArg([]string{"-1"}, 0, "duration")
	assert.Error(t, err)
}

func TestHasFlag(t *testing.T) {
	args := []string{"3000", "OVERLAY"}
	assert.True(t, HasFlag(args, 1, "overlay"))
	assert.False(t, HasFlag(args, 2, "overlay"), "arguments before start are ignored")
}

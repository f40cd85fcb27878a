package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/resonate-playout/internal/errors"
)

func TestEncodeDecodeCommand(t *testing.T) {
	data, err := Encode(TypeCommand, Command{Command: CommandSkip, Value: 1500})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"player/command","payload":{"command":"skip","value":1500}}`, string(data))

	env, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, TypeCommand, env.Type)

	var cmd Command
	require.NoError(t, env.DecodePayload(&cmd))
	assert.Equal(t, Command{Command: CommandSkip, Value: 1500}, cmd)
}

func TestStatusOmitsMissingTrack(t *testing.T) {
	data, err := Encode(TypeStatus, Status{State: "idle", Volume: 80})
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"track"`)
	assert.Contains(t, string(data), `"volume":80`)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `hello`},
		{"no type", `{"payload":{}}`},
		{"empty object", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
			assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
		})
	}
}

func TestDecodePayloadErrors(t *testing.T) {
	env, err := Decode([]byte(`{"type":"player/command"}`))
	require.NoError(t, err)
	assert.ErrorIs(t, env.DecodePayload(&Command{}), ErrMalformed)

	env, err = Decode([]byte(`{"type":"player/command","payload":{"value":"loud"}}`))
	require.NoError(t, err)
	assert.ErrorIs(t, env.DecodePayload(&Command{}), ErrMalformed)
}

func TestBufferPercent(t *testing.T) {
	assert.Equal(t, 0, Status{}.BufferPercent())
	assert.Equal(t, 25, Status{Buffered: 1024, Capacity: 4096}.BufferPercent())
	assert.Equal(t, 100, Status{Buffered: 4096, Capacity: 4096}.BufferPercent())
}

func TestResultCarriesStatus(t *testing.T) {
	data, err := Encode(TypeResult, Result{
		ID:     "c1",
		OK:     false,
		Error:  "value out of range",
		Status: Status{State: "playing", Volume: 40},
	})
	require.NoError(t, err)

	env, err := Decode(data)
	require.NoError(t, err)
	var res Result
	require.NoError(t, env.DecodePayload(&res))
	assert.Equal(t, "c1", res.ID)
	assert.False(t, res.OK)
	assert.Equal(t, 40, res.Status.Volume)
}

package dto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInstructionDefaults(t *testing.T) {
	i := NewInstruction(InstructionPing, nil)
	assert.NotEmpty(t, i.ID)
	assert.Equal(t, DefaultTimeoutSeconds, i.TimeoutSeconds)
	assert.False(t, i.IsExpired())
}

func TestInstructionExpiry(t *testing.T) {
	i := Instruction{
		ID:             "i-1",
		Type:           InstructionPing,
		CreatedAt:      time.Now().Add(-5 * time.Second).Unix(),
		TimeoutSeconds: 1,
	}
	assert.True(t, i.IsExpired())

	i.TimeoutSeconds = 60
	assert.False(t, i.IsExpired())
}

func TestNormalizeValidation(t *testing.T) {
	cases := []struct {
		name    string
		inst    Instruction
		wantErr bool
	}{
		{"defaults applied", Instruction{Type: InstructionPing}, false},
		{"timeout too large", Instruction{Type: InstructionPing, TimeoutSeconds: 7200}, true},
		{"negative priority", Instruction{Type: InstructionPing, Priority: -1}, true},
		{"priority too high", Instruction{Type: InstructionPing, Priority: 11}, true},
		{"unknown type", Instruction{Type: "reboot_moon"}, true},
		{"execute without script", Instruction{Type: InstructionExecuteScript}, true},
		{"execute with script field", Instruction{Type: InstructionExecuteScript, ScriptID: 7}, false},
		{"execute with payload script", Instruction{Type: InstructionExecuteScript, Payload: map[string]any{"script_id": 7}}, false},
		{"update_app without url", Instruction{Type: InstructionUpdateApp}, true},
		{"update_app with url", Instruction{Type: InstructionUpdateApp, Payload: map[string]any{"url": "https://example.com/app.apk"}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.inst.Normalize()
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, tc.inst.ID)
			assert.NotZero(t, tc.inst.CreatedAt)
		})
	}
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	raw := `{"instruction_id":"i-1","type":"ping","created_at":100,"timeout_seconds":60,"priority":2,"some_future_field":true}`
	i, err := DecodeInstruction(raw)
	require.NoError(t, err)
	assert.Equal(t, "i-1", i.ID)
	assert.Equal(t, InstructionPing, i.Type)
	assert.Equal(t, 60, i.TimeoutSeconds)
	assert.Equal(t, 2, i.Priority)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	i := NewInstruction(InstructionCollectLog, map[string]any{"lines": float64(100)})
	i.TaskID = 9
	i.CorrelationID = "corr-1"

	raw, err := i.Encode()
	require.NoError(t, err)
	got, err := DecodeInstruction(raw)
	require.NoError(t, err)
	assert.Equal(t, i, got)
}

func TestDecodeMalformed(t *testing.T) {
	_, err := DecodeInstruction("{not json")
	assert.Error(t, err)
}

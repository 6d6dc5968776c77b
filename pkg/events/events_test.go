package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFillsIdentityAndTimestamp(t *testing.T) {
	ev := New(KindLlmResult, 7)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, int64(7), ev.TurnID)
	assert.False(t, ev.Timestamp.IsZero())

	other := New(KindLlmResult, 7)
	assert.NotEqual(t, ev.ID, other.ID)
}

func TestTurnTerminal(t *testing.T) {
	terminal := []Kind{KindLlmResult, KindLlmFailed, KindLlmTimeout}
	for _, k := range terminal {
		assert.True(t, New(k, 1).TurnTerminal(), string(k))
	}
	nonTerminal := []Kind{KindSpeechResult, KindSpeechFailed, KindConfigReloaded, KindQueueOverflow, KindSensorReading}
	for _, k := range nonTerminal {
		assert.False(t, New(k, 1).TurnTerminal(), string(k))
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	ev := NewText(KindLlmResult, 3, "こんにちは！")
	ev.Fields = map[string]any{"elapsed_ms": 120.0}

	payload, err := ev.MarshalPayload()
	require.NoError(t, err)

	got, err := FromJSON(payload)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, ev.Kind, got.Kind)
	assert.Equal(t, ev.TurnID, got.TurnID)
	assert.Equal(t, ev.Text, got.Text)
}

func TestFromJSONRejectsBadPayloads(t *testing.T) {
	_, err := FromJSON([]byte(`{broken`))
	require.Error(t, err)

	_, err = FromJSON([]byte(`{"id":"x","turn_id":1}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing kind")
}

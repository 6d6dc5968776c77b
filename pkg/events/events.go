package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// TopicChat is the watermill topic all mascot events travel on.
const TopicChat = "chat"

// Kind tags the payload of an Event.
type Kind string

const (
	KindSpeechResult   Kind = "speech-result"
	KindSpeechFailed   Kind = "speech-failed"
	KindLlmResult      Kind = "llm-result"
	KindLlmFailed      Kind = "llm-failed"
	KindLlmTimeout     Kind = "llm-timeout"
	KindConfigReloaded Kind = "config-reloaded"
	KindQueueOverflow  Kind = "queue-overflow"
	KindSensorReading  Kind = "sensor-reading"
)

// Event is an immutable notification crossing from a worker goroutine to the
// consuming loop. Ownership transfers fully at publish time; producers keep
// no reference.
type Event struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	TurnID    int64          `json:"turn_id,omitempty"`
	Text      string         `json:"text,omitempty"`
	Error     string         `json:"error,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// New builds an event with a fresh id and timestamp. TurnID 0 means the
// event is not scoped to a conversational turn.
func New(kind Kind, turnID int64) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		TurnID:    turnID,
		Timestamp: time.Now(),
	}
}

// NewText builds a turn-scoped event carrying result text.
func NewText(kind Kind, turnID int64, text string) Event {
	e := New(kind, turnID)
	e.Text = text
	return e
}

// NewError builds an event carrying a failure detail.
func NewError(kind Kind, turnID int64, err error) Event {
	e := New(kind, turnID)
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// TurnTerminal reports whether the event drives a turn to a terminal state.
func (e Event) TurnTerminal() bool {
	switch e.Kind {
	case KindLlmResult, KindLlmFailed, KindLlmTimeout:
		return true
	}
	return false
}

func (e Event) MarshalPayload() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, "marshal event")
	}
	return b, nil
}

// FromJSON decodes an event from a watermill payload.
func FromJSON(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, errors.Wrap(err, "decode event")
	}
	if e.Kind == "" {
		return Event{}, errors.New("decode event: missing kind")
	}
	return e, nil
}

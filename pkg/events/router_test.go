package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterDeliversPublishedEvents(t *testing.T) {
	r, err := NewRouter()
	require.NoError(t, err)

	received := make(chan Event, 8)
	r.AddHandler("test-forwarder", TopicChat, func(ev Event) error {
		received <- ev
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case <-r.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("router never came up")
	}

	sent := NewText(KindLlmResult, 9, "届いた")
	require.NoError(t, r.Publish(TopicChat, sent))

	select {
	case got := <-received:
		assert.Equal(t, sent.ID, got.ID)
		assert.Equal(t, sent.Text, got.Text)
		assert.Equal(t, int64(9), got.TurnID)
	case <-time.After(5 * time.Second):
		t.Fatal("event never delivered")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("router did not shut down")
	}
}

func TestRouterPreservesPublishOrder(t *testing.T) {
	r, err := NewRouter()
	require.NoError(t, err)

	received := make(chan Event, 64)
	r.AddHandler("ordered", TopicChat, func(ev Event) error {
		received <- ev
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()
	<-r.Running()

	const n = 20
	for i := 0; i < n; i++ {
		ev := New(KindSensorReading, 0)
		ev.Fields = map[string]any{"seq": float64(i)}
		require.NoError(t, r.Publish(TopicChat, ev))
	}

	for i := 0; i < n; i++ {
		select {
		case got := <-received:
			assert.Equal(t, float64(i), got.Fields["seq"])
		case <-time.After(5 * time.Second):
			t.Fatalf("event %d never delivered", i)
		}
	}
}

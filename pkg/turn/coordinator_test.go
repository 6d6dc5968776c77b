package turn

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edo/pkg/config"
	"edo/pkg/events"
	"edo/pkg/llm"
)

type fakeClient struct {
	mu    sync.Mutex
	calls int
	fn    func(ctx context.Context, msgs []llm.Message) (string, error)
}

func (c *fakeClient) Complete(ctx context.Context, msgs []llm.Message, _ llm.Options) (string, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.fn(ctx, msgs)
}

func (c *fakeClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func replyWith(text string) *fakeClient {
	return &fakeClient{fn: func(context.Context, []llm.Message) (string, error) {
		return text, nil
	}}
}

func blockUntilCancelled() *fakeClient {
	return &fakeClient{fn: func(ctx context.Context, _ []llm.Message) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
}

type capturePub struct {
	ch chan events.Event
}

func newCapturePub() *capturePub {
	return &capturePub{ch: make(chan events.Event, 64)}
}

func (p *capturePub) Publish(_ string, ev events.Event) error {
	p.ch <- ev
	return nil
}

func (p *capturePub) next(t *testing.T) events.Event {
	t.Helper()
	select {
	case ev := <-p.ch:
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("no event published")
		return events.Event{}
	}
}

func (p *capturePub) nextOfKind(t *testing.T, kind events.Kind) events.Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-p.ch:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event published", kind)
		}
	}
}

// newTestService enables the LLM (off by default on a fresh install) so
// turns reach the client; overrides are applied on top.
func newTestService(t *testing.T, overrides string) *config.Service {
	t.Helper()
	store, err := config.OpenStore(filepath.Join(t.TempDir(), "edo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	svc, err := config.NewService(store)
	require.NoError(t, err)
	if overrides == "" {
		overrides = `{"llm":{"enabled":true}}`
	}
	_, err = svc.Apply([]byte(overrides))
	require.NoError(t, err)
	return svc
}

func TestSubmitCompletesTurn(t *testing.T) {
	pub := newCapturePub()
	svc := newTestService(t, "")
	coord := NewCoordinator(replyWith("こんにちは！"), svc, nil, pub)

	id := coord.Submit("こんにちは")
	require.Equal(t, int64(1), id)
	assert.Equal(t, StatusInFlight, coord.Status(id))

	ev := pub.nextOfKind(t, events.KindLlmResult)
	assert.Equal(t, id, ev.TurnID)

	out := coord.Apply(ev)
	assert.Equal(t, DispositionCompleted, out.Disposition)
	assert.Equal(t, "こんにちは！", out.Reply)
	assert.Equal(t, "こんにちは", out.UserText)
	assert.Equal(t, StatusCompleted, coord.Status(id))
	assert.False(t, coord.InFlight())
}

func TestEmptyReplyFallsBackToUnknown(t *testing.T) {
	pub := newCapturePub()
	svc := newTestService(t, "")
	coord := NewCoordinator(replyWith("```\nコード\n```"), svc, nil, pub)

	id := coord.Submit("教えて")
	ev := pub.nextOfKind(t, events.KindLlmResult)
	out := coord.Apply(ev)
	assert.Equal(t, DispositionCompleted, out.Disposition)
	assert.Equal(t, svc.Snapshot().Talk.UnknownReply, out.Reply)
	assert.Equal(t, StatusCompleted, coord.Status(id))
}

func TestDisabledLLMAnswersWithFallbackWithoutCalling(t *testing.T) {
	pub := newCapturePub()
	store, err := config.OpenStore(filepath.Join(t.TempDir(), "edo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	svc, err := config.NewService(store)
	require.NoError(t, err)
	require.False(t, svc.Snapshot().LLM.Enabled, "fresh install ships with the LLM off")

	client := replyWith("呼ばれないはず")
	coord := NewCoordinator(client, svc, nil, pub)

	id := coord.Submit("こんにちは")
	ev := pub.nextOfKind(t, events.KindLlmResult)
	require.Equal(t, id, ev.TurnID)

	out := coord.Apply(ev)
	assert.Equal(t, DispositionCompleted, out.Disposition)
	assert.Equal(t, svc.Snapshot().Talk.UnknownReply, out.Reply)
	assert.Equal(t, StatusCompleted, coord.Status(id))
	assert.Zero(t, client.callCount(), "disabled LLM must not dial out")
}

func TestResubmitCancelsInFlightTurn(t *testing.T) {
	pub := newCapturePub()
	svc := newTestService(t, "")
	coord := NewCoordinator(blockUntilCancelled(), svc, nil, pub)

	a := coord.Submit("最初の質問")
	b := coord.Submit("次の質問")

	assert.Equal(t, StatusCancelled, coord.Status(a))
	assert.Equal(t, StatusInFlight, coord.Status(b))
	assert.True(t, coord.InFlight())
}

func TestStaleResultIgnored(t *testing.T) {
	pub := newCapturePub()
	svc := newTestService(t, "")
	coord := NewCoordinator(blockUntilCancelled(), svc, nil, pub)

	a := coord.Submit("最初の質問")
	b := coord.Submit("次の質問")

	out := coord.Apply(events.NewText(events.KindLlmResult, a, "遅れてきた返事"))
	assert.Equal(t, DispositionIgnored, out.Disposition)
	assert.Equal(t, StatusCancelled, coord.Status(a))
	assert.Equal(t, StatusInFlight, coord.Status(b))
}

func TestTimeoutFailsTurn(t *testing.T) {
	pub := newCapturePub()
	svc := newTestService(t, `{"llm":{"enabled":true},"net":{"answer_timeout_ms":30,"answer_max_wait_ms":1000}}`)
	coord := NewCoordinator(blockUntilCancelled(), svc, nil, pub)

	id := coord.Submit("重い質問")
	ev := pub.nextOfKind(t, events.KindLlmTimeout)
	assert.Equal(t, id, ev.TurnID)

	out := coord.Apply(ev)
	assert.Equal(t, DispositionFailed, out.Disposition)
	assert.NotEmpty(t, out.Notice)
	assert.Equal(t, StatusFailed, coord.Status(id))
}

func TestTerminalTransitionHappensOnce(t *testing.T) {
	pub := newCapturePub()
	svc := newTestService(t, "")
	coord := NewCoordinator(replyWith("了解"), svc, nil, pub)

	id := coord.Submit("お願い")
	ev := pub.nextOfKind(t, events.KindLlmResult)

	first := coord.Apply(ev)
	second := coord.Apply(ev)
	assert.Equal(t, DispositionCompleted, first.Disposition)
	assert.Equal(t, DispositionIgnored, second.Disposition)
	assert.Equal(t, StatusCompleted, coord.Status(id))
}

func TestFailedCompletionPublishesFailure(t *testing.T) {
	pub := newCapturePub()
	svc := newTestService(t, "")
	client := &fakeClient{fn: func(context.Context, []llm.Message) (string, error) {
		return "", errors.New("connection refused")
	}}
	coord := NewCoordinator(client, svc, nil, pub)

	id := coord.Submit("つながる？")
	ev := pub.nextOfKind(t, events.KindLlmFailed)
	require.Equal(t, id, ev.TurnID)
	assert.Contains(t, ev.Error, "connection refused")

	out := coord.Apply(ev)
	assert.Equal(t, DispositionFailed, out.Disposition)
	assert.Equal(t, StatusFailed, coord.Status(id))
}

func TestApplyIgnoresNonTerminalKinds(t *testing.T) {
	pub := newCapturePub()
	svc := newTestService(t, "")
	coord := NewCoordinator(blockUntilCancelled(), svc, nil, pub)

	id := coord.Submit("質問")
	out := coord.Apply(events.NewText(events.KindSpeechResult, id, "音声"))
	assert.Equal(t, DispositionIgnored, out.Disposition)
	assert.Equal(t, StatusInFlight, coord.Status(id))
}

func TestConcurrentSubmitsKeepSingleInFlight(t *testing.T) {
	pub := newCapturePub()
	svc := newTestService(t, "")
	coord := NewCoordinator(blockUntilCancelled(), svc, nil, pub)

	const n = 16
	ids := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = coord.Submit("同時の質問")
		}(i)
	}
	wg.Wait()

	inFlight := 0
	for _, id := range ids {
		if coord.Status(id) == StatusInFlight {
			inFlight++
		}
	}
	assert.Equal(t, 1, inFlight)
	assert.True(t, coord.InFlight())
}

func TestSubmitUsesConfigSnapshotAtSubmitTime(t *testing.T) {
	pub := newCapturePub()
	svc := newTestService(t, `{"llm":{"enabled":true},"net":{"answer_timeout_ms":60000,"answer_max_wait_ms":180000}}`)

	coord := NewCoordinator(blockUntilCancelled(), svc, nil, pub)

	id := coord.Submit("質問")

	// Shrinking the timeout after submit must not fire the old turn's timer
	// early; the deadline was captured at submit time.
	_, err := svc.Apply([]byte(`{"net":{"answer_timeout_ms":10,"answer_max_wait_ms":1000}}`))
	require.NoError(t, err)

	select {
	case ev := <-pub.ch:
		t.Fatalf("unexpected event %s for turn %d", ev.Kind, ev.TurnID)
	case <-time.After(150 * time.Millisecond):
	}
	assert.Equal(t, StatusInFlight, coord.Status(id))
	coord.Cancel()
}

func TestCancelWithoutInFlightIsNoOp(t *testing.T) {
	pub := newCapturePub()
	svc := newTestService(t, "")
	coord := NewCoordinator(replyWith("ok"), svc, nil, pub)
	coord.Cancel()
	assert.False(t, coord.InFlight())
}

package bridge

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edo/pkg/events"
)

func TestDrainReturnsArrivalOrder(t *testing.T) {
	b := New(16)
	for i := 0; i < 5; i++ {
		b.Send(events.NewText(events.KindSpeechResult, 0, fmt.Sprintf("msg-%d", i)))
	}
	out := b.Drain()
	require.Len(t, out, 5)
	for i, ev := range out {
		assert.Equal(t, fmt.Sprintf("msg-%d", i), ev.Text)
	}
	assert.Empty(t, b.Drain())
}

func TestPerProducerOrderPreserved(t *testing.T) {
	b := New(1024)
	const producers = 8
	const perProducer = 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				ev := events.New(events.KindSensorReading, 0)
				ev.Fields = map[string]any{"producer": p, "seq": i}
				b.Send(ev)
			}
		}(p)
	}
	wg.Wait()

	out := b.Drain()
	require.Len(t, out, producers*perProducer)
	lastSeq := make(map[int]int)
	for _, ev := range out {
		p := ev.Fields["producer"].(int)
		seq := ev.Fields["seq"].(int)
		if last, ok := lastSeq[p]; ok {
			assert.Greater(t, seq, last, "producer %d out of order", p)
		}
		lastSeq[p] = seq
	}
}

func TestOverflowDropsOldestAndSynthesizesDiagnostic(t *testing.T) {
	b := New(4)
	for i := 0; i < 4; i++ {
		b.Send(events.NewText(events.KindSpeechResult, 0, fmt.Sprintf("old-%d", i)))
	}
	b.Send(events.NewText(events.KindSpeechResult, 0, "new"))

	out := b.Drain()
	var overflow int
	texts := make([]string, 0, len(out))
	for _, ev := range out {
		if ev.Kind == events.KindQueueOverflow {
			overflow++
			continue
		}
		texts = append(texts, ev.Text)
	}
	assert.Equal(t, 1, overflow)
	assert.NotContains(t, texts, "old-0")
	assert.Contains(t, texts, "new")
}

func TestOverflowNeverDropsTerminalEvents(t *testing.T) {
	b := New(3)
	b.Send(events.NewText(events.KindLlmResult, 1, "terminal"))
	b.Send(events.NewText(events.KindSpeechResult, 0, "chatter-1"))
	b.Send(events.NewText(events.KindSpeechResult, 0, "chatter-2"))
	b.Send(events.NewText(events.KindSpeechResult, 0, "chatter-3"))

	var sawTerminal bool
	for _, ev := range b.Drain() {
		if ev.Kind == events.KindLlmResult {
			sawTerminal = true
		}
	}
	assert.True(t, sawTerminal)
}

func TestSingleOverflowDiagnosticPerDrainCycle(t *testing.T) {
	b := New(2)
	for i := 0; i < 10; i++ {
		b.Send(events.New(events.KindSensorReading, 0))
	}
	var overflow int
	for _, ev := range b.Drain() {
		if ev.Kind == events.KindQueueOverflow {
			overflow++
		}
	}
	assert.Equal(t, 1, overflow)

	// A fresh cycle may synthesize again.
	for i := 0; i < 10; i++ {
		b.Send(events.New(events.KindSensorReading, 0))
	}
	overflow = 0
	for _, ev := range b.Drain() {
		if ev.Kind == events.KindQueueOverflow {
			overflow++
		}
	}
	assert.Equal(t, 1, overflow)
}

func TestSendAfterCloseIsNoOp(t *testing.T) {
	b := New(8)
	b.Close()
	b.Send(events.New(events.KindSpeechResult, 0))
	assert.Empty(t, b.Drain())
	assert.True(t, b.Closed())
}

func TestNotifyWakesConsumer(t *testing.T) {
	b := New(8)
	done := make(chan []events.Event, 1)
	go func() {
		<-b.Notify()
		done <- b.Drain()
	}()

	b.Send(events.NewText(events.KindSpeechResult, 0, "hello"))

	select {
	case out := <-done:
		require.Len(t, out, 1)
		assert.Equal(t, "hello", out[0].Text)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer never woke up")
	}
}

func TestNotifyCoalescesBursts(t *testing.T) {
	b := New(64)
	for i := 0; i < 20; i++ {
		b.Send(events.New(events.KindSensorReading, 0))
	}
	<-b.Notify()
	assert.Len(t, b.Drain(), 20)
	select {
	case <-b.Notify():
		// A second pending wakeup is fine, the drain already emptied it.
		assert.Empty(t, b.Drain())
	default:
	}
}

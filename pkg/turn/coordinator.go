// Package turn owns the conversational turn lifecycle: at most one turn is
// in flight, results come back as events, and only the consuming loop moves
// a turn to a terminal state.
package turn

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"edo/pkg/config"
	"edo/pkg/events"
	"edo/pkg/llm"
	"edo/pkg/memory"
)

// Status is the lifecycle state of a turn.
type Status int

const (
	StatusAwaitingInput Status = iota
	StatusInFlight
	StatusCompleted
	StatusCancelled
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusAwaitingInput:
		return "awaiting-input"
	case StatusInFlight:
		return "in-flight"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Publisher is the slice of the event router the coordinator needs.
type Publisher interface {
	Publish(topic string, ev events.Event) error
}

// connectNotice is shown when the model endpoint cannot be reached in time.
const connectNotice = "いまLLMに接続できないみたい。LM Studioを起動して Serve をONにしてね。"

const retiredLimit = 64

type turnState struct {
	id        int64
	userText  string
	status    Status
	snap      config.Snapshot
	cancel    context.CancelFunc
	timer     *time.Timer
	startedAt time.Time
}

// Coordinator serializes turns. Submit may be called from any goroutine;
// Apply must only be called from the consuming loop.
type Coordinator struct {
	client llm.Client
	cfg    *config.Service
	store  *memory.Store
	pub    Publisher
	topic  string

	mu           sync.Mutex
	nextID       int64
	current      *turnState
	retired      map[int64]Status
	retiredOrder []int64

	summarizing atomic.Bool
}

func NewCoordinator(client llm.Client, cfg *config.Service, store *memory.Store, pub Publisher) *Coordinator {
	return &Coordinator{
		client:  client,
		cfg:     cfg,
		store:   store,
		pub:     pub,
		topic:   events.TopicChat,
		retired: make(map[int64]Status),
	}
}

// Submit starts a new turn for the given user text and returns its id. Any
// turn still in flight is cancelled first; its late result will be ignored
// by Apply because the id no longer matches.
func (c *Coordinator) Submit(text string) int64 {
	c.mu.Lock()
	if c.current != nil && c.current.status == StatusInFlight {
		c.cancelCurrentLocked()
	}
	c.nextID++
	id := c.nextID
	snap := c.cfg.Snapshot()

	ctx, cancel := context.WithCancel(context.Background())
	st := &turnState{
		id:        id,
		userText:  text,
		status:    StatusInFlight,
		snap:      snap,
		cancel:    cancel,
		startedAt: time.Now(),
	}
	timeout := time.Duration(snap.Net.AnswerTimeoutMs) * time.Millisecond
	st.timer = time.AfterFunc(timeout, func() {
		c.publish(events.New(events.KindLlmTimeout, id))
	})
	c.current = st
	c.mu.Unlock()

	log.Debug().Int64("turn_id", id).Msg("turn submitted")
	if c.store != nil {
		c.store.AddQuery(text, snap.Memory.MaxHistory)
	}
	go c.run(ctx, id, text, snap)
	return id
}

// Cancel aborts the in-flight turn, if any. Safe to call from any goroutine.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && c.current.status == StatusInFlight {
		c.cancelCurrentLocked()
	}
}

func (c *Coordinator) cancelCurrentLocked() {
	st := c.current
	st.cancel()
	st.timer.Stop()
	st.status = StatusCancelled
	c.retireLocked(st)
	c.current = nil
	log.Debug().Int64("turn_id", st.id).Msg("turn cancelled")
}

func (c *Coordinator) retireLocked(st *turnState) {
	c.retired[st.id] = st.status
	c.retiredOrder = append(c.retiredOrder, st.id)
	if len(c.retiredOrder) > retiredLimit {
		delete(c.retired, c.retiredOrder[0])
		c.retiredOrder = c.retiredOrder[1:]
	}
}

// Status reports the lifecycle state of a turn id. Unknown ids report
// AwaitingInput.
func (c *Coordinator) Status(id int64) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && c.current.id == id {
		return c.current.status
	}
	if st, ok := c.retired[id]; ok {
		return st
	}
	return StatusAwaitingInput
}

// InFlight reports whether a turn is currently awaiting its result.
func (c *Coordinator) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil && c.current.status == StatusInFlight
}

// run executes the model call off the consuming loop and publishes exactly
// one result or failure event for the turn. With the LLM disabled the turn
// completes with the configured fallback and never dials out.
func (c *Coordinator) run(ctx context.Context, id int64, text string, snap config.Snapshot) {
	if !snap.LLM.Enabled {
		c.publish(events.NewText(events.KindLlmResult, id, snap.Talk.UnknownReply))
		return
	}
	maxWait := time.Duration(snap.Net.AnswerMaxWaitMs) * time.Millisecond
	ctx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	msgs := c.buildMessages(snap, text)
	opts := llm.Options{
		Model:       snap.LLM.Model,
		Temperature: snap.LLM.Temperature,
		MaxTokens:   snap.LLM.MaxTokens,
	}
	reply, err := c.client.Complete(ctx, msgs, opts)
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled or out of time; the coordinator already moved on.
			return
		}
		log.Warn().Err(err).Int64("turn_id", id).Msg("completion failed")
		c.publish(events.NewError(events.KindLlmFailed, id, err))
		return
	}
	reply = llm.EnsureJapanese(ctx, c.client, reply, opts)
	reply = truncateRunes(reply, snap.Net.AnswerMaxChars)
	c.publish(events.NewText(events.KindLlmResult, id, reply))
}

func (c *Coordinator) publish(ev events.Event) {
	if err := c.pub.Publish(c.topic, ev); err != nil {
		log.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("publish failed")
	}
}

// Disposition classifies what Apply did with an event.
type Disposition int

const (
	DispositionIgnored Disposition = iota
	DispositionCompleted
	DispositionFailed
)

// Outcome is what the consuming loop renders after applying a terminal
// event. Reply is set on completion, Notice on failure; UserText is the
// text that started the turn so the loop can record the exchange.
type Outcome struct {
	TurnID      int64
	Disposition Disposition
	Status      Status
	UserText    string
	Reply       string
	Notice      string
}

// Apply moves the matching in-flight turn to a terminal state. Stale
// events, ids that no longer match, and non-terminal kinds are ignored.
// Must be called from the consuming loop only.
func (c *Coordinator) Apply(ev events.Event) Outcome {
	if !ev.TurnTerminal() {
		return Outcome{TurnID: ev.TurnID, Disposition: DispositionIgnored}
	}
	c.mu.Lock()
	st := c.current
	if st == nil || st.id != ev.TurnID || st.status != StatusInFlight {
		c.mu.Unlock()
		log.Debug().Int64("turn_id", ev.TurnID).Str("kind", string(ev.Kind)).Msg("stale turn event ignored")
		return Outcome{TurnID: ev.TurnID, Disposition: DispositionIgnored}
	}
	st.timer.Stop()
	st.cancel()

	out := Outcome{TurnID: st.id, UserText: st.userText}
	switch ev.Kind {
	case events.KindLlmResult:
		st.status = StatusCompleted
		out.Disposition = DispositionCompleted
		out.Reply = SanitizeDisplay(ev.Text)
		if out.Reply == "" {
			out.Reply = st.snap.Talk.UnknownReply
		}
	case events.KindLlmFailed, events.KindLlmTimeout:
		st.status = StatusFailed
		out.Disposition = DispositionFailed
		out.Notice = connectNotice
	}
	out.Status = st.status
	c.retireLocked(st)
	c.current = nil
	snap := st.snap
	c.mu.Unlock()

	log.Info().
		Int64("turn_id", out.TurnID).
		Str("status", out.Status.String()).
		Dur("elapsed", time.Since(st.startedAt)).
		Msg("turn finished")

	if out.Disposition == DispositionCompleted {
		if c.store != nil {
			c.store.IncCounter("turns_completed", 1)
		}
		c.maybeSummarize(snap)
	}
	return out
}

// maybeSummarize refreshes the rolling summary in the background. At most
// one summarization runs at a time; extra triggers are dropped.
func (c *Coordinator) maybeSummarize(snap config.Snapshot) {
	if c.store == nil || !snap.LLM.Enabled || !snap.Learning.Enabled || !snap.Learning.SummarizeEnabled {
		return
	}
	if !c.summarizing.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer c.summarizing.Store(false)
		turns, err := c.store.RecentTurns(snap.Memory.MaxHistory)
		if err != nil || len(turns) < 4 {
			return
		}
		transcript := renderTranscript(turns)
		opts := llm.Options{
			Model:       snap.LLM.Model,
			Temperature: 0.3,
			MaxTokens:   snap.LLM.MaxTokens,
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(snap.Net.AnswerMaxWaitMs)*time.Millisecond)
		defer cancel()

		text, err := c.client.Complete(ctx, []llm.Message{
			{Role: memory.RoleSystem, Content: summarizeSystemPrompt(snap.Learning.MaxSummaryChars)},
			{Role: memory.RoleUser, Content: transcript},
		}, opts)
		if err != nil {
			log.Debug().Err(err).Msg("summarize skipped")
			return
		}
		c.store.SetSummary(text, snap.Learning.MaxSummaryChars)

		if snap.Learning.MaxFacts <= 0 {
			return
		}
		text, err = c.client.Complete(ctx, []llm.Message{
			{Role: memory.RoleSystem, Content: extractFactsPrompt},
			{Role: memory.RoleUser, Content: transcript},
		}, opts)
		if err != nil {
			log.Debug().Err(err).Msg("fact extraction skipped")
			return
		}
		for _, fact := range parseFactLines(text) {
			c.store.AddFact(fact, snap.Learning.MaxFacts)
		}
	}()
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

// Package ui is the consuming loop. The bubbletea Update function is the
// only place bridge events are drained and turn state is advanced; workers
// never touch anything in here.
package ui

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog/log"

	"edo/pkg/bridge"
	"edo/pkg/config"
	"edo/pkg/events"
	"edo/pkg/memory"
	"edo/pkg/safety"
	"edo/pkg/speech"
	"edo/pkg/turn"
)

// bridgeBatchMsg carries one drained batch into Update.
type bridgeBatchMsg []events.Event

// autoTalkMsg fires when the idle chatter timer elapses.
type autoTalkMsg time.Time

// Options wires the model to the rest of the app. Speech fields may be nil
// when no capture backend is configured.
type Options struct {
	Bridge  *bridge.Bridge
	Coord   *turn.Coordinator
	Config  *config.Service
	Store   *memory.Store
	History *memory.History
	Speech  *speech.Worker
	Source  speech.Source
}

type Model struct {
	bridge  *bridge.Bridge
	coord   *turn.Coordinator
	cfgSvc  *config.Service
	store   *memory.Store
	history *memory.History
	speech  *speech.Worker
	source  speech.Source

	input    textinput.Model
	viewport viewport.Model
	spin     spinner.Model
	renderer *glamour.TermRenderer

	width, height int
	ready         bool

	busy        bool
	recording   bool
	pendingUser string
	lastReply   string
	notice      string

	rng *rand.Rand
}

func NewModel(opts Options) Model {
	input := textinput.New()
	input.Placeholder = "エドに話しかける…"
	input.CharLimit = 500
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = spinnerStyle

	return Model{
		bridge:  opts.Bridge,
		coord:   opts.Coord,
		cfgSvc:  opts.Config,
		store:   opts.Store,
		history: opts.History,
		speech:  opts.Speech,
		source:  opts.Source,
		input:   input,
		spin:    spin,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spin.Tick,
		waitForBridge(m.bridge),
		m.scheduleAutoTalk(),
	)
}

// waitForBridge blocks a bubbletea command goroutine on the bridge wakeup,
// then hands the whole drained batch to Update in one message.
func waitForBridge(b *bridge.Bridge) tea.Cmd {
	return func() tea.Msg {
		<-b.Notify()
		return bridgeBatchMsg(b.Drain())
	}
}

func (m Model) scheduleAutoTalk() tea.Cmd {
	snap := m.cfgSvc.Snapshot()
	if !snap.Talk.Enabled || len(snap.Talk.Messages) == 0 {
		return nil
	}
	min := snap.Talk.AutoTalkMinSec
	max := snap.Talk.AutoTalkMaxSec
	if max < min {
		max = min
	}
	wait := time.Duration((min + m.rng.Float64()*(max-min)) * float64(time.Second))
	return tea.Tick(wait, func(t time.Time) tea.Msg { return autoTalkMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.resize(msg), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case bridgeBatchMsg:
		return m.handleBatch(msg)

	case autoTalkMsg:
		if !m.busy {
			snap := m.cfgSvc.Snapshot()
			if snap.Talk.Enabled && len(snap.Talk.Messages) > 0 {
				line := snap.Talk.Messages[m.rng.Intn(len(snap.Talk.Messages))]
				m.history.Append(memory.RoleAssistant, line)
				m.refreshViewport()
			}
		}
		return m, m.scheduleAutoTalk()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit

	case "esc":
		if m.busy {
			m.coord.Cancel()
			m.busy = false
			m.pendingUser = ""
			m.notice = "キャンセルしました。"
			m.refreshViewport()
			return m, nil
		}
		return m, tea.Quit

	case "enter":
		return m.submit(m.input.Value())

	case "ctrl+y":
		if m.lastReply != "" {
			if err := clipboard.WriteAll(m.lastReply); err != nil {
				log.Debug().Err(err).Msg("clipboard write failed")
				m.notice = "コピーできませんでした。"
			} else {
				m.notice = "返事をコピーしました。"
			}
		}
		return m, nil

	case "ctrl+t":
		return m.togglePushToTalk()

	case "up", "down", "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit runs the safety gate and starts a turn. Submitting while a turn is
// in flight cancels it; the coordinator discards the old result. The user
// line is shown as pending until the turn reaches a terminal state.
func (m Model) submit(text string) (tea.Model, tea.Cmd) {
	if text == "" {
		return m, nil
	}
	snap := m.cfgSvc.Snapshot()
	if ok, reason := safety.Check(text, snap.Safety.BannedKeywords); !ok {
		m.notice = reason
		m.input.Reset()
		return m, nil
	}
	m.coord.Submit(text)
	m.busy = true
	m.pendingUser = text
	m.notice = ""
	m.input.Reset()
	m.refreshViewport()
	return m, nil
}

func (m Model) togglePushToTalk() (tea.Model, tea.Cmd) {
	if m.speech == nil || m.source == nil {
		m.notice = "音声入力は設定されていません。"
		return m, nil
	}
	if !m.recording {
		if err := m.source.Start(); err != nil {
			log.Warn().Err(err).Msg("capture start failed")
			m.notice = "マイクを開けませんでした。"
			return m, nil
		}
		m.recording = true
		m.notice = "録音中… もう一度 ctrl+t で送信"
		return m, nil
	}
	m.recording = false
	rec, err := m.source.Stop()
	if err != nil {
		log.Warn().Err(err).Msg("capture stop failed")
		m.notice = "録音を取り込めませんでした。"
		return m, nil
	}
	m.notice = "認識中…"
	m.speech.Submit(rec)
	return m, nil
}

// handleBatch applies a drained batch in arrival order, then re-arms the
// bridge wait.
func (m Model) handleBatch(batch bridgeBatchMsg) (tea.Model, tea.Cmd) {
	var next tea.Model = m
	for _, ev := range batch {
		switch ev.Kind {
		case events.KindSpeechResult:
			mm := next.(Model)
			mm.notice = ""
			next, _ = mm.submit(ev.Text)

		case events.KindSpeechFailed:
			mm := next.(Model)
			if ev.Text != "" {
				mm.notice = ev.Text
			} else {
				mm.notice = noAudioFallback
			}
			next = mm

		case events.KindLlmResult, events.KindLlmFailed, events.KindLlmTimeout:
			next = next.(Model).applyTurnEvent(ev)

		case events.KindConfigReloaded:
			mm := next.(Model)
			snap := mm.cfgSvc.Snapshot()
			mm.history.SetMax(snap.Memory.MaxHistory)
			mm.notice = "設定を再読み込みしました。"
			mm.refreshViewport()
			next = mm

		case events.KindQueueOverflow:
			mm := next.(Model)
			mm.notice = fmt.Sprintf("イベントが混み合っています（破棄: %v）。", ev.Fields["dropped"])
			next = mm

		case events.KindSensorReading:
			mm := next.(Model)
			if ev.Text != "" {
				mm.notice = ev.Text
			}
			next = mm
		}
	}
	mm := next.(Model)
	if mm.bridge.Closed() {
		return mm, tea.Quit
	}
	return mm, waitForBridge(mm.bridge)
}

const noAudioFallback = "音声が取得できませんでした。"

// applyTurnEvent hands a terminal event to the coordinator and records the
// exchange. Stale events change nothing.
func (m Model) applyTurnEvent(ev events.Event) Model {
	out := m.coord.Apply(ev)
	switch out.Disposition {
	case turn.DispositionIgnored:
		return m

	case turn.DispositionCompleted:
		snap := m.cfgSvc.Snapshot()
		m.history.Append(memory.RoleUser, out.UserText)
		m.history.Append(memory.RoleAssistant, out.Reply)
		if m.store != nil {
			m.store.AddTurn(memory.RoleUser, out.UserText, snap.Memory.MaxHistory)
			m.store.AddTurn(memory.RoleAssistant, out.Reply, snap.Memory.MaxHistory)
		}
		m.lastReply = out.Reply

	case turn.DispositionFailed:
		m.history.Append(memory.RoleUser, out.UserText)
		m.history.Append(memory.RoleSystem, out.Notice)
		m.notice = out.Notice
	}
	m.busy = false
	m.pendingUser = ""
	m.refreshViewport()
	return m
}

func (m *Model) resize(msg tea.WindowSizeMsg) Model {
	m.width = msg.Width
	m.height = msg.Height
	vpHeight := msg.Height - chromeHeight
	if vpHeight < 3 {
		vpHeight = 3
	}
	if !m.ready {
		m.viewport = viewport.New(msg.Width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = msg.Width
		m.viewport.Height = vpHeight
	}
	m.input.Width = msg.Width - 4

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(msg.Width-4),
	)
	if err != nil {
		log.Debug().Err(err).Msg("glamour renderer unavailable")
	} else {
		m.renderer = r
	}
	m.refreshViewport()
	return *m
}

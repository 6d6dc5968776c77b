package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"edo/pkg/memory"
)

// chromeHeight is the number of rows taken by header, input and footer.
const chromeHeight = 6

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			Padding(0, 1)

	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	assistantStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("213"))

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true)

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	spinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("213"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	inputStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderConversation())
	m.viewport.GotoBottom()
}

func (m *Model) renderConversation() string {
	var b strings.Builder
	for _, e := range m.history.Entries() {
		switch e.Role {
		case memory.RoleUser:
			b.WriteString(userStyle.Render("あなた"))
			b.WriteString("\n")
			b.WriteString(e.Text)
		case memory.RoleAssistant:
			b.WriteString(assistantStyle.Render("エド"))
			b.WriteString("\n")
			b.WriteString(m.renderMarkdown(e.Text))
		default:
			b.WriteString(systemStyle.Render(e.Text))
		}
		b.WriteString("\n\n")
	}
	if m.pendingUser != "" {
		b.WriteString(userStyle.Render("あなた"))
		b.WriteString("\n")
		b.WriteString(m.pendingUser)
		b.WriteString("\n")
	}
	return b.String()
}

// renderMarkdown pretty-prints an assistant reply, falling back to the raw
// text when the renderer is unavailable.
func (m *Model) renderMarkdown(text string) string {
	if m.renderer == nil {
		return text
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

func (m Model) View() string {
	if !m.ready {
		return "起動中…"
	}

	header := headerStyle.Render("エド 🐱")

	status := ""
	switch {
	case m.busy:
		status = m.spin.View() + " 考え中… (esc でキャンセル)"
	case m.recording:
		status = noticeStyle.Render("● 録音中")
	case m.notice != "":
		status = noticeStyle.Render(m.notice)
	}

	help := helpStyle.Render("enter 送信 · esc キャンセル/終了 · ctrl+y コピー · ctrl+t 音声 · ctrl+c 終了")

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		status,
		inputStyle.Width(m.width-2).Render(m.input.View()),
		help,
	)
}

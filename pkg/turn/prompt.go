package turn

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"edo/pkg/config"
	"edo/pkg/llm"
	"edo/pkg/memory"
)

// buildMessages assembles the chat request: system prompt with the length
// instruction, persisted summary and profile, the recent window, then the
// user text with its situational prefix.
func (c *Coordinator) buildMessages(snap config.Snapshot, userText string) []llm.Message {
	var sys strings.Builder
	sys.WriteString(snap.LLM.SystemPrompt)
	fmt.Fprintf(&sys, "\n回答は必ず%d文字以内の日本語で、要点だけを簡潔に。", snap.Net.AnswerMaxChars)

	var summary, userName string
	var facts []string
	var recent []memory.Entry
	if c.store != nil {
		var err error
		if summary, err = c.store.Summary(); err != nil {
			log.Debug().Err(err).Msg("summary unavailable")
		}
		if userName, err = c.store.UserName(); err != nil {
			log.Debug().Err(err).Msg("profile unavailable")
		}
		if facts, err = c.store.Facts(promptFactLimit); err != nil {
			log.Debug().Err(err).Msg("facts unavailable")
		}
		if recent, err = c.store.RecentTurns(snap.LLM.ContextTurns); err != nil {
			log.Debug().Err(err).Msg("recent turns unavailable")
		}
	}
	if userName == "" {
		userName = snap.Profile.UserName
	}
	if userName != "" {
		fmt.Fprintf(&sys, "\nユーザーの名前は「%s」です。", userName)
	}
	if summary != "" {
		sys.WriteString("\nこれまでの会話の要約:\n")
		sys.WriteString(summary)
	}
	if len(facts) > 0 {
		sys.WriteString("\n覚えていること:")
		for _, f := range facts {
			sys.WriteString("\n- ")
			sys.WriteString(f)
		}
	}

	msgs := []llm.Message{{Role: memory.RoleSystem, Content: sys.String()}}
	for _, e := range recent {
		if e.Role != memory.RoleUser && e.Role != memory.RoleAssistant {
			continue
		}
		msgs = append(msgs, llm.Message{Role: e.Role, Content: e.Text})
	}
	msgs = append(msgs, llm.Message{
		Role:    memory.RoleUser,
		Content: contextPrefix(snap.Context, time.Now()) + userText,
	})
	return msgs
}

// contextPrefix renders the situational preamble ahead of the user text.
func contextPrefix(cc config.ContextConfig, now time.Time) string {
	var parts []string
	if cc.IncludeTime {
		parts = append(parts, fmt.Sprintf("現在時刻: %s", now.Format("2006-01-02 15:04")))
	}
	if cc.IncludeLocation && cc.LocationText != "" {
		parts = append(parts, fmt.Sprintf("場所: %s", cc.LocationText))
	}
	if len(parts) == 0 {
		return ""
	}
	return "（" + strings.Join(parts, " / ") + "）"
}

const promptFactLimit = 10

func summarizeSystemPrompt(maxChars int) string {
	return fmt.Sprintf(
		"以下の会話ログを%d文字以内の日本語で要約してください。"+
			"ユーザーの好み・名前・繰り返し出る話題を優先して残してください。", maxChars)
}

const extractFactsPrompt = "以下の会話ログから、ユーザーについて長く覚えておくべき事実を" +
	"最大5件、日本語の短い箇条書き（各行「- 」で開始）で抽出してください。" +
	"確実なものだけ。なければ「なし」とだけ答えてください。"

// parseFactLines splits a bullet-list reply into bare fact strings.
func parseFactLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-・*• \t")
		line = strings.TrimSpace(line)
		if line == "" || line == "なし" {
			continue
		}
		out = append(out, line)
	}
	return out
}

func renderTranscript(entries []memory.Entry) string {
	var b strings.Builder
	for _, e := range entries {
		switch e.Role {
		case memory.RoleUser:
			b.WriteString("ユーザー: ")
		case memory.RoleAssistant:
			b.WriteString("エド: ")
		default:
			continue
		}
		b.WriteString(e.Text)
		b.WriteByte('\n')
	}
	return b.String()
}

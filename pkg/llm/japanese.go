package llm

import (
	"context"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

var (
	japaneseRe = regexp.MustCompile(`[一-龥ぁ-んァ-ン]`)
	latinRe    = regexp.MustCompile(`[A-Za-z]`)
)

const translateSystemPrompt = "次のテキストを自然な日本語に翻訳してください。" +
	"箇条書きや改行は維持し、過度な絵文字や擬態語は控えめに。" +
	"英語のフレーズやアクション記法（例:*stretches*）も日本語に言い換えてください。"

// NeedsJapanese reports whether a reply should be re-rendered in Japanese:
// no Japanese script at all, Latin text mixed in, or *action* notation.
func NeedsJapanese(text string) bool {
	if text == "" {
		return false
	}
	hasJP := japaneseRe.MatchString(text)
	hasLatin := latinRe.MatchString(text)
	hasAction := strings.Contains(text, "*")
	return !hasJP || hasLatin || hasAction
}

// EnsureJapanese translates text through the client when NeedsJapanese says
// so. Any failure returns the original text; the reply is already usable.
func EnsureJapanese(ctx context.Context, c Client, text string, opts Options) string {
	if !NeedsJapanese(text) {
		return text
	}
	out, err := c.Complete(ctx, []Message{
		{Role: "system", Content: translateSystemPrompt},
		{Role: "user", Content: text},
	}, opts)
	if err != nil {
		log.Debug().Err(err).Msg("translation fallback, keeping original reply")
		return text
	}
	return out
}

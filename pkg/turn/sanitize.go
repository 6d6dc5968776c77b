package turn

import (
	"regexp"
	"strings"
)

var (
	fenceRe   = regexp.MustCompile("(?s)```.*?```")
	barTagRe  = regexp.MustCompile(`<\|[^|>]*\|>`)
	channelRe = regexp.MustCompile(`(?s)^.*assistantfinal`)
)

// SanitizeDisplay strips model artifacts that must never reach the screen:
// fenced code blocks, chat-template control tags, and the reasoning channel
// some local models leak ahead of the final answer. Blank runs collapse to a
// single empty line.
func SanitizeDisplay(s string) string {
	s = channelRe.ReplaceAllString(s, "")
	s = fenceRe.ReplaceAllString(s, "")
	s = barTagRe.ReplaceAllString(s, "")

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if strings.TrimSpace(trimmed) == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, trimmed)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

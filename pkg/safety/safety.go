// Package safety gates user input before it ever becomes a turn.
package safety

import (
	"fmt"
	"strings"
)

// Check returns false with a user-facing reason when the text contains a
// banned keyword. Matching is case-insensitive substring search.
func Check(text string, banned []string) (bool, string) {
	lower := strings.ToLower(text)
	for _, w := range banned {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if strings.Contains(lower, w) {
			return false, fmt.Sprintf("安全のため内容に関する操作を行えません（キーワード: %s）。", w)
		}
	}
	return true, ""
}

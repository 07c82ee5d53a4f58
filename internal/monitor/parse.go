package monitor

import (
	"strconv"
	"strings"
)

// ParseScore extracts a non-negative score from display text. The text is
// either a plain integer or an integer prefixed by one of labels, e.g.
// "Score: 12". Labels match case-insensitively.
func ParseScore(text string, labels []string) (int64, bool) {
	s := strings.TrimSpace(text)
	for _, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		if len(s) >= len(label) && strings.EqualFold(s[:len(label)], label) {
			s = strings.TrimSpace(s[len(label):])
			break
		}
	}
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

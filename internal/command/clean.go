package command

import (
	"regexp"
	"strings"
)

var markupPatterns = []*regexp.Regexp{
	regexp.MustCompile(`<[^>]*>`),
	regexp.MustCompile(`\[color[^\]]*\]`),
	regexp.MustCompile(`\[/color\]`),
	regexp.MustCompile(`<color[^>]*>`),
	regexp.MustCompile(`</color>`),
	regexp.MustCompile(`\{[^}]*\}`),
	regexp.MustCompile(`\\[a-zA-Z]+`),
	regexp.MustCompile(`\x1b\[[0-9;]*m`),
	// Legacy colour codes: &a, &l, ...
	regexp.MustCompile(`&[0-9a-fk-orA-FK-OR]`),
}

// Clean strips rich-text markup from a response so it renders as plain text
// in the host console: tags, [color] blocks, ANSI escapes, unfilled
// placeholders and legacy colour codes.
func Clean(s string) string {
	if s == "" {
		return s
	}
	for _, re := range markupPatterns {
		s = re.ReplaceAllString(s, "")
	}
	s = strings.ReplaceAll(s, "§", "")
	return strings.TrimSpace(s)
}

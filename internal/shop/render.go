package shop

import (
	"strings"

	"snake-market/internal/messages"
)

// RenderList renders entries with entryTmpl ({0} name, {1} code, {2} price).
func RenderList(entries []Entry, entryTmpl string) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(messages.Format(entryTmpl, e.DisplayName, e.Code, e.Price))
	}
	return b.String()
}

// RenderQuick renders entries with quickTmpl ({0} code, {1} name, {2} price).
func RenderQuick(entries []Entry, quickTmpl string) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(messages.Format(quickTmpl, e.Code, e.DisplayName, e.Price))
	}
	return b.String()
}

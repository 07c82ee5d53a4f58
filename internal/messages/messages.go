// Package messages renders the configurable player-facing templates.
package messages

import (
	"fmt"
	"strconv"
	"strings"
)

// Format substitutes positional placeholders ({0}, {1}, ...) in template with
// args. Placeholders without a matching argument are left untouched.
func Format(template string, args ...any) string {
	if len(args) == 0 {
		return template
	}
	pairs := make([]string, 0, len(args)*2)
	for i, arg := range args {
		pairs = append(pairs, "{"+strconv.Itoa(i)+"}", fmt.Sprint(arg))
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

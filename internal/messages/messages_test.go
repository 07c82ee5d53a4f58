package messages

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		template string
		args     []any
		want     string
	}{
		{"no args", "Purchase successful!", nil, "Purchase successful!"},
		{"single", "Invalid item: '{0}'!", []any{"foo"}, "Invalid item: 'foo'!"},
		{"ordered", "You earned {0} points (doubled from {1})!", []any{40, 20}, "You earned 40 points (doubled from 20)!"},
		{"repeated", "{0}/{0}", []any{"x"}, "x/x"},
		{"missing arg left alone", "{0} and {1}", []any{"a"}, "a and {1}"},
		{"int64", "Total points: {0}", []any{int64(1234)}, "Total points: 1234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.template, tt.args...))
		})
	}
}

func TestFormat_DoesNotReexpandSubstitutedText(t *testing.T) {
	// An argument that itself looks like a placeholder is inserted verbatim.
	assert.Equal(t, "{1} then b", Format("{0} then {1}", "{1}", "b"))
}

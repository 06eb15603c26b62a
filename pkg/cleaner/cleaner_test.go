package cleaner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase", "Early VOTING Starts", "early voting starts"},
		{"accents", "José Peña está aquí", "jose pena esta aqui"},
		{"line breaks", "line one\nline two\r\nline three", "line one line two line three"},
		{"urls", "read this https://example.com/a?b=1 now", "read this now"},
		{"bare www", "go to www.example.com today", "go to today"},
		{"emails", "write to press@example.com for info", "write to for info"},
		{"phone", "call 555-123-4567 today", "call <phone> today"},
		{"phone parens", "call (555) 123-4567", "call <phone>"},
		{"emoji", "great news \U0001F389 everyone", "great news everyone"},
		{"punctuation", "don't stop; the end.", "dont stop the end"},
		{"hashtags", "go #vote today", "go vote today"},
		{"numbers kept", "the 2022 midterms cost $400", "the 2022 midterms cost $400"},
		{"whitespace collapsed", "a   b \t c", "a b c"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestCleanDoesNotEatPlainNumbers(t *testing.T) {
	// Long digit runs are IDs, not phone numbers.
	assert.Equal(t, "id 1577811416794513408", Clean("id 1577811416794513408"))
	assert.Equal(t, "in 2022 and 2024", Clean("in 2022 and 2024"))
}

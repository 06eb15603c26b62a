// Package cleaner normalizes collected post text for counting and produces
// per-platform extraction records from the raw archives.
package cleaner

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/forPelevin/gomoji"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// PhoneToken replaces phone numbers so they cannot surface as keywords.
const PhoneToken = "<phone>"

var (
	urlRe   = regexp.MustCompile(`https?://\S+|www\.\S+`)
	emailRe = regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.-]+`)
	phoneRe = regexp.MustCompile(`\b(\+?\d{1,3}[ .-]?)?\d{3}[ .-]?\d{3}[ .-]?\d{4}\b|\(\d{3}\)[ .-]?\d{3}[ .-]?\d{4}\b`)

	// asciiFold decomposes accented characters and drops the combining
	// marks, so "café" folds to "cafe".
	asciiFold = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// Clean normalizes free text into the lowercase ASCII form the n-gram
// counter consumes. URLs, emails and emoji are dropped, phone numbers
// become PhoneToken, punctuation is removed and whitespace collapsed.
// Numbers and currency amounts survive; during an election cycle strings
// like "2020" and "$400" are keywords in their own right.
func Clean(text string) string {
	if text == "" {
		return ""
	}
	if folded, _, err := transform.String(asciiFold, text); err == nil {
		text = folded
	}
	text = strings.ToLower(text)
	text = urlRe.ReplaceAllString(text, " ")
	text = emailRe.ReplaceAllString(text, " ")
	text = phoneRe.ReplaceAllString(text, " "+PhoneToken+" ")
	text = gomoji.RemoveEmojis(text)

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case r == '<' || r == '>' || r == '$':
			// '<' and '>' only survive inside PhoneToken; stray angle
			// brackets were already part of no word.
			b.WriteRune(r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if r < 128 {
				b.WriteRune(r)
			}
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

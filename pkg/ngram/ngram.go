// Package ngram counts unigrams and bigrams over cleaned extraction records
// and merges per-platform counts into candidate keyword lists.
package ngram

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/buger/jsonparser"

	"github.com/civiclens/civiclens/pkg/store"
)

// Gram is one counted n-gram. Words is 1 for unigrams and 2 for bigrams.
type Gram struct {
	Text  string `json:"gram"`
	Words int    `json:"words"`
	Count int    `json:"count"`
}

// Counts accumulates n-gram frequencies.
type Counts map[string]int

// Sorted returns the counts ordered by descending frequency, ties broken
// alphabetically so output is stable.
func (c Counts) Sorted() []Gram {
	grams := make([]Gram, 0, len(c))
	for text, n := range c {
		grams = append(grams, Gram{
			Text:  text,
			Words: strings.Count(text, " ") + 1,
			Count: n,
		})
	}
	sort.Slice(grams, func(i, j int) bool {
		if grams[i].Count != grams[j].Count {
			return grams[i].Count > grams[j].Count
		}
		return grams[i].Text < grams[j].Text
	})
	return grams
}

// Counter tokenizes cleaned text and counts its unigrams and bigrams.
type Counter struct {
	// Stopwords are dropped before counting. Bigrams span the remaining
	// adjacent tokens.
	Stopwords map[string]bool
}

// NewCounter builds a counter with the default stopword set.
func NewCounter() *Counter {
	return &Counter{Stopwords: DefaultStopwords()}
}

// Add counts one cleaned text into c. Tokens shorter than two characters
// are dropped, matching the standard word token pattern.
func (c *Counter) Add(counts Counts, text string) {
	var kept []string
	for _, tok := range strings.Fields(text) {
		if utf8.RuneCountInString(tok) < 2 || isStopword(c.Stopwords, tok) {
			continue
		}
		kept = append(kept, tok)
	}
	for i, tok := range kept {
		counts[tok]++
		if i > 0 {
			counts[kept[i-1]+" "+tok]++
		}
	}
}

// CountFiles counts the "text" field of every extraction record in the
// given archives.
func (c *Counter) CountFiles(paths []string) (Counts, error) {
	counts := make(Counts)
	for _, path := range paths {
		err := store.ForEach(path, func(line []byte) error {
			if text, err := jsonparser.GetString(line, "text"); err == nil {
				c.Add(counts, text)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return counts, nil
}

// WriteCounts stores sorted counts as one gram per line.
func WriteCounts(path string, counts Counts) error {
	w, err := store.NewWriter(path)
	if err != nil {
		return err
	}
	for _, g := range counts.Sorted() {
		if err := w.Write(g); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

// ReadCounts loads a counts file written by WriteCounts.
func ReadCounts(path string) (Counts, error) {
	counts := make(Counts)
	err := store.ForEach(path, func(line []byte) error {
		text, err := jsonparser.GetString(line, "gram")
		if err != nil {
			return nil
		}
		n, err := jsonparser.GetInt(line, "count")
		if err != nil {
			return nil
		}
		counts[text] += int(n)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

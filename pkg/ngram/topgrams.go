package ngram

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DefaultTopN is how many unigrams and how many bigrams each platform
// contributes to the candidate list.
const DefaultTopN = 50

// TopGram is one candidate keyword with the platforms that surfaced it.
type TopGram struct {
	Platform string
	Gram     Gram
}

// TopGrams picks the n most frequent unigrams and bigrams per platform,
// dropping grams that exactly match a keyword already tracked. Grams that
// merely contain a keyword stay: "vote early" is a candidate even while
// "vote" is tracked. The result feeds the next snowball round. Non-positive
// n means DefaultTopN.
func TopGrams(byPlatform map[string]Counts, keywords []string, n int) []TopGram {
	if n <= 0 {
		n = DefaultTopN
	}
	known := make(map[string]bool, len(keywords))
	for _, kw := range keywords {
		known[strings.ToLower(kw)] = true
	}

	platforms := make([]string, 0, len(byPlatform))
	for p := range byPlatform {
		platforms = append(platforms, p)
	}
	sort.Strings(platforms)

	var top []TopGram
	for _, platform := range platforms {
		var uni, bi int
		for _, g := range byPlatform[platform].Sorted() {
			if known[g.Text] {
				continue
			}
			switch {
			case g.Words == 1 && uni < n:
				uni++
			case g.Words == 2 && bi < n:
				bi++
			default:
				continue
			}
			top = append(top, TopGram{Platform: platform, Gram: g})
			if uni >= n && bi >= n {
				break
			}
		}
	}
	return top
}

// WriteCSV stores candidate keywords for review, one row per gram.
func WriteCSV(path string, top []TopGram) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir failed: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s failed: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"platform", "gram", "words", "count"}); err != nil {
		return err
	}
	for _, t := range top {
		row := []string{
			t.Platform,
			t.Gram.Text,
			strconv.Itoa(t.Gram.Words),
			strconv.Itoa(t.Gram.Count),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return f.Close()
}

package ngram

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civiclens/civiclens/pkg/store"
)

func TestCounterAdd(t *testing.T) {
	c := NewCounter()
	counts := make(Counts)
	c.Add(counts, "the early voting early voting lines")

	assert.Equal(t, 2, counts["early"])
	assert.Equal(t, 2, counts["voting"])
	assert.Equal(t, 2, counts["early voting"])
	assert.Equal(t, 1, counts["voting early"])
	assert.Equal(t, 1, counts["lines"])
	// Stopwords never surface, alone or in bigrams.
	assert.NotContains(t, counts, "the")
	assert.NotContains(t, counts, "the early")
}

func TestCounterSkipsPlaceholders(t *testing.T) {
	c := NewCounter()
	counts := make(Counts)
	c.Add(counts, "call <phone> today")
	assert.NotContains(t, counts, "<phone>")
	assert.Equal(t, 1, counts["call today"])
}

func TestCounterDropsSingleCharacterTokens(t *testing.T) {
	c := NewCounter()
	counts := make(Counts)
	c.Add(counts, "q drop x box 5")

	assert.NotContains(t, counts, "q")
	assert.NotContains(t, counts, "x")
	assert.NotContains(t, counts, "5")
	// The surviving tokens pair up across the dropped ones.
	assert.Equal(t, 1, counts["drop box"])
}

func TestCountsSorted(t *testing.T) {
	counts := Counts{"b": 2, "a": 2, "c": 5, "a b": 1}
	grams := counts.Sorted()
	require.Len(t, grams, 4)
	assert.Equal(t, Gram{Text: "c", Words: 1, Count: 5}, grams[0])
	assert.Equal(t, "a", grams[1].Text)
	assert.Equal(t, "b", grams[2].Text)
	assert.Equal(t, Gram{Text: "a b", Words: 2, Count: 1}, grams[3])
}

func TestCountFilesAndRoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "records.json.gz")
	w, err := store.NewWriter(in)
	require.NoError(t, err)
	require.NoError(t, w.WriteRaw([]byte(`{"text":"ballot drop box"}`)))
	require.NoError(t, w.WriteRaw([]byte(`{"text":"ballot deadline"}`)))
	require.NoError(t, w.Close())

	counts, err := NewCounter().CountFiles([]string{in})
	require.NoError(t, err)
	assert.Equal(t, 2, counts["ballot"])
	assert.Equal(t, 1, counts["drop box"])

	out := filepath.Join(dir, "counts.json.gz")
	require.NoError(t, WriteCounts(out, counts))
	got, err := ReadCounts(out)
	require.NoError(t, err)
	assert.Equal(t, counts, got)
}

func TestTopGramsExcludesKnownKeywords(t *testing.T) {
	byPlatform := map[string]Counts{
		"twitter": {
			"ballot":       10,
			"drop box":     8,
			"ballot box":   7,
			"poll workers": 5,
			"audit":        4,
		},
	}
	top := TopGrams(byPlatform, []string{"Ballot"}, 0)

	var grams []string
	for _, tg := range top {
		assert.Equal(t, "twitter", tg.Platform)
		grams = append(grams, tg.Gram.Text)
	}
	// Only the exact keyword is excluded. "ballot box" still surfaces: a
	// bigram around a tracked keyword is exactly the kind of candidate the
	// snowball round is after.
	assert.Equal(t, []string{"drop box", "ballot box", "poll workers", "audit"}, grams)
}

func TestTopGramsCapsPerPlatform(t *testing.T) {
	counts := make(Counts)
	for i := 0; i < DefaultTopN+10; i++ {
		counts["w"+string(rune('a'+i%26))+string(rune('a'+i/26))] = i + 1
	}
	top := TopGrams(map[string]Counts{"reddit": counts}, nil, 0)
	assert.Len(t, top, DefaultTopN)
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "top", "grams.csv")
	top := []TopGram{
		{Platform: "twitter", Gram: Gram{Text: "drop box", Words: 2, Count: 8}},
	}
	require.NoError(t, WriteCSV(path, top))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"platform", "gram", "words", "count"}, rows[0])
	assert.Equal(t, []string{"twitter", "drop box", "2", "8"}, rows[1])
}

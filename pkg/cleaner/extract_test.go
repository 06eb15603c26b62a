package cleaner

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civiclens/civiclens/pkg/store"
)

func writeArchive(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.json.gz")
	w, err := store.NewWriter(path)
	require.NoError(t, err)
	for _, l := range lines {
		require.NoError(t, w.WriteRaw([]byte(l)))
	}
	require.NoError(t, w.Close())
	return path
}

func readRecords(t *testing.T, path string) []Record {
	t.Helper()
	lines, err := store.ReadAll(path)
	require.NoError(t, err)
	records := make([]Record, len(lines))
	for i, l := range lines {
		require.NoError(t, json.Unmarshal(l, &records[i]))
	}
	return records
}

const tweetBase = `"created_at": "Wed Oct 05 19:30:05 +0000 2022", "user": {"id_str": "7", "screen_name": "a"}`

func TestExtractorTweets(t *testing.T) {
	plain := `{"id_str": "1", "text": "plain tweet", ` + tweetBase + `}`
	retweet := `{"id_str": "2", "text": "RT @b: origin...", "retweeted_status": {"id_str": "10", "text": "original text", ` + tweetBase + `}, ` + tweetBase + `}`
	quote := `{"id_str": "3", "text": "my comment", "quoted_status": {"id_str": "11", "text": "quoted text", ` + tweetBase + `}, ` + tweetBase + `}`

	in := writeArchive(t, plain, retweet, quote)
	out := filepath.Join(t.TempDir(), "out.json.gz")
	w, err := store.NewWriter(out)
	require.NoError(t, err)

	n, err := NewExtractor(nil).Tweets([]string{in}, w)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, 4, n)

	records := readRecords(t, out)
	require.Len(t, records, 4)

	assert.Equal(t, "plain tweet", records[0].RawText)
	assert.Empty(t, records[0].RetweetedID)

	// The retweet record carries the original's text.
	assert.Equal(t, "2", records[1].PostID)
	assert.Equal(t, "10", records[1].RetweetedID)
	assert.Equal(t, "original text", records[1].RawText)
	assert.False(t, records[1].IsQuote)

	// The quote yields the quoted text first, then the commentary.
	assert.Equal(t, "3", records[2].PostID)
	assert.Equal(t, "11", records[2].RetweetedID)
	assert.Equal(t, "quoted text", records[2].RawText)
	assert.True(t, records[2].IsQuote)

	assert.Equal(t, "3", records[3].PostID)
	assert.Equal(t, "my comment", records[3].RawText)
	assert.False(t, records[3].IsQuote)
}

func TestExtractorRetweetOfQuote(t *testing.T) {
	tweet := `{"id_str": "4", "text": "RT @b: my take on this", ` +
		`"retweeted_status": {"id_str": "20", "text": "my take on this", ` +
		`"quoted_status": {"id_str": "21", "text": "the quoted scoop", ` + tweetBase + `}, ` + tweetBase + `}, ` +
		`"quoted_status": {"id_str": "21", "text": "the quoted scoop", ` + tweetBase + `}, ` + tweetBase + `}`
	in := writeArchive(t, tweet)

	out := filepath.Join(t.TempDir(), "out.json.gz")
	w, err := store.NewWriter(out)
	require.NoError(t, err)

	n, err := NewExtractor(nil).Tweets([]string{in}, w)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, 3, n)

	records := readRecords(t, out)
	require.Len(t, records, 3)

	assert.Equal(t, "20", records[0].RetweetedID)
	assert.Equal(t, "my take on this", records[0].RawText)
	assert.False(t, records[0].IsQuote)

	assert.Equal(t, "21", records[1].RetweetedID)
	assert.Equal(t, "the quoted scoop", records[1].RawText)
	assert.True(t, records[1].IsQuote)

	assert.Empty(t, records[2].RetweetedID)
	assert.Equal(t, "RT @b: my take on this", records[2].RawText)
	assert.False(t, records[2].IsQuote)
}

func TestExtractorDeduplicatesAcrossFiles(t *testing.T) {
	tweet := `{"id_str": "1", "text": "same tweet", ` + tweetBase + `}`
	a := writeArchive(t, tweet)
	b := writeArchive(t, tweet)

	out := filepath.Join(t.TempDir(), "out.json.gz")
	w, err := store.NewWriter(out)
	require.NoError(t, err)
	defer w.Close()

	n, err := NewExtractor(nil).Tweets([]string{a, b}, w)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestExtractorMetaPostsFiltersPlatform(t *testing.T) {
	fb := `{"id": 1, "platform": "Facebook", "message": "fb post", "date": "2022-10-05 10:00:00"}`
	ig := `{"id": 2, "platform": "Instagram", "message": "ig post", "date": "2022-10-05 11:00:00"}`
	in := writeArchive(t, fb, ig)

	out := filepath.Join(t.TempDir(), "out.json.gz")
	w, err := store.NewWriter(out)
	require.NoError(t, err)

	n, err := NewExtractor(nil).MetaPosts([]string{in}, "instagram", w)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, 1, n)

	records := readRecords(t, out)
	assert.Equal(t, "instagram", records[0].Platform)
	assert.Equal(t, "ig post", records[0].RawText)
}

func TestExtractorReddit(t *testing.T) {
	sub := `{"id": "s1", "title": "A Title", "selftext": "body text", "created_utc": 1664994131}`
	in := writeArchive(t, sub)

	out := filepath.Join(t.TempDir(), "out.json.gz")
	w, err := store.NewWriter(out)
	require.NoError(t, err)

	n, err := NewExtractor(nil).Reddit([]string{in}, "submission", w)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, 1, n)

	records := readRecords(t, out)
	assert.Equal(t, "A Title body text", records[0].RawText)
	assert.Equal(t, "a title body text", records[0].Text)
}

func TestExtractorChanThreads(t *testing.T) {
	thread := `{"posts": [` +
		`{"no": 1, "resto": 0, "sub": "Thread", "com": "opener &amp; text"}, ` +
		`{"no": 2, "resto": 1, "com": "a reply"}` +
		`]}`
	in := writeArchive(t, thread)

	out := filepath.Join(t.TempDir(), "out.json.gz")
	w, err := store.NewWriter(out)
	require.NoError(t, err)

	n, err := NewExtractor(nil).ChanThreads([]string{in}, "pol", w)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, 2, n)

	records := readRecords(t, out)
	assert.Equal(t, "Thread opener & text", records[0].RawText)
	assert.Equal(t, "a reply", records[1].RawText)
}

func TestExtractorFBAds(t *testing.T) {
	ad := `{"id": "9", "page_id": "5", "ad_creative_bodies": ["Vote early!"]}`
	in := writeArchive(t, ad)

	out := filepath.Join(t.TempDir(), "out.json.gz")
	w, err := store.NewWriter(out)
	require.NoError(t, err)

	n, err := NewExtractor(nil).FBAds([]string{in}, w)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, 1, n)

	records := readRecords(t, out)
	assert.Equal(t, "fb_ads", records[0].Platform)
	assert.Equal(t, "vote early", records[0].Text)
}

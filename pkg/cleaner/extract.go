package cleaner

import (
	"strings"
	"time"

	"github.com/buger/jsonparser"
	"go.uber.org/zap"

	"github.com/civiclens/civiclens/internal/models"
	"github.com/civiclens/civiclens/pkg/store"
)

// Record is one cleaned text unit ready for counting. A post usually yields
// one record; quote tweets yield two, one for the quoted text and one for
// the commentary.
type Record struct {
	Platform    string `json:"platform"`
	PostID      string `json:"post_id"`
	UserID      string `json:"user_id"`
	Date        string `json:"date,omitempty"`
	RetweetedID string `json:"retweeted_id,omitempty"`
	IsQuote     bool   `json:"is_quote"`
	RawText     string `json:"raw_text"`
	Text        string `json:"text"`
}

// key identifies a record for deduplication. Collection windows overlap, so
// the same post appears in more than one archive file.
func (r Record) key() string {
	quote := "0"
	if r.IsQuote {
		quote = "1"
	}
	return strings.Join([]string{r.PostID, r.RetweetedID, r.RawText, quote}, "\x00")
}

// Extractor turns raw archive files into cleaned extraction records.
type Extractor struct {
	log     *zap.Logger
	seen    map[string]bool
	skipped int
}

// NewExtractor prepares an extractor with an empty dedup set. One extractor
// deduplicates across every file passed to it.
func NewExtractor(log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{log: log, seen: make(map[string]bool)}
}

// Skipped reports how many lines were dropped as malformed or invalid.
func (e *Extractor) Skipped() int { return e.skipped }

func (e *Extractor) emit(w *store.Writer, r Record) error {
	if r.RawText == "" {
		return nil
	}
	k := r.key()
	if e.seen[k] {
		return nil
	}
	e.seen[k] = true
	r.Text = Clean(r.RawText)
	return w.Write(r)
}

// record fills the fields every platform shares.
func record(p models.Post) Record {
	r := Record{
		Platform: p.Platform(),
		PostID:   p.ID(),
		UserID:   p.UserID(),
		RawText:  p.Text(),
	}
	if ts := p.CreatedAt(); !ts.IsZero() {
		r.Date = ts.UTC().Format(time.RFC3339)
	}
	return r
}

// Tweets extracts records from raw tweet archives. Retweets yield one
// record carrying the original tweet's full text; quotes yield one record
// for the quoted text and one for the commentary on top.
func (e *Extractor) Tweets(paths []string, w *store.Writer) (int, error) {
	before := w.Count()
	for _, path := range paths {
		err := store.ForEach(path, func(line []byte) error {
			tw, err := models.NewTweet(line)
			if err != nil || !tw.Valid() {
				e.skipped++
				return nil
			}
			return e.tweetRecords(tw, w)
		})
		if err != nil {
			return w.Count() - before, err
		}
		e.log.Info("extracted file",
			zap.String("path", path), zap.Int("skipped", e.skipped))
	}
	return w.Count() - before, nil
}

func (e *Extractor) tweetRecords(tw *models.Tweet, w *store.Writer) error {
	base := record(tw)

	// Retweet and quote are independent. A retweet of a quote tweet carries
	// both embedded objects and yields records for each, plus the commentary.
	if tw.IsRetweet() {
		r := base
		r.RetweetedID = tw.Retweeted.ID()
		r.RawText = tw.Retweeted.Text()
		if err := e.emit(w, r); err != nil {
			return err
		}
	}
	if tw.IsQuote() {
		quoted := base
		quoted.RetweetedID = tw.Quoted.ID()
		quoted.IsQuote = true
		quoted.RawText = tw.Quoted.Text()
		if err := e.emit(w, quoted); err != nil {
			return err
		}
		if err := e.emit(w, base); err != nil {
			return err
		}
	}
	if !tw.IsRetweet() && !tw.IsQuote() {
		return e.emit(w, base)
	}
	return nil
}

// MetaPosts extracts records for one Meta platform, "facebook" or
// "instagram". CrowdTangle archives mix both, so the caller names which one
// it wants.
func (e *Extractor) MetaPosts(paths []string, platform string, w *store.Writer) (int, error) {
	before := w.Count()
	for _, path := range paths {
		err := store.ForEach(path, func(line []byte) error {
			p, err := models.NewMetaPost(line)
			if err != nil || !p.Valid() {
				e.skipped++
				return nil
			}
			if p.Platform() != platform {
				return nil
			}
			return e.emit(w, record(p))
		})
		if err != nil {
			return w.Count() - before, err
		}
	}
	return w.Count() - before, nil
}

// Reddit extracts records from Pushshift archives of the named kind,
// "submission" or "comment".
func (e *Extractor) Reddit(paths []string, kind string, w *store.Writer) (int, error) {
	before := w.Count()
	for _, path := range paths {
		err := store.ForEach(path, func(line []byte) error {
			var p models.Post
			var err error
			if kind == "comment" {
				p, err = models.NewRedditComment(line)
			} else {
				p, err = models.NewRedditSubmission(line)
			}
			if err != nil || !p.Valid() {
				e.skipped++
				return nil
			}
			return e.emit(w, record(p))
		})
		if err != nil {
			return w.Count() - before, err
		}
	}
	return w.Count() - before, nil
}

// ChanThreads extracts one record per post from archived thread files.
func (e *Extractor) ChanThreads(paths []string, board string, w *store.Writer) (int, error) {
	before := w.Count()
	for _, path := range paths {
		err := store.ForEach(path, func(line []byte) error {
			var perr error
			jsonparser.ArrayEach(line, func(post []byte, dt jsonparser.ValueType, _ int, _ error) {
				if perr != nil || dt != jsonparser.Object {
					return
				}
				p, err := models.NewChanPostOnBoard(post, board)
				if err != nil || !p.Valid() {
					e.skipped++
					return
				}
				perr = e.emit(w, record(p))
			}, "posts")
			return perr
		})
		if err != nil {
			return w.Count() - before, err
		}
	}
	return w.Count() - before, nil
}

// FBAds extracts records from Ad Library archives.
func (e *Extractor) FBAds(paths []string, w *store.Writer) (int, error) {
	before := w.Count()
	for _, path := range paths {
		err := store.ForEach(path, func(line []byte) error {
			a, err := models.NewFBAd(line)
			if err != nil || !a.Valid() {
				e.skipped++
				return nil
			}
			return e.emit(w, record(a))
		})
		if err != nil {
			return w.Count() - before, err
		}
	}
	return w.Count() - before, nil
}

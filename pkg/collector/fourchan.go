package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/civiclens/civiclens/pkg/store"
)

// ChanCollector polls one 4chan board through the read-only JSON API.
type ChanCollector struct {
	// BaseURL is the API root, "https://a.4cdn.org" in production.
	BaseURL string

	// Board is the board name without slashes, e.g. "pol".
	Board string

	// DataDir receives the daily archives and the archive-ID snapshots.
	DataDir string

	Retry RetryPolicy

	client client
	now    func() time.Time
}

// NewChanCollector prepares a collector for one board.
func NewChanCollector(board, dataDir string, log *zap.Logger) *ChanCollector {
	return &ChanCollector{
		BaseURL: "https://a.4cdn.org",
		Board:   board,
		DataDir: dataDir,
		Retry:   RetryPolicy{Attempts: 5, Wait: 10 * time.Second},
		client:  newClient(30*time.Second, rate.Every(time.Second), log),
		now:     time.Now,
	}
}

func (c *ChanCollector) Name() string { return "4chan/" + c.Board }

func (c *ChanCollector) Describe() RunInfo {
	day := c.now().Truncate(24 * time.Hour)
	return RunInfo{
		Label:      c.Board,
		Day:        day,
		OutputFile: store.DailyPath(c.DataDir, c.Board, day),
	}
}

// catalogSnapshot is one NDJSON line of the snapshot archive: the full
// catalog and archived-thread list at one point in time.
type catalogSnapshot struct {
	Time    int64           `json:"time"`
	Catalog json.RawMessage `json:"catalog"`
	Archive json.RawMessage `json:"archive"`
}

// Run takes one catalog snapshot.
func (c *ChanCollector) Run(ctx context.Context) (int, error) {
	return c.Snapshot(ctx)
}

// Snapshot fetches the board catalog and archive list and appends them as a
// single timestamped line to today's snapshot file.
func (c *ChanCollector) Snapshot(ctx context.Context) (int, error) {
	snap := catalogSnapshot{Time: c.now().Unix()}

	err := c.Retry.Do(ctx, func() error {
		catalog, err := c.client.getJSON(ctx, c.BaseURL+"/"+c.Board+"/catalog.json", nil)
		if err != nil {
			return err
		}
		archive, err := c.client.getJSON(ctx, c.BaseURL+"/"+c.Board+"/archive.json", nil)
		if err != nil {
			return err
		}
		snap.Catalog, snap.Archive = catalog, archive
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("catalog snapshot failed: %w", err)
	}

	w, err := store.NewWriter(store.DailyPath(c.DataDir, c.Board, c.now()))
	if err != nil {
		return 0, err
	}
	defer w.Close()
	if err := w.Write(snap); err != nil {
		return 0, err
	}
	c.client.log.Info("took catalog snapshot", zap.String("board", c.Board))
	return w.Count(), w.Close()
}

// WatchArchive diffs the board's archived-thread list against the previous
// snapshot and downloads every thread that fell off the board since. Archive
// ID snapshots are kept one file per minute under <DataDir>/archive_ids, so
// consecutive runs always have a baseline to diff against.
func (c *ChanCollector) WatchArchive(ctx context.Context) (int, error) {
	var raw []byte
	err := c.Retry.Do(ctx, func() error {
		var err error
		raw, err = c.client.getJSON(ctx, c.BaseURL+"/"+c.Board+"/archive.json", nil)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("archive list failed: %w", err)
	}
	var ids []int64
	if err := json.Unmarshal(raw, &ids); err != nil {
		return 0, fmt.Errorf("failed to parse archive list: %w", err)
	}

	prev, err := c.previousIDs()
	if err != nil {
		return 0, err
	}
	if err := c.writeIDs(ids); err != nil {
		return 0, err
	}
	if prev == nil {
		// First run has no baseline; downloading the whole archive would
		// pull threads from long before collection started.
		c.client.log.Info("no previous archive snapshot, baseline written",
			zap.String("board", c.Board), zap.Int("threads", len(ids)))
		return 0, nil
	}

	var fresh []int64
	for _, id := range ids {
		if !prev[id] {
			fresh = append(fresh, id)
		}
	}
	if len(fresh) == 0 {
		return 0, nil
	}
	c.client.log.Info("downloading archived threads",
		zap.String("board", c.Board), zap.Int("new", len(fresh)))

	w, err := store.NewWriter(store.DailyPath(c.DataDir, c.Board+"_threads", c.now()))
	if err != nil {
		return 0, err
	}
	defer w.Close()

	for i, id := range fresh {
		if i > 0 {
			if err := sleep(ctx, 500*time.Millisecond); err != nil {
				return w.Count(), err
			}
		}
		url := c.BaseURL + "/" + c.Board + "/thread/" + strconv.FormatInt(id, 10) + ".json"
		thread, err := c.client.getJSON(ctx, url, nil)
		if err != nil {
			// Threads can expire between the archive listing and the fetch.
			c.client.log.Warn("thread fetch failed",
				zap.Int64("thread", id), zap.Error(err))
			continue
		}
		if err := w.WriteRaw(thread); err != nil {
			return w.Count(), err
		}
	}
	return w.Count(), w.Close()
}

func (c *ChanCollector) idsDir(day time.Time) string {
	return filepath.Join(c.DataDir, "archive_ids", c.Board, day.Format("2006-01-02"))
}

// writeIDs stores the current archive listing under the current day and
// minute of day.
func (c *ChanCollector) writeIDs(ids []int64) error {
	now := c.now()
	dir := c.idsDir(now)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir failed: %w", err)
	}
	minute := now.Hour()*60 + now.Minute()
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, fmt.Sprintf("%04d.json", minute)), data, 0o644)
}

// previousIDs loads the most recent archive listing from today or yesterday,
// or nil when none exists.
func (c *ChanCollector) previousIDs() (map[int64]bool, error) {
	now := c.now()
	for _, day := range []time.Time{now, now.AddDate(0, 0, -1)} {
		entries, err := os.ReadDir(c.idsDir(day))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		if len(names) == 0 {
			continue
		}
		sort.Strings(names)
		data, err := os.ReadFile(filepath.Join(c.idsDir(day), names[len(names)-1]))
		if err != nil {
			return nil, err
		}
		var ids []int64
		if err := json.Unmarshal(data, &ids); err != nil {
			return nil, err
		}
		set := make(map[int64]bool, len(ids))
		for _, id := range ids {
			set[id] = true
		}
		return set, nil
	}
	return nil, nil
}

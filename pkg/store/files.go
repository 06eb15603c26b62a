package store

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"
)

const (
	dayLayout = "2006-01-02"
	ext       = ".json.gz"
)

// DailyPath returns the archive path for one label on one day, shaped
// "<dir>/<YYYY-MM-DD>__<label>.json.gz".
func DailyPath(dir, label string, day time.Time) string {
	return filepath.Join(dir, day.Format(dayLayout)+"__"+label+ext)
}

var dailyPattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})__(.+)\.json\.gz$`)

// ParseDailyName splits an archive file name into its day and label.
func ParseDailyName(name string) (day time.Time, label string, err error) {
	m := dailyPattern.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, "", fmt.Errorf("not a daily archive name: %s", name)
	}
	day, err = time.Parse(dayLayout, m[1])
	if err != nil {
		return time.Time{}, "", err
	}
	return day, m[2], nil
}

// MatchDateRange returns the existing daily archive paths for label between
// from and to inclusive, oldest first. Zero from and to both default to
// yesterday, the day whose archive is complete.
func MatchDateRange(dir, label string, from, to time.Time) ([]string, error) {
	if from.IsZero() && to.IsZero() {
		yesterday := time.Now().AddDate(0, 0, -1)
		from, to = yesterday, yesterday
	}
	if from.IsZero() {
		from = to
	}
	if to.IsZero() {
		to = from
	}
	from = from.Truncate(24 * time.Hour)
	to = to.Truncate(24 * time.Hour)
	if from.After(to) {
		return nil, fmt.Errorf("date range inverted: %s after %s",
			from.Format(dayLayout), to.Format(dayLayout))
	}

	var paths []string
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		p := DailyPath(dir, label, day)
		if _, err := os.Stat(p); err == nil {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

// StreamPath returns the archive path for one versioned stream file, shaped
// "<dir>/<label>--<YYYY-MM-DD>--<n>.json.gz".
func StreamPath(dir, label string, day time.Time, n int) string {
	return filepath.Join(dir,
		fmt.Sprintf("%s--%s--%d%s", label, day.Format(dayLayout), n, ext))
}

// NextStreamPath returns the stream file path a fresh writer should use for
// day: one past the highest version already on disk, or version 1 when the
// day has no files yet.
func NextStreamPath(dir, label string, day time.Time) (string, error) {
	n, err := maxStreamVersion(dir, label, day)
	if err != nil {
		return "", err
	}
	return StreamPath(dir, label, day, n+1), nil
}

func maxStreamVersion(dir, label string, day time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read dir %s failed: %w", dir, err)
	}
	prefix := label + "--" + day.Format(dayLayout) + "--"
	max := 0
	for _, e := range entries {
		name := e.Name()
		if len(name) <= len(prefix)+len(ext) || name[:len(prefix)] != prefix {
			continue
		}
		v, err := strconv.Atoi(name[len(prefix) : len(name)-len(ext)])
		if err != nil {
			continue
		}
		if v > max {
			max = v
		}
	}
	return max, nil
}

// ListLabels returns the distinct labels present in a directory of daily
// archives, sorted.
func ListLabels(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s failed: %w", dir, err)
	}
	seen := make(map[string]bool)
	for _, e := range entries {
		if _, label, err := ParseDailyName(e.Name()); err == nil {
			seen[label] = true
		}
	}
	labels := make([]string, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels, nil
}

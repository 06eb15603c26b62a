// Package manifest keeps a ledger of collection runs in SQLite so a long
// campaign can be audited: which collector ran, when, into which file, how
// many records, and how it ended.
package manifest

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusFailed  = "failed"
)

// Run is one collection pass of one collector.
type Run struct {
	ID        uint   `gorm:"primaryKey"`
	Collector string `gorm:"index;not null"`
	Label     string `gorm:"index"`

	// Day is the collected UTC day as YYYY-MM-DD, empty when the collector
	// has no day window.
	Day string `gorm:"index"`

	// OutputFile is the archive the pass wrote into.
	OutputFile string

	StartedAt time.Time `gorm:"not null"`
	EndedAt   *time.Time
	Records   int
	Status    string `gorm:"index;not null"`
	Error     string
}

// Ledger wraps the runs database.
type Ledger struct {
	db *gorm.DB
}

// Open opens or creates the ledger database at path.
func Open(path string) (*Ledger, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	if err := db.AutoMigrate(&Run{}); err != nil {
		return nil, fmt.Errorf("failed to migrate ledger: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Start records the beginning of a run and returns it for completion.
func (l *Ledger) Start(collector, label, day, outputFile string) (*Run, error) {
	run := &Run{
		Collector:  collector,
		Label:      label,
		Day:        day,
		OutputFile: outputFile,
		StartedAt:  time.Now().UTC(),
		Status:     StatusRunning,
	}
	if err := l.db.Create(run).Error; err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}
	return run, nil
}

// Finish marks a run completed. A non-nil runErr marks it failed.
func (l *Ledger) Finish(run *Run, records int, runErr error) error {
	now := time.Now().UTC()
	run.EndedAt = &now
	run.Records = records
	if runErr != nil {
		run.Status = StatusFailed
		run.Error = runErr.Error()
	} else {
		run.Status = StatusOK
	}
	return l.db.Save(run).Error
}

// Recent returns the latest n runs, newest first.
func (l *Ledger) Recent(n int) ([]Run, error) {
	var runs []Run
	err := l.db.Order("started_at desc, id desc").Limit(n).Find(&runs).Error
	return runs, err
}

// LastByCollector returns the newest run per collector, keyed by collector
// name.
func (l *Ledger) LastByCollector() (map[string]Run, error) {
	var runs []Run
	if err := l.db.Order("started_at asc, id asc").Find(&runs).Error; err != nil {
		return nil, err
	}
	last := make(map[string]Run)
	for _, r := range runs {
		last[r.Collector] = r
	}
	return last, nil
}

// Failures returns the failed runs since a cutoff, newest first.
func (l *Ledger) Failures(since time.Time) ([]Run, error) {
	var runs []Run
	err := l.db.Where("status = ? AND started_at >= ?", StatusFailed, since).
		Order("started_at desc").Find(&runs).Error
	return runs, err
}

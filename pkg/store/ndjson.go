// Package store reads and writes the collection archive: gzipped
// newline-delimited JSON files laid out one file per label per day.
package store

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Writer appends JSON records to a gzipped NDJSON file. Each append on an
// existing file starts a fresh gzip member; readers treat the members as one
// concatenated stream.
type Writer struct {
	f  *os.File
	gz *gzip.Writer
	bw *bufio.Writer
	n  int
}

// NewWriter opens path for appending, creating it and its parent directory
// when missing.
func NewWriter(path string) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir failed: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s failed: %w", path, err)
	}
	gz := gzip.NewWriter(f)
	return &Writer{f: f, gz: gz, bw: bufio.NewWriter(gz)}, nil
}

// Write marshals v and appends it as one line.
func (w *Writer) Write(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return w.WriteRaw(line)
}

// WriteRaw appends an already-serialized JSON line. The trailing newline is
// added here; line must not contain one.
func (w *Writer) WriteRaw(line []byte) error {
	if _, err := w.bw.Write(line); err != nil {
		return err
	}
	if err := w.bw.WriteByte('\n'); err != nil {
		return err
	}
	w.n++
	return nil
}

// Count returns the number of records written so far.
func (w *Writer) Count() int { return w.n }

// Flush pushes buffered data through the gzip stream to disk. Long-running
// stream writers flush periodically so a crash loses little.
func (w *Writer) Flush() error {
	if err := w.bw.Flush(); err != nil {
		return err
	}
	return w.gz.Flush()
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	if err := w.bw.Flush(); err != nil {
		w.f.Close()
		return err
	}
	if err := w.gz.Close(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// ForEach streams every line of a gzipped NDJSON file through fn. Iteration
// stops on the first error fn returns.
func ForEach(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s failed: %w", path, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("gzip open %s failed: %w", path, err)
	}
	defer gz.Close()

	// Lines can run past bufio.Scanner's default limit; read unbounded.
	r := bufio.NewReader(gz)
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			trimmed := line
			if trimmed[len(trimmed)-1] == '\n' {
				trimmed = trimmed[:len(trimmed)-1]
			}
			if len(trimmed) > 0 {
				if ferr := fn(trimmed); ferr != nil {
					return ferr
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read %s failed: %w", path, err)
		}
	}
}

// ReadAll collects every line of a gzipped NDJSON file. Intended for tests
// and small files; collection-scale files go through ForEach.
func ReadAll(path string) ([][]byte, error) {
	var lines [][]byte
	err := ForEach(path, func(line []byte) error {
		cp := make([]byte, len(line))
		copy(cp, line)
		lines = append(lines, cp)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}

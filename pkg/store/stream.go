package store

import "time"

// StreamWriter writes raw NDJSON lines to versioned stream files, rotating
// to a fresh file at midnight. Every new StreamWriter opens a new version so
// a restarted run never appends to a file a crashed run left behind.
type StreamWriter struct {
	dir   string
	label string
	now   func() time.Time

	day time.Time
	w   *Writer
}

// NewStreamWriter prepares a writer for label under dir. The first file is
// opened lazily on the first write.
func NewStreamWriter(dir, label string) *StreamWriter {
	return &StreamWriter{dir: dir, label: label, now: time.Now}
}

// WriteRaw appends one raw line, rotating to a new file when the day has
// changed since the last write.
func (s *StreamWriter) WriteRaw(line []byte) error {
	day := s.now().Truncate(24 * time.Hour)
	if s.w == nil || !day.Equal(s.day) {
		if err := s.rotate(day); err != nil {
			return err
		}
	}
	return s.w.WriteRaw(line)
}

func (s *StreamWriter) rotate(day time.Time) error {
	if s.w != nil {
		if err := s.w.Close(); err != nil {
			return err
		}
		s.w = nil
	}
	path, err := NextStreamPath(s.dir, s.label, day)
	if err != nil {
		return err
	}
	w, err := NewWriter(path)
	if err != nil {
		return err
	}
	s.w, s.day = w, day
	return nil
}

// Flush pushes buffered lines to disk.
func (s *StreamWriter) Flush() error {
	if s.w == nil {
		return nil
	}
	return s.w.Flush()
}

// Close closes the current file, if any.
func (s *StreamWriter) Close() error {
	if s.w == nil {
		return nil
	}
	err := s.w.Close()
	s.w = nil
	return err
}

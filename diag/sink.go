package diag

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultHistoryCapacity bounds the in-memory error history.
	DefaultHistoryCapacity = 500
	// DefaultHistoryView is how many entries an operator view shows.
	DefaultHistoryView = 50
)

// Entry is one reported diagnostic.
type Entry struct {
	Time           time.Time
	Classification Classification
	Message        string
}

// String formats the entry the way the error log and history show it.
func (e Entry) String() string {
	return fmt.Sprintf("[%s] - %s: %s", e.Time.Format("2006-01-02 15:04:05"), e.Classification, e.Message)
}

// Sink is a Reporter that logs through zap and keeps a bounded history.
type Sink struct {
	logger   *zap.Logger
	file     *RotatingFile
	capacity int
	now      func() time.Time

	mu      sync.Mutex
	entries []Entry // oldest first
}

// Verify Sink implements Reporter
var _ Reporter = (*Sink)(nil)

// NewSink creates a sink. logger may be nil (history only). file, when
// non-nil, is truncated by Clear. capacity <= 0 selects DefaultHistoryCapacity.
func NewSink(logger *zap.Logger, file *RotatingFile, capacity int) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &Sink{
		logger:   logger,
		file:     file,
		capacity: capacity,
		now:      time.Now,
	}
}

// Report records the diagnostic. It never fails.
func (s *Sink) Report(c Classification, message string) {
	entry := Entry{Time: s.now(), Classification: c, Message: message}

	s.mu.Lock()
	s.entries = append(s.entries, entry)
	if over := len(s.entries) - s.capacity; over > 0 {
		s.entries = append(s.entries[:0], s.entries[over:]...)
	}
	s.mu.Unlock()

	s.logger.Error(message,
		zap.String("classification", string(c)),
		zap.String("user_message", MessageFor(c).Message))
}

// History returns up to n entries, newest first. n <= 0 returns all.
func (s *Sink) History(n int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 || n > len(s.entries) {
		n = len(s.entries)
	}
	out := make([]Entry, 0, n)
	for i := len(s.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.entries[i])
	}
	return out
}

// Len returns the number of retained entries.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Clear drops the history and empties the error log file.
func (s *Sink) Clear() error {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	if err := s.file.Truncate(); err != nil {
		return fmt.Errorf("failed to clear error log: %w", err)
	}
	return nil
}

// Logger returns the underlying zap logger.
func (s *Sink) Logger() *zap.Logger {
	return s.logger
}

package diag

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/richinex/chunkmill/fault"
)

// DefaultMaxLogBytes is the size above which the error log is rotated.
const DefaultMaxLogBytes = 10 * 1024 * 1024

// ErrorLogName is the file name of the active error log.
const ErrorLogName = "error_log.txt"

// RotatingFile appends log lines to <dir>/error_log.txt and rotates it to
// error_log.txt.<timestamp>.bak once it would exceed maxBytes.
//
// Write never returns an error: a failing disk must not abort processing.
// The first failure of each kind is announced once on the notice writer.
type RotatingFile struct {
	dir      string
	maxBytes int64
	notice   io.Writer

	mu        sync.Mutex
	f         *os.File
	curSize   int64
	announced map[string]bool
	now       func() time.Time
}

// NewRotatingFile creates a rotating log in dir. maxBytes <= 0 selects
// DefaultMaxLogBytes. The file is opened lazily on first write.
func NewRotatingFile(dir string, maxBytes int64) *RotatingFile {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxLogBytes
	}
	return &RotatingFile{
		dir:       dir,
		maxBytes:  maxBytes,
		notice:    os.Stderr,
		announced: make(map[string]bool),
		now:       time.Now,
	}
}

// Path returns the active log file path.
func (w *RotatingFile) Path() string {
	return filepath.Join(w.dir, ErrorLogName)
}

// Write implements io.Writer (and zapcore.WriteSyncer with Sync).
func (w *RotatingFile) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensureOpen(); err != nil {
		w.swallow("open", err)
		return len(p), nil
	}
	if w.curSize > 0 && w.curSize+int64(len(p)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			w.swallow("rotate", err)
			return len(p), nil
		}
	}
	n, err := w.f.Write(p)
	w.curSize += int64(n)
	if err != nil {
		w.swallow("write", err)
	}
	return len(p), nil
}

// Sync flushes the active file.
func (w *RotatingFile) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	if err := w.f.Sync(); err != nil {
		w.swallow("sync", err)
	}
	return nil
}

// Truncate empties the active log (clear error logs).
func (w *RotatingFile) Truncate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensureOpen(); err != nil {
		return fault.MarkLocalResource(err)
	}
	if err := w.f.Truncate(0); err != nil {
		return fault.MarkLocalResource(fmt.Errorf("failed to truncate error log: %w", err))
	}
	w.curSize = 0
	return nil
}

// Close closes the active file.
func (w *RotatingFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

func (w *RotatingFile) ensureOpen() error {
	if w.f != nil {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.Path(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.f = f
	if st, err := f.Stat(); err == nil {
		w.curSize = st.Size()
	} else {
		w.curSize = 0
	}
	return nil
}

func (w *RotatingFile) rotate() error {
	_ = w.f.Close()
	w.f = nil

	archived := fmt.Sprintf("%s.%s.bak", w.Path(), w.now().Format("20060102_150405.000000"))
	if err := os.Rename(w.Path(), archived); err != nil {
		return err
	}
	return w.ensureOpen()
}

// swallow announces a failure once per operation and disk-full condition.
func (w *RotatingFile) swallow(op string, err error) {
	key := op
	msg := fmt.Sprintf("An OS error occurred while logging (%s): %v", op, err)
	if fault.IsLocalResource(err) {
		key = "nospace"
		msg = "Critical Error: No space left on device. Please free up disk space and restart."
	}
	if w.announced[key] {
		return
	}
	w.announced[key] = true
	fmt.Fprintln(w.notice, msg)
}

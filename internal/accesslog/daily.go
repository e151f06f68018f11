package accesslog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/maniack/logpurge/internal/purge"
)

// DailyWriter appends to prefix.<date>+suffix and opens a new file when the
// local date changes.
type DailyWriter struct {
	dir    string
	naming purge.Convention
	now    func() time.Time

	mu   sync.Mutex
	f    *os.File
	path string
	date string
}

func NewDailyWriter(dir, prefix, suffix string) *DailyWriter {
	return &DailyWriter{
		dir:    dir,
		naming: purge.Convention{Prefix: prefix, Suffix: suffix, Variant: purge.Datestamped},
		now:    time.Now,
	}
}

func (w *DailyWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if date := now.Format(purge.DefaultDateLayout); w.f == nil || date != w.date {
		if err := w.openLocked(now); err != nil {
			return 0, err
		}
	}
	return w.f.Write(p)
}

func (w *DailyWriter) openLocked(now time.Time) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create access log dir: %w", err)
	}
	path := filepath.Join(w.dir, w.naming.CurrentFileName(now))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open access log: %w", err)
	}
	if w.f != nil {
		_ = w.f.Close()
	}
	w.f = f
	w.path = path
	w.date = now.Format(purge.DefaultDateLayout)
	return nil
}

// Close closes the current file. A later Write reopens it.
func (w *DailyWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

// CurrentFile returns the path being appended to, or "" before the first write.
func (w *DailyWriter) CurrentFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.path
}

func (w *DailyWriter) LogDirectory() string     { return w.dir }
func (w *DailyWriter) Naming() purge.Convention { return w.naming }

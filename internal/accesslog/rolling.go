package accesslog

import (
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/maniack/logpurge/internal/purge"
)

// RollingWriter writes prefix+suffix and lets lumberjack rotate it by size.
// Backups are named prefix-<timestamp>+suffix, which stays inside the purge
// envelope. lumberjack's own age/count cleanup and compression stay off so
// only the purge engine deletes backups.
type RollingWriter struct {
	dir    string
	naming purge.Convention
	lj     *lumberjack.Logger
}

func NewRollingWriter(dir, prefix, suffix string, maxSizeMB int) *RollingWriter {
	naming := purge.Convention{Prefix: prefix, Suffix: suffix, Variant: purge.Plain}
	return &RollingWriter{
		dir:    dir,
		naming: naming,
		lj: &lumberjack.Logger{
			Filename:  filepath.Join(dir, prefix+suffix),
			MaxSize:   maxSizeMB,
			LocalTime: true,
		},
	}
}

func (w *RollingWriter) Write(p []byte) (int, error) { return w.lj.Write(p) }

func (w *RollingWriter) Close() error { return w.lj.Close() }

// Rotate closes the current file, renames it to a timestamped backup and
// reopens prefix+suffix.
func (w *RollingWriter) Rotate() error { return w.lj.Rotate() }

func (w *RollingWriter) LogDirectory() string     { return w.dir }
func (w *RollingWriter) Naming() purge.Convention { return w.naming }

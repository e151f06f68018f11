// Package accesslog provides the access log writers of the HTTP server. Both
// writers double as purge facilities: they report their directory and naming
// convention, and the daily writer additionally reports its open file.
package accesslog

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/maniack/logpurge/internal/purge"
)

// Style selects the writer implementation.
type Style string

const (
	// StyleDaily writes prefix.YYYY-MM-DD+suffix and switches files at midnight.
	StyleDaily Style = "daily"
	// StyleRolling writes prefix+suffix and rotates by size.
	StyleRolling Style = "rolling"
)

type Config struct {
	Dir       string
	Prefix    string
	Suffix    string
	Style     Style
	MaxSizeMB int
}

// DefaultConfig mirrors the usual servlet-container access log defaults.
func DefaultConfig() Config {
	return Config{
		Dir:       "logs",
		Prefix:    "access_log",
		Suffix:    ".log",
		Style:     StyleDaily,
		MaxSizeMB: 100,
	}
}

// Writer is an access log sink that can be purged.
type Writer interface {
	io.WriteCloser
	purge.Facility
}

// Open creates the writer for cfg. Empty fields take their defaults.
func Open(cfg Config) (Writer, error) {
	def := DefaultConfig()
	if cfg.Dir == "" {
		cfg.Dir = def.Dir
	}
	if cfg.Prefix == "" {
		cfg.Prefix = def.Prefix
	}
	if cfg.Suffix == "" {
		cfg.Suffix = def.Suffix
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = def.MaxSizeMB
	}
	switch Style(strings.ToLower(string(cfg.Style))) {
	case StyleDaily, "":
		return NewDailyWriter(cfg.Dir, cfg.Prefix, cfg.Suffix), nil
	case StyleRolling:
		// lumberjack inserts the timestamp before the extension, so the suffix
		// has to be exactly that extension for backups to keep the prefix.
		if filepath.Ext(cfg.Prefix+cfg.Suffix) != cfg.Suffix {
			return nil, fmt.Errorf("rolling access log needs an extension suffix like \".log\", got %q", cfg.Suffix)
		}
		return NewRollingWriter(cfg.Dir, cfg.Prefix, cfg.Suffix, cfg.MaxSizeMB), nil
	default:
		return nil, fmt.Errorf("unknown access log style %q", cfg.Style)
	}
}

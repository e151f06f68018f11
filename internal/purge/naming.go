package purge

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Variant selects how the active log file is named.
type Variant int

const (
	// Plain: the active file is always prefix+suffix; rotated files get an extra segment.
	Plain Variant = iota
	// Datestamped: the active file is prefix.<date>+suffix and changes at midnight.
	Datestamped
)

// DefaultDateLayout matches the yyyy-MM-dd stamp used by daily access logs.
const DefaultDateLayout = "2006-01-02"

func (v Variant) String() string {
	switch v {
	case Plain:
		return "plain"
	case Datestamped:
		return "datestamped"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// Convention describes the file names produced by an access log writer.
type Convention struct {
	Prefix  string
	Suffix  string
	Variant Variant
	// DateLayout is a time.Format layout; empty means DefaultDateLayout.
	DateLayout string
}

// CurrentFileName returns the name of the file being written at the given time.
func (c Convention) CurrentFileName(at time.Time) string {
	if c.Variant == Datestamped {
		layout := c.DateLayout
		if layout == "" {
			layout = DefaultDateLayout
		}
		return c.Prefix + "." + at.Format(layout) + c.Suffix
	}
	return c.Prefix + c.Suffix
}

// MatchesPattern reports whether name lies inside the prefix/suffix envelope.
// Prefix and suffix must not overlap, so "access.log" does not match prefix
// "access.log" with suffix ".log".
func (c Convention) MatchesPattern(name string) bool {
	if name == "" || len(name) < len(c.Prefix)+len(c.Suffix) {
		return false
	}
	return strings.HasPrefix(name, c.Prefix) && strings.HasSuffix(name, c.Suffix)
}

// DirectoryContext identifies where candidate files live and how they are named.
type DirectoryContext struct {
	Dir        string
	Convention Convention
}

// ActiveFileResolver returns the path of the file the log writer is appending to.
// It is queried once per scan.
type ActiveFileResolver interface {
	ActiveFile() string
}

// ResolverFunc adapts a function to ActiveFileResolver.
type ResolverFunc func() string

func (f ResolverFunc) ActiveFile() string { return f() }

// ConventionResolver derives the active file from the naming convention and the clock.
func ConventionResolver(dc DirectoryContext, now func() time.Time) ActiveFileResolver {
	if now == nil {
		now = time.Now
	}
	return ResolverFunc(func() string {
		return filepath.Join(dc.Dir, dc.Convention.CurrentFileName(now()))
	})
}

// LiveResolver asks the writer for its current file and falls back to the
// convention name while the writer has not opened anything yet.
func LiveResolver(live LiveFile, fallback ActiveFileResolver) ActiveFileResolver {
	return ResolverFunc(func() string {
		if p := live.CurrentFile(); p != "" {
			return p
		}
		if fallback != nil {
			return fallback.ActiveFile()
		}
		return ""
	})
}

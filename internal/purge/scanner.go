package purge

import (
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"time"
)

// Candidate is a rotated log file that may be deleted. Candidates are built
// fresh on every scan.
type Candidate struct {
	Path    string
	ModTime time.Time
}

// Scan lists dc.Dir and returns the files matching the naming convention,
// minus the active file reported by resolver. The directory is listed eagerly
// so that an unreadable directory is reported up front; file metadata is read
// lazily while iterating. The returned sequence can be consumed once.
func Scan(dc DirectoryContext, resolver ActiveFileResolver) (iter.Seq[Candidate], error) {
	entries, err := os.ReadDir(dc.Dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDirectoryUnreadable, dc.Dir, err)
	}

	var names []string
	for _, e := range entries {
		// Type comes from lstat, so symlinks and directories drop out here.
		if !e.Type().IsRegular() {
			continue
		}
		if dc.Convention.MatchesPattern(e.Name()) {
			names = append(names, e.Name())
		}
	}

	var active string
	if resolver != nil {
		active = normalizePath(resolver.ActiveFile())
	}

	consumed := false
	return func(yield func(Candidate) bool) {
		if consumed {
			return
		}
		consumed = true
		for _, name := range names {
			path := filepath.Join(dc.Dir, name)
			if active != "" && normalizePath(path) == active {
				continue
			}
			info, err := os.Lstat(path)
			if err != nil || !info.Mode().IsRegular() {
				// removed or replaced since listing
				continue
			}
			if !yield(Candidate{Path: path, ModTime: info.ModTime()}) {
				return
			}
		}
	}, nil
}

func normalizePath(p string) string {
	if p == "" {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

package purge

import "time"

// IsExpired reports whether a file last modified at modTime is old enough to be
// deleted at now. A zero maxHistory makes every file eligible.
func IsExpired(modTime, now time.Time, maxHistory time.Duration) bool {
	return now.Sub(modTime) >= maxHistory
}

package purge

import "errors"

var (
	// ErrDirectoryUnreadable is returned by Scan when the log directory is missing or cannot be listed.
	ErrDirectoryUnreadable = errors.New("purge: log directory unreadable")
	// ErrFileDeletionFailed wraps a per-file removal error. It never aborts a pass.
	ErrFileDeletionFailed = errors.New("purge: file deletion failed")
	// ErrMisconfiguredRetention is returned by Start/AttachTo for an invalid enabled configuration.
	ErrMisconfiguredRetention = errors.New("purge: misconfigured retention")

	ErrPassInProgress  = errors.New("purge: pass already in progress")
	ErrAlreadyStarted  = errors.New("purge: scheduler already started")
	ErrStopped         = errors.New("purge: scheduler stopped")
	ErrAlreadyAttached = errors.New("purge: engine already attached")
)

package purge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/maniack/logpurge/internal/logging"
	"github.com/maniack/logpurge/internal/monitoring"
)

// ErrLockHeld is returned by RunOnce when another process owns the pass lock.
var ErrLockHeld = errors.New("purge: pass lock held elsewhere")

// Trigger tells what started a pass.
type Trigger string

const (
	TriggerStartup Trigger = "startup"
	TriggerTick    Trigger = "tick"
	TriggerManual  Trigger = "manual"
)

// State of a Scheduler. Transitions only go forward: Created -> Running -> Stopped.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// PassResult summarizes one scan-filter-delete cycle.
type PassResult struct {
	ID           string    `json:"id"`
	Trigger      Trigger   `json:"trigger"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Scanned      int       `json:"scanned"`
	Deleted      int       `json:"deleted"`
	Failed       int       `json:"failed"`
	DeletedFiles []string  `json:"deleted_files,omitempty"`
	DryRun       bool      `json:"dry_run,omitempty"`
	Err          error     `json:"-"`
}

// Outcome is a short label used for metrics and history.
func (r PassResult) Outcome() string {
	switch {
	case r.Err != nil:
		return "scan_error"
	case r.Failed > 0:
		return "partial"
	default:
		return "ok"
	}
}

// Recorder receives every finished pass, e.g. to persist history.
type Recorder interface {
	RecordPass(ctx context.Context, r PassResult) error
}

// Locker guards a pass across processes sharing the same log directory.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Options carries the collaborators of a Scheduler. Zero values get defaults.
type Options struct {
	Logger   *logrus.Logger
	Now      func() time.Time
	Remove   func(path string) error
	Recorder Recorder
	Locker   Locker
	// DryRun reports expired files without removing them.
	DryRun bool
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logging.L()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Remove == nil {
		o.Remove = os.Remove
	}
	return o
}

// Scheduler runs purge passes on a fixed interval. At most one pass runs at a
// time; a tick that finds a pass in progress is dropped, not queued.
type Scheduler struct {
	cfg      Config
	dc       DirectoryContext
	resolver ActiveFileResolver
	opts     Options
	log      *logrus.Logger

	mu    sync.Mutex // serializes Start/Stop
	state atomic.Int32
	cron  *cron.Cron

	pass sync.Mutex // held for the duration of a pass
	last atomic.Pointer[PassResult]
}

// NewScheduler builds a scheduler in the Created state. A nil resolver falls
// back to the naming convention.
func NewScheduler(cfg Config, dc DirectoryContext, resolver ActiveFileResolver, opts Options) *Scheduler {
	opts = opts.withDefaults()
	if resolver == nil {
		resolver = ConventionResolver(dc, opts.Now)
	}
	return &Scheduler{
		cfg:      cfg,
		dc:       dc,
		resolver: resolver,
		opts:     opts,
		log:      opts.Logger,
	}
}

// intervalSchedule fires every d after the previous activation.
// cron.Every would truncate to whole seconds.
type intervalSchedule time.Duration

func (d intervalSchedule) Next(t time.Time) time.Time { return t.Add(time.Duration(d)) }

// Start arms the repeating timer. A disabled config is a no-op and leaves the
// scheduler in Created. With ExecuteOnStartup one pass completes before the
// timer is armed.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.State() {
	case StateRunning:
		return ErrAlreadyStarted
	case StateStopped:
		return ErrStopped
	}
	if !s.cfg.Enabled {
		s.log.WithField("dir", s.dc.Dir).Info("purge: disabled, scheduler not armed")
		return nil
	}
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	if s.cfg.ExecuteOnStartup {
		_, _ = s.RunOnce(context.Background(), TriggerStartup)
	}

	cl := logging.NewCronLogger(s.log)
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl)))
	c.Schedule(intervalSchedule(s.cfg.ExecutionInterval), cron.FuncJob(s.tick))
	c.Start()
	s.cron = c
	s.state.Store(int32(StateRunning))

	s.log.WithFields(logrus.Fields{
		"dir":         s.dc.Dir,
		"prefix":      s.dc.Convention.Prefix,
		"suffix":      s.dc.Convention.Suffix,
		"variant":     s.dc.Convention.Variant.String(),
		"interval":    s.cfg.ExecutionInterval.String(),
		"max_history": s.cfg.MaxHistory.String(),
	}).Info("purge: scheduler started")
	return nil
}

func (s *Scheduler) tick() {
	if _, err := s.RunOnce(context.Background(), TriggerTick); errors.Is(err, ErrPassInProgress) {
		s.log.Debug("purge: previous pass still running, tick skipped")
	}
}

// Stop cancels future ticks and waits, bounded by ctx, for an in-flight pass
// to finish. The pass itself is never interrupted. A stopped scheduler cannot
// be started again.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.State() == StateStopped {
		s.mu.Unlock()
		return nil
	}
	s.state.Store(int32(StateStopped))
	c := s.cron
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	idle := make(chan struct{})
	go func() {
		s.pass.Lock()
		s.pass.Unlock()
		close(idle)
	}()
	select {
	case <-idle:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.log.WithField("dir", s.dc.Dir).Info("purge: scheduler stopped")
	return nil
}

// State returns the lifecycle state.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// Config returns the retention parameters.
func (s *Scheduler) Config() Config { return s.cfg }

// Directory returns the directory context the scheduler purges.
func (s *Scheduler) Directory() DirectoryContext { return s.dc }

// LastResult returns the most recent finished pass, if any.
func (s *Scheduler) LastResult() (PassResult, bool) {
	r := s.last.Load()
	if r == nil {
		return PassResult{}, false
	}
	return *r, true
}

// NextRun returns the next tick time, or nil when the timer is not armed.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil || s.State() != StateRunning {
		return nil
	}
	entries := s.cron.Entries()
	if len(entries) == 0 || entries[0].Next.IsZero() {
		return nil
	}
	next := entries[0].Next
	return &next
}

// RunOnce performs one purge pass now. It returns ErrPassInProgress without
// waiting when another pass is running. Deletion failures are counted in the
// result; only a scan failure is returned as error (and kept in result.Err).
func (s *Scheduler) RunOnce(ctx context.Context, trigger Trigger) (PassResult, error) {
	if s.State() == StateStopped {
		return PassResult{}, ErrStopped
	}
	if !s.pass.TryLock() {
		monitoring.IncPurgeSkipped("in_progress")
		return PassResult{}, ErrPassInProgress
	}
	defer s.pass.Unlock()
	// Stop may have completed between the check above and TryLock.
	if s.State() == StateStopped {
		return PassResult{}, ErrStopped
	}

	res := PassResult{ID: uuid.NewString(), Trigger: trigger, DryRun: s.opts.DryRun}
	ctx = context.WithValue(ctx, logging.ContextPassID, res.ID)
	ctx = context.WithValue(ctx, logging.ContextDir, s.dc.Dir)
	entry := s.log.WithContext(ctx).WithField("trigger", string(trigger))

	if s.opts.Locker != nil {
		ok, err := s.opts.Locker.Acquire(ctx)
		if err != nil {
			monitoring.IncPurgeSkipped("lock_error")
			entry.WithError(err).Warn("purge: pass lock unavailable, pass skipped")
			return PassResult{}, fmt.Errorf("acquire pass lock: %w", err)
		}
		if !ok {
			monitoring.IncPurgeSkipped("locked")
			entry.Debug("purge: pass lock held elsewhere, pass skipped")
			return PassResult{}, ErrLockHeld
		}
		defer func() {
			if err := s.opts.Locker.Release(context.WithoutCancel(ctx)); err != nil {
				entry.WithError(err).Warn("purge: release pass lock")
			}
		}()
	}

	res.StartedAt = s.opts.Now()
	s.sweep(entry, &res)
	res.FinishedAt = s.opts.Now()
	s.finish(ctx, entry, res)
	return res, res.Err
}

func (s *Scheduler) sweep(entry *logrus.Entry, res *PassResult) {
	candidates, err := Scan(s.dc, s.resolver)
	if err != nil {
		res.Err = err
		entry.WithError(err).Warn("purge: scan failed, retrying next tick")
		return
	}
	for c := range candidates {
		res.Scanned++
		if !IsExpired(c.ModTime, res.StartedAt, s.cfg.MaxHistory) {
			continue
		}
		fe := entry.WithField("file", c.Path)
		if s.opts.DryRun {
			res.Deleted++
			res.DeletedFiles = append(res.DeletedFiles, c.Path)
			fe.Info("purge: expired (dry run)")
			continue
		}
		if err := s.opts.Remove(c.Path); err != nil {
			res.Failed++
			fe.WithError(fmt.Errorf("%w: %v", ErrFileDeletionFailed, err)).Warn("purge: delete failed")
			continue
		}
		res.Deleted++
		res.DeletedFiles = append(res.DeletedFiles, c.Path)
		fe.Debug("purge: deleted")
	}
}

func (s *Scheduler) finish(ctx context.Context, entry *logrus.Entry, res PassResult) {
	took := res.FinishedAt.Sub(res.StartedAt)
	monitoring.ObservePurgePass(string(res.Trigger), res.Outcome(), res.Deleted, res.Failed, took)
	s.last.Store(&res)

	summary := entry.WithFields(logrus.Fields{
		"scanned":     res.Scanned,
		"deleted":     res.Deleted,
		"failed":      res.Failed,
		"duration_ms": float64(took.Nanoseconds()) / 1e6,
	})
	if res.Deleted > 0 || res.Failed > 0 {
		summary.Info("purge: pass completed")
	} else {
		summary.Debug("purge: pass completed, nothing to delete")
	}

	if s.opts.Recorder != nil {
		if err := s.opts.Recorder.RecordPass(ctx, res); err != nil {
			entry.WithError(err).Warn("purge: failed to record pass")
		}
	}
}

package purge

import (
	"fmt"
	"sync"
)

// Facility is the host access-log writer the engine attaches to. It only has
// to tell where its files live and how they are named.
type Facility interface {
	LogDirectory() string
	Naming() Convention
}

// LiveFile is implemented by facilities whose active file cannot be derived
// from the naming convention alone. It is consulted on every scan.
type LiveFile interface {
	CurrentFile() string
}

// Engine wires a scheduler to a host facility.
type Engine struct {
	cfg  Config
	opts Options

	mu    sync.Mutex
	sched *Scheduler
}

func NewEngine(cfg Config, opts Options) *Engine {
	return &Engine{cfg: cfg, opts: opts.withDefaults()}
}

// AttachTo builds the directory context and active-file resolver for f and
// starts a scheduler on it. It is a no-op returning (nil, nil) when purging is
// disabled. On failure nothing is armed and AttachTo may be called again.
func (e *Engine) AttachTo(f Facility) (*Scheduler, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sched != nil {
		return nil, ErrAlreadyAttached
	}
	if !e.cfg.Enabled {
		e.opts.Logger.Info("purge: disabled, not attaching")
		return nil, nil
	}
	if f == nil {
		return nil, fmt.Errorf("%w: no access log facility", ErrMisconfiguredRetention)
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, err
	}

	dc := DirectoryContext{Dir: f.LogDirectory(), Convention: f.Naming()}
	if dc.Dir == "" {
		return nil, fmt.Errorf("%w: access log directory is empty", ErrMisconfiguredRetention)
	}

	resolver := ConventionResolver(dc, e.opts.Now)
	if live, ok := f.(LiveFile); ok {
		resolver = LiveResolver(live, resolver)
	}

	s := NewScheduler(e.cfg, dc, resolver, e.opts)
	if err := s.Start(); err != nil {
		return nil, err
	}
	e.sched = s
	return s, nil
}

// Scheduler returns the attached scheduler, or nil.
func (e *Engine) Scheduler() *Scheduler {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sched
}

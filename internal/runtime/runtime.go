package runtime

import (
	"context"
	"sync"
	"time"
)

// Logger is a minimal logging interface used internally by the runtime.
// It mirrors the public logger in the root package to avoid an import cycle.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...any) {}
func (noopLogger) Infof(string, ...any)  {}
func (noopLogger) Warnf(string, ...any)  {}
func (noopLogger) Errorf(string, ...any) {}

type Config struct {
	Concurrency   int
	PollInterval  time.Duration
	SweepInterval time.Duration
	Logger        Logger
}

// Scheduler supplies work to the runtime.
type Scheduler interface {
	// Next claims the next ready job and returns its ID.
	Next() (string, bool)
	// Execute drives one attempt of a claimed job. The context is never
	// cancelled while an attempt is in flight.
	Execute(ctx context.Context, id string)
	// Sweep performs periodic maintenance such as expiring waiting jobs.
	Sweep(ctx context.Context)
}

type Runtime struct {
	sched   Scheduler
	cfg     Config
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wakeMu  sync.Mutex
	wakeCh  chan struct{}
	log     Logger
}

// New creates a runtime that feeds jobs from sched to a fixed pool of workers.
func New(cfg Config, sched Scheduler) *Runtime {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Second
	}
	lg := cfg.Logger
	if lg == nil {
		lg = noopLogger{}
	}
	return &Runtime{
		sched:  sched,
		cfg:    cfg,
		wakeCh: make(chan struct{}),
		log:    lg,
	}
}

// Start launches workers and the maintenance goroutine.
func (rt *Runtime) Start() {
	rt.mu.Lock()
	if rt.started {
		rt.log.Warnf("runtime already started; ignoring Start()")
		rt.mu.Unlock()
		return
	}
	rt.started = true
	rt.ctx, rt.cancel = context.WithCancel(context.Background())
	rt.mu.Unlock()
	rt.log.Infof("runtime starting: concurrency=%d", rt.cfg.Concurrency)

	for i := 0; i < rt.cfg.Concurrency; i++ {
		rt.wg.Add(1)
		go func() {
			defer rt.wg.Done()
			rt.workerLoop(rt.ctx)
		}()
	}

	rt.wg.Add(1)
	go func(ctx context.Context) {
		defer rt.wg.Done()
		ticker := time.NewTicker(rt.cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rt.sched.Sweep(context.WithoutCancel(ctx))
				// constraints may have changed since the last tick
				rt.Wake()
			}
		}
	}(rt.ctx)
}

// Stop stops handing out work and waits for in-flight attempts to finish.
func (rt *Runtime) Stop() {
	rt.mu.Lock()
	if !rt.started {
		rt.log.Warnf("runtime not started; ignoring Stop()")
		rt.mu.Unlock()
		return
	}
	rt.started = false
	cancel := rt.cancel
	rt.mu.Unlock()
	rt.log.Infof("runtime stopping")

	cancel()
	rt.wg.Wait()
}

// Wake makes every idle worker look for work immediately.
func (rt *Runtime) Wake() {
	rt.wakeMu.Lock()
	close(rt.wakeCh)
	rt.wakeCh = make(chan struct{})
	rt.wakeMu.Unlock()
}

func (rt *Runtime) waitCh() <-chan struct{} {
	rt.wakeMu.Lock()
	defer rt.wakeMu.Unlock()
	return rt.wakeCh
}

func (rt *Runtime) workerLoop(ctx context.Context) {
	timer := time.NewTimer(rt.cfg.PollInterval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Grab the wake channel before looking for work so a Wake between
		// Next and the wait below is not lost.
		wake := rt.waitCh()
		id, ok := rt.sched.Next()
		if ok {
			rt.sched.Execute(context.WithoutCancel(ctx), id)
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(rt.cfg.PollInterval)
		select {
		case <-ctx.Done():
			return
		case <-wake:
		case <-timer.C:
		}
	}
}

// CfgConcurrency exposes configured worker concurrency.
func (rt *Runtime) CfgConcurrency() int { return rt.cfg.Concurrency }

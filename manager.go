package jobmanager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/UniQw/jobmanager-go/internal/backoff"
	"github.com/UniQw/jobmanager-go/internal/hctx"
	"github.com/UniQw/jobmanager-go/internal/lanes"
	rtm "github.com/UniQw/jobmanager-go/internal/runtime"
	"github.com/google/uuid"
)

// JobInfo is a point-in-time view of a job known to the manager.
type JobInfo struct {
	ID         string    `json:"id"`
	FactoryKey string    `json:"factory_key"`
	Queue      string    `json:"queue,omitempty"`
	State      State     `json:"state"`
	Attempt    int       `json:"attempt"`
	CreatedAt  time.Time `json:"created_at"`
	NextRunAt  time.Time `json:"next_run_at,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

type entry struct {
	job   Job
	rec   *Record
	state State
}

func (e *entry) info() JobInfo {
	info := JobInfo{
		ID:         e.rec.ID,
		FactoryKey: e.rec.FactoryKey,
		Queue:      e.rec.Queue,
		State:      e.state,
		Attempt:    e.rec.Attempt,
		CreatedAt:  time.UnixMilli(e.rec.CreatedAt),
		LastError:  e.rec.LastError,
	}
	if e.rec.NextRunAt > 0 {
		info.NextRunAt = time.UnixMilli(e.rec.NextRunAt)
	}
	return info
}

// Manager persists jobs, serializes them per queue, gates them on their
// constraints and drives their attempts until success or terminal failure.
type Manager struct {
	store       Store
	registry    *Registry
	constraints map[string]Constraint
	observers   []Observer
	backoff     backoff.Exponential
	now         func() time.Time
	log         Logger
	rt          *rtm.Runtime

	mu      sync.Mutex
	mws     []Middleware
	entries map[string]*entry
	lanes   *lanes.Lanes
	started bool
	stopped bool

	// IDs finished since the last rescan began.
	finished map[string]struct{}
}

// NewManager creates a Manager. Jobs already persisted in store are loaded by Start.
func NewManager(store Store, registry *Registry, cfg ManagerConfig, opts ...Option) *Manager {
	l := cfg.Logger
	if l == nil {
		l = noopLogger{}
	}
	bo := backoff.Default
	if cfg.BackoffBase > 0 {
		bo.Base = cfg.BackoffBase
	}
	if cfg.BackoffMax > 0 {
		bo.Max = cfg.BackoffMax
	}
	m := &Manager{
		store:       store,
		registry:    registry,
		constraints: make(map[string]Constraint),
		backoff:     bo,
		now:         time.Now,
		log:         l,
		entries:     make(map[string]*entry),
		lanes:       lanes.New(),
		finished:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	m.rt = rtm.New(rtm.Config{
		Concurrency:   cfg.Concurrency,
		PollInterval:  cfg.PollInterval,
		SweepInterval: cfg.SweepInterval,
		Logger:        l,
	}, scheduler{m})
	for _, c := range m.constraints {
		if o, ok := c.(Observable); ok {
			o.Observe(m.rt.Wake)
		}
	}
	return m
}

// Use adds middleware around every job run. Middlewares are executed in the
// order they are added. Use must be called before Start.
func (m *Manager) Use(mw Middleware) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mws = append(m.mws, mw)
}

// Add persists job and queues it for execution. The record is stored before
// Add returns, so the job survives a restart even if it never ran.
func (m *Manager) Add(ctx context.Context, job Job) (string, error) {
	for _, key := range job.Parameters().Constraints() {
		if _, ok := m.constraints[key]; !ok {
			return "", fmt.Errorf("%w: %q", ErrUnknownConstraint, key)
		}
	}
	m.mu.Lock()
	stopped := m.stopped
	m.mu.Unlock()
	if stopped {
		return "", ErrManagerStopped
	}

	rec := newRecord(uuid.NewString(), job, m.now())
	if err := m.store.Put(ctx, rec); err != nil {
		return "", err
	}
	m.admit(job, rec)
	m.log.Infof("added: id=%s key=%s queue=%s", rec.ID, rec.FactoryKey, rec.Queue)
	m.rt.Wake()
	return rec.ID, nil
}

func (m *Manager) admit(job Job, rec *Record) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[rec.ID]; ok {
		return false
	}
	if _, ok := m.finished[rec.ID]; ok {
		return false
	}
	m.entries[rec.ID] = &entry{job: job, rec: rec, state: StatePending}
	m.lanes.Push(rec.Queue, rec.ID, rec.Seq)
	return true
}

// Start loads persisted jobs in submission order and launches the workers.
// Records that cannot be rebuilt are logged and deleted. Start is idempotent.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		m.log.Warnf("manager already started; ignoring Start()")
		return nil
	}
	m.started = true
	m.stopped = false
	m.mu.Unlock()

	ids, err := m.store.IDs(ctx)
	if err != nil {
		m.mu.Lock()
		m.started = false
		m.mu.Unlock()
		return fmt.Errorf("jobmanager: load records: %w", err)
	}
	restored := 0
	for _, id := range ids {
		if m.restore(ctx, id) {
			restored++
		}
	}
	m.log.Infof("starting manager: restored=%d factories=%v", restored, m.registry.Keys())
	m.rt.Start()
	return nil
}

func (m *Manager) restore(ctx context.Context, id string) bool {
	rec, err := m.store.Get(ctx, id)
	if errors.Is(err, ErrJobNotFound) {
		return false
	}
	if err == nil {
		var job Job
		if job, err = m.rebuild(rec); err == nil {
			return m.admit(job, rec)
		}
	}
	if errors.Is(err, ErrMalformedPayload) || errors.Is(err, ErrUnknownFactoryKey) ||
		errors.Is(err, ErrUnknownConstraint) || errors.Is(err, ErrInvalidParameters) {
		m.log.Errorf("dropping unreadable record: id=%s err=%v", id, err)
		if derr := m.store.Delete(ctx, id); derr != nil && !errors.Is(derr, ErrJobNotFound) {
			m.log.Errorf("drop failed: id=%s err=%v", id, derr)
		}
		return false
	}
	m.log.Errorf("restore failed: id=%s err=%v", id, err)
	return false
}

func (m *Manager) rebuild(rec *Record) (Job, error) {
	params, err := rec.Parameters()
	if err != nil {
		return nil, err
	}
	for _, key := range params.Constraints() {
		if _, ok := m.constraints[key]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownConstraint, key)
		}
	}
	return m.registry.Create(rec.FactoryKey, params, rec.Data)
}

// Stop stops starting new attempts and waits for in-flight ones to finish.
// Pending records stay in the store for the next Start.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		m.log.Warnf("manager not started; ignoring Stop()")
		return
	}
	m.started = false
	m.stopped = true
	m.mu.Unlock()
	m.log.Infof("stopping manager")
	m.rt.Stop()
}

// Wake re-evaluates waiting jobs immediately, e.g. after an environment change
// the constraints cannot observe themselves.
func (m *Manager) Wake() { m.rt.Wake() }

// Jobs returns a snapshot of all unfinished jobs in submission order.
func (m *Manager) Jobs() []JobInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	es := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		es = append(es, e)
	}
	sort.Slice(es, func(i, j int) bool { return es[i].rec.Seq < es[j].rec.Seq })
	out := make([]JobInfo, len(es))
	for i, e := range es {
		out[i] = e.info()
	}
	return out
}

// Stats is a summary of the manager's load.
type Stats struct {
	Queued  int `json:"queued"`
	Workers int `json:"workers"`
}

// Stats reports how many unfinished jobs sit in the queues and how many
// workers drain them.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{Queued: m.lanes.Len(), Workers: m.rt.CfgConcurrency()}
}

// Job returns a snapshot of one unfinished job.
func (m *Manager) Job(id string) (JobInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return JobInfo{}, false
	}
	return e.info(), true
}

// scheduler exposes the manager to the runtime without widening the public API.
type scheduler struct{ m *Manager }

func (s scheduler) Next() (string, bool) { return s.m.next() }

func (s scheduler) Execute(ctx context.Context, id string) { s.m.execute(ctx, id) }

func (s scheduler) Sweep(ctx context.Context) { s.m.sweep(ctx) }

// next claims the earliest-submitted lane head whose backoff has elapsed and
// whose constraints hold. Expired heads are left for sweep.
func (m *Manager) next() (string, bool) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	heads := m.lanes.Heads()
	sort.Slice(heads, func(i, j int) bool {
		return m.entries[heads[i].ID].rec.Seq < m.entries[heads[j].ID].rec.Seq
	})
	for _, h := range heads {
		e := m.entries[h.ID]
		if e.rec.Expired(now) || e.rec.NextRunAt > now.UnixMilli() || !m.satisfied(e.rec) {
			continue
		}
		if m.lanes.Acquire(h.Key, h.ID) {
			e.state = StateRunning
			return h.ID, true
		}
	}
	return "", false
}

func (m *Manager) satisfied(rec *Record) bool {
	for _, key := range rec.Constraints {
		c, ok := m.constraints[key]
		if !ok || !c.IsSatisfied() {
			return false
		}
	}
	return true
}

func (m *Manager) execute(ctx context.Context, id string) {
	m.mu.Lock()
	e, ok := m.entries[id]
	mws := m.mws
	m.mu.Unlock()
	if !ok {
		return
	}
	rec := e.rec

	attempt, err := m.store.IncrementAttempt(ctx, id)
	if errors.Is(err, ErrJobNotFound) {
		m.log.Warnf("record vanished before attempt: id=%s key=%s", id, rec.FactoryKey)
		m.finish(e, StateFailed, err)
		return
	}
	if err != nil {
		m.log.Errorf("attempt bookkeeping failed: id=%s key=%s err=%v", id, rec.FactoryKey, err)
		m.requeue(e, m.now().Add(m.backoff.Delay(1)).UnixMilli(), rec.LastError)
		return
	}
	m.mu.Lock()
	rec.Attempt = attempt
	m.mu.Unlock()

	runCtx := hctx.WithState(ctx, hctx.New(id, rec.FactoryKey, attempt))
	runErr := m.run(runCtx, e.job, mws)
	now := m.now()

	if runErr == nil {
		if err := m.store.Delete(ctx, id); err != nil && !errors.Is(err, ErrJobNotFound) {
			m.log.Errorf("delete after success failed: id=%s key=%s err=%v", id, rec.FactoryKey, err)
		}
		m.log.Debugf("processed: id=%s key=%s queue=%s attempt=%d", id, rec.FactoryKey, rec.Queue, attempt)
		m.finish(e, StateSucceeded, nil)
		return
	}

	v := decide(rec, e.job, runErr, now)
	if v != verdictRetry {
		m.log.Warnf("job failed: id=%s key=%s queue=%s attempt=%d reason=%s err=%v",
			id, rec.FactoryKey, rec.Queue, attempt, v, runErr)
		m.fail(ctx, e, runErr)
		return
	}

	delay := m.backoff.Delay(attempt)
	next := now.Add(delay).UnixMilli()
	if err := m.store.Reschedule(ctx, id, next, runErr.Error()); err != nil {
		if errors.Is(err, ErrJobNotFound) {
			m.log.Warnf("record vanished before retry: id=%s key=%s", id, rec.FactoryKey)
			m.finish(e, StateFailed, err)
			return
		}
		m.log.Errorf("reschedule failed: id=%s key=%s err=%v", id, rec.FactoryKey, err)
	}
	m.log.Warnf("attempt failed, retrying: id=%s key=%s queue=%s attempt=%d retry_in=%s err=%v",
		id, rec.FactoryKey, rec.Queue, attempt, delay, runErr)
	m.requeue(e, next, runErr.Error())
}

func (m *Manager) run(ctx context.Context, job Job, mws []Middleware) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
	}()
	return chain(mws, job.Run)(ctx)
}

// requeue returns a running job to its lane head to wait for nextRunAt.
func (m *Manager) requeue(e *entry, nextRunAt int64, lastErr string) {
	m.mu.Lock()
	e.rec.NextRunAt = nextRunAt
	e.rec.LastError = lastErr
	e.state = StatePending
	m.lanes.Release(e.rec.Queue, e.rec.ID)
	m.mu.Unlock()
}

// fail runs the job's failure hook exactly once, then deletes its record.
func (m *Manager) fail(ctx context.Context, e *entry, cause error) {
	func() {
		defer func() {
			if r := recover(); r != nil {
				m.log.Errorf("failure hook panicked: id=%s key=%s panic=%v", e.rec.ID, e.rec.FactoryKey, r)
			}
		}()
		e.job.OnFailure(ctx)
	}()
	if err := m.store.Delete(ctx, e.rec.ID); err != nil && !errors.Is(err, ErrJobNotFound) {
		m.log.Errorf("delete after failure failed: id=%s key=%s err=%v", e.rec.ID, e.rec.FactoryKey, err)
	}
	m.finish(e, StateFailed, cause)
}

// finish removes the job from memory, frees its lane and notifies observers.
func (m *Manager) finish(e *entry, state State, cause error) {
	m.mu.Lock()
	e.state = state
	delete(m.entries, e.rec.ID)
	m.finished[e.rec.ID] = struct{}{}
	m.lanes.Done(e.rec.Queue, e.rec.ID)
	info := e.info()
	m.mu.Unlock()
	for _, o := range m.observers {
		o.JobFinished(info, state, cause)
	}
	m.rt.Wake()
}

// sweep fails waiting jobs whose lifespan has run out, then admits records
// another process persisted since the last pass. Waiting for a lane, a
// constraint or a backoff delay all count toward the lifespan.
func (m *Manager) sweep(ctx context.Context) {
	now := m.now()
	var expired []*entry
	m.mu.Lock()
	for _, e := range m.entries {
		if e.state == StatePending && e.rec.Expired(now) {
			// Leave the lane now so next cannot claim the job while its hook runs.
			m.lanes.Done(e.rec.Queue, e.rec.ID)
			e.state = StateFailed
			expired = append(expired, e)
		}
	}
	m.mu.Unlock()
	for _, e := range expired {
		m.log.Warnf("expired: id=%s key=%s queue=%s attempt=%d", e.rec.ID, e.rec.FactoryKey, e.rec.Queue, e.rec.Attempt)
		m.fail(ctx, e, ErrJobExpired)
	}
	m.rescan(ctx)
}

// rescan admits stored records this manager does not know yet. A record
// finished during the pass is not admitted again even if it was read before
// its deletion.
func (m *Manager) rescan(ctx context.Context) {
	m.mu.Lock()
	clear(m.finished)
	m.mu.Unlock()

	ids, err := m.store.IDs(ctx)
	if err != nil {
		m.log.Errorf("rescan failed: err=%v", err)
		return
	}
	found := 0
	for _, id := range ids {
		m.mu.Lock()
		_, known := m.entries[id]
		m.mu.Unlock()
		if !known && m.restore(ctx, id) {
			found++
		}
	}
	if found > 0 {
		m.log.Infof("picked up stored jobs: count=%d", found)
		m.rt.Wake()
	}
}

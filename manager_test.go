package jobmanager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	mrd "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "TestJob"

var errTransient = errors.New("transient")

// harness backs every testJob built by one test, including jobs rebuilt by the factory.
type harness struct {
	mu       sync.Mutex
	attempts map[string]int
	order    []string
	fn       func(ctx context.Context, name string, attempt int) error
	retry    func(err error) bool
	failures chan string
}

func newHarness(fn func(ctx context.Context, name string, attempt int) error) *harness {
	return &harness{attempts: make(map[string]int), fn: fn, failures: make(chan string, 16)}
}

func (h *harness) run(ctx context.Context, name string) error {
	h.mu.Lock()
	h.attempts[name]++
	n := h.attempts[name]
	h.order = append(h.order, name)
	h.mu.Unlock()
	if h.fn == nil {
		return nil
	}
	return h.fn(ctx, name, n)
}

func (h *harness) runs(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attempts[name]
}

func (h *harness) ran() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.order...)
}

func (h *harness) factory(params Parameters, data Data) (Job, error) {
	name, err := data.GetString("name")
	if err != nil {
		return nil, err
	}
	return &testJob{params: params, name: name, h: h}, nil
}

type testJob struct {
	params Parameters
	name   string
	h      *harness
}

func (j *testJob) FactoryKey() string     { return testKey }
func (j *testJob) Parameters() Parameters { return j.params }
func (j *testJob) Serialize() Data        { return NewDataBuilder().PutString("name", j.name).Build() }
func (j *testJob) Run(ctx context.Context) error {
	return j.h.run(ctx, j.name)
}
func (j *testJob) ShouldRetry(err error) bool {
	if j.h.retry != nil {
		return j.h.retry(err)
	}
	return errors.Is(err, errTransient)
}
func (j *testJob) OnFailure(context.Context) { j.h.failures <- j.name }

func (h *harness) job(name string, b *ParametersBuilder) *testJob {
	return &testJob{params: b.MustBuild(), name: name, h: h}
}

type finished struct {
	info  JobInfo
	state State
	err   error
}

func collect() (chan finished, Option) {
	done := make(chan finished, 16)
	return done, WithObserver(ObserverFunc(func(info JobInfo, state State, err error) {
		done <- finished{info: info, state: state, err: err}
	}))
}

func waitFinished(t *testing.T, done <-chan finished) finished {
	t.Helper()
	select {
	case f := <-done:
		return f
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish within timeout")
		return finished{}
	}
}

type countingStore struct {
	Store
	increments atomic.Int32
	deletes    atomic.Int32
}

func (s *countingStore) IncrementAttempt(ctx context.Context, id string) (int, error) {
	s.increments.Add(1)
	return s.Store.IncrementAttempt(ctx, id)
}

func (s *countingStore) Delete(ctx context.Context, id string) error {
	s.deletes.Add(1)
	return s.Store.Delete(ctx, id)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func fastConfig() ManagerConfig {
	return ManagerConfig{
		Concurrency:   2,
		PollInterval:  5 * time.Millisecond,
		SweepInterval: 5 * time.Millisecond,
		BackoffBase:   time.Millisecond,
		BackoffMax:    5 * time.Millisecond,
	}
}

func newTestManager(store Store, h *harness, opts ...Option) *Manager {
	reg := NewRegistry()
	reg.Register(testKey, h.factory)
	return NewManager(store, reg, fastConfig(), opts...)
}

func TestManager_RetriesThenSucceeds(t *testing.T) {
	h := newHarness(func(_ context.Context, _ string, attempt int) error {
		if attempt <= 2 {
			return errTransient
		}
		return nil
	})
	store := &countingStore{Store: NewMemoryStore()}
	done, obs := collect()
	m := newTestManager(store, h, obs)

	ctx := context.Background()
	id, err := m.Add(ctx, h.job("g", NewParametersBuilder().SetMaxAttempts(3).SetLifespan(24*time.Hour).SetQueue("q")))
	require.NoError(t, err)
	require.NoError(t, m.Start(ctx))
	defer m.Stop()

	f := waitFinished(t, done)
	assert.Equal(t, id, f.info.ID)
	assert.Equal(t, StateSucceeded, f.state)
	assert.NoError(t, f.err)
	assert.Equal(t, 3, f.info.Attempt)
	assert.Equal(t, 3, h.runs("g"))
	assert.EqualValues(t, 3, store.increments.Load())
	assert.EqualValues(t, 1, store.deletes.Load())

	_, err = store.Get(ctx, id)
	require.ErrorIs(t, err, ErrJobNotFound)
	assert.Empty(t, m.Jobs())
	assert.Empty(t, h.failures)
}

func TestManager_UnlimitedAttemptsRetryUntilSuccess(t *testing.T) {
	h := newHarness(func(_ context.Context, _ string, attempt int) error {
		if attempt < 6 {
			return errTransient
		}
		return nil
	})
	done, obs := collect()
	m := newTestManager(NewMemoryStore(), h, obs)
	ctx := context.Background()
	_, err := m.Add(ctx, h.job("u", NewParametersBuilder().SetMaxAttempts(Unlimited)))
	require.NoError(t, err)
	require.NoError(t, m.Start(ctx))
	defer m.Stop()

	f := waitFinished(t, done)
	assert.Equal(t, StateSucceeded, f.state)
	assert.Equal(t, 6, h.runs("u"))
}

func TestManager_NonRetryableFailsOnce(t *testing.T) {
	verification := errors.New("verification failed")
	h := newHarness(func(context.Context, string, int) error { return verification })
	store := NewMemoryStore()
	done, obs := collect()
	m := newTestManager(store, h, obs)
	ctx := context.Background()
	id, err := m.Add(ctx, h.job("v", NewParametersBuilder().SetMaxAttempts(Unlimited)))
	require.NoError(t, err)
	require.NoError(t, m.Start(ctx))
	defer m.Stop()

	f := waitFinished(t, done)
	assert.Equal(t, StateFailed, f.state)
	assert.ErrorIs(t, f.err, verification)
	assert.Equal(t, 1, h.runs("v"))
	assert.Equal(t, "v", <-h.failures)
	assert.Empty(t, h.failures)
	_, err = store.Get(ctx, id)
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestManager_AttemptsExhausted(t *testing.T) {
	h := newHarness(func(context.Context, string, int) error { return errTransient })
	done, obs := collect()
	m := newTestManager(NewMemoryStore(), h, obs)
	ctx := context.Background()
	_, err := m.Add(ctx, h.job("x", NewParametersBuilder().SetMaxAttempts(2)))
	require.NoError(t, err)
	require.NoError(t, m.Start(ctx))
	defer m.Stop()

	f := waitFinished(t, done)
	assert.Equal(t, StateFailed, f.state)
	assert.ErrorIs(t, f.err, errTransient)
	assert.Equal(t, 2, h.runs("x"))
	assert.Equal(t, "x", <-h.failures)
}

func TestManager_ExpiryForcesTerminalFailure(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	h := newHarness(func(context.Context, string, int) error {
		clock.Advance(2 * time.Hour)
		return errTransient
	})
	done, obs := collect()
	m := newTestManager(NewMemoryStore(), h, obs, WithClock(clock.Now))
	ctx := context.Background()
	_, err := m.Add(ctx, h.job("e", NewParametersBuilder().SetMaxAttempts(Unlimited).SetLifespan(time.Hour)))
	require.NoError(t, err)
	require.NoError(t, m.Start(ctx))
	defer m.Stop()

	f := waitFinished(t, done)
	assert.Equal(t, StateFailed, f.state)
	assert.ErrorIs(t, f.err, errTransient)
	assert.Equal(t, 1, h.runs("e"))
	assert.Equal(t, "e", <-h.failures)
}

func TestManager_QueueMutualExclusion(t *testing.T) {
	release := make(chan struct{})
	started := make(chan string, 8)
	h := newHarness(func(_ context.Context, name string, _ int) error {
		started <- name
		if name == "A" {
			<-release
		}
		return nil
	})
	done, obs := collect()
	m := newTestManager(NewMemoryStore(), h, obs)
	ctx := context.Background()
	for _, j := range []*testJob{
		h.job("A", NewParametersBuilder().SetQueue("q")),
		h.job("B", NewParametersBuilder().SetQueue("q")),
		h.job("C", NewParametersBuilder()),
	} {
		_, err := m.Add(ctx, j)
		require.NoError(t, err)
	}
	require.NoError(t, m.Start(ctx))
	defer m.Stop()

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case name := <-started:
			got[name] = true
		case <-time.After(5 * time.Second):
			t.Fatal("expected A and C to start")
		}
	}
	assert.Equal(t, map[string]bool{"A": true, "C": true}, got)

	select {
	case name := <-started:
		t.Fatalf("%s started while A was running", name)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case name := <-started:
		assert.Equal(t, "B", name)
	case <-time.After(5 * time.Second):
		t.Fatal("B did not start after A finished")
	}
	for i := 0; i < 3; i++ {
		waitFinished(t, done)
	}
}

func TestManager_ConstraintBlocksWithoutConsumingAttempts(t *testing.T) {
	net := NewReachabilityFlag(false)
	h := newHarness(nil)
	store := NewMemoryStore()
	done, obs := collect()
	m := newTestManager(store, h, obs, WithConstraint(NewNetworkConstraint(net)))
	ctx := context.Background()
	id, err := m.Add(ctx, h.job("n", NewParametersBuilder().AddConstraint(NetworkConstraintKey).SetMaxAttempts(1)))
	require.NoError(t, err)
	require.NoError(t, m.Start(ctx))
	defer m.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, h.runs("n"))
	rec, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Attempt)
	info, ok := m.Job(id)
	require.True(t, ok)
	assert.Equal(t, StatePending, info.State)

	net.Set(true)
	f := waitFinished(t, done)
	assert.Equal(t, StateSucceeded, f.state)
	assert.Equal(t, 1, h.runs("n"))
}

func TestManager_ExpiresWhileWaiting(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	net := NewReachabilityFlag(false)
	h := newHarness(nil)
	store := NewMemoryStore()
	done, obs := collect()
	m := newTestManager(store, h, obs, WithClock(clock.Now), WithConstraint(NewNetworkConstraint(net)))
	ctx := context.Background()
	id, err := m.Add(ctx, h.job("w", NewParametersBuilder().
		AddConstraint(NetworkConstraintKey).
		SetLifespan(time.Minute).
		SetMaxAttempts(Unlimited)))
	require.NoError(t, err)
	require.NoError(t, m.Start(ctx))
	defer m.Stop()

	clock.Advance(2 * time.Minute)
	f := waitFinished(t, done)
	assert.Equal(t, StateFailed, f.state)
	assert.ErrorIs(t, f.err, ErrJobExpired)
	assert.Equal(t, 0, h.runs("w"))
	assert.Equal(t, "w", <-h.failures)
	_, err = store.Get(ctx, id)
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestManager_PanicIsReportedToShouldRetry(t *testing.T) {
	h := newHarness(func(context.Context, string, int) error { panic("boom") })
	var seen error
	h.retry = func(err error) bool {
		seen = err
		return false
	}
	done, obs := collect()
	m := newTestManager(NewMemoryStore(), h, obs)
	ctx := context.Background()
	_, err := m.Add(ctx, h.job("p", NewParametersBuilder().SetMaxAttempts(3)))
	require.NoError(t, err)
	require.NoError(t, m.Start(ctx))
	defer m.Stop()

	f := waitFinished(t, done)
	assert.Equal(t, StateFailed, f.state)
	assert.ErrorIs(t, f.err, ErrJobPanicked)
	assert.ErrorIs(t, seen, ErrJobPanicked)
}

func TestManager_RestoresPersistedJobsInOrder(t *testing.T) {
	s := mrd.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	h := newHarness(nil)
	// never started: simulates a crash right after submission
	first := newTestManager(NewRedisStore(rdb), h)
	for _, name := range []string{"one", "two", "three"} {
		_, err := first.Add(ctx, h.job(name, NewParametersBuilder().SetQueue("q")))
		require.NoError(t, err)
	}
	assert.Len(t, first.Jobs(), 3)

	done, obs := collect()
	second := newTestManager(NewRedisStore(rdb), h, obs)
	require.NoError(t, second.Start(ctx))
	defer second.Stop()
	for i := 0; i < 3; i++ {
		assert.Equal(t, StateSucceeded, waitFinished(t, done).state)
	}
	assert.Equal(t, []string{"one", "two", "three"}, h.ran())

	ids, err := NewRedisStore(rdb).IDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestManager_AddBeforeStartKeepsSubmissionOrder(t *testing.T) {
	s := mrd.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	h := newHarness(nil)
	first := newTestManager(NewRedisStore(rdb), h)
	_, err := first.Add(ctx, h.job("old", NewParametersBuilder().SetQueue("q")))
	require.NoError(t, err)

	done, obs := collect()
	second := newTestManager(NewRedisStore(rdb), h, obs)
	_, err = second.Add(ctx, h.job("new", NewParametersBuilder().SetQueue("q")))
	require.NoError(t, err)
	require.NoError(t, second.Start(ctx))
	defer second.Stop()

	for i := 0; i < 2; i++ {
		assert.Equal(t, StateSucceeded, waitFinished(t, done).state)
	}
	assert.Equal(t, []string{"old", "new"}, h.ran())
}

func TestManager_PicksUpRecordsStoredWhileRunning(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	h := newHarness(nil)
	done, obs := collect()
	m := newTestManager(store, h, obs)
	require.NoError(t, m.Start(ctx))
	defer m.Stop()

	// a second process enqueues through the shared store
	other := newTestManager(store, h)
	id, err := other.Add(ctx, h.job("late", NewParametersBuilder().SetQueue("q")))
	require.NoError(t, err)

	f := waitFinished(t, done)
	assert.Equal(t, id, f.info.ID)
	assert.Equal(t, StateSucceeded, f.state)

	// later rescans must not replay the finished job
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"late"}, h.ran())
	ids, err := store.IDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestManager_DropsUnreadableRecords(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	h := newHarness(nil)

	unknown := &Record{ID: "unknown", FactoryKey: "Gone", LifespanMs: -1, MaxAttempts: 1}
	malformed := &Record{ID: "malformed", FactoryKey: testKey, LifespanMs: -1, MaxAttempts: 1}
	badConstraint := &Record{ID: "constraint", FactoryKey: testKey, LifespanMs: -1, MaxAttempts: 1,
		Constraints: []string{"Charging"}, Data: NewDataBuilder().PutString("name", "c").Build()}
	good := &Record{ID: "good", FactoryKey: testKey, LifespanMs: -1, MaxAttempts: 1,
		Data: NewDataBuilder().PutString("name", "ok").Build()}
	for _, r := range []*Record{unknown, malformed, badConstraint, good} {
		require.NoError(t, store.Put(ctx, r))
	}

	done, obs := collect()
	m := newTestManager(store, h, obs)
	require.NoError(t, m.Start(ctx))
	defer m.Stop()

	f := waitFinished(t, done)
	assert.Equal(t, "good", f.info.ID)
	assert.Equal(t, StateSucceeded, f.state)
	assert.Equal(t, []string{"ok"}, h.ran())
	ids, err := store.IDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestManager_AddValidation(t *testing.T) {
	h := newHarness(nil)
	m := newTestManager(NewMemoryStore(), h)
	ctx := context.Background()

	_, err := m.Add(ctx, h.job("c", NewParametersBuilder().AddConstraint(NetworkConstraintKey)))
	require.ErrorIs(t, err, ErrUnknownConstraint)

	require.NoError(t, m.Start(ctx))
	m.Stop()
	_, err = m.Add(ctx, h.job("late", NewParametersBuilder()))
	require.ErrorIs(t, err, ErrManagerStopped)
}

func TestManager_StartStopIdempotent(t *testing.T) {
	m := newTestManager(NewMemoryStore(), newHarness(nil))
	ctx := context.Background()
	m.Stop()
	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Start(ctx))
	m.Stop()
	m.Stop()
}

func TestManager_MiddlewareSeesRunInfo(t *testing.T) {
	var mu sync.Mutex
	var trace []string
	var infos []RunInfo
	h := newHarness(func(ctx context.Context, _ string, attempt int) error {
		info, ok := RunInfoFrom(ctx)
		if !ok {
			return errors.New("missing run info")
		}
		mu.Lock()
		infos = append(infos, info)
		trace = append(trace, "run")
		mu.Unlock()
		if attempt == 1 {
			return errTransient
		}
		return nil
	})
	done, obs := collect()
	m := newTestManager(NewMemoryStore(), h, obs)
	tag := func(name string) Middleware {
		return func(next RunFunc) RunFunc {
			return func(ctx context.Context) error {
				mu.Lock()
				trace = append(trace, name)
				mu.Unlock()
				return next(ctx)
			}
		}
	}
	m.Use(tag("outer"))
	m.Use(tag("inner"))

	ctx := context.Background()
	id, err := m.Add(ctx, h.job("m", NewParametersBuilder().SetMaxAttempts(2)))
	require.NoError(t, err)
	require.NoError(t, m.Start(ctx))
	defer m.Stop()
	require.Equal(t, StateSucceeded, waitFinished(t, done).state)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"outer", "inner", "run", "outer", "inner", "run"}, trace)
	require.Len(t, infos, 2)
	assert.Equal(t, RunInfo{JobID: id, FactoryKey: testKey, Attempt: 1}, infos[0])
	assert.Equal(t, 2, infos[1].Attempt)
}

func TestManager_JobsSnapshot(t *testing.T) {
	h := newHarness(nil)
	m := newTestManager(NewMemoryStore(), h)
	ctx := context.Background()
	a, err := m.Add(ctx, h.job("a", NewParametersBuilder().SetQueue("q")))
	require.NoError(t, err)
	b, err := m.Add(ctx, h.job("b", NewParametersBuilder()))
	require.NoError(t, err)

	jobs := m.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, a, jobs[0].ID)
	assert.Equal(t, "q", jobs[0].Queue)
	assert.Equal(t, b, jobs[1].ID)
	for _, j := range jobs {
		assert.Equal(t, StatePending, j.State)
		assert.Equal(t, testKey, j.FactoryKey)
		assert.Zero(t, j.Attempt)
	}
	_, ok := m.Job("missing")
	assert.False(t, ok)
	assert.Equal(t, Stats{Queued: 2, Workers: 2}, m.Stats())
}

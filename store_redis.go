package jobmanager

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	ikeys "github.com/UniQw/jobmanager-go/internal/keys"
	"github.com/redis/go-redis/v9"
)

// putScript atomically creates a record HASH, assigns the next submission
// sequence and indexes the ID. It returns -1 if the record already exists.
var putScript = redis.NewScript(`
local jkey = KEYS[1]
local skey = KEYS[2]
local ikey = KEYS[3]
if redis.call('EXISTS', jkey) == 1 then return -1 end
local seq = redis.call('INCR', skey)
redis.call('HSET', jkey, unpack(ARGV, 2))
redis.call('HSET', jkey, 'seq', seq)
redis.call('ZADD', ikey, seq, ARGV[1])
return seq
`)

// incrementScript bumps the attempt counter only if the record still exists.
var incrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return false end
return redis.call('HINCRBY', KEYS[1], 'attempt', 1)
`)

// rescheduleScript updates next_run_at and last_error only if the record still exists.
var rescheduleScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return 0 end
redis.call('HSET', KEYS[1], 'next_run_at', ARGV[1], 'last_error', ARGV[2])
return 1
`)

// RedisStore persists records as Redis HASHes with a sequence-ordered index.
type RedisStore struct {
	rdb     redis.UniversalClient
	keys    ikeys.Namespace
	encoder Encoder
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// StoreNamespace isolates the records of one manager from others sharing the Redis instance.
func StoreNamespace(ns string) RedisStoreOption {
	return func(s *RedisStore) {
		s.keys = ikeys.For(ns)
	}
}

// NewRedisStore creates a RedisStore in the "default" namespace.
func NewRedisStore(rdb redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{rdb: rdb, keys: ikeys.For("default"), encoder: &JSONEncoder{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put writes r and adds it to the submission index. r.Seq is set from the
// shared counter.
func (s *RedisStore) Put(ctx context.Context, r *Record) error {
	constraints, err := s.encoder.Encode(r.Constraints)
	if err != nil {
		return err
	}
	data, err := s.encoder.Encode(r.Data)
	if err != nil {
		return err
	}
	args := []any{
		r.ID,
		"id", r.ID,
		"factory_key", r.FactoryKey,
		"queue", r.Queue,
		"constraints", constraints,
		"lifespan_ms", r.LifespanMs,
		"max_attempts", r.MaxAttempts,
		"data", data,
		"attempt", r.Attempt,
		"created_at", r.CreatedAt,
		"next_run_at", r.NextRunAt,
		"last_error", r.LastError,
	}
	keys := []string{s.keys.Job(r.ID), s.keys.Seq, s.keys.Index}
	seq, err := putScript.Run(ctx, s.rdb, keys, args...).Int64()
	if err != nil {
		return fmt.Errorf("jobmanager/redis: put %s: %w", r.ID, err)
	}
	if seq < 0 {
		return ErrDuplicateJob
	}
	r.Seq = seq
	return nil
}

// Get loads a record, or returns ErrJobNotFound.
func (s *RedisStore) Get(ctx context.Context, id string) (*Record, error) {
	h, err := s.rdb.HGetAll(ctx, s.keys.Job(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("jobmanager/redis: get %s: %w", id, err)
	}
	if len(h) == 0 {
		return nil, ErrJobNotFound
	}
	return s.decode(id, h)
}

// Delete removes the record and its index entry.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		del = p.Del(ctx, s.keys.Job(id))
		p.ZRem(ctx, s.keys.Index, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("jobmanager/redis: delete %s: %w", id, err)
	}
	if del.Val() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// IncrementAttempt atomically bumps the attempt counter.
func (s *RedisStore) IncrementAttempt(ctx context.Context, id string) (int, error) {
	n, err := incrementScript.Run(ctx, s.rdb, []string{s.keys.Job(id)}).Int()
	if errors.Is(err, redis.Nil) {
		return 0, ErrJobNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("jobmanager/redis: increment %s: %w", id, err)
	}
	return n, nil
}

// Reschedule records the next run time and the last error.
func (s *RedisStore) Reschedule(ctx context.Context, id string, nextRunAt int64, lastErr string) error {
	ok, err := rescheduleScript.Run(ctx, s.rdb, []string{s.keys.Job(id)}, nextRunAt, lastErr).Int()
	if err != nil {
		return fmt.Errorf("jobmanager/redis: reschedule %s: %w", id, err)
	}
	if ok == 0 {
		return ErrJobNotFound
	}
	return nil
}

// IDs lists stored records in submission order.
func (s *RedisStore) IDs(ctx context.Context) ([]string, error) {
	ids, err := s.rdb.ZRange(ctx, s.keys.Index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("jobmanager/redis: list: %w", err)
	}
	return ids, nil
}

// decode converts a record HASH. Any unreadable field poisons the record with ErrMalformedPayload.
func (s *RedisStore) decode(id string, h map[string]string) (*Record, error) {
	bad := func(field string, err error) error {
		return fmt.Errorf("%w: record %s field %s: %v", ErrMalformedPayload, id, field, err)
	}
	r := &Record{
		ID:         id,
		FactoryKey: h["factory_key"],
		Queue:      h["queue"],
		LastError:  h["last_error"],
	}
	var err error
	ints := []struct {
		field string
		dst   *int64
	}{
		{"lifespan_ms", &r.LifespanMs},
		{"created_at", &r.CreatedAt},
		{"next_run_at", &r.NextRunAt},
		{"seq", &r.Seq},
	}
	for _, f := range ints {
		if *f.dst, err = strconv.ParseInt(h[f.field], 10, 64); err != nil {
			return nil, bad(f.field, err)
		}
	}
	if r.MaxAttempts, err = strconv.Atoi(h["max_attempts"]); err != nil {
		return nil, bad("max_attempts", err)
	}
	if r.Attempt, err = strconv.Atoi(h["attempt"]); err != nil {
		return nil, bad("attempt", err)
	}
	if v := h["constraints"]; v != "" {
		if err := s.encoder.Decode([]byte(v), &r.Constraints); err != nil {
			return nil, bad("constraints", err)
		}
	}
	if err := s.encoder.Decode([]byte(h["data"]), &r.Data); err != nil {
		return nil, bad("data", err)
	}
	return r, nil
}

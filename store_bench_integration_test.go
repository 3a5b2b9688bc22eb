package jobmanager

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newRedisClientForBench(b *testing.B) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		b.Skipf("skipping integration bench: redis ping failed: %v", err)
	}
	return rdb
}

func BenchmarkRedisStorePut_Serial(b *testing.B) {
	rdb := newRedisClientForBench(b)
	s := NewRedisStore(rdb, StoreNamespace("bench:"+uuid.NewString()))
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := s.Put(ctx, sampleRecord(uuid.NewString())); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRedisStoreAttempt_Parallel(b *testing.B) {
	rdb := newRedisClientForBench(b)
	s := NewRedisStore(rdb, StoreNamespace("bench:"+uuid.NewString()))
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		id := uuid.NewString()
		if err := s.Put(ctx, sampleRecord(id)); err != nil {
			b.Fatal(err)
		}
		for pb.Next() {
			if _, err := s.IncrementAttempt(ctx, id); err != nil {
				b.Fatal(err)
			}
		}
	})
}

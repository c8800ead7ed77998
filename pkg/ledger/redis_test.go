package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// setupTestRedis connects to a local Redis and skips the test when none is running.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestRedisStore_RoundTrip(t *testing.T) {
	client := setupTestRedis(t)
	store := NewRedisStore(client, zerolog.Nop())
	ctx := context.Background()

	if _, _, err := store.LastRun(ctx); !errors.Is(err, ErrNoRun) {
		t.Fatalf("LastRun() on empty store error = %v, want ErrNoRun", err)
	}

	summary, records := sampleRun()
	for _, rec := range records {
		if err := store.Record(ctx, summary.RunID, rec); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	if err := store.Finish(ctx, summary); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	got, recs, err := store.LastRun(ctx)
	if err != nil {
		t.Fatalf("LastRun() error = %v", err)
	}
	if got.RunID != summary.RunID || got.Failed != 2 {
		t.Errorf("summary = %+v", got)
	}
	if len(recs) != 3 || recs[1].Reason != records[1].Reason {
		t.Errorf("records = %+v", recs)
	}

	ttl := client.TTL(ctx, runKey(summary.RunID)).Val()
	if ttl <= 0 || ttl > DefaultTTL {
		t.Errorf("run hash TTL = %v, want (0, %v]", ttl, DefaultTTL)
	}
}

func TestRedisStore_WithTTL(t *testing.T) {
	client := setupTestRedis(t)
	store := NewRedisStore(client, zerolog.Nop()).WithTTL(time.Minute)
	ctx := context.Background()

	if err := store.Record(ctx, "short", Record{DashboardID: "d1"}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if ttl := client.TTL(ctx, runKey("short")).Val(); ttl > time.Minute {
		t.Errorf("TTL = %v, want <= 1m", ttl)
	}
}

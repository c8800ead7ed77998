//go:build integration

package ledger

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestRedisStore_Integration_LastRunFollowsNewestRun(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	store := NewRedisStore(client, zerolog.Nop())
	ctx := context.Background()

	first, records := sampleRun()
	for _, rec := range records {
		store.Record(ctx, first.RunID, rec)
	}
	if err := store.Finish(ctx, first); err != nil {
		t.Fatalf("Finish(first) error = %v", err)
	}

	second := first
	second.RunID = "run-2"
	second.Order = []string{"d1"}
	second.Total, second.Succeeded, second.Failed = 1, 1, 0
	store.Record(ctx, second.RunID, records[0])
	if err := store.Finish(ctx, second); err != nil {
		t.Fatalf("Finish(second) error = %v", err)
	}

	got, recs, err := store.LastRun(ctx)
	if err != nil {
		t.Fatalf("LastRun() error = %v", err)
	}
	if got.RunID != "run-2" || len(recs) != 1 {
		t.Errorf("LastRun() = %s with %d records, want run-2 with 1", got.RunID, len(recs))
	}

	// The earlier run stays readable under its own keys.
	if n := client.HLen(ctx, runKey(first.RunID)).Val(); n != 3 {
		t.Errorf("first run records = %d, want 3", n)
	}
}

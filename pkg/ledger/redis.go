package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var ledgerWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "dashboard_news_ledger_writes_total",
	Help: "Total run ledger writes by kind and result",
}, []string{"kind", "result"})

// RedisStore keeps run records in Redis hashes.
type RedisStore struct {
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisStore creates a store with DefaultTTL.
func NewRedisStore(redisClient *redis.Client, logger zerolog.Logger) *RedisStore {
	return &RedisStore{
		redis:  redisClient,
		ttl:    DefaultTTL,
		logger: logger,
	}
}

// WithTTL returns a copy of the store that expires records after ttl.
func (s *RedisStore) WithTTL(ttl time.Duration) *RedisStore {
	cp := *s
	cp.ttl = ttl
	return &cp
}

// Record writes rec into the run hash and refreshes its expiry.
func (s *RedisStore) Record(ctx context.Context, runID string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	key := runKey(runID)
	pipe := s.redis.Pipeline()
	pipe.HSet(ctx, key, rec.DashboardID, data)
	pipe.Expire(ctx, key, s.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		ledgerWritesTotal.WithLabelValues("record", "error").Inc()
		return fmt.Errorf("store run record in redis: %w", err)
	}
	ledgerWritesTotal.WithLabelValues("record", "ok").Inc()

	s.logger.Debug().
		Str("run", runID).
		Str("dashboard", rec.DashboardID).
		Str("outcome", rec.Outcome).
		Msg("Recorded dashboard outcome")

	return nil
}

// Finish stores the run summary and points last_run at it.
func (s *RedisStore) Finish(ctx context.Context, summary Summary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	pipe := s.redis.Pipeline()
	pipe.Set(ctx, summaryKey(summary.RunID), data, s.ttl)
	pipe.Set(ctx, lastRunKey(), summary.RunID, s.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		ledgerWritesTotal.WithLabelValues("summary", "error").Inc()
		return fmt.Errorf("store run summary in redis: %w", err)
	}
	ledgerWritesTotal.WithLabelValues("summary", "ok").Inc()

	s.logger.Info().
		Str("run", summary.RunID).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Msg("Run ledger updated")

	return nil
}

// LastRun reads back the most recently finished run.
func (s *RedisStore) LastRun(ctx context.Context) (*Summary, []Record, error) {
	runID, err := s.redis.Get(ctx, lastRunKey()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil, ErrNoRun
		}
		return nil, nil, fmt.Errorf("get last run: %w", err)
	}

	raw, err := s.redis.Get(ctx, summaryKey(runID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil, ErrNoRun
		}
		return nil, nil, fmt.Errorf("get run summary: %w", err)
	}

	var summary Summary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, nil, fmt.Errorf("parse run summary: %w", err)
	}

	fields, err := s.redis.HGetAll(ctx, runKey(runID)).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("get run records: %w", err)
	}

	byID := make(map[string]Record, len(fields))
	for id, value := range fields {
		var rec Record
		if err := json.Unmarshal([]byte(value), &rec); err != nil {
			return nil, nil, fmt.Errorf("parse record %s: %w", id, err)
		}
		byID[id] = rec
	}

	return &summary, ordered(summary.Order, byID), nil
}

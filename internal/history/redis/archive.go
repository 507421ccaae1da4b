package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/minhqn/ocrflow/internal/core/domain"
	"github.com/minhqn/ocrflow/internal/history"
)

// Config holds Redis connection configuration.
type Config struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	TTL      time.Duration `yaml:"ttl"`
}

// Archive stores checkpoint exports in Redis with a TTL, so `status` queries
// outlive the in-process registry without requiring a SQL database.
type Archive struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewArchive connects to Redis and verifies the connection.
func NewArchive(cfg Config) (*Archive, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Archive{rdb: rdb, ttl: ttl}, nil
}

func checkpointKey(jobID string) string {
	return fmt.Sprintf("checkpoint:%s", jobID)
}

func (a *Archive) Archive(ctx context.Context, cp *domain.Checkpoint) error {
	payload, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	if err := a.rdb.Set(ctx, checkpointKey(cp.JobID), payload, a.ttl).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}

func (a *Archive) Get(ctx context.Context, jobID string) (*domain.Checkpoint, error) {
	payload, err := a.rdb.Get(ctx, checkpointKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, history.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get failed: %w", err)
	}

	var cp domain.Checkpoint
	if err := json.Unmarshal(payload, &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	return &cp, nil
}

func (a *Archive) List(ctx context.Context) ([]*domain.Checkpoint, error) {
	var out []*domain.Checkpoint
	iter := a.rdb.Scan(ctx, 0, checkpointKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		payload, err := a.rdb.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // expired between scan and read
		}
		if err != nil {
			return nil, fmt.Errorf("get failed: %w", err)
		}
		var cp domain.Checkpoint
		if err := json.Unmarshal(payload, &cp); err != nil {
			return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
		}
		out = append(out, &cp)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt > out[j].UpdatedAt })
	return out, nil
}

func (a *Archive) Close() error {
	return a.rdb.Close()
}

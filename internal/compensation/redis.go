package compensation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// listClient is the subset of *redis.Client used by RedisSink.
type listClient interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	RPop(ctx context.Context, key string) *redis.StringCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
}

// NewRedisClient connects to addr and checks the connection.
func NewRedisClient(addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

// RedisSink keeps orphan reports in a Redis list, newest first. Operators
// drain it oldest first with Next.
type RedisSink struct {
	client listClient
	key    string
}

func NewRedisSink(client listClient, key string) *RedisSink {
	return &RedisSink{client: client, key: key}
}

func (s *RedisSink) Report(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal orphan report: %w", err)
	}
	if err := s.client.LPush(ctx, s.key, data).Err(); err != nil {
		return fmt.Errorf("push orphan report: %w", err)
	}
	return nil
}

// Pending returns up to limit reports, oldest first, without removing them.
func (s *RedisSink) Pending(ctx context.Context, limit int64) ([]Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	values, err := s.client.LRange(ctx, s.key, -limit, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list orphan reports: %w", err)
	}

	events := make([]Event, 0, len(values))
	for i := len(values) - 1; i >= 0; i-- {
		var event Event
		if err := json.Unmarshal([]byte(values[i]), &event); err != nil {
			return nil, fmt.Errorf("decode orphan report: %w", err)
		}
		events = append(events, event)
	}
	return events, nil
}

// Next removes and returns the oldest report. It returns (nil, nil) when the
// list is empty.
func (s *RedisSink) Next(ctx context.Context) (*Event, error) {
	value, err := s.client.RPop(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pop orphan report: %w", err)
	}

	var event Event
	if err := json.Unmarshal([]byte(value), &event); err != nil {
		return nil, fmt.Errorf("decode orphan report: %w", err)
	}
	return &event, nil
}

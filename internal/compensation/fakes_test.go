package compensation

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
)

// memoryList mimics a single Redis list
type memoryList struct {
	mu     sync.Mutex
	values []string
	err    error
}

func (m *memoryList) LPush(_ context.Context, _ string, values ...interface{}) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return redis.NewIntResult(0, m.err)
	}
	for _, v := range values {
		var s string
		switch val := v.(type) {
		case []byte:
			s = string(val)
		case string:
			s = val
		}
		m.values = append([]string{s}, m.values...)
	}
	return redis.NewIntResult(int64(len(m.values)), nil)
}

func (m *memoryList) RPop(_ context.Context, _ string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return redis.NewStringResult("", m.err)
	}
	if len(m.values) == 0 {
		return redis.NewStringResult("", redis.Nil)
	}
	last := m.values[len(m.values)-1]
	m.values = m.values[:len(m.values)-1]
	return redis.NewStringResult(last, nil)
}

func (m *memoryList) LRange(_ context.Context, _ string, start, stop int64) *redis.StringSliceCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.values))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop {
		return redis.NewStringSliceResult([]string{}, nil)
	}
	out := append([]string(nil), m.values[start:stop+1]...)
	return redis.NewStringSliceResult(out, nil)
}

type recordingPublisher struct {
	key      string
	messages []any
	err      error
}

func (p *recordingPublisher) PublishJSON(_ context.Context, key string, v any) error {
	if p.err != nil {
		return p.err
	}
	p.key = key
	p.messages = append(p.messages, v)
	return nil
}

type recordingSink struct {
	events []Event
	err    error
}

func (s *recordingSink) Report(_ context.Context, event Event) error {
	s.events = append(s.events, event)
	return s.err
}

// scriptedDeleter fails for ids listed in failures
type scriptedDeleter struct {
	failures map[string]error
	deleted  []string
}

func (d *scriptedDeleter) DeleteIdentity(_ context.Context, externalID string) error {
	if err, ok := d.failures[externalID]; ok {
		return err
	}
	d.deleted = append(d.deleted, externalID)
	return nil
}

// countingDeleter returns err for every call
type countingDeleter struct {
	err   error
	calls int
}

func (d *countingDeleter) DeleteIdentity(_ context.Context, _ string) error {
	d.calls++
	return d.err
}

var errBrokerDown = errors.New("broker down")

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"scout/internal/research"
)

// RedisEvents keeps each job's progress log as an append-only Redis list.
type RedisEvents struct {
	Client *redis.Client
}

func eventsKey(jobID string) string { return "scout:job:" + jobID + ":events" }

func (r *RedisEvents) Append(ctx context.Context, jobID string, ev research.JobEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	return r.Client.RPush(ctx, eventsKey(jobID), payload).Err()
}

func (r *RedisEvents) List(ctx context.Context, jobID string) ([]research.JobEvent, error) {
	raw, err := r.Client.LRange(ctx, eventsKey(jobID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading events for job %s: %w", jobID, err)
	}
	out := make([]research.JobEvent, 0, len(raw))
	for _, item := range raw {
		var ev research.JobEvent
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			continue // skip malformed entries rather than hiding the rest
		}
		out = append(out, ev)
	}
	return out, nil
}

// MemoryEvents is the in-process event sink.
type MemoryEvents struct {
	mu     sync.Mutex
	events map[string][]research.JobEvent
}

func NewMemoryEvents() *MemoryEvents {
	return &MemoryEvents{events: make(map[string][]research.JobEvent)}
}

func (m *MemoryEvents) Append(_ context.Context, jobID string, ev research.JobEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[jobID] = append(m.events[jobID], ev)
	return nil
}

func (m *MemoryEvents) List(_ context.Context, jobID string) ([]research.JobEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]research.JobEvent(nil), m.events[jobID]...), nil
}

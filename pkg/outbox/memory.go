package outbox

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps events in process. It backs the in-memory loan store.
type MemoryStore struct {
	mu         sync.Mutex
	nextID     int64
	events     []Event
	maxRetries int
}

func NewMemoryStore(maxRetries int) *MemoryStore {
	return &MemoryStore{maxRetries: maxRetries}
}

func (s *MemoryStore) Append(ev Event) Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	ev.ID = s.nextID
	ev.Status = StatusPending
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	s.events = append(s.events, ev)
	return ev
}

// Events returns a snapshot of every event ever appended.
func (s *MemoryStore) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func (s *MemoryStore) LockBatch(_ context.Context, relayID string, batchSize int, _ time.Duration) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for i := range s.events {
		if len(out) == batchSize {
			break
		}
		if s.events[i].Status != StatusPending {
			continue
		}
		s.events[i].Status = StatusInProgress
		s.events[i].RelayID = relayID
		out = append(out, s.events[i])
	}
	return out, nil
}

func (s *MemoryStore) MarkSent(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if ev := s.find(id); ev != nil {
			ev.Status = StatusSent
		}
	}
	return nil
}

func (s *MemoryStore) MarkFailed(_ context.Context, id int64, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := s.find(id)
	if ev == nil {
		return nil
	}
	ev.RetryCount++
	ev.LastError = &errMsg
	if ev.RetryCount >= s.maxRetries {
		ev.Status = StatusFailed
	} else {
		ev.Status = StatusPending
	}
	return nil
}

func (s *MemoryStore) find(id int64) *Event {
	for i := range s.events {
		if s.events[i].ID == id {
			return &s.events[i]
		}
	}
	return nil
}

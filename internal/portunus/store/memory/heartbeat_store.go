package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/store"
)

// HeartbeatStore keeps every heartbeat per controller, oldest first.
type HeartbeatStore struct {
	mu   sync.RWMutex
	data map[string][]store.HeartbeatRecord
}

func NewHeartbeatStore() *HeartbeatStore {
	return &HeartbeatStore{
		data: make(map[string][]store.HeartbeatRecord),
	}
}

func (s *HeartbeatStore) RecordHeartbeat(_ context.Context, controllerID string, rec store.HeartbeatRecord) error {
	if controllerID == "" {
		return nil
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[controllerID] = append(s.data[controllerID], rec)
	return nil
}

func (s *HeartbeatStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, recs := range s.data {
		kept := recs[:0]
		for _, r := range recs {
			if r.ReceivedAt.Before(cutoff) {
				deleted++
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) == 0 {
			delete(s.data, id)
		} else {
			s.data[id] = kept
		}
	}
	return deleted, nil
}

// Heartbeats returns a copy of the heartbeats held for controllerID.
func (s *HeartbeatStore) Heartbeats(controllerID string) []store.HeartbeatRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.HeartbeatRecord, len(s.data[controllerID]))
	copy(out, s.data[controllerID])
	return out
}

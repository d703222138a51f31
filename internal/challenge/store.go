package challenge

import (
	"context"
	"sync"
	"time"
)

// Record is an issued challenge, keyed by the hash of the card UID. It is
// ephemeral: stores retain it only slightly past its validity window so
// expiry can be reported distinctly from absence.
type Record struct {
	Value     string    `json:"value"` // hex-encoded random challenge
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store holds issued challenges. Consume must be atomic: the first caller
// gets the record, every later caller (however concurrent) sees used=true.
type Store interface {
	Put(ctx context.Context, uidHash string, rec Record, retention time.Duration) error
	// Consume marks the challenge used and returns it. rec == nil means no
	// challenge is known for the uid hash; used reports whether it had
	// already been consumed.
	Consume(ctx context.Context, uidHash string) (rec *Record, used bool, err error)
}

type memoryEntry struct {
	rec       Record
	used      bool
	retainTil time.Time
}

// MemoryStore is an in-process Store for tests and single-node deployments.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

// NewMemoryStore creates an empty in-memory challenge store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry)}
}

// Put stores a challenge, replacing any outstanding one for the same card.
func (s *MemoryStore) Put(ctx context.Context, uidHash string, rec Record, retention time.Duration) error {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		if now.After(e.retainTil) {
			delete(s.entries, k)
		}
	}
	s.entries[uidHash] = &memoryEntry{rec: rec, retainTil: now.Add(retention)}
	return nil
}

// Consume atomically marks the challenge used under the store mutex.
func (s *MemoryStore) Consume(ctx context.Context, uidHash string) (*Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[uidHash]
	if !ok || time.Now().After(e.retainTil) {
		return nil, false, nil
	}
	if e.used {
		rec := e.rec
		return &rec, true, nil
	}
	e.used = true
	rec := e.rec
	return &rec, false, nil
}

// Package idempotency provides a durable key → result map with an atomic
// claim: for a given key, at most one caller ever transitions it to
// in-progress, and repeat submissions observe the stored outcome instead of
// re-running the operation body.
package idempotency

import (
	"context"
	"fmt"
	"sync"
)

type State string

const (
	StateNew        State = "new"
	StateInProgress State = "in_progress"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Outcome is what BeginOrGet hands back. Exactly one concurrent caller for
// a key sees StateNew; everyone else gets the current or terminal state.
type Outcome struct {
	State  State
	Result []byte
	Cause  string
}

// FailPolicy is chosen explicitly per call site. Retryable clears the
// in-flight marker so a fresh attempt may claim the key again; Memoize
// stores the error terminally for inputs that can never succeed.
type FailPolicy int

const (
	Retryable FailPolicy = iota
	Memoize
)

type Store interface {
	// BeginOrGet atomically claims key for the caller (StateNew) or
	// returns the existing outcome. The claim is a single check-and-set
	// against shared storage, never a read followed by a write.
	BeginOrGet(ctx context.Context, key string) (Outcome, error)

	// Complete stores the terminal result and releases the in-flight marker.
	Complete(ctx context.Context, key string, result []byte) error

	// Fail records a failure according to policy.
	Fail(ctx context.Context, key string, cause error, policy FailPolicy) error
}

// Key builds the deduplication key for one logical operation.
func Key(operation, tenantID, nonce string) string {
	if nonce == "" {
		return fmt.Sprintf("%s:%s", operation, tenantID)
	}
	return fmt.Sprintf("%s:%s:%s", operation, tenantID, nonce)
}

type memoryEntry struct {
	state  State
	result []byte
	cause  string
}

// MemoryStore is the in-process implementation, used in tests and
// single-replica deployments.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry)}
}

func (s *MemoryStore) BeginOrGet(_ context.Context, key string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[key]; ok {
		return Outcome{State: entry.state, Result: entry.result, Cause: entry.cause}, nil
	}
	s.entries[key] = &memoryEntry{state: StateInProgress}
	return Outcome{State: StateNew}, nil
}

func (s *MemoryStore) Complete(_ context.Context, key string, result []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		entry = &memoryEntry{}
		s.entries[key] = entry
	}
	entry.state = StateDone
	entry.result = result
	entry.cause = ""
	return nil
}

func (s *MemoryStore) Fail(_ context.Context, key string, cause error, policy FailPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if policy == Retryable {
		delete(s.entries, key)
		return nil
	}
	entry, ok := s.entries[key]
	if !ok {
		entry = &memoryEntry{}
		s.entries[key] = entry
	}
	entry.state = StateFailed
	if cause != nil {
		entry.cause = cause.Error()
	}
	return nil
}

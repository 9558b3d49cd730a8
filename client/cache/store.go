package cache

import "sync"

// Store owns the process-wide snapshot. All writes go through reducer
// functions applied under the lock as whole-snapshot replacements; every
// read observes a consistent snapshot. Components other than the reducers
// never mutate cached state.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// NewStore creates a store with an empty snapshot
func NewStore() *Store {
	return &Store{snapshot: NewSnapshot()}
}

// Snapshot returns the current snapshot. The returned value shares no
// mutable state with future writes.
func (st *Store) Snapshot() Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.snapshot
}

// Apply runs one reducer against the current snapshot and installs the
// result. This is the single dispatch point: ordering races between network
// callbacks and bridge events are absorbed by reducer idempotence, not by
// timing.
func (st *Store) Apply(reduce func(Snapshot) Snapshot) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.snapshot = reduce(st.snapshot)
}

// MessagesFor reads one conversation's cached page
func (st *Store) MessagesFor(conversationId int64) ([]MessageEntry, bool) {
	return st.Snapshot().MessagesFor(conversationId)
}

// Conversations reads the cached conversation list
func (st *Store) Conversations() []ConversationEntry {
	return st.Snapshot().Conversations
}

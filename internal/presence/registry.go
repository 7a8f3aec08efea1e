// Package presence maintains the authoritative table of currently connected,
// authenticated identities, keyed by connection id.
package presence

import (
	"sync"

	"github.com/mhkarimi/chatrelay/internal/auth"
)

// Entry records one open authenticated connection. Multiple entries may share
// the same user id when the same user is connected from several devices; the
// registry never deduplicates by user.
type Entry struct {
	ConnectionID string `json:"-"`
	UserID       string `json:"userId"`
	UserName     string `json:"userName"`
}

// Registry is the single source of truth for which identities currently hold
// an open connection. Every mutation returns the post-mutation snapshot,
// captured under the same lock, so callers can publish a state that never
// reflects a partially-applied change.
type Registry struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Entry),
	}
}

// Register inserts an entry for the connection and returns the resulting
// snapshot. Registering the same connection id again overwrites the entry.
func (r *Registry) Register(connectionID string, identity auth.Identity) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[connectionID] = Entry{
		ConnectionID: connectionID,
		UserID:       identity.UserID,
		UserName:     identity.UserName,
	}
	return r.snapshotLocked()
}

// Unregister removes the entry for the connection, if present, and returns
// the resulting snapshot. Removing an absent connection is a no-op, not an
// error, so a double disconnect cannot corrupt the table; the second return
// value reports whether an entry was actually removed.
func (r *Registry) Unregister(connectionID string) ([]Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[connectionID]; !ok {
		return r.snapshotLocked(), false
	}
	delete(r.entries, connectionID)
	return r.snapshotLocked(), true
}

// Snapshot returns the current set of entries in unspecified order.
func (r *Registry) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) snapshotLocked() []Entry {
	entries := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	return entries
}

// Package presence owns the in-memory mapping between live connections and
// durable identities. It is the single source of truth for "who is online".
package presence

import (
	"log/slog"
	"sync"

	v1 "parley/shared/contracts/chat/v1"
)

// Session binds one live connection to a durable identity.
// DurableID may be zero when identity resolution was skipped; the router then
// falls back to delivery without persistence.
type Session struct {
	ConnID      string
	PublicID    string
	DisplayName string
	DurableID   int64

	Client *Client
}

// RosterEntry is one live identity in the roster snapshot.
type RosterEntry struct {
	PublicID    string
	DisplayName string
}

// Registry tracks live sessions with two indices that must stay consistent:
// publicID -> session and connID -> publicID. Both are mutated only inside a
// single critical section so they can never diverge.
//
// A second connection under the same public id replaces the first
// (last-connect-wins); the replaced client is closed and its stale connID
// entry removed immediately.
type Registry struct {
	log *slog.Logger

	mu           sync.RWMutex
	sessions     map[string]*Session // publicID -> session
	connToPublic map[string]string   // connID -> publicID
	order        []string            // publicIDs in first-registration order
}

// NewRegistry constructs an empty Registry.
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		log:          log,
		sessions:     make(map[string]*Session),
		connToPublic: make(map[string]string),
	}
}

// Register installs or overwrites the session for publicID.
// It always succeeds given well-formed inputs.
func (r *Registry) Register(client *Client, publicID, displayName string, durableID int64) {
	if r == nil || client == nil || client.ConnID == "" || publicID == "" {
		return
	}

	var replaced *Client

	r.mu.Lock()

	if prev, ok := r.sessions[publicID]; ok && prev.ConnID != client.ConnID {
		// Reconnect under the same identity: drop the orphaned handle mapping.
		delete(r.connToPublic, prev.ConnID)
		replaced = prev.Client
	}

	// The same connection may re-register under a different identity; its old
	// session must not linger either.
	if oldPublic, ok := r.connToPublic[client.ConnID]; ok && oldPublic != publicID {
		delete(r.sessions, oldPublic)
		r.dropFromOrder(oldPublic)
	}

	if _, known := r.sessions[publicID]; !known {
		r.order = append(r.order, publicID)
	}

	r.sessions[publicID] = &Session{
		ConnID:      client.ConnID,
		PublicID:    publicID,
		DisplayName: displayName,
		DurableID:   durableID,
		Client:      client,
	}
	r.connToPublic[client.ConnID] = publicID

	r.mu.Unlock()

	// Close outside the lock: Close fans out to the replaced connection's
	// goroutines and must not extend the critical section.
	if replaced != nil {
		replaced.Close()
	}

	r.log.Info("presence.register", "public_id", publicID, "display_name", displayName, "conn_id", client.ConnID)
}

// Remove deletes the session owned by connID from both indices.
// Disconnect of an unregistered handle is expected and harmless: it returns
// ok=false and mutates nothing.
func (r *Registry) Remove(connID string) (publicID string, ok bool) {
	if r == nil || connID == "" {
		return "", false
	}

	r.mu.Lock()

	publicID, ok = r.connToPublic[connID]
	if !ok {
		r.mu.Unlock()
		return "", false
	}

	// A stale handle can surface after a last-connect-wins replacement; only
	// the current owner of the session may remove it.
	if sess := r.sessions[publicID]; sess != nil && sess.ConnID == connID {
		delete(r.sessions, publicID)
		r.dropFromOrder(publicID)
	}
	delete(r.connToPublic, connID)

	r.mu.Unlock()

	r.log.Info("presence.remove", "public_id", publicID, "conn_id", connID)
	return publicID, true
}

// IsOnline reports whether publicID has a live session.
func (r *Registry) IsOnline(publicID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.sessions[publicID]
	return ok
}

// SessionFor returns the live session for publicID.
func (r *Registry) SessionFor(publicID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[publicID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// SessionByConn resolves the owning session from a connection handle.
func (r *Registry) SessionByConn(connID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	publicID, ok := r.connToPublic[connID]
	if !ok {
		return Session{}, false
	}
	s, ok := r.sessions[publicID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Roster returns all live identities in first-registration order.
// Ordering is irrelevant to correctness but kept deterministic for tests.
func (r *Registry) Roster() []RosterEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RosterEntry, 0, len(r.order))
	for _, publicID := range r.order {
		s, ok := r.sessions[publicID]
		if !ok {
			continue
		}
		out = append(out, RosterEntry{PublicID: s.PublicID, DisplayName: s.DisplayName})
	}
	return out
}

// Broadcast fans out an envelope to all live connections.
// Non-blocking: if a member queue is full or the client is shutting down, it is dropped.
func (r *Registry) Broadcast(env v1.Envelope) {
	if r == nil {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.sessions {
		if s == nil || s.Client == nil {
			continue
		}
		if !s.Client.Enqueue(env) {
			// Drop rather than block the whole roster.
			continue
		}
	}
}

// dropFromOrder removes publicID from the insertion-order slice.
// Caller must hold the write lock.
func (r *Registry) dropFromOrder(publicID string) {
	for i, id := range r.order {
		if id == publicID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

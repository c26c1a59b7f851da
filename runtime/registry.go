package runtime

import (
	"commute-chat/contract"
	"commute-chat/errors"
	"sync"
)

// Registry is the process-wide map of identity -> active session, used to
// route live push deliveries. It is the only state shared across connection
// goroutines, so every mutation happens under the lock. A bare map must never
// leak out of this type.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]contract.LiveSession
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]contract.LiveSession),
	}
}

// Subscribe binds an identity to its open session. A second subscription
// while one is active is rejected with ErrAlreadySubscribed and never replaces
// the first; callers treat the rejection as informational, not fatal.
func (r *Registry) Subscribe(identity string, s contract.LiveSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[identity]; ok {
		return errors.ErrAlreadySubscribed
	}
	r.sessions[identity] = s
	return nil
}

// Unsubscribe removes the identity's entry. It is idempotent: removing an
// absent identity is a no-op.
func (r *Registry) Unsubscribe(identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, identity)
}

// UnsubscribeSession removes the identity's entry only when s still owns it.
// Close paths call this unconditionally: a session that lost (or never won)
// the slot must not evict the one that holds it.
func (r *Registry) UnsubscribeSession(identity string, s contract.LiveSession) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.sessions[identity]; ok && current == s {
		delete(r.sessions, identity)
	}
}

// Resolve returns the active session for an identity, if one exists.
func (r *Registry) Resolve(identity string) (contract.LiveSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[identity]
	return s, ok
}

// Len reports the number of active subscriptions, for telemetry.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

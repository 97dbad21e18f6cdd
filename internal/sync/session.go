package sync

import (
	"fmt"
	stdsync "sync"
	"sync/atomic"

	"github.com/conorfennell/quizvault/internal/storage"
)

// Session carries the state one process shares between its reconcilers: the
// local store with its selected tier and the remote health flag. The flag only
// ever goes from healthy to degraded, and every reconciler on the session is
// told when it does.
type Session struct {
	store    *storage.Store
	degraded atomic.Bool

	mu        stdsync.Mutex
	onDegrade []func()
}

// NewSession starts a healthy session over store.
func NewSession(store *storage.Store) *Session {
	return &Session{store: store}
}

// Store returns the local store.
func (s *Session) Store() *storage.Store { return s.store }

// Tier returns the local store's tier.
func (s *Session) Tier() storage.Tier { return s.store.Tier() }

// Healthy reports whether remote calls are still attempted.
func (s *Session) Healthy() bool { return !s.degraded.Load() }

// watch registers fn to run once when the session degrades. On an already
// degraded session fn is not called.
func (s *Session) watch(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.degraded.Load() {
		return
	}
	s.onDegrade = append(s.onDegrade, fn)
}

// degrade marks the remote unhealthy and reports whether this call did it.
// The call that flips the flag runs the watchers.
func (s *Session) degrade() bool {
	s.mu.Lock()
	if !s.degraded.CompareAndSwap(false, true) {
		s.mu.Unlock()
		return false
	}
	hooks := s.onDegrade
	s.onDegrade = nil
	s.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	return true
}

// RemoteSyncError wraps a failed remote call. The session is degraded by the
// time it is seen.
type RemoteSyncError struct {
	Op     string
	UserID string
	Err    error
}

func (e *RemoteSyncError) Error() string {
	return fmt.Sprintf("remote %s for user %s failed: %v", e.Op, e.UserID, e.Err)
}

func (e *RemoteSyncError) Unwrap() error { return e.Err }

package reveal

import (
	"context"
	"log"
	"sync"
	"time"
)

// reconcileInterval bounds divergence between the in-process registry and
// the cache-side active set after crashes or missed events.
const reconcileInterval = 60 * time.Second

// Registry is the process-local mirror of the active session set. The
// broadcast and lifecycle schedulers iterate the registry instead of polling
// the cache, so an idle server issues zero cache commands.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]struct{}

	repo   *Repository
	stopCh chan struct{}
	logger *log.Logger
}

func NewRegistry(repo *Repository) *Registry {
	return &Registry{
		sessions: make(map[string]struct{}),
		repo:     repo,
		stopCh:   make(chan struct{}),
		logger:   log.New(log.Writer(), "[REGISTRY] ", log.LstdFlags),
	}
}

// Register adds a session id; called by the session creation path.
func (r *Registry) Register(sessionID string) {
	r.mu.Lock()
	r.sessions[sessionID] = struct{}{}
	total := len(r.sessions)
	r.mu.Unlock()
	r.logger.Printf("Session registered: %s (total: %d)", sessionID, total)
}

// Unregister removes a session id; called when a session ends.
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	delete(r.sessions, sessionID)
	total := len(r.sessions)
	r.mu.Unlock()
	r.logger.Printf("Session unregistered: %s (total: %d)", sessionID, total)
}

// IsEmpty reports whether any session is active.
func (r *Registry) IsEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions) == 0
}

// Snapshot returns a defensive copy safe to iterate while sessions are
// registered and unregistered concurrently.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Reconcile replaces the local set with the verified cache-side set. Ids in
// the cache set whose session hash has expired (phantoms) are removed from
// the cache set as a side effect. On cache failure the local state is kept.
func (r *Registry) Reconcile(ctx context.Context) {
	ids, err := r.repo.ActiveSessions(ctx)
	if err != nil {
		r.mu.RLock()
		kept := len(r.sessions)
		r.mu.RUnlock()
		r.logger.Printf("Reconciliation failed, keeping local state (%d sessions): %v", kept, err)
		return
	}

	valid := make(map[string]struct{}, len(ids))
	phantoms := 0
	for _, id := range ids {
		exists, err := r.repo.SessionExists(ctx, id)
		if err != nil {
			// Unverifiable this cycle; keep it rather than drop a live session.
			valid[id] = struct{}{}
			continue
		}
		if exists {
			valid[id] = struct{}{}
			continue
		}
		phantoms++
		if err := r.repo.RemoveActive(ctx, id); err != nil {
			r.logger.Printf("Failed to remove phantom session %s: %v", id, err)
		} else {
			r.logger.Printf("Cleaned up phantom session: %s", id)
		}
	}

	r.mu.Lock()
	r.sessions = valid
	r.mu.Unlock()

	if phantoms > 0 {
		r.logger.Printf("Reconciled with cache: %d active sessions (%d phantom removed)", len(valid), phantoms)
	}
}

// Run reconciles on a fixed interval until Stop is called. Callers should
// invoke Reconcile once synchronously at startup before starting the
// schedulers.
func (r *Registry) Run() {
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			r.Reconcile(ctx)
			cancel()
		case <-r.stopCh:
			r.logger.Println("Registry reconciler stopped")
			return
		}
	}
}

// Stop terminates the reconcile loop.
func (r *Registry) Stop() {
	close(r.stopCh)
}

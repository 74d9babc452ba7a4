package reveal

import (
	"context"
	"log"
	"time"

	"github.com/revealtogether/server/internal/metrics"
)

const (
	lifecycleInterval = 1 * time.Second
	// Sessions go live this long before their reveal instant.
	activationLead = 5 * time.Minute
	// Per-tick budget for cache and archive calls.
	lifecycleTickTimeout = 30 * time.Second
)

// Lifecycle drives the waiting → live → ended state machine from the clock
// and finalizes ended sessions: archive write, reveal frame, TTL shrink.
// It iterates the in-memory registry, so an idle server does no cache work.
type Lifecycle struct {
	repo      *Repository
	sessions  *SessionService
	registry  *Registry
	chat      *ChatEngine
	archiver  Archiver
	publisher Publisher
	metrics   *metrics.Metrics

	now    func() time.Time
	stopCh chan struct{}
	logger *log.Logger
}

func NewLifecycle(repo *Repository, sessions *SessionService, registry *Registry, chat *ChatEngine, archiver Archiver, publisher Publisher, m *metrics.Metrics) *Lifecycle {
	return &Lifecycle{
		repo:      repo,
		sessions:  sessions,
		registry:  registry,
		chat:      chat,
		archiver:  archiver,
		publisher: publisher,
		metrics:   m,
		now:       time.Now,
		stopCh:    make(chan struct{}),
		logger:    log.New(log.Writer(), "[REVEAL-SCHED] ", log.LstdFlags),
	}
}

// Run ticks every second until Stop is called. Each tick runs to completion
// before the next fires.
func (l *Lifecycle) Run() {
	ticker := time.NewTicker(lifecycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), lifecycleTickTimeout)
			l.Tick(ctx)
			cancel()
		case <-l.stopCh:
			l.logger.Println("Reveal scheduler stopped")
			return
		}
	}
}

// Stop terminates the scheduler loop.
func (l *Lifecycle) Stop() {
	close(l.stopCh)
}

// Tick evaluates transitions for every registered session. Iteration runs
// over a snapshot so in-loop unregisters cannot invalidate traversal.
func (l *Lifecycle) Tick(ctx context.Context) {
	if l.registry.IsEmpty() {
		return
	}

	now := l.now()
	ids := l.registry.Snapshot()
	l.metrics.SetActiveSessions(len(ids))

	for _, sessionID := range ids {
		session, err := l.repo.GetSession(ctx, sessionID)
		if err != nil {
			l.metrics.IncCacheError("lifecycle")
			l.logger.Printf("Session fetch failed for %s: %v", sessionID, err)
			continue
		}
		if session == nil {
			// Hash expired under us; reconciliation will clean the set.
			continue
		}

		if session.Status == StatusWaiting && now.After(session.RevealTime.Add(-activationLead)) {
			if err := l.sessions.Activate(ctx, sessionID); err != nil {
				l.metrics.IncCacheError("lifecycle")
				l.logger.Printf("Activation failed for %s: %v", sessionID, err)
			} else {
				l.logger.Printf("Session %s activated", sessionID)
			}
		}

		if session.Status != StatusEnded && now.After(session.RevealTime) {
			l.finalize(ctx, session)
		}
	}
}

// finalize runs the reveal sequence exactly once per session: the first
// successful End removes the id from the active set and the registry, so a
// concurrent tick re-reads status ended and skips.
func (l *Lifecycle) finalize(ctx context.Context, session *Session) {
	sessionID := session.SessionID
	l.logger.Printf("Triggering reveal for session: %s", sessionID)

	finalVotes, err := l.repo.GetVotes(ctx, sessionID)
	if err != nil {
		l.metrics.IncCacheError("lifecycle")
		l.logger.Printf("Final count read failed for %s, retrying next tick: %v", sessionID, err)
		return
	}
	chatHistory, err := l.chat.GetAllMessages(ctx, sessionID)
	if err != nil {
		l.metrics.IncCacheError("lifecycle")
		l.logger.Printf("Chat history read failed for %s: %v", sessionID, err)
		chatHistory = nil
	}

	// Best-effort: an archive failure is logged, the session still ends and
	// its data survives in the cache for the post-reveal window.
	if err := l.archiver.SaveResults(ctx, *session, finalVotes, chatHistory, l.now().UTC()); err != nil {
		l.logger.Printf("Archive write failed for %s: %v", sessionID, err)
	}

	l.publisher.Publish(TopicVotes(sessionID), NewRevealEvent(session.Gender, finalVotes))

	if err := l.sessions.End(ctx, sessionID); err != nil {
		l.metrics.IncCacheError("lifecycle")
		l.logger.Printf("End failed for %s, retrying next tick: %v", sessionID, err)
		return
	}
	l.registry.Unregister(sessionID)
	l.metrics.IncReveal()

	l.logger.Printf("Reveal completed for session %s: gender=%s, votes={boy:%d girl:%d}",
		sessionID, session.Gender, finalVotes.Boy, finalVotes.Girl)
}

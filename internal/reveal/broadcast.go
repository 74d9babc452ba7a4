package reveal

import (
	"context"
	"log"
	"time"

	"github.com/revealtogether/server/internal/metrics"
)

const broadcastTickTimeout = 10 * time.Second

// Broadcaster periodically emits coalesced aggregate vote counts for dirty
// sessions. When the registry is empty a tick returns without touching the
// cache at all. A vote taken during tick N is broadcast by the end of tick
// N+1 at latest; votes landing in the same window collapse into one frame.
type Broadcaster struct {
	repo      *Repository
	registry  *Registry
	publisher Publisher
	metrics   *metrics.Metrics

	interval time.Duration
	stopCh   chan struct{}
	logger   *log.Logger
}

func NewBroadcaster(repo *Repository, registry *Registry, publisher Publisher, m *metrics.Metrics, interval time.Duration) *Broadcaster {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Broadcaster{
		repo:      repo,
		registry:  registry,
		publisher: publisher,
		metrics:   m,
		interval:  interval,
		stopCh:    make(chan struct{}),
		logger:    log.New(log.Writer(), "[BROADCAST] ", log.LstdFlags),
	}
}

// Run ticks at the configured interval until Stop is called.
func (b *Broadcaster) Run() {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.logger.Printf("Started vote broadcast scheduler (interval=%s)", b.interval)

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), broadcastTickTimeout)
			b.Tick(ctx)
			cancel()
		case <-b.stopCh:
			b.logger.Println("Broadcast scheduler stopped")
			return
		}
	}
}

// Stop terminates the scheduler loop.
func (b *Broadcaster) Stop() {
	close(b.stopCh)
}

// Tick emits at most one frame per dirty session. The atomic test-and-clear
// of the dirty flag means no vote is ever missed and no idle session is ever
// broadcast.
func (b *Broadcaster) Tick(ctx context.Context) {
	if b.registry.IsEmpty() {
		return
	}

	start := time.Now()
	for _, sessionID := range b.registry.Snapshot() {
		dirty, err := b.repo.TestAndClearDirty(ctx, sessionID)
		if err != nil {
			b.metrics.IncCacheError("broadcast")
			b.logger.Printf("Dirty check failed for %s: %v", sessionID, err)
			continue
		}
		if !dirty {
			continue
		}

		votes, err := b.repo.GetVotes(ctx, sessionID)
		if err != nil {
			b.metrics.IncCacheError("broadcast")
			b.logger.Printf("Count read failed for %s: %v", sessionID, err)
			// The flag is already consumed; re-mark so the next tick retries.
			if err := b.repo.MarkDirty(ctx, sessionID); err != nil {
				b.logger.Printf("Re-mark dirty failed for %s: %v", sessionID, err)
			}
			continue
		}

		b.publisher.Publish(TopicVotes(sessionID), votes)
		b.metrics.IncBroadcast()
	}
	b.metrics.ObserveBroadcastTick(time.Since(start).Seconds())
}

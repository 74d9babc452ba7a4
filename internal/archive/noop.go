package archive

import (
	"context"
	"log/slog"
	"time"

	"github.com/revealtogether/server/internal/reveal"
)

// NoopSink is used when archive credentials are not configured. Writes are
// skipped with a warning; lookups report not found.
type NoopSink struct{}

func (NoopSink) SaveSession(ctx context.Context, s reveal.Session) error {
	slog.Warn("Archive not configured, skipping session save", "session", s.SessionID)
	return nil
}

func (NoopSink) SaveResults(ctx context.Context, s reveal.Session, votes reveal.VoteCount, chat []reveal.ChatMessage, endedAt time.Time) error {
	slog.Warn("Archive not configured, skipping results save", "session", s.SessionID)
	return nil
}

func (NoopSink) GetReveal(ctx context.Context, sessionID string) (map[string]interface{}, error) {
	return nil, nil
}

package reveal

import (
	"context"
	"html"
	"log"
	"strings"

	"github.com/revealtogether/server/internal/metrics"
)

// ChatInput is a chat submission after boundary validation of the visitor id
// format.
type ChatInput struct {
	Name      string
	Message   string
	VisitorID string
}

// ChatEngine appends rate-limited, length-bounded, escaped chat messages and
// fans them out immediately on the session chat topic.
type ChatEngine struct {
	repo             *Repository
	limiter          *RateLimiter
	publisher        Publisher
	metrics          *metrics.Metrics
	maxMessageLength int
	maxNameLength    int
	logger           *log.Logger
}

func NewChatEngine(repo *Repository, limiter *RateLimiter, publisher Publisher, m *metrics.Metrics, maxMessageLength, maxNameLength int) *ChatEngine {
	if maxMessageLength <= 0 {
		maxMessageLength = 280
	}
	if maxNameLength <= 0 {
		maxNameLength = 50
	}
	return &ChatEngine{
		repo:             repo,
		limiter:          limiter,
		publisher:        publisher,
		metrics:          m,
		maxMessageLength: maxMessageLength,
		maxNameLength:    maxNameLength,
		logger:           log.New(log.Writer(), "[CHAT] ", log.LstdFlags),
	}
}

// SendMessage validates, stores and broadcasts one chat message. Returns
// false on any rejection: rate limit, missing or ended session, or an empty
// body after trimming. A blank name is allowed on the chat path.
func (e *ChatEngine) SendMessage(ctx context.Context, sessionID string, in ChatInput) bool {
	ok := e.sendMessage(ctx, sessionID, in)
	if ok {
		e.metrics.IncChat("accepted")
	} else {
		e.metrics.IncChat("rejected")
	}
	return ok
}

func (e *ChatEngine) sendMessage(ctx context.Context, sessionID string, in ChatInput) bool {
	admitted, err := e.limiter.Admit(ctx, in.VisitorID)
	if err != nil {
		e.metrics.IncCacheError("chat")
		e.logger.Printf("Rate limiter unavailable for visitor %s: %v", in.VisitorID, err)
		return false
	}
	if !admitted {
		return false
	}

	session, err := e.repo.GetSession(ctx, sessionID)
	if err != nil {
		e.metrics.IncCacheError("chat")
		e.logger.Printf("Session lookup failed for %s: %v", sessionID, err)
		return false
	}
	if session == nil {
		e.logger.Printf("Chat attempted on non-existent session: %s", sessionID)
		return false
	}
	if session.Status == StatusEnded {
		return false
	}

	name := sanitize(in.Name, e.maxNameLength)
	body := sanitize(in.Message, e.maxMessageLength)
	if body == "" {
		return false
	}

	msg := NewChatMessage(name, body, in.VisitorID)
	if err := e.repo.AppendChat(ctx, sessionID, msg); err != nil {
		e.metrics.IncCacheError("chat")
		e.logger.Printf("Chat write failed: session=%s: %v", sessionID, err)
		return false
	}

	e.publisher.Publish(TopicChat(sessionID), msg)
	return true
}

// GetRecentMessages returns up to n messages, oldest first.
func (e *ChatEngine) GetRecentMessages(ctx context.Context, sessionID string, n int) ([]ChatMessage, error) {
	return e.repo.GetRecentChat(ctx, sessionID, n)
}

// GetAllMessages returns the full retained history, oldest first.
func (e *ChatEngine) GetAllMessages(ctx context.Context, sessionID string) ([]ChatMessage, error) {
	return e.repo.GetAllChat(ctx, sessionID)
}

// sanitize trims, truncates to maxLength characters, then HTML-escapes.
// Truncation happens before escaping.
func sanitize(input string, maxLength int) string {
	trimmed := strings.TrimSpace(input)
	if runes := []rune(trimmed); len(runes) > maxLength {
		trimmed = string(runes[:maxLength])
	}
	return html.EscapeString(trimmed)
}

package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/revealtogether/server/internal/reveal"
)

// VoteRequest is the client payload published to vote/{sessionId}.
type VoteRequest struct {
	Option    string `json:"option"`
	VisitorID string `json:"visitorId"`
	Name      string `json:"name"`
}

// ChatRequest is the client payload published to chat/{sessionId}.
type ChatRequest struct {
	Name      string `json:"name"`
	Message   string `json:"message"`
	VisitorID string `json:"visitorId"`
}

// VoteResponse is the personal acknowledgment published on
// vote-response/{sessionId}.
type VoteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Client-generated visitor ids are 36-char UUID strings.
var visitorIDPattern = regexp.MustCompile(`^[0-9a-fA-F-]{36}$`)

// Router dispatches inbound client frames to the vote and chat engines and
// publishes vote acknowledgments. It is the boundary layer that turns
// payload validation failures into rejections before the engines run.
type Router struct {
	votes     *reveal.VoteEngine
	chat      *reveal.ChatEngine
	publisher reveal.Publisher
}

func NewRouter(votes *reveal.VoteEngine, chat *reveal.ChatEngine, publisher reveal.Publisher) *Router {
	return &Router{votes: votes, chat: chat, publisher: publisher}
}

// Handle routes one frame. The destination must match the session the
// connection is bound to; cross-session publishes are dropped.
func (rt *Router) Handle(ctx context.Context, sessionID string, frame ClientFrame) {
	switch frame.Destination {
	case "vote/" + sessionID:
		rt.handleVote(ctx, sessionID, frame.Body)
	case "chat/" + sessionID:
		rt.handleChat(ctx, sessionID, frame.Body)
	default:
		slog.Info("Ignoring frame for unknown destination", "destination", frame.Destination, "session", sessionID)
	}
}

func (rt *Router) handleVote(ctx context.Context, sessionID string, body json.RawMessage) {
	var req VoteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		slog.Info("Ignoring malformed vote payload", "session", sessionID, "error", err)
		return
	}
	if !visitorIDPattern.MatchString(req.VisitorID) {
		rt.publisher.Publish(reveal.TopicVoteResponse(sessionID), VoteResponse{
			Success: false,
			Message: "Invalid visitor ID format",
		})
		return
	}

	outcome := rt.votes.CastVote(ctx, sessionID, reveal.VoteInput{
		Option:    req.Option,
		VisitorID: req.VisitorID,
		Name:      req.Name,
	})

	rt.publisher.Publish(reveal.TopicVoteResponse(sessionID), VoteResponse{
		Success: outcome.Accepted(),
		Message: outcome.Message(),
	})
}

func (rt *Router) handleChat(ctx context.Context, sessionID string, body json.RawMessage) {
	var req ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		slog.Info("Ignoring malformed chat payload", "session", sessionID, "error", err)
		return
	}
	if !visitorIDPattern.MatchString(req.VisitorID) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		return
	}

	rt.chat.SendMessage(ctx, sessionID, reveal.ChatInput{
		Name:      req.Name,
		Message:   req.Message,
		VisitorID: req.VisitorID,
	})
}

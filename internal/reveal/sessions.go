package reveal

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// Archiver is the durable store contract the runtime needs: one write when a
// session is created, one when it is finalized, and a lookup for sessions
// that have already aged out of the cache.
type Archiver interface {
	SaveSession(ctx context.Context, s Session) error
	SaveResults(ctx context.Context, s Session, votes VoteCount, chat []ChatMessage, endedAt time.Time) error
	GetReveal(ctx context.Context, sessionID string) (map[string]interface{}, error)
}

// Limits on the snapshot returned to reconnecting clients.
const (
	recentVotesLimit    = 50
	recentMessagesLimit = 50
)

// SessionState is the reconnection snapshot served over HTTP.
type SessionState struct {
	SessionID      string        `json:"sessionId"`
	Status         Status        `json:"status"`
	RevealTime     time.Time     `json:"revealTime"`
	Votes          VoteCount     `json:"votes"`
	RecentVotes    []VoteRecord  `json:"recentVotes"`
	RecentMessages []ChatMessage `json:"recentMessages"`
	HasVoted       bool          `json:"hasVoted"`
	RevealedGender *Option       `json:"revealedGender"`
}

// SessionService owns session creation and the read-side snapshots. Status
// transitions after creation belong to the lifecycle controller.
type SessionService struct {
	repo     *Repository
	registry *Registry
	archiver Archiver
	logger   *log.Logger
}

func NewSessionService(repo *Repository, registry *Registry, archiver Archiver) *SessionService {
	return &SessionService{
		repo:     repo,
		registry: registry,
		archiver: archiver,
		logger:   log.New(log.Writer(), "[SESSION] ", log.LstdFlags),
	}
}

// Create builds a new waiting session, persists it, registers it for
// periodic work and mirrors it to the archive. The archive write is
// best-effort.
func (s *SessionService) Create(ctx context.Context, ownerID string, gender Option, revealTime time.Time) (*Session, error) {
	session := Session{
		SessionID:  uuid.NewString(),
		OwnerID:    ownerID,
		Gender:     gender,
		Status:     StatusWaiting,
		RevealTime: revealTime.UTC(),
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.repo.SaveSession(ctx, session); err != nil {
		return nil, err
	}
	if err := s.repo.InitVotes(ctx, session.SessionID); err != nil {
		return nil, err
	}
	s.registry.Register(session.SessionID)

	if err := s.archiver.SaveSession(ctx, session); err != nil {
		s.logger.Printf("Archive write failed for new session %s: %v", session.SessionID, err)
	}

	s.logger.Printf("Created session: %s with reveal time: %s", session.SessionID, session.RevealTime)
	return &session, nil
}

// Get loads a session from the cache. Returns (nil, nil) when unknown.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*Session, error) {
	return s.repo.GetSession(ctx, sessionID)
}

// State assembles the reconnection snapshot. Returns (nil, nil) when the
// session is unknown to the cache. Ended sessions expose the outcome and
// always report hasVoted.
func (s *SessionService) State(ctx context.Context, sessionID, visitorID string) (*SessionState, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}

	votes, err := s.repo.GetVotes(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	recentVotes, err := s.repo.GetRecentVotes(ctx, sessionID, recentVotesLimit)
	if err != nil {
		return nil, err
	}
	messages, err := s.repo.GetRecentChat(ctx, sessionID, recentMessagesLimit)
	if err != nil {
		return nil, err
	}

	state := &SessionState{
		SessionID:      sessionID,
		Status:         session.Status,
		RevealTime:     session.RevealTime,
		Votes:          votes,
		RecentVotes:    recentVotes,
		RecentMessages: messages,
	}

	if session.Status == StatusEnded {
		state.HasVoted = true
		gender := session.Gender
		state.RevealedGender = &gender
		return state, nil
	}

	hasVoted, err := s.repo.HasVoted(ctx, sessionID, visitorID)
	if err != nil {
		return nil, err
	}
	state.HasVoted = hasVoted
	return state, nil
}

// Activate moves a waiting session to live.
func (s *SessionService) Activate(ctx context.Context, sessionID string) error {
	if err := s.repo.SetStatus(ctx, sessionID, StatusLive); err != nil {
		return err
	}
	s.logger.Printf("Session %s status updated to: %s", sessionID, StatusLive)
	return nil
}

// End marks a session ended, drops it from the active set and shortens every
// per-session key to the post-reveal retention window.
func (s *SessionService) End(ctx context.Context, sessionID string) error {
	if err := s.repo.SetStatus(ctx, sessionID, StatusEnded); err != nil {
		return err
	}
	if err := s.repo.RemoveActive(ctx, sessionID); err != nil {
		s.logger.Printf("Failed to remove %s from active set: %v", sessionID, err)
	}
	s.repo.ApplyPostRevealTTL(ctx, sessionID)
	s.logger.Printf("Session %s status updated to: %s", sessionID, StatusEnded)
	return nil
}

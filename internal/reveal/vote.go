package reveal

import (
	"context"
	"log"
	"strings"

	"github.com/revealtogether/server/internal/metrics"
)

// VoteOutcome is the structured result of a vote admission. Semantic
// rejections are outcomes, never errors; only the transport maps them to
// client-visible responses.
type VoteOutcome int

const (
	VoteOK VoteOutcome = iota
	VoteRateLimited
	VoteSessionNotFound
	VoteSessionEnded
	VoteAlreadyVoted
	VoteBadChoice
	VoteTryAgain // transient store failure; client may retry
)

// Accepted reports whether the vote was recorded.
func (o VoteOutcome) Accepted() bool { return o == VoteOK }

// Message returns the client-facing acknowledgment text. The strings are
// part of the wire contract with existing clients.
func (o VoteOutcome) Message() string {
	switch o {
	case VoteOK:
		return "Vote recorded"
	case VoteRateLimited:
		return "Rate limited, try again later"
	case VoteSessionNotFound:
		return "Session not found"
	case VoteSessionEnded:
		return "Session has ended"
	case VoteAlreadyVoted:
		return "Already voted"
	case VoteBadChoice:
		return "Invalid vote option"
	default:
		return "Temporary error, please try again"
	}
}

// String is the metrics label for the outcome.
func (o VoteOutcome) String() string {
	switch o {
	case VoteOK:
		return "ok"
	case VoteRateLimited:
		return "rate_limited"
	case VoteSessionNotFound:
		return "not_found"
	case VoteSessionEnded:
		return "ended"
	case VoteAlreadyVoted:
		return "already_voted"
	case VoteBadChoice:
		return "bad_choice"
	default:
		return "try_again"
	}
}

// VoteInput is a vote submission after boundary validation of the visitor id
// format. Option is the raw client value; the engine parses it.
type VoteInput struct {
	Option    string
	VisitorID string
	Name      string
}

// VoteEngine admits votes: rate limit, session-active check, dedup, counter
// increment, dirty flag and the individual vote event. The aggregate
// broadcast is deferred to the broadcast scheduler.
type VoteEngine struct {
	repo          *Repository
	limiter       *RateLimiter
	publisher     Publisher
	metrics       *metrics.Metrics
	maxNameLength int
	logger        *log.Logger
}

func NewVoteEngine(repo *Repository, limiter *RateLimiter, publisher Publisher, m *metrics.Metrics, maxNameLength int) *VoteEngine {
	if maxNameLength <= 0 {
		maxNameLength = 50
	}
	return &VoteEngine{
		repo:          repo,
		limiter:       limiter,
		publisher:     publisher,
		metrics:       m,
		maxNameLength: maxNameLength,
		logger:        log.New(log.Writer(), "[VOTE] ", log.LstdFlags),
	}
}

// CastVote runs the admission pipeline. Of N concurrent calls with the same
// visitor id exactly one returns VoteOK; the set-add inside RecordVote is
// the linearization point. A vote that lands while the session transitions
// to ended between the status check and the set-add is kept — accepted slack
// in exchange for avoiding a cross-key transaction.
func (e *VoteEngine) CastVote(ctx context.Context, sessionID string, in VoteInput) VoteOutcome {
	outcome := e.castVote(ctx, sessionID, in)
	e.metrics.IncVote(outcome.String())
	return outcome
}

func (e *VoteEngine) castVote(ctx context.Context, sessionID string, in VoteInput) VoteOutcome {
	admitted, err := e.limiter.Admit(ctx, in.VisitorID)
	if err != nil {
		e.metrics.IncCacheError("vote")
		e.logger.Printf("Rate limiter unavailable for visitor %s: %v", in.VisitorID, err)
		return VoteTryAgain
	}
	if !admitted {
		return VoteRateLimited
	}

	session, err := e.repo.GetSession(ctx, sessionID)
	if err != nil {
		e.metrics.IncCacheError("vote")
		e.logger.Printf("Session lookup failed for %s: %v", sessionID, err)
		return VoteTryAgain
	}
	if session == nil {
		e.logger.Printf("Vote attempted on non-existent session: %s", sessionID)
		return VoteSessionNotFound
	}
	if session.Status == StatusEnded {
		return VoteSessionEnded
	}

	option, err := ParseOption(in.Option)
	if err != nil {
		return VoteBadChoice
	}

	record := NewVoteRecord(in.VisitorID, e.sanitizeName(in.Name), option)
	recorded, err := e.repo.RecordVote(ctx, sessionID, record)
	if err != nil {
		e.metrics.IncCacheError("vote")
		e.logger.Printf("Vote write failed: session=%s visitor=%s: %v", sessionID, in.VisitorID, err)
		return VoteTryAgain
	}
	if !recorded {
		return VoteAlreadyVoted
	}

	// Individual vote event goes out synchronously; the coalesced count
	// frame follows within one broadcast interval.
	e.publisher.Publish(TopicVoteEvents(sessionID), record)

	e.logger.Printf("Vote recorded: session=%s, visitor=%s, option=%s, name=%s",
		sessionID, in.VisitorID, option, record.Name)
	return VoteOK
}

// sanitizeName trims and bounds the display name; blank names become
// "Guest" so vote events always carry something displayable.
func (e *VoteEngine) sanitizeName(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "Guest"
	}
	if runes := []rune(trimmed); len(runes) > e.maxNameLength {
		trimmed = string(runes[:e.maxNameLength])
	}
	return trimmed
}

// HasVoted reports whether the visitor already voted in the session.
func (e *VoteEngine) HasVoted(ctx context.Context, sessionID, visitorID string) (bool, error) {
	return e.repo.HasVoted(ctx, sessionID, visitorID)
}

// GetVotes reads the current tally.
func (e *VoteEngine) GetVotes(ctx context.Context, sessionID string) (VoteCount, error) {
	return e.repo.GetVotes(ctx, sessionID)
}

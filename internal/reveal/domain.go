// Package reveal implements the session runtime for time-boxed reveal
// sessions: the per-session state machine, vote aggregation and dedup, the
// dirty-flag batched broadcast scheduler, the reveal timer, the rate limiter
// and the in-memory active-session registry.
package reveal

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a session. Transitions are monotone:
// waiting → live → ended, driven only by the lifecycle controller.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusLive    Status = "live"
	StatusEnded   Status = "ended"
)

// ParseStatus converts a stored status value back into a Status.
func ParseStatus(v string) (Status, error) {
	switch Status(v) {
	case StatusWaiting, StatusLive, StatusEnded:
		return Status(v), nil
	}
	return "", fmt.Errorf("invalid session status: %q", v)
}

// Option is a vote choice. The hidden session outcome is also an Option.
type Option string

const (
	OptionBoy  Option = "boy"
	OptionGirl Option = "girl"
)

// ParseOption validates a client-supplied vote option.
func ParseOption(v string) (Option, error) {
	switch Option(v) {
	case OptionBoy, OptionGirl:
		return Option(v), nil
	}
	return "", fmt.Errorf("invalid vote option: %q", v)
}

// Session is a single reveal event. Gender is immutable after creation and
// must not be shown to clients until the session has ended.
type Session struct {
	SessionID  string
	OwnerID    string
	Gender     Option
	Status     Status
	RevealTime time.Time
	CreatedAt  time.Time
}

// VoteCount is the aggregate tally for a session. Both counters are
// monotone non-decreasing; their sum equals the voter-set size.
type VoteCount struct {
	Boy  int64 `json:"boy"`
	Girl int64 `json:"girl"`
}

// Total returns the number of distinct voters.
func (v VoteCount) Total() int64 { return v.Boy + v.Girl }

// VoteRecord is one accepted vote, kept for reconnection hydration and the
// per-vote event stream.
type VoteRecord struct {
	VisitorID string
	Name      string
	Option    Option
	Timestamp time.Time
}

// NewVoteRecord stamps a vote record with the server clock.
func NewVoteRecord(visitorID, name string, option Option) VoteRecord {
	return VoteRecord{
		VisitorID: visitorID,
		Name:      name,
		Option:    option,
		Timestamp: time.Now().UTC(),
	}
}

// ChatMessage is one accepted chat line. Name and message are already
// sanitized (trimmed, truncated, HTML-escaped) before construction.
type ChatMessage struct {
	Name      string
	Message   string
	VisitorID string
	Timestamp time.Time
}

// NewChatMessage stamps a chat message with the server clock.
func NewChatMessage(name, message, visitorID string) ChatMessage {
	return ChatMessage{
		Name:      name,
		Message:   message,
		VisitorID: visitorID,
		Timestamp: time.Now().UTC(),
	}
}

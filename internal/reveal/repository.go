package reveal

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/revealtogether/server/internal/cache"
)

// Cache key prefixes. The layout is shared with the existing deployment; do
// not change without a migration.
const (
	sessionKeyPrefix     = "session:"
	votesKeyPrefix       = "votes:"
	votersKeyPrefix      = "voters:"
	voteRecordsKeyPrefix = "voterecords:"
	chatKeyPrefix        = "chat:"
	dirtyKeyPrefix       = "dirty:"
	activeSessionsKey    = "active_sessions"
)

// Most recent vote records kept per session for reconnection hydration.
const maxVoteRecords = 100

// Repository is the concrete encoding of session, vote, chat, dirty-flag,
// voter-set and active-session records in the cache store.
type Repository struct {
	store           cache.Store
	sessionTTL      time.Duration
	postRevealTTL   time.Duration
	maxChatMessages int
}

// NewRepository builds a repository. maxChatMessages bounds the per-session
// chat list (most recent kept).
func NewRepository(store cache.Store, sessionTTL, postRevealTTL time.Duration, maxChatMessages int) *Repository {
	if maxChatMessages <= 0 {
		maxChatMessages = 500
	}
	return &Repository{
		store:           store,
		sessionTTL:      sessionTTL,
		postRevealTTL:   postRevealTTL,
		maxChatMessages: maxChatMessages,
	}
}

// SaveSession writes the session hash and adds the id to the active set.
func (r *Repository) SaveSession(ctx context.Context, s Session) error {
	key := sessionKeyPrefix + s.SessionID
	fields := map[string]string{
		"sessionId":  s.SessionID,
		"ownerId":    s.OwnerID,
		"gender":     string(s.Gender),
		"status":     string(s.Status),
		"revealTime": s.RevealTime.UTC().Format(time.RFC3339Nano),
		"createdAt":  s.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if err := r.store.HSetAll(ctx, key, fields); err != nil {
		return fmt.Errorf("save session %s: %w", s.SessionID, err)
	}
	if err := r.store.Expire(ctx, key, r.sessionTTL); err != nil {
		return fmt.Errorf("expire session %s: %w", s.SessionID, err)
	}
	if _, err := r.store.SAdd(ctx, activeSessionsKey, s.SessionID); err != nil {
		return fmt.Errorf("track active session %s: %w", s.SessionID, err)
	}
	return nil
}

// GetSession loads a session. Returns (nil, nil) when the hash is absent or
// expired.
func (r *Repository) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	fields, err := r.store.HGetAll(ctx, sessionKeyPrefix+sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	gender, err := ParseOption(fields["gender"])
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	status, err := ParseStatus(fields["status"])
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sessionID, err)
	}
	revealTime, err := time.Parse(time.RFC3339Nano, fields["revealTime"])
	if err != nil {
		return nil, fmt.Errorf("session %s revealTime: %w", sessionID, err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, fields["createdAt"])
	if err != nil {
		return nil, fmt.Errorf("session %s createdAt: %w", sessionID, err)
	}

	return &Session{
		SessionID:  fields["sessionId"],
		OwnerID:    fields["ownerId"],
		Gender:     gender,
		Status:     status,
		RevealTime: revealTime,
		CreatedAt:  createdAt,
	}, nil
}

// SetStatus overwrites the status field of the session hash.
func (r *Repository) SetStatus(ctx context.Context, sessionID string, status Status) error {
	if err := r.store.HSet(ctx, sessionKeyPrefix+sessionID, "status", string(status)); err != nil {
		return fmt.Errorf("set status %s=%s: %w", sessionID, status, err)
	}
	return nil
}

// SessionExists reports whether the session hash is present.
func (r *Repository) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	return r.store.Exists(ctx, sessionKeyPrefix+sessionID)
}

// InitVotes zeroes both counters for a new session.
func (r *Repository) InitVotes(ctx context.Context, sessionID string) error {
	key := votesKeyPrefix + sessionID
	if err := r.store.HSetAll(ctx, key, map[string]string{"boy": "0", "girl": "0"}); err != nil {
		return fmt.Errorf("init votes %s: %w", sessionID, err)
	}
	if err := r.store.Expire(ctx, key, r.sessionTTL); err != nil {
		return fmt.Errorf("expire votes %s: %w", sessionID, err)
	}
	return nil
}

// RecordVote admits a vote atomically. The SADD boolean is the dedup
// primitive: when the visitor is new, the chosen counter is incremented, the
// dirty flag is set, the vote record is appended (trimmed to the most recent
// 100) and TTLs are refreshed. Returns false when the visitor already voted.
func (r *Repository) RecordVote(ctx context.Context, sessionID string, record VoteRecord) (bool, error) {
	votersKey := votersKeyPrefix + sessionID

	added, err := r.store.SAdd(ctx, votersKey, record.VisitorID)
	if err != nil {
		return false, fmt.Errorf("add voter %s: %w", record.VisitorID, err)
	}
	if !added {
		return false, nil
	}

	if err := r.store.Expire(ctx, votersKey, r.sessionTTL); err != nil {
		slog.Warn("Failed to refresh voters TTL", "session", sessionID, "error", err)
	}

	if _, err := r.store.HIncrBy(ctx, votesKeyPrefix+sessionID, string(record.Option), 1); err != nil {
		return false, fmt.Errorf("increment %s vote: %w", record.Option, err)
	}

	if err := r.MarkDirty(ctx, sessionID); err != nil {
		slog.Warn("Failed to mark session dirty", "session", sessionID, "error", err)
	}

	r.appendVoteRecord(ctx, sessionID, record)
	return true, nil
}

func (r *Repository) appendVoteRecord(ctx context.Context, sessionID string, record VoteRecord) {
	raw, err := encodeVoteRecord(record)
	if err != nil {
		slog.Error("Failed to serialize vote record", "session", sessionID, "error", err)
		return
	}
	key := voteRecordsKeyPrefix + sessionID
	if err := r.store.LPush(ctx, key, raw); err != nil {
		slog.Warn("Failed to store vote record", "session", sessionID, "error", err)
		return
	}
	if err := r.store.LTrim(ctx, key, 0, maxVoteRecords-1); err != nil {
		slog.Warn("Failed to trim vote records", "session", sessionID, "error", err)
	}
	if err := r.store.Expire(ctx, key, r.sessionTTL); err != nil {
		slog.Warn("Failed to refresh vote records TTL", "session", sessionID, "error", err)
	}
}

// HasVoted reports whether the visitor is in the session's voter set.
func (r *Repository) HasVoted(ctx context.Context, sessionID, visitorID string) (bool, error) {
	return r.store.SIsMember(ctx, votersKeyPrefix+sessionID, visitorID)
}

// GetVotes reads the aggregate tally. Missing fields read as zero.
func (r *Repository) GetVotes(ctx context.Context, sessionID string) (VoteCount, error) {
	fields, err := r.store.HGetAll(ctx, votesKeyPrefix+sessionID)
	if err != nil {
		return VoteCount{}, fmt.Errorf("get votes %s: %w", sessionID, err)
	}
	return VoteCount{
		Boy:  parseCount(fields["boy"]),
		Girl: parseCount(fields["girl"]),
	}, nil
}

func parseCount(v string) int64 {
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// AppendChat left-pushes a chat message and trims the list to the retention
// bound.
func (r *Repository) AppendChat(ctx context.Context, sessionID string, msg ChatMessage) error {
	raw, err := encodeChatMessage(msg)
	if err != nil {
		return err
	}
	key := chatKeyPrefix + sessionID
	if err := r.store.LPush(ctx, key, raw); err != nil {
		return fmt.Errorf("store chat message: %w", err)
	}
	if err := r.store.LTrim(ctx, key, 0, int64(r.maxChatMessages)-1); err != nil {
		slog.Warn("Failed to trim chat list", "session", sessionID, "error", err)
	}
	if err := r.store.Expire(ctx, key, r.sessionTTL); err != nil {
		slog.Warn("Failed to refresh chat TTL", "session", sessionID, "error", err)
	}
	return nil
}

// GetRecentChat returns up to n messages, oldest first. Records that fail to
// decode are skipped.
func (r *Repository) GetRecentChat(ctx context.Context, sessionID string, n int) ([]ChatMessage, error) {
	raws, err := r.store.LRange(ctx, chatKeyPrefix+sessionID, 0, int64(n)-1)
	if err != nil {
		return nil, fmt.Errorf("get chat %s: %w", sessionID, err)
	}
	messages := make([]ChatMessage, 0, len(raws))
	for _, raw := range raws {
		msg, err := decodeChatMessage(raw)
		if err != nil {
			slog.Error("Failed to deserialize chat message", "session", sessionID, "error", err)
			continue
		}
		messages = append(messages, msg)
	}
	reverse(messages)
	return messages, nil
}

// GetAllChat returns the full retained chat history, oldest first.
func (r *Repository) GetAllChat(ctx context.Context, sessionID string) ([]ChatMessage, error) {
	return r.GetRecentChat(ctx, sessionID, r.maxChatMessages)
}

// GetRecentVotes returns up to n vote records, oldest first.
func (r *Repository) GetRecentVotes(ctx context.Context, sessionID string, n int) ([]VoteRecord, error) {
	raws, err := r.store.LRange(ctx, voteRecordsKeyPrefix+sessionID, 0, int64(n)-1)
	if err != nil {
		return nil, fmt.Errorf("get vote records %s: %w", sessionID, err)
	}
	records := make([]VoteRecord, 0, len(raws))
	for _, raw := range raws {
		rec, err := decodeVoteRecord(raw)
		if err != nil {
			slog.Error("Failed to deserialize vote record", "session", sessionID, "error", err)
			continue
		}
		records = append(records, rec)
	}
	reverse(records)
	return records, nil
}

// Lists are stored newest-at-head; readers want chronological order.
func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// MarkDirty flags the session for the next broadcast tick.
func (r *Repository) MarkDirty(ctx context.Context, sessionID string) error {
	return r.store.Set(ctx, dirtyKeyPrefix+sessionID, "1", r.sessionTTL)
}

// TestAndClearDirty atomically consumes the dirty flag.
func (r *Repository) TestAndClearDirty(ctx context.Context, sessionID string) (bool, error) {
	val, err := r.store.GetDel(ctx, dirtyKeyPrefix+sessionID)
	if err != nil {
		return false, fmt.Errorf("clear dirty %s: %w", sessionID, err)
	}
	return val == "1", nil
}

// ActiveSessions reads the cache-side active session set.
func (r *Repository) ActiveSessions(ctx context.Context) ([]string, error) {
	return r.store.SMembers(ctx, activeSessionsKey)
}

// RemoveActive drops the id from the cache-side active session set.
func (r *Repository) RemoveActive(ctx context.Context, sessionID string) error {
	return r.store.SRem(ctx, activeSessionsKey, sessionID)
}

// ApplyPostRevealTTL re-expires every per-session key to the short
// post-reveal retention window.
func (r *Repository) ApplyPostRevealTTL(ctx context.Context, sessionID string) {
	for _, prefix := range []string{
		sessionKeyPrefix, votesKeyPrefix, votersKeyPrefix, voteRecordsKeyPrefix, chatKeyPrefix,
	} {
		if err := r.store.Expire(ctx, prefix+sessionID, r.postRevealTTL); err != nil {
			slog.Warn("Failed to apply post-reveal TTL", "key", prefix+sessionID, "error", err)
		}
	}
}

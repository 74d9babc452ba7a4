// Package archive persists final session documents in Supabase. The runtime
// writes once at creation, once at reveal, and reads back sessions that have
// already aged out of the cache.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	supabase "github.com/supabase-community/supabase-go"

	"github.com/revealtogether/server/internal/reveal"
)

const revealsTable = "reveals"

// revealRow is the Supabase row shape for an archived session.
type revealRow struct {
	SessionID   string                   `json:"session_id"`
	OwnerID     string                   `json:"owner_id"`
	Gender      string                   `json:"gender"`
	Status      string                   `json:"status"`
	RevealTime  string                   `json:"reveal_time"`
	CreatedAt   string                   `json:"created_at"`
	EndedAt     string                   `json:"ended_at,omitempty"`
	Results     map[string]interface{}   `json:"results,omitempty"`
	ChatHistory []map[string]interface{} `json:"chat_history,omitempty"`
}

// SupabaseSink implements reveal.Archiver against the reveals table.
type SupabaseSink struct {
	client *supabase.Client
}

// NewSupabaseSink reads SUPABASE_URL and SUPABASE_SERVICE_KEY from the
// environment. When either is missing it returns (nil, nil); callers fall
// back to the no-op sink so the server runs without an archive tier.
func NewSupabaseSink() (*SupabaseSink, error) {
	url := os.Getenv("SUPABASE_URL")
	key := os.Getenv("SUPABASE_SERVICE_KEY")
	if url == "" || key == "" {
		return nil, nil
	}

	client, err := supabase.NewClient(url, key, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return &SupabaseSink{client: client}, nil
}

// SaveSession mirrors a newly created session into the archive.
func (s *SupabaseSink) SaveSession(ctx context.Context, session reveal.Session) error {
	row := revealRow{
		SessionID:  session.SessionID,
		OwnerID:    session.OwnerID,
		Gender:     string(session.Gender),
		Status:     string(session.Status),
		RevealTime: session.RevealTime.UTC().Format(time.RFC3339),
		CreatedAt:  session.CreatedAt.UTC().Format(time.RFC3339),
	}
	var result []revealRow
	_, err := s.client.From(revealsTable).
		Upsert(row, "session_id", "", "").
		ExecuteTo(&result)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", session.SessionID, err)
	}
	slog.Info("Session saved to archive", "session", session.SessionID)
	return nil
}

// SaveResults writes the final document: session attributes, counts, outcome
// and chat history.
func (s *SupabaseSink) SaveResults(ctx context.Context, session reveal.Session, votes reveal.VoteCount, chat []reveal.ChatMessage, endedAt time.Time) error {
	chatData := make([]map[string]interface{}, 0, len(chat))
	for _, msg := range chat {
		chatData = append(chatData, map[string]interface{}{
			"name":      msg.Name,
			"message":   msg.Message,
			"visitorId": msg.VisitorID,
			"timestamp": msg.Timestamp.UTC().Format(time.RFC3339),
		})
	}

	row := revealRow{
		SessionID:  session.SessionID,
		OwnerID:    session.OwnerID,
		Gender:     string(session.Gender),
		Status:     string(reveal.StatusEnded),
		RevealTime: session.RevealTime.UTC().Format(time.RFC3339),
		CreatedAt:  session.CreatedAt.UTC().Format(time.RFC3339),
		EndedAt:    endedAt.UTC().Format(time.RFC3339),
		Results: map[string]interface{}{
			"boyVotes":   votes.Boy,
			"girlVotes":  votes.Girl,
			"totalVotes": votes.Total(),
		},
		ChatHistory: chatData,
	}
	var result []revealRow
	_, err := s.client.From(revealsTable).
		Upsert(row, "session_id", "", "").
		ExecuteTo(&result)
	if err != nil {
		return fmt.Errorf("upsert results %s: %w", session.SessionID, err)
	}
	slog.Info("Reveal results saved to archive", "session", session.SessionID)
	return nil
}

// GetReveal fetches the archived document, or (nil, nil) when absent.
func (s *SupabaseSink) GetReveal(ctx context.Context, sessionID string) (map[string]interface{}, error) {
	var rows []revealRow
	_, err := s.client.From(revealsTable).
		Select("*", "", false).
		Eq("session_id", sessionID).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("fetch reveal %s: %w", sessionID, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	row := rows[0]
	doc := map[string]interface{}{
		"sessionId":  row.SessionID,
		"ownerId":    row.OwnerID,
		"gender":     row.Gender,
		"status":     row.Status,
		"revealTime": row.RevealTime,
		"createdAt":  row.CreatedAt,
	}
	if row.EndedAt != "" {
		doc["endedAt"] = row.EndedAt
	}
	if row.Results != nil {
		doc["results"] = row.Results
	}
	if row.ChatHistory != nil {
		doc["chatHistory"] = row.ChatHistory
	}
	return doc, nil
}

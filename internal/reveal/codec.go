package reveal

import (
	"encoding/json"
	"fmt"
	"time"
)

// Explicit wire codecs for cache-stored records. The JSON shapes are frozen
// for interop with the existing deployment; keep field names stable.

type voteRecordJSON struct {
	VisitorID string `json:"visitorId"`
	Name      string `json:"name"`
	Option    string `json:"option"`
	Timestamp string `json:"timestamp"`
}

type chatMessageJSON struct {
	Name      string `json:"name"`
	Message   string `json:"message"`
	VisitorID string `json:"visitorId"`
	Timestamp string `json:"timestamp"`
}

func encodeVoteRecord(r VoteRecord) (string, error) {
	data, err := json.Marshal(voteRecordJSON{
		VisitorID: r.VisitorID,
		Name:      r.Name,
		Option:    string(r.Option),
		Timestamp: r.Timestamp.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", fmt.Errorf("marshal vote record: %w", err)
	}
	return string(data), nil
}

func decodeVoteRecord(raw string) (VoteRecord, error) {
	var j voteRecordJSON
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		return VoteRecord{}, fmt.Errorf("unmarshal vote record: %w", err)
	}
	option, err := ParseOption(j.Option)
	if err != nil {
		return VoteRecord{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, j.Timestamp)
	if err != nil {
		return VoteRecord{}, fmt.Errorf("vote record timestamp: %w", err)
	}
	return VoteRecord{
		VisitorID: j.VisitorID,
		Name:      j.Name,
		Option:    option,
		Timestamp: ts,
	}, nil
}

func encodeChatMessage(m ChatMessage) (string, error) {
	data, err := json.Marshal(chatMessageJSON{
		Name:      m.Name,
		Message:   m.Message,
		VisitorID: m.VisitorID,
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat message: %w", err)
	}
	return string(data), nil
}

func decodeChatMessage(raw string) (ChatMessage, error) {
	var j chatMessageJSON
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		return ChatMessage{}, fmt.Errorf("unmarshal chat message: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, j.Timestamp)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("chat message timestamp: %w", err)
	}
	return ChatMessage{
		Name:      j.Name,
		Message:   j.Message,
		VisitorID: j.VisitorID,
		Timestamp: ts,
	}, nil
}

// MarshalJSON emits the frozen wire shape for pub/sub payloads and HTTP
// responses.
func (r VoteRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(voteRecordJSON{
		VisitorID: r.VisitorID,
		Name:      r.Name,
		Option:    string(r.Option),
		Timestamp: r.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

func (m ChatMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(chatMessageJSON{
		Name:      m.Name,
		Message:   m.Message,
		VisitorID: m.VisitorID,
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

package reveal

// Publisher is the abstract sink for realtime frames. The transport layer
// implements it; the runtime never tracks subscribers. Publish is
// best-effort and must not block the caller: duplicates are tolerated by
// clients and ordering is guaranteed per topic only.
type Publisher interface {
	Publish(topic string, payload interface{})
}

// Topic builders. Each session owns four topics; ordering holds within a
// topic, never across topics.

func TopicVotes(sessionID string) string        { return "votes/" + sessionID }
func TopicVoteEvents(sessionID string) string   { return "vote-events/" + sessionID }
func TopicChat(sessionID string) string         { return "chat/" + sessionID }
func TopicVoteResponse(sessionID string) string { return "vote-response/" + sessionID }

// RevealEvent is the final frame published on the votes topic when a session
// ends. Type is always "reveal" so clients can tell it apart from aggregate
// count frames on the same topic.
type RevealEvent struct {
	Type       string    `json:"type"`
	Gender     Option    `json:"gender"`
	FinalVotes VoteCount `json:"finalVotes"`
}

// NewRevealEvent builds the reveal frame for a finished session.
func NewRevealEvent(gender Option, votes VoteCount) RevealEvent {
	return RevealEvent{Type: "reveal", Gender: gender, FinalVotes: votes}
}

package reveal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type voteFixture struct {
	store     *fakeStore
	repo      *Repository
	publisher *fakePublisher
	engine    *VoteEngine
}

func newVoteFixture(t *testing.T, status Status) *voteFixture {
	t.Helper()
	store := newFakeStore()
	repo := testRepository(store)
	publisher := newFakePublisher()
	engine := NewVoteEngine(repo, NewRateLimiter(store), publisher, nil, 50)

	require.NoError(t, repo.SaveSession(context.Background(), testSession("s1", status)))
	require.NoError(t, repo.InitVotes(context.Background(), "s1"))

	return &voteFixture{store: store, repo: repo, publisher: publisher, engine: engine}
}

// clearRateLimit stands in for the admission window elapsing.
func (f *voteFixture) clearRateLimit(visitorID string) {
	f.store.expireNow(rateLimitKeyPrefix + visitorID)
}

func TestCastVoteRecorded(t *testing.T) {
	f := newVoteFixture(t, StatusLive)
	ctx := context.Background()

	outcome := f.engine.CastVote(ctx, "s1", VoteInput{Option: "boy", VisitorID: "v1", Name: "Ana"})
	assert.Equal(t, VoteOK, outcome)
	assert.True(t, outcome.Accepted())
	assert.Equal(t, "Vote recorded", outcome.Message())

	votes, err := f.engine.GetVotes(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, VoteCount{Boy: 1, Girl: 0}, votes)

	events := f.publisher.published(TopicVoteEvents("s1"))
	require.Len(t, events, 1)
	record, ok := events[0].(VoteRecord)
	require.True(t, ok)
	assert.Equal(t, "v1", record.VisitorID)
	assert.Equal(t, OptionBoy, record.Option)

	dirty, err := f.repo.TestAndClearDirty(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, dirty)
}

func TestCastVoteDuplicateVisitor(t *testing.T) {
	f := newVoteFixture(t, StatusLive)
	ctx := context.Background()

	outcome := f.engine.CastVote(ctx, "s1", VoteInput{Option: "boy", VisitorID: "v1", Name: "Ana"})
	require.Equal(t, VoteOK, outcome)

	f.clearRateLimit("v1")
	outcome = f.engine.CastVote(ctx, "s1", VoteInput{Option: "girl", VisitorID: "v1", Name: "Ana"})
	assert.Equal(t, VoteAlreadyVoted, outcome)
	assert.Equal(t, "Already voted", outcome.Message())

	votes, err := f.engine.GetVotes(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, VoteCount{Boy: 1, Girl: 0}, votes)
	assert.Len(t, f.publisher.published(TopicVoteEvents("s1")), 1)
}

func TestCastVoteRateLimited(t *testing.T) {
	f := newVoteFixture(t, StatusLive)
	ctx := context.Background()

	first := f.engine.CastVote(ctx, "s1", VoteInput{Option: "boy", VisitorID: "v1", Name: "Ana"})
	require.Equal(t, VoteOK, first)

	// Immediate retry inside the window is rejected before any session read.
	second := f.engine.CastVote(ctx, "s1", VoteInput{Option: "boy", VisitorID: "v1", Name: "Ana"})
	assert.Equal(t, VoteRateLimited, second)
	assert.Equal(t, "Rate limited, try again later", second.Message())
}

func TestCastVoteEndedSession(t *testing.T) {
	f := newVoteFixture(t, StatusEnded)

	outcome := f.engine.CastVote(context.Background(), "s1", VoteInput{Option: "boy", VisitorID: "v1"})
	assert.Equal(t, VoteSessionEnded, outcome)
	assert.Equal(t, "Session has ended", outcome.Message())
	assert.Empty(t, f.publisher.published(TopicVoteEvents("s1")))
}

func TestCastVoteUnknownSession(t *testing.T) {
	f := newVoteFixture(t, StatusLive)

	outcome := f.engine.CastVote(context.Background(), "ghost", VoteInput{Option: "boy", VisitorID: "v1"})
	assert.Equal(t, VoteSessionNotFound, outcome)
	assert.Equal(t, "Session not found", outcome.Message())
}

func TestCastVoteBadOption(t *testing.T) {
	f := newVoteFixture(t, StatusLive)

	outcome := f.engine.CastVote(context.Background(), "s1", VoteInput{Option: "maybe", VisitorID: "v1"})
	assert.Equal(t, VoteBadChoice, outcome)

	// A bad option consumes the rate limit slot but records nothing.
	voted, err := f.engine.HasVoted(context.Background(), "s1", "v1")
	require.NoError(t, err)
	assert.False(t, voted)
}

func TestCastVoteStoreFailure(t *testing.T) {
	f := newVoteFixture(t, StatusLive)
	f.store.failWith(errors.New("connection refused"))

	outcome := f.engine.CastVote(context.Background(), "s1", VoteInput{Option: "boy", VisitorID: "v1"})
	assert.Equal(t, VoteTryAgain, outcome)
	assert.Equal(t, "Temporary error, please try again", outcome.Message())
}

func TestCastVoteBlankNameDefaultsToGuest(t *testing.T) {
	f := newVoteFixture(t, StatusLive)

	outcome := f.engine.CastVote(context.Background(), "s1", VoteInput{Option: "girl", VisitorID: "v1", Name: "   "})
	require.Equal(t, VoteOK, outcome)

	events := f.publisher.published(TopicVoteEvents("s1"))
	require.Len(t, events, 1)
	assert.Equal(t, "Guest", events[0].(VoteRecord).Name)
}

func TestCastVoteLongNameTruncated(t *testing.T) {
	store := newFakeStore()
	repo := testRepository(store)
	publisher := newFakePublisher()
	engine := NewVoteEngine(repo, NewRateLimiter(store), publisher, nil, 5)
	ctx := context.Background()

	require.NoError(t, repo.SaveSession(ctx, testSession("s1", StatusLive)))
	require.NoError(t, repo.InitVotes(ctx, "s1"))

	outcome := engine.CastVote(ctx, "s1", VoteInput{Option: "boy", VisitorID: "v1", Name: "Alexandra"})
	require.Equal(t, VoteOK, outcome)

	events := publisher.published(TopicVoteEvents("s1"))
	require.Len(t, events, 1)
	assert.Equal(t, "Alexa", events[0].(VoteRecord).Name)
}

func TestCastVoteWaitingSessionAccepts(t *testing.T) {
	f := newVoteFixture(t, StatusWaiting)

	outcome := f.engine.CastVote(context.Background(), "s1", VoteInput{Option: "boy", VisitorID: "v1", Name: "Ana"})
	assert.Equal(t, VoteOK, outcome)
}

func TestVoteRecordsHydration(t *testing.T) {
	f := newVoteFixture(t, StatusLive)
	ctx := context.Background()

	for i, v := range []string{"v1", "v2"} {
		option := "boy"
		if i%2 == 1 {
			option = "girl"
		}
		outcome := f.engine.CastVote(ctx, "s1", VoteInput{Option: option, VisitorID: v, Name: v})
		require.Equal(t, VoteOK, outcome)
	}

	records, err := f.repo.GetRecentVotes(ctx, "s1", 50)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "v1", records[0].VisitorID)
	assert.WithinDuration(t, time.Now(), records[0].Timestamp, 5*time.Second)
}

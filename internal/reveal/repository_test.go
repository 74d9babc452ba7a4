package reveal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRepository(store *fakeStore) *Repository {
	return NewRepository(store, 24*time.Hour, time.Hour, 500)
}

func testSession(id string, status Status) Session {
	return Session{
		SessionID:  id,
		OwnerID:    "owner-1",
		Gender:     OptionBoy,
		Status:     status,
		RevealTime: time.Now().Add(time.Hour).UTC(),
		CreatedAt:  time.Now().UTC(),
	}
}

func TestSaveAndGetSession(t *testing.T) {
	store := newFakeStore()
	repo := testRepository(store)
	ctx := context.Background()

	saved := testSession("s1", StatusWaiting)
	require.NoError(t, repo.SaveSession(ctx, saved))

	got, err := repo.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, "owner-1", got.OwnerID)
	assert.Equal(t, OptionBoy, got.Gender)
	assert.Equal(t, StatusWaiting, got.Status)
	assert.True(t, saved.RevealTime.Equal(got.RevealTime))

	active, err := repo.ActiveSessions(ctx)
	require.NoError(t, err)
	assert.Contains(t, active, "s1")
}

func TestGetSessionMissing(t *testing.T) {
	repo := testRepository(newFakeStore())

	got, err := repo.GetSession(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSetStatus(t *testing.T) {
	store := newFakeStore()
	repo := testRepository(store)
	ctx := context.Background()

	require.NoError(t, repo.SaveSession(ctx, testSession("s1", StatusWaiting)))
	require.NoError(t, repo.SetStatus(ctx, "s1", StatusLive))

	got, err := repo.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StatusLive, got.Status)
}

func TestRecordVoteDedup(t *testing.T) {
	store := newFakeStore()
	repo := testRepository(store)
	ctx := context.Background()

	require.NoError(t, repo.InitVotes(ctx, "s1"))

	first, err := repo.RecordVote(ctx, "s1", NewVoteRecord("v1", "Ana", OptionBoy))
	require.NoError(t, err)
	assert.True(t, first)

	// Same visitor again, even with the other option: no second increment.
	second, err := repo.RecordVote(ctx, "s1", NewVoteRecord("v1", "Ana", OptionGirl))
	require.NoError(t, err)
	assert.False(t, second)

	votes, err := repo.GetVotes(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, VoteCount{Boy: 1, Girl: 0}, votes)

	voted, err := repo.HasVoted(ctx, "s1", "v1")
	require.NoError(t, err)
	assert.True(t, voted)
}

func TestRecordVoteCountMatchesVoterSet(t *testing.T) {
	store := newFakeStore()
	repo := testRepository(store)
	ctx := context.Background()

	require.NoError(t, repo.InitVotes(ctx, "s1"))
	_, err := repo.RecordVote(ctx, "s1", NewVoteRecord("v1", "Ana", OptionBoy))
	require.NoError(t, err)
	_, err = repo.RecordVote(ctx, "s1", NewVoteRecord("v2", "Ben", OptionGirl))
	require.NoError(t, err)
	_, err = repo.RecordVote(ctx, "s1", NewVoteRecord("v2", "Ben", OptionGirl))
	require.NoError(t, err)

	votes, err := repo.GetVotes(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), votes.Total())
}

func TestRecordVoteSetsDirtyFlag(t *testing.T) {
	store := newFakeStore()
	repo := testRepository(store)
	ctx := context.Background()

	require.NoError(t, repo.InitVotes(ctx, "s1"))
	_, err := repo.RecordVote(ctx, "s1", NewVoteRecord("v1", "Ana", OptionBoy))
	require.NoError(t, err)

	dirty, err := repo.TestAndClearDirty(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, dirty)

	// Test-and-clear consumes the flag.
	dirty, err = repo.TestAndClearDirty(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, dirty)
}

func TestGetRecentVotesOldestFirst(t *testing.T) {
	store := newFakeStore()
	repo := testRepository(store)
	ctx := context.Background()

	require.NoError(t, repo.InitVotes(ctx, "s1"))
	for _, v := range []string{"v1", "v2", "v3"} {
		_, err := repo.RecordVote(ctx, "s1", NewVoteRecord(v, v, OptionBoy))
		require.NoError(t, err)
	}

	records, err := repo.GetRecentVotes(ctx, "s1", 50)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "v1", records[0].VisitorID)
	assert.Equal(t, "v3", records[2].VisitorID)
}

func TestChatTrimAndOrder(t *testing.T) {
	store := newFakeStore()
	repo := NewRepository(store, 24*time.Hour, time.Hour, 3)
	ctx := context.Background()

	for _, m := range []string{"one", "two", "three", "four", "five"} {
		require.NoError(t, repo.AppendChat(ctx, "s1", NewChatMessage("Ana", m, "v1")))
	}

	messages, err := repo.GetAllChat(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, messages, 3)
	// Newest three retained, returned oldest-first.
	assert.Equal(t, "three", messages[0].Message)
	assert.Equal(t, "five", messages[2].Message)
}

func TestCorruptListEntriesSkipped(t *testing.T) {
	store := newFakeStore()
	repo := testRepository(store)
	ctx := context.Background()

	require.NoError(t, repo.AppendChat(ctx, "s1", NewChatMessage("Ana", "hello", "v1")))
	require.NoError(t, store.LPush(ctx, chatKeyPrefix+"s1", "{not json"))

	messages, err := repo.GetRecentChat(ctx, "s1", 50)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "hello", messages[0].Message)
}

func TestRemoveActive(t *testing.T) {
	store := newFakeStore()
	repo := testRepository(store)
	ctx := context.Background()

	require.NoError(t, repo.SaveSession(ctx, testSession("s1", StatusWaiting)))
	require.NoError(t, repo.RemoveActive(ctx, "s1"))

	active, err := repo.ActiveSessions(ctx)
	require.NoError(t, err)
	assert.NotContains(t, active, "s1")
}

func TestGetVotesMissingSession(t *testing.T) {
	repo := testRepository(newFakeStore())

	votes, err := repo.GetVotes(context.Background(), "nope")
	require.NoError(t, err)
	assert.Equal(t, VoteCount{}, votes)
}

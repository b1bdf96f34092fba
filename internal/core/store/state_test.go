package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wordpadbot/wordpadbot/internal/config"
	"github.com/wordpadbot/wordpadbot/internal/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(context.Background(), config.StoreConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func fixClock(t *testing.T, now time.Time) {
	t.Helper()
	previous := Clock
	Clock = func() time.Time { return now }
	t.Cleanup(func() { Clock = previous })
}

func TestEventLogRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	log, err := store.LoadEventLog(ctx)
	require.NoError(t, err)
	require.Empty(t, log)

	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	want := core.EventLog{
		{CreatedAt: t0, Participants: core.Participants{"alice.test"}},
		{CreatedAt: t0.Add(time.Minute), Participants: core.Participants{"alice.test", "bob.test"}},
	}
	require.NoError(t, store.SaveEventLog(ctx, want))

	got, err := store.LoadEventLog(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.True(t, got[0].CreatedAt.Equal(t0))
	require.Equal(t, want[1].Participants, got[1].Participants)

	// overwrite, not append
	require.NoError(t, store.SaveEventLog(ctx, want[1:]))
	state, err := store.LoadBotState(ctx)
	require.NoError(t, err)
	require.Len(t, state.RecentReplies, 1)
}

func TestSaveEventLogNil(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.SaveEventLog(ctx, nil))
	log, err := store.LoadEventLog(ctx)
	require.NoError(t, err)
	require.NotNil(t, log)
	require.Empty(t, log)
}

func TestCursors(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	value, err := store.GetCursor(ctx, CursorNotificationsSeen)
	require.NoError(t, err)
	require.Empty(t, value)

	require.NoError(t, store.SetCursor(ctx, CursorNotificationsSeen, "2025-03-01T12:00:00Z"))
	require.NoError(t, store.SetCursor(ctx, CursorNotificationsSeen, "2025-03-01T12:05:00Z"))

	value, err = store.GetCursor(ctx, CursorNotificationsSeen)
	require.NoError(t, err)
	require.Equal(t, "2025-03-01T12:05:00Z", value)

	_, err = store.GetCursor(ctx, " ")
	require.Error(t, err)
}

func TestNilStore(t *testing.T) {
	var store *Store
	_, err := store.LoadEventLog(context.Background())
	require.ErrorIs(t, err, ErrNotInitialized)
	require.ErrorIs(t, store.Migrate(context.Background()), ErrNotInitialized)
	require.NoError(t, store.Close())
	require.Empty(t, store.Driver())
}

func TestReplyLogAdmin(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	fixClock(t, now)

	require.NoError(t, store.SaveEventLog(ctx, core.EventLog{
		{CreatedAt: now.Add(-30 * time.Minute), Participants: core.Participants{"alice.test"}},
		{CreatedAt: now.Add(-5 * time.Minute), Participants: core.Participants{"alice.test", "bob.test"}},
		{CreatedAt: now.Add(-1 * time.Minute), Participants: core.Participants{"carol.test"}},
	}))

	t.Run("QueryRequiresSelector", func(t *testing.T) {
		_, err := store.ListReplyLog(ctx, ReplyLogQuery{})
		require.Error(t, err)
	})

	t.Run("ListAll", func(t *testing.T) {
		events, err := store.ListReplyLog(ctx, ReplyLogQuery{All: true})
		require.NoError(t, err)
		require.Len(t, events, 3)
	})

	t.Run("ListActiveOnly", func(t *testing.T) {
		count, err := store.CountReplyLog(ctx, ReplyLogQuery{All: true, Window: 20 * time.Minute})
		require.NoError(t, err)
		require.Equal(t, 2, count)
	})

	t.Run("ListParticipant", func(t *testing.T) {
		events, err := store.ListReplyLog(ctx, ReplyLogQuery{Participant: "alice.test"})
		require.NoError(t, err)
		require.Len(t, events, 2)
	})

	t.Run("ResetParticipant", func(t *testing.T) {
		removed, err := store.ResetReplyLog(ctx, ReplyLogQuery{Participant: "bob.test", Window: time.Second})
		require.NoError(t, err)
		require.Equal(t, 1, removed)

		events, err := store.ListReplyLog(ctx, ReplyLogQuery{All: true})
		require.NoError(t, err)
		require.Len(t, events, 2)
	})

	t.Run("ResetNothing", func(t *testing.T) {
		removed, err := store.ResetReplyLog(ctx, ReplyLogQuery{Participant: "nobody.test"})
		require.NoError(t, err)
		require.Zero(t, removed)
	})

	t.Run("ResetAll", func(t *testing.T) {
		removed, err := store.ResetReplyLog(ctx, ReplyLogQuery{All: true})
		require.NoError(t, err)
		require.Equal(t, 2, removed)

		log, err := store.LoadEventLog(ctx)
		require.NoError(t, err)
		require.Empty(t, log)
	})
}

func TestCheckHealth(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.CheckHealth(context.Background()))

	var missing *Store
	require.ErrorIs(t, missing.CheckHealth(context.Background()), ErrNotInitialized)
}

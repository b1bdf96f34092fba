package cmd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wordpadbot/wordpadbot/internal/config"
	"github.com/wordpadbot/wordpadbot/internal/core"
	"github.com/wordpadbot/wordpadbot/internal/core/store"
)

type fakeState struct {
	log     core.EventLog
	cursors map[string]string
	err     error
}

func (f fakeState) LoadEventLog(context.Context) (core.EventLog, error) {
	return f.log, f.err
}

func (f fakeState) GetCursor(_ context.Context, name string) (string, error) {
	return f.cursors[name], nil
}

type fakePolls map[string]time.Time

func (f fakePolls) LastRuns() map[string]time.Time { return f }

func TestStatusSource(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	state := fakeState{
		log: core.EventLog{
			{CreatedAt: now.Add(-25 * time.Minute), Participants: core.Participants{"alice.test"}},
			{CreatedAt: now.Add(-5 * time.Minute), Participants: core.Participants{"alice.test", "bob.test"}},
		},
		cursors: map[string]string{store.CursorNotificationsSeen: "2025-03-01T11:59:00Z"},
	}
	polls := fakePolls{"mentions": now.Add(-10 * time.Second)}
	bot := config.BotConfig{Window: 20 * time.Minute, MaxRepliesPerWindow: 3, SilentMode: true}

	source := newStatusSource(state, polls, "wordpad.test", bot)
	source.clock = func() time.Time { return now }

	status, err := source.Status(context.Background())
	require.NoError(t, err)
	require.Equal(t, "wordpad.test", status.Handle)
	require.True(t, status.SilentMode)
	require.Equal(t, "20m0s", status.Window)
	require.Equal(t, 1, status.RecentReplies)
	require.Equal(t, map[string]int{"alice.test": 1, "bob.test": 1}, status.Participants)
	require.Equal(t, map[string]string{store.CursorNotificationsSeen: "2025-03-01T11:59:00Z"}, status.Cursors)
	require.Equal(t, now.Add(-10*time.Second), status.LastPolls["mentions"])
}

func TestStatusSourceStoreError(t *testing.T) {
	source := newStatusSource(fakeState{err: errors.New("database is locked")}, nil, "wordpad.test", config.BotConfig{Window: time.Minute})
	_, err := source.Status(context.Background())
	require.Error(t, err)
}

package cmd

import (
	"context"
	"time"

	"github.com/wordpadbot/wordpadbot/internal/config"
	"github.com/wordpadbot/wordpadbot/internal/core"
	"github.com/wordpadbot/wordpadbot/internal/core/store"
	"github.com/wordpadbot/wordpadbot/internal/output"
	"github.com/wordpadbot/wordpadbot/internal/server/handlers"
)

// stateReader is the slice of the state store read by /status.
type stateReader interface {
	LoadEventLog(ctx context.Context) (core.EventLog, error)
	GetCursor(ctx context.Context, name string) (string, error)
}

type pollHistory interface {
	LastRuns() map[string]time.Time
}

// statusSource answers /status from the persisted state rather than the
// limiter's in-memory log, which only the poller goroutine may touch.
type statusSource struct {
	state  stateReader
	polls  pollHistory
	handle string
	bot    config.BotConfig
	clock  func() time.Time
}

func newStatusSource(state stateReader, polls pollHistory, handle string, bot config.BotConfig) *statusSource {
	return &statusSource{state: state, polls: polls, handle: handle, bot: bot}
}

func (s *statusSource) Status(ctx context.Context) (handlers.BotStatus, error) {
	log, err := s.state.LoadEventLog(ctx)
	if err != nil {
		return handlers.BotStatus{}, err
	}

	now := s.now()
	window := s.bot.ReplyWindow()
	report := output.NewReplyLogReport(log, now, window, s.bot.MaxRepliesPerWindow)

	recent := 0
	for _, event := range log {
		if !core.Expired(now, event.CreatedAt, window) {
			recent++
		}
	}

	cursors := map[string]string{}
	for _, name := range []string{store.CursorNotificationsSeen, store.CursorTimelineNewest} {
		value, err := s.state.GetCursor(ctx, name)
		if err != nil {
			return handlers.BotStatus{}, err
		}
		if value != "" {
			cursors[name] = value
		}
	}

	status := handlers.BotStatus{
		Handle:        s.handle,
		SilentMode:    s.bot.SilentMode,
		Window:        window.String(),
		MaxReplies:    s.bot.MaxRepliesPerWindow,
		RecentReplies: recent,
		Participants:  report.Counts,
		Cursors:       cursors,
	}
	if s.polls != nil {
		status.LastPolls = s.polls.LastRuns()
	}
	return status, nil
}

func (s *statusSource) now() time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return time.Now().UTC()
}

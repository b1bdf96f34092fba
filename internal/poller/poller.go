// Package poller drives the bot: it polls notifications, the home timeline
// and followers on fixed intervals and hands candidate posts to the
// dispatcher.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wordpadbot/wordpadbot/internal/core"
	"github.com/wordpadbot/wordpadbot/internal/core/engine"
	"github.com/wordpadbot/wordpadbot/internal/core/store"
	"github.com/wordpadbot/wordpadbot/internal/metrics"
	"github.com/wordpadbot/wordpadbot/internal/social/bluesky"
)

const (
	DefaultMentionInterval  = 30 * time.Second
	DefaultTimelineInterval = 60 * time.Second
	DefaultFollowInterval   = 10 * time.Minute
)

// Network is the slice of the social client the poller reads from.
type Network interface {
	Mentions(ctx context.Context, since time.Time) ([]bluesky.Notification, error)
	UpdateSeen(ctx context.Context, seenAt time.Time) error
	Timeline(ctx context.Context, since time.Time, limit int) ([]bluesky.TimelineItem, error)
	FollowBack(ctx context.Context) (int, error)
}

// Handler receives candidate posts.
type Handler interface {
	OnMention(ctx context.Context, post *core.Post, prefix string) (engine.Outcome, error)
	OnTimeline(ctx context.Context, post *core.Post, prefix string) (engine.Outcome, error)
}

// CursorStore persists the poll cursors between runs.
type CursorStore interface {
	GetCursor(ctx context.Context, name string) (string, error)
	SetCursor(ctx context.Context, name, value string) error
}

// Poller runs every poll from a single goroutine, so the dispatcher never
// sees two events at once.
type Poller struct {
	Network Network
	Handler Handler
	Cursors CursorStore
	Logger  engine.Logger

	SelfID     string
	SelfHandle string

	MentionInterval  time.Duration
	TimelineInterval time.Duration
	FollowInterval   time.Duration
	TimelineLimit    int

	// Timeline polling is skipped entirely when false.
	Timeline              bool
	Autofollow            bool
	IgnoreTimelineReposts bool

	Clock func() time.Time

	mu       sync.Mutex
	started  time.Time
	lastRuns map[string]time.Time
}

// Run polls until ctx is cancelled. Every poll type runs once immediately,
// then on its own ticker. A poll always finishes before the next tick is
// read.
func (p *Poller) Run(ctx context.Context) error {
	if p.Network == nil || p.Handler == nil {
		return errors.New("poller requires a network client and a handler")
	}

	mentions := time.NewTicker(orDefault(p.MentionInterval, DefaultMentionInterval))
	defer mentions.Stop()
	timeline := time.NewTicker(orDefault(p.TimelineInterval, DefaultTimelineInterval))
	defer timeline.Stop()
	follows := time.NewTicker(orDefault(p.FollowInterval, DefaultFollowInterval))
	defer follows.Stop()

	p.mu.Lock()
	p.started = p.now()
	p.mu.Unlock()

	p.logger().Info("Poller started",
		zap.String("handle", p.SelfHandle),
		zap.Bool("timeline", p.Timeline),
		zap.Bool("autofollow", p.Autofollow))

	p.runCycle(ctx, "mentions", p.PollMentions)
	p.runCycle(ctx, "timeline", p.PollTimeline)
	p.runCycle(ctx, "follows", p.PollFollows)

	for {
		select {
		case <-ctx.Done():
			p.logger().Info("Poller stopped")
			return nil
		case <-mentions.C:
			p.runCycle(ctx, "mentions", p.PollMentions)
		case <-timeline.C:
			p.runCycle(ctx, "timeline", p.PollTimeline)
		case <-follows.C:
			p.runCycle(ctx, "follows", p.PollFollows)
		}
	}
}

func (p *Poller) runCycle(ctx context.Context, name string, poll func(context.Context, engine.Logger) error) {
	if ctx.Err() != nil {
		return
	}
	logger := withCycleID(p.logger(), uuid.NewString())

	start := time.Now()
	err := poll(ctx, logger)
	metrics.RecordPoll(name, err == nil, time.Since(start))
	if err != nil {
		logger.Warn("Poll failed", zap.String("poll", name), zap.Error(err))
		return
	}
	p.markRun(name)
	logger.Debug("Poll finished", zap.String("poll", name), zap.Duration("elapsed", time.Since(start)))
}

func (p *Poller) markRun(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastRuns == nil {
		p.lastRuns = make(map[string]time.Time)
	}
	p.lastRuns[name] = p.now()
}

// LastRuns returns the time of the last successful cycle of each poll.
func (p *Poller) LastRuns() map[string]time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]time.Time, len(p.lastRuns))
	for name, at := range p.lastRuns {
		out[name] = at
	}
	return out
}

// CheckHealth fails when the mention poll has not succeeded for three
// intervals. Before Run starts the poller counts as healthy.
func (p *Poller) CheckHealth(context.Context) error {
	p.mu.Lock()
	last, ok := p.lastRuns["mentions"]
	if !ok {
		last = p.started
	}
	p.mu.Unlock()
	if last.IsZero() {
		return nil
	}
	limit := 3 * orDefault(p.MentionInterval, DefaultMentionInterval)
	if age := p.now().Sub(last); age > limit {
		return fmt.Errorf("no successful mention poll in %s", age.Round(time.Second))
	}
	return nil
}

// PollMentions handles every mention and reply not yet covered by the
// stored cursor, oldest first. The cursor advances past each handled
// notification.
func (p *Poller) PollMentions(ctx context.Context, logger engine.Logger) error {
	cur, fresh, err := p.cursor(ctx, store.CursorNotificationsSeen)
	if err != nil {
		return err
	}
	if fresh {
		logger.Info("No notification cursor - skipping backlog", zap.Time("since", cur.At))
		return nil
	}

	notifications, err := p.Network.Mentions(ctx, cur.At)
	if err != nil {
		return err
	}

	handledAny := false
	for _, n := range notifications {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		post := n.Post
		if cur.Handled(post.Link.URI, n.IndexedAt) {
			continue
		}
		handledAny = true
		if post.Author.ID != p.SelfID {
			prefix := core.MentionPrefix(post.Author.Handle, post.MentionedHandles(), p.SelfHandle)
			outcome, err := p.Handler.OnMention(ctx, post, prefix)
			logEvent(logger, "mention", post, outcome, err)
		}

		if cur.Advance(post.Link.URI, n.IndexedAt) {
			if err := p.saveCursor(ctx, store.CursorNotificationsSeen, cur); err != nil {
				return err
			}
		}
	}

	if handledAny {
		if err := p.Network.UpdateSeen(ctx, cur.At); err != nil {
			logger.Warn("Failed to mark notifications seen", zap.Error(err))
		}
	}
	return nil
}

// PollTimeline offers new home timeline posts to the dispatcher. Own posts,
// posts that mention the bot and, when configured, reposts are skipped.
func (p *Poller) PollTimeline(ctx context.Context, logger engine.Logger) error {
	if !p.Timeline {
		return nil
	}
	cur, fresh, err := p.cursor(ctx, store.CursorTimelineNewest)
	if err != nil {
		return err
	}
	if fresh {
		logger.Info("No timeline cursor - skipping backlog", zap.Time("since", cur.At))
		return nil
	}

	items, err := p.Network.Timeline(ctx, cur.At, p.TimelineLimit)
	if err != nil {
		return err
	}

	for _, item := range items {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		post := item.Post
		if cur.Handled(post.Link.URI, item.IndexedAt) {
			continue
		}
		switch {
		case post.Author.ID == p.SelfID:
		case post.MentionsID(p.SelfID):
			// handled as a mention
		case post.IsRepost && p.IgnoreTimelineReposts:
			logger.Debug("Skipping repost", zap.String("post", post.Ref()))
		default:
			prefix := core.MentionPrefix(post.Author.Handle, post.MentionedHandles(), p.SelfHandle)
			outcome, err := p.Handler.OnTimeline(ctx, post, prefix)
			logEvent(logger, "timeline", post, outcome, err)
		}

		if cur.Advance(post.Link.URI, item.IndexedAt) {
			if err := p.saveCursor(ctx, store.CursorTimelineNewest, cur); err != nil {
				return err
			}
		}
	}
	return nil
}

// PollFollows follows back new followers when autofollow is on.
func (p *Poller) PollFollows(ctx context.Context, logger engine.Logger) error {
	if !p.Autofollow {
		return nil
	}
	followed, err := p.Network.FollowBack(ctx)
	if followed > 0 {
		logger.Info("Followed back new followers", zap.Int("count", followed))
	}
	return err
}

// cursor loads a stored cursor. When none exists (or it is unreadable) the
// cursor is initialised to now and fresh is true.
func (p *Poller) cursor(ctx context.Context, name string) (cur pollCursor, fresh bool, err error) {
	if p.Cursors != nil {
		raw, err := p.Cursors.GetCursor(ctx, name)
		if err != nil {
			return pollCursor{}, false, err
		}
		if raw != "" {
			parsed, perr := parseCursor(raw)
			if perr == nil {
				return parsed, false, nil
			}
			p.logger().Warn("Ignoring unreadable cursor", zap.String("cursor", name), zap.String("value", raw))
		}
	}

	cur = pollCursor{At: p.now()}
	if err := p.saveCursor(ctx, name, cur); err != nil {
		return pollCursor{}, false, err
	}
	return cur, true, nil
}

func (p *Poller) saveCursor(ctx context.Context, name string, cur pollCursor) error {
	if p.Cursors == nil {
		return nil
	}
	return p.Cursors.SetCursor(ctx, name, cur.String())
}

func logEvent(logger engine.Logger, source string, post *core.Post, outcome engine.Outcome, err error) {
	if err != nil {
		logger.Error("Failed to handle post",
			zap.String("source", source),
			zap.String("post", post.Ref()),
			zap.String("outcome", string(outcome)),
			zap.Error(err))
		return
	}
	logger.Debug("Handled post",
		zap.String("source", source),
		zap.String("post", post.Ref()),
		zap.String("outcome", string(outcome)))
}

func (p *Poller) now() time.Time {
	if p.Clock != nil {
		return p.Clock().UTC()
	}
	return time.Now().UTC()
}

func (p *Poller) logger() engine.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// cycleLogger stamps every line of one poll cycle with its correlation id.
type cycleLogger struct {
	base engine.Logger
	id   zap.Field
}

func withCycleID(base engine.Logger, id string) engine.Logger {
	return cycleLogger{base: base, id: zap.String("cycle_id", id)}
}

func (l cycleLogger) Debug(msg string, fields ...zap.Field) {
	l.base.Debug(msg, append(fields, l.id)...)
}

func (l cycleLogger) Info(msg string, fields ...zap.Field) {
	l.base.Info(msg, append(fields, l.id)...)
}

func (l cycleLogger) Warn(msg string, fields ...zap.Field) {
	l.base.Warn(msg, append(fields, l.id)...)
}

func (l cycleLogger) Error(msg string, fields ...zap.Field) {
	l.base.Error(msg, append(fields, l.id)...)
}

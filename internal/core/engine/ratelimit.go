package engine

import (
	"context"
	"time"

	"github.com/wordpadbot/wordpadbot/internal/core"
)

const (
	// DefaultWindow is the retention window for recent replies.
	DefaultWindow = 20 * time.Minute
	// DefaultMaxReplies is the reply threshold per participant per window.
	DefaultMaxReplies = 3
)

// StateStore persists the reply log after each mutation.
type StateStore interface {
	SaveEventLog(ctx context.Context, log core.EventLog) error
}

// ReplyLimiter enforces a per-participant reply threshold over a sliding
// window. Allow and Record are separate calls; callers must not dispatch
// events concurrently or the threshold can be overshot.
type ReplyLimiter struct {
	State      *core.BotState
	Store      StateStore
	Window     time.Duration
	MaxReplies int
	Clock      func() time.Time
}

// Decision is the result of an Allow check.
type Decision struct {
	Allowed bool
	// Tripped lists participants at or over the threshold.
	Tripped []string
	// Counts holds the in-window reply count per checked participant.
	Counts map[string]int
}

// NewReplyLimiter builds a limiter around loaded state.
func NewReplyLimiter(state *core.BotState, store StateStore, window time.Duration, maxReplies int) *ReplyLimiter {
	if state == nil {
		state = core.NewBotState()
	}
	return &ReplyLimiter{
		State:      state,
		Store:      store,
		Window:     window,
		MaxReplies: maxReplies,
	}
}

// Allow prunes stale events and reports whether every participant is under
// the threshold. An empty participant set is always allowed. A persistence
// failure is returned alongside a valid decision.
func (r *ReplyLimiter) Allow(ctx context.Context, participants core.Participants) (Decision, error) {
	if r == nil || r.State == nil {
		return Decision{Allowed: true}, nil
	}

	saveErr := r.Prune(ctx)

	decision := Decision{Allowed: true, Counts: make(map[string]int, len(participants))}
	limit := r.maxReplies()
	for _, participant := range participants.Unique() {
		count := r.State.RecentReplies.Count(participant)
		decision.Counts[participant] = count
		if count >= limit {
			decision.Allowed = false
			decision.Tripped = append(decision.Tripped, participant)
		}
	}

	return decision, saveErr
}

// Prune drops stale events and persists the log if anything was removed.
func (r *ReplyLimiter) Prune(ctx context.Context) error {
	if r == nil || r.State == nil {
		return nil
	}
	if removed := r.State.RecentReplies.Prune(r.now(), r.window()); removed == 0 {
		return nil
	}
	return r.save(ctx)
}

// Record appends a reply event stamped now. It does not re-check the threshold.
func (r *ReplyLimiter) Record(ctx context.Context, participants core.Participants) error {
	if r == nil || r.State == nil {
		return nil
	}

	recorded := make(core.Participants, len(participants))
	copy(recorded, participants)
	r.State.RecentReplies.Append(core.ReplyEvent{
		CreatedAt:    r.now(),
		Participants: recorded,
	})

	return r.save(ctx)
}

// Len returns the number of events currently held.
func (r *ReplyLimiter) Len() int {
	if r == nil || r.State == nil {
		return 0
	}
	return len(r.State.RecentReplies)
}

func (r *ReplyLimiter) save(ctx context.Context) error {
	if r.Store == nil {
		return nil
	}
	return r.Store.SaveEventLog(ctx, r.State.RecentReplies)
}

func (r *ReplyLimiter) window() time.Duration {
	if r.Window <= 0 {
		return DefaultWindow
	}
	return r.Window
}

func (r *ReplyLimiter) maxReplies() int {
	if r.MaxReplies <= 0 {
		return DefaultMaxReplies
	}
	return r.MaxReplies
}

func (r *ReplyLimiter) now() time.Time {
	if r != nil && r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}

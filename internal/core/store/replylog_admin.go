package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/wordpadbot/wordpadbot/internal/core"
)

type ReplyLogQuery struct {
	All         bool
	Participant string
	// Window, when positive, restricts List to events younger than it.
	Window time.Duration
}

func (q ReplyLogQuery) Validate() error {
	if q.All {
		return nil
	}
	if strings.TrimSpace(q.Participant) != "" {
		return nil
	}
	return errors.New("must specify --all or --participant")
}

func (q ReplyLogQuery) matches(event core.ReplyEvent, now time.Time) bool {
	if q.Window > 0 && core.Expired(now, event.CreatedAt, q.Window) {
		return false
	}
	if q.All {
		return true
	}
	return event.Involves(strings.TrimSpace(q.Participant))
}

// ListReplyLog returns the persisted events matching q, oldest first.
func (s *Store) ListReplyLog(ctx context.Context, q ReplyLogQuery) ([]core.ReplyEvent, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	log, err := s.LoadEventLog(ctx)
	if err != nil {
		return nil, err
	}

	now := Clock()
	events := []core.ReplyEvent{}
	for _, event := range log {
		if q.matches(event, now) {
			events = append(events, event)
		}
	}
	return events, nil
}

// CountReplyLog returns how many persisted events match q.
func (s *Store) CountReplyLog(ctx context.Context, q ReplyLogQuery) (int, error) {
	events, err := s.ListReplyLog(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(events), nil
}

// ResetReplyLog removes the events matching q and returns how many went.
// Window is ignored: a reset by participant clears every event involving them.
func (s *Store) ResetReplyLog(ctx context.Context, q ReplyLogQuery) (int, error) {
	if err := q.Validate(); err != nil {
		return 0, err
	}
	log, err := s.LoadEventLog(ctx)
	if err != nil {
		return 0, err
	}

	q.Window = 0
	now := Clock()
	kept := make(core.EventLog, 0, len(log))
	for _, event := range log {
		if !q.matches(event, now) {
			kept = append(kept, event)
		}
	}

	removed := len(log) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	if err := s.SaveEventLog(ctx, kept); err != nil {
		return 0, err
	}
	return removed, nil
}

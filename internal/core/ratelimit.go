package core

import "time"

// ReplyEvent records a reply sent to a set of participants.
type ReplyEvent struct {
	CreatedAt    time.Time    `json:"created_at"`
	Participants Participants `json:"screen_names"`
}

// Involves reports whether the event was addressed to the participant.
func (e ReplyEvent) Involves(participant string) bool {
	return e.Participants.Contains(participant)
}

// EventLog is the ordered, append-only history of recent replies.
type EventLog []ReplyEvent

// Append adds an event to the end of the log.
func (l *EventLog) Append(event ReplyEvent) {
	*l = append(*l, event)
}

// Prune drops every event whose age is at least window and returns how many
// were removed. Order of the retained events is preserved.
func (l *EventLog) Prune(now time.Time, window time.Duration) int {
	if l == nil {
		return 0
	}
	kept := (*l)[:0]
	removed := 0
	for _, event := range *l {
		if Expired(now, event.CreatedAt, window) {
			removed++
			continue
		}
		kept = append(kept, event)
	}
	// clear the tail so dropped events can be collected
	for i := len(kept); i < len(*l); i++ {
		(*l)[i] = ReplyEvent{}
	}
	*l = kept
	return removed
}

// Count returns the number of events involving the participant.
func (l EventLog) Count(participant string) int {
	n := 0
	for _, event := range l {
		if event.Involves(participant) {
			n++
		}
	}
	return n
}

// BotState is the long-lived state owned by the reply limiter.
type BotState struct {
	RecentReplies EventLog `json:"recent_replies"`
}

// NewBotState returns an empty state.
func NewBotState() *BotState {
	return &BotState{RecentReplies: EventLog{}}
}

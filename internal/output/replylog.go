package output

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/wordpadbot/wordpadbot/internal/core"
)

// ReplyLogEntry is the rendered view of one persisted reply event.
type ReplyLogEntry struct {
	CreatedAt    time.Time `json:"created_at"`
	Age          string    `json:"age"`
	Participants []string  `json:"participants"`
}

// ReplyLogReport is the payload of `reply-log list`. Counts holds the
// in-window reply count per participant.
type ReplyLogReport struct {
	Window     string          `json:"window"`
	MaxReplies int             `json:"max_replies_per_window"`
	Events     []ReplyLogEntry `json:"events"`
	Counts     map[string]int  `json:"counts"`
}

// NewReplyLogReport builds a report from events as of now. Counts only
// include events younger than window.
func NewReplyLogReport(events []core.ReplyEvent, now time.Time, window time.Duration, maxReplies int) ReplyLogReport {
	report := ReplyLogReport{
		Window:     window.String(),
		MaxReplies: maxReplies,
		Events:     make([]ReplyLogEntry, 0, len(events)),
		Counts:     map[string]int{},
	}
	for _, event := range events {
		participants := append([]string{}, event.Participants...)
		report.Events = append(report.Events, ReplyLogEntry{
			CreatedAt:    event.CreatedAt.UTC(),
			Age:          core.Age(now, event.CreatedAt).Round(time.Second).String(),
			Participants: participants,
		})
		if window > 0 && core.Expired(now, event.CreatedAt, window) {
			continue
		}
		for _, p := range participants {
			report.Counts[p]++
		}
	}
	return report
}

// ReplyLogTable renders the events and the per-participant counts.
func ReplyLogTable(report ReplyLogReport) string {
	events := table.NewWriter()
	events.SetStyle(table.StyleRounded)
	events.AppendHeader(table.Row{"#", "Replied At", "Age", "Participants"})
	for i, event := range report.Events {
		events.AppendRow(table.Row{
			i + 1,
			event.CreatedAt.Format(time.RFC3339),
			event.Age,
			strings.Join(event.Participants, " "),
		})
	}
	events.AppendFooter(table.Row{"", "", "", fmt.Sprintf("%d event(s), window %s", len(report.Events), report.Window)})

	var sb strings.Builder
	sb.WriteString(events.Render())

	if len(report.Counts) == 0 {
		return sb.String()
	}

	names := make([]string, 0, len(report.Counts))
	for name := range report.Counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if report.Counts[names[i]] != report.Counts[names[j]] {
			return report.Counts[names[i]] > report.Counts[names[j]]
		}
		return names[i] < names[j]
	})

	counts := table.NewWriter()
	counts.SetStyle(table.StyleRounded)
	counts.AppendHeader(table.Row{"Participant", "Replies", "Status"})
	for _, name := range names {
		counts.AppendRow(table.Row{name, report.Counts[name], limitStatus(report.Counts[name], report.MaxReplies)})
	}

	sb.WriteString("\n\n")
	sb.WriteString(counts.Render())
	return sb.String()
}

func limitStatus(count, maxReplies int) string {
	if maxReplies > 0 && count >= maxReplies {
		return "limited"
	}
	return "ok"
}

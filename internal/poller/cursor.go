package poller

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/bluesky-social/indigo/atproto/syntax"
)

// pollCursor marks how far a feed has been handled: everything indexed
// before At, plus the listed posts indexed exactly at At. Feeds are fetched
// inclusive of At, so a post sharing the cursor timestamp with one already
// handled is still picked up on the next poll.
type pollCursor struct {
	At   time.Time
	URIs []string
}

// parseCursor reads "<datetime> [uri ...]". A bare datetime is accepted.
func parseCursor(raw string) (pollCursor, error) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return pollCursor{}, errors.New("empty cursor")
	}
	at, err := syntax.ParseDatetimeTime(fields[0])
	if err != nil {
		return pollCursor{}, err
	}
	return pollCursor{At: at.UTC(), URIs: fields[1:]}, nil
}

func (c pollCursor) String() string {
	parts := append([]string{c.At.UTC().Format(time.RFC3339Nano)}, c.URIs...)
	return strings.Join(parts, " ")
}

// Handled reports whether the post indexed at at was already processed.
func (c pollCursor) Handled(uri string, at time.Time) bool {
	if at.Before(c.At) {
		return true
	}
	return at.Equal(c.At) && slices.Contains(c.URIs, uri)
}

// Advance records uri as handled and reports whether the cursor changed.
func (c *pollCursor) Advance(uri string, at time.Time) bool {
	switch {
	case at.After(c.At):
		c.At = at
		c.URIs = []string{uri}
	case at.Equal(c.At) && !slices.Contains(c.URIs, uri):
		c.URIs = append(c.URIs, uri)
		slices.Sort(c.URIs)
	default:
		return false
	}
	return true
}

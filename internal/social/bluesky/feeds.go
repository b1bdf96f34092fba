package bluesky

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"go.uber.org/zap"

	"github.com/wordpadbot/wordpadbot/internal/core"
)

const (
	notificationPageLimit = 50
	maxNotificationPages  = 5
	DefaultTimelineLimit  = 50
	followersPageLimit    = 100
	maxFollowerPages      = 10
)

// Notification is a mention of, or reply to, the bot.
type Notification struct {
	Post      *core.Post
	Reason    string
	IndexedAt time.Time
}

// TimelineItem is a post from the home timeline.
type TimelineItem struct {
	Post *core.Post
	// IndexedAt is when the post (or the repost) entered the timeline.
	IndexedAt time.Time
}

// Mentions returns mention and reply notifications indexed at or after
// since, oldest first, with their posts hydrated. Callers drop the ones they
// have already handled.
func (c *Client) Mentions(ctx context.Context, since time.Time) ([]Notification, error) {
	var collected []*bsky.NotificationListNotifications_Notification
	cursor := ""
	for page := 0; page < maxNotificationPages; page++ {
		var out *bsky.NotificationListNotifications_Output
		err := c.call(ctx, func(ctx context.Context) (err error) {
			out, err = bsky.NotificationListNotifications(ctx, c.xrpc, cursor, notificationPageLimit, false,
				[]string{reasonMention, reasonReply}, "")
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("list notifications: %w", err)
		}

		reachedSeen := false
		for _, n := range out.Notifications {
			if n == nil {
				continue
			}
			if !since.IsZero() && parseTime(n.IndexedAt).Before(since) {
				reachedSeen = true
				break
			}
			if n.Reason == reasonMention || n.Reason == reasonReply {
				collected = append(collected, n)
			}
		}
		if reachedSeen || out.Cursor == nil || *out.Cursor == "" {
			break
		}
		cursor = *out.Cursor
	}

	if len(collected) == 0 {
		return nil, nil
	}

	uris := make([]string, 0, len(collected))
	for _, n := range collected {
		uris = append(uris, n.Uri)
	}
	posts, err := c.GetPosts(ctx, uris)
	if err != nil {
		return nil, err
	}
	byURI := make(map[string]*core.Post, len(posts))
	for _, post := range posts {
		byURI[post.Link.URI] = post
	}

	result := make([]Notification, 0, len(collected))
	for _, n := range slices.Backward(collected) {
		post, ok := byURI[n.Uri]
		if !ok {
			c.logger.Debug("Notification post is gone", zap.String("uri", n.Uri))
			continue
		}
		result = append(result, Notification{Post: post, Reason: n.Reason, IndexedAt: parseTime(n.IndexedAt)})
	}
	return result, nil
}

// UpdateSeen marks notifications up to seenAt as read.
func (c *Client) UpdateSeen(ctx context.Context, seenAt time.Time) error {
	err := c.call(ctx, func(ctx context.Context) error {
		return bsky.NotificationUpdateSeen(ctx, c.xrpc, &bsky.NotificationUpdateSeen_Input{SeenAt: datetime(seenAt)})
	})
	if err != nil {
		return fmt.Errorf("update seen: %w", err)
	}
	return nil
}

// Timeline returns home timeline items that entered the feed at or after
// since, oldest first.
func (c *Client) Timeline(ctx context.Context, since time.Time, limit int) ([]TimelineItem, error) {
	if limit <= 0 {
		limit = DefaultTimelineLimit
	}

	var out *bsky.FeedGetTimeline_Output
	err := c.call(ctx, func(ctx context.Context) (err error) {
		out, err = bsky.FeedGetTimeline(ctx, c.xrpc, "", "", int64(limit))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get timeline: %w", err)
	}

	items := make([]TimelineItem, 0, len(out.Feed))
	for _, entry := range slices.Backward(out.Feed) {
		if entry == nil {
			continue
		}
		post, err := convertPost(entry.Post)
		if err != nil {
			c.logger.Warn("Skipping undecodable timeline post", zap.Error(err))
			continue
		}

		indexedAt := parseTime(entry.Post.IndexedAt)
		if entry.Reason != nil && entry.Reason.FeedDefs_ReasonRepost != nil {
			post.IsRepost = true
			indexedAt = parseTime(entry.Reason.FeedDefs_ReasonRepost.IndexedAt)
		}
		if !since.IsZero() && indexedAt.Before(since) {
			continue
		}
		items = append(items, TimelineItem{Post: post, IndexedAt: indexedAt})
	}
	return items, nil
}

// FollowBack follows every follower the account does not follow yet and
// returns how many were followed. A failed follow does not stop the rest.
func (c *Client) FollowBack(ctx context.Context) (int, error) {
	did, _ := c.Self()
	if did == "" {
		return 0, ErrNotLoggedIn
	}

	var (
		followed int
		errs     []error
		cursor   string
	)
	for page := 0; page < maxFollowerPages; page++ {
		var out *bsky.GraphGetFollowers_Output
		err := c.call(ctx, func(ctx context.Context) (err error) {
			out, err = bsky.GraphGetFollowers(ctx, c.xrpc, did, cursor, followersPageLimit)
			return err
		})
		if err != nil {
			return followed, fmt.Errorf("get followers: %w", err)
		}

		for _, follower := range out.Followers {
			if follower == nil || follower.Did == did {
				continue
			}
			if follower.Viewer != nil && follower.Viewer.Following != nil && *follower.Viewer.Following != "" {
				continue
			}
			if err := c.follow(ctx, did, follower.Did); err != nil {
				errs = append(errs, fmt.Errorf("follow %s: %w", follower.Handle, err))
				continue
			}
			followed++
			c.logger.Info("Followed back", zap.String("handle", follower.Handle))
		}

		if out.Cursor == nil || *out.Cursor == "" {
			break
		}
		cursor = *out.Cursor
	}
	return followed, errors.Join(errs...)
}

func (c *Client) follow(ctx context.Context, repo, subject string) error {
	record := &bsky.GraphFollow{
		LexiconTypeID: collectionFollow,
		Subject:       subject,
		CreatedAt:     datetime(c.now()),
	}
	return c.call(ctx, func(ctx context.Context) error {
		_, err := comatproto.RepoCreateRecord(ctx, c.xrpc, &comatproto.RepoCreateRecord_Input{
			Collection: collectionFollow,
			Repo:       repo,
			Record:     &lexutil.LexiconTypeDecoder{Val: record},
		})
		return err
	})
}

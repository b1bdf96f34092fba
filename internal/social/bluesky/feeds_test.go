package bluesky

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/stretchr/testify/require"
)

func TestMentions(t *testing.T) {
	pds := newFakePDS(t)
	pds.handle("app.bsky.notification.listNotifications", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cursor") == "" {
			writeJSON(w, http.StatusOK, map[string]any{
				"cursor": "page-2",
				"notifications": []any{
					map[string]any{"uri": "at://did:plc:alice/app.bsky.feed.post/3", "reason": "mention", "indexedAt": "2025-03-01T11:03:00.000Z", "author": map[string]any{"did": "did:plc:alice", "handle": "alice.test"}},
					map[string]any{"uri": "at://did:plc:bob/app.bsky.feed.post/x", "reason": "like", "indexedAt": "2025-03-01T11:02:30.000Z", "author": map[string]any{"did": "did:plc:bob", "handle": "bob.test"}},
					map[string]any{"uri": "at://did:plc:bob/app.bsky.feed.post/2", "reason": "reply", "indexedAt": "2025-03-01T11:02:00.000Z", "author": map[string]any{"did": "did:plc:bob", "handle": "bob.test"}},
				},
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"notifications": []any{
				map[string]any{"uri": "at://did:plc:carol/app.bsky.feed.post/gone", "reason": "mention", "indexedAt": "2025-03-01T11:01:00.000Z", "author": map[string]any{"did": "did:plc:carol", "handle": "carol.test"}},
				map[string]any{"uri": "at://did:plc:carol/app.bsky.feed.post/old", "reason": "mention", "indexedAt": "2025-03-01T10:00:00.000Z", "author": map[string]any{"did": "did:plc:carol", "handle": "carol.test"}},
			},
		})
	})
	pds.handle("app.bsky.feed.getPosts", func(w http.ResponseWriter, r *http.Request) {
		var posts []any
		for _, uri := range r.URL.Query()["uris"] {
			if uri == "at://did:plc:carol/app.bsky.feed.post/gone" {
				continue
			}
			posts = append(posts, postJSON(uri, "did:plc:alice", "alice.test", "@wordpad.test", nil))
		}
		writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
	})
	client := loggedIn(t, pds)

	since := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	got, err := client.Mentions(context.Background(), since)
	require.NoError(t, err)

	require.Len(t, got, 2)
	require.Equal(t, "at://did:plc:bob/app.bsky.feed.post/2", got[0].Post.Link.URI)
	require.Equal(t, "reply", got[0].Reason)
	require.Equal(t, "at://did:plc:alice/app.bsky.feed.post/3", got[1].Post.Link.URI)
	require.Equal(t, time.Date(2025, 3, 1, 11, 3, 0, 0, time.UTC), got[1].IndexedAt)

	lookups := pds.callsTo("app.bsky.feed.getPosts")
	require.Len(t, lookups, 1)
	require.NotContains(t, lookups[0].query["uris"], "at://did:plc:bob/app.bsky.feed.post/x")
	require.NotContains(t, lookups[0].query["uris"], "at://did:plc:carol/app.bsky.feed.post/old")

	listed := pds.callsTo("app.bsky.notification.listNotifications")
	require.ElementsMatch(t, []string{"mention", "reply"}, listed[0].query["reasons"])
}

func TestMentionsIncludeCursorTime(t *testing.T) {
	pds := newFakePDS(t)
	pds.handle("app.bsky.notification.listNotifications", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"notifications": []any{
			map[string]any{"uri": "at://did:plc:bob/app.bsky.feed.post/same", "reason": "mention", "indexedAt": "2025-03-01T11:00:00.000Z", "author": map[string]any{"did": "did:plc:bob", "handle": "bob.test"}},
			map[string]any{"uri": "at://did:plc:bob/app.bsky.feed.post/older", "reason": "mention", "indexedAt": "2025-03-01T10:59:59.000Z", "author": map[string]any{"did": "did:plc:bob", "handle": "bob.test"}},
		}})
	})
	pds.handle("app.bsky.feed.getPosts", func(w http.ResponseWriter, r *http.Request) {
		var posts []any
		for _, uri := range r.URL.Query()["uris"] {
			posts = append(posts, postJSON(uri, "did:plc:bob", "bob.test", "@wordpad.test", nil))
		}
		writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
	})
	client := loggedIn(t, pds)

	got, err := client.Mentions(context.Background(), time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "at://did:plc:bob/app.bsky.feed.post/same", got[0].Post.Link.URI)
}

func TestMentionsEmpty(t *testing.T) {
	pds := newFakePDS(t)
	pds.handle("app.bsky.notification.listNotifications", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"notifications": []any{}})
	})
	client := loggedIn(t, pds)

	got, err := client.Mentions(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Empty(t, got)
	require.Empty(t, pds.callsTo("app.bsky.feed.getPosts"))
}

func TestUpdateSeen(t *testing.T) {
	pds := newFakePDS(t)
	pds.handle("app.bsky.notification.updateSeen", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	client := loggedIn(t, pds)

	seen := time.Date(2025, 3, 1, 11, 3, 0, 0, time.UTC)
	require.NoError(t, client.UpdateSeen(context.Background(), seen))

	calls := pds.callsTo("app.bsky.notification.updateSeen")
	require.Len(t, calls, 1)
	var input bsky.NotificationUpdateSeen_Input
	require.NoError(t, json.Unmarshal(calls[0].body, &input))
	require.Equal(t, "2025-03-01T11:03:00.000Z", input.SeenAt)
}

func TestTimeline(t *testing.T) {
	pds := newFakePDS(t)
	pds.handle("app.bsky.feed.getTimeline", func(w http.ResponseWriter, r *http.Request) {
		fresh := postJSON("at://did:plc:alice/app.bsky.feed.post/new", "did:plc:alice", "alice.test", "new", nil)
		fresh["indexedAt"] = "2025-03-01T11:05:00.000Z"
		reposted := postJSON("at://did:plc:bob/app.bsky.feed.post/ancient", "did:plc:bob", "bob.test", "old but reposted", nil)
		reposted["indexedAt"] = "2024-01-01T00:00:00.000Z"
		edge := postJSON("at://did:plc:dave/app.bsky.feed.post/edge", "did:plc:dave", "dave.test", "right on the cursor", nil)
		edge["indexedAt"] = "2025-03-01T10:00:00.000Z"
		stale := postJSON("at://did:plc:carol/app.bsky.feed.post/stale", "did:plc:carol", "carol.test", "stale", nil)
		stale["indexedAt"] = "2025-03-01T09:00:00.000Z"

		writeJSON(w, http.StatusOK, map[string]any{"feed": []any{
			map[string]any{"post": fresh},
			map[string]any{"post": reposted, "reason": map[string]any{
				"$type":     "app.bsky.feed.defs#reasonRepost",
				"by":        map[string]any{"did": "did:plc:alice", "handle": "alice.test"},
				"indexedAt": "2025-03-01T11:04:00.000Z",
			}},
			map[string]any{"post": edge},
			map[string]any{"post": stale},
		}})
	})
	client := loggedIn(t, pds)

	items, err := client.Timeline(context.Background(), time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), 20)
	require.NoError(t, err)

	require.Len(t, items, 3)
	require.Equal(t, "at://did:plc:dave/app.bsky.feed.post/edge", items[0].Post.Link.URI)
	require.Equal(t, "at://did:plc:bob/app.bsky.feed.post/ancient", items[1].Post.Link.URI)
	require.True(t, items[1].Post.IsRepost)
	require.Equal(t, time.Date(2025, 3, 1, 11, 4, 0, 0, time.UTC), items[1].IndexedAt)
	require.Equal(t, "at://did:plc:alice/app.bsky.feed.post/new", items[2].Post.Link.URI)
	require.False(t, items[2].Post.IsRepost)

	calls := pds.callsTo("app.bsky.feed.getTimeline")
	require.Equal(t, []string{"20"}, calls[0].query["limit"])
}

func TestFollowBack(t *testing.T) {
	pds := newFakePDS(t)
	pds.handle("app.bsky.graph.getFollowers", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"followers": []any{
			map[string]any{"did": "did:plc:alice", "handle": "alice.test"},
			map[string]any{"did": "did:plc:bob", "handle": "bob.test", "viewer": map[string]any{"following": "at://did:plc:wordpad/app.bsky.graph.follow/1"}},
			map[string]any{"did": "did:plc:carol", "handle": "carol.test", "viewer": map[string]any{}},
		}})
	})
	pds.handle("com.atproto.repo.createRecord", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, comatproto.RepoCreateRecord_Output{Uri: "at://did:plc:wordpad/app.bsky.graph.follow/2", Cid: "c"})
	})
	client := loggedIn(t, pds)

	followed, err := client.FollowBack(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, followed)
	require.Equal(t, "did:plc:wordpad", pds.callsTo("app.bsky.graph.getFollowers")[0].query.Get("actor"))

	var subjects []string
	for _, call := range pds.callsTo("com.atproto.repo.createRecord") {
		var input comatproto.RepoCreateRecord_Input
		require.NoError(t, json.Unmarshal(call.body, &input))
		require.Equal(t, collectionFollow, input.Collection)
		follow, ok := input.Record.Val.(*bsky.GraphFollow)
		require.True(t, ok)
		require.Equal(t, "2025-03-01T12:00:00.000Z", follow.CreatedAt)
		subjects = append(subjects, follow.Subject)
	}
	require.Equal(t, []string{"did:plc:alice", "did:plc:carol"}, subjects)
}

func TestFollowBackKeepsGoingAfterFailure(t *testing.T) {
	pds := newFakePDS(t)
	pds.handle("app.bsky.graph.getFollowers", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"followers": []any{
			map[string]any{"did": "did:plc:alice", "handle": "alice.test"},
			map[string]any{"did": "did:plc:bob", "handle": "bob.test"},
		}})
	})
	pds.handle("com.atproto.repo.createRecord", func(w http.ResponseWriter, r *http.Request) {
		var input comatproto.RepoCreateRecord_Input
		_ = json.NewDecoder(r.Body).Decode(&input)
		if input.Record == nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "InvalidRequest", "message": "no record"})
			return
		}
		if follow, ok := input.Record.Val.(*bsky.GraphFollow); ok && follow.Subject == "did:plc:alice" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "InvalidRequest", "message": "blocked"})
			return
		}
		writeJSON(w, http.StatusOK, comatproto.RepoCreateRecord_Output{Uri: "at://x/y/z", Cid: "c"})
	})
	client := loggedIn(t, pds)

	followed, err := client.FollowBack(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "alice.test")
	require.Equal(t, 1, followed)
}

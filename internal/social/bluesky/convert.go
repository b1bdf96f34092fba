package bluesky

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/atproto/syntax"

	"github.com/wordpadbot/wordpadbot/internal/core"
)

const (
	webHost          = "https://bsky.app"
	collectionPost   = "app.bsky.feed.post"
	collectionFollow = "app.bsky.graph.follow"
	reasonMention    = "mention"
	reasonReply      = "reply"
)

func convertPost(view *bsky.FeedDefs_PostView) (*core.Post, error) {
	if view == nil || view.Author == nil {
		return nil, errors.New("incomplete post view")
	}
	var record *bsky.FeedPost
	if view.Record != nil {
		r, ok := view.Record.Val.(*bsky.FeedPost)
		if !ok {
			return nil, fmt.Errorf("post %s: unexpected record type %T", view.Uri, view.Record.Val)
		}
		record = r
	}
	if record == nil {
		record = &bsky.FeedPost{}
	}

	post := &core.Post{
		Link: core.PostLink{URI: view.Uri, CID: view.Cid},
		URL:  webURL(view.Author.Handle, view.Uri),
		Author: core.Author{
			ID:     view.Author.Did,
			Handle: view.Author.Handle,
		},
		Text:        record.Text,
		Attachments: attachments(view.Embed),
		Mentions:    mentions(record),
		CreatedAt:   parseTime(record.CreatedAt),
	}
	if view.Author.DisplayName != nil {
		post.Author.DisplayName = *view.Author.DisplayName
	}

	if reply := record.Reply; reply != nil && reply.Parent != nil && reply.Root != nil {
		post.Parent = &core.PostLink{URI: reply.Parent.Uri, CID: reply.Parent.Cid}
		post.Root = &core.PostLink{URI: reply.Root.Uri, CID: reply.Root.Cid}
	}
	return post, nil
}

func attachments(embed *bsky.FeedDefs_PostView_Embed) []core.Attachment {
	if embed == nil {
		return nil
	}

	switch {
	case embed.EmbedImages_View != nil:
		return imageAttachments(embed.EmbedImages_View)
	case embed.EmbedVideo_View != nil:
		return []core.Attachment{videoAttachment(embed.EmbedVideo_View)}
	case embed.EmbedRecordWithMedia_View != nil && embed.EmbedRecordWithMedia_View.Media != nil:
		media := embed.EmbedRecordWithMedia_View.Media
		if media.EmbedImages_View != nil {
			return imageAttachments(media.EmbedImages_View)
		}
		if media.EmbedVideo_View != nil {
			return []core.Attachment{videoAttachment(media.EmbedVideo_View)}
		}
	}
	return nil
}

func imageAttachments(view *bsky.EmbedImages_View) []core.Attachment {
	out := make([]core.Attachment, 0, len(view.Images))
	for _, image := range view.Images {
		if image == nil {
			continue
		}
		out = append(out, core.Attachment{
			Kind:    core.MediaKindPhoto,
			Locator: core.MediaLocator(image.Fullsize),
			Alt:     image.Alt,
		})
	}
	return out
}

func videoAttachment(view *bsky.EmbedVideo_View) core.Attachment {
	a := core.Attachment{Kind: core.MediaKindVideo, Locator: core.MediaLocator(view.Playlist)}
	if view.Alt != nil {
		a.Alt = *view.Alt
	}
	return a
}

// mentions reads mention facets in text order. The handle is taken from the
// faceted span of the text.
func mentions(record *bsky.FeedPost) []core.Mention {
	var out []core.Mention
	for _, f := range record.Facets {
		if f == nil || f.Index == nil {
			continue
		}
		start, end := int(f.Index.ByteStart), int(f.Index.ByteEnd)
		for _, feature := range f.Features {
			if feature == nil || feature.RichtextFacet_Mention == nil || feature.RichtextFacet_Mention.Did == "" {
				continue
			}
			handle := ""
			if start >= 0 && end <= len(record.Text) && start < end {
				handle = strings.TrimPrefix(record.Text[start:end], core.MentionMarker)
			}
			out = append(out, core.Mention{Handle: strings.ToLower(handle), ID: feature.RichtextFacet_Mention.Did})
		}
	}
	return out
}

// webURL returns the bsky.app link for a post, or "" if uri is malformed.
func webURL(handle, uri string) string {
	if _, err := syntax.ParseATURI(uri); err != nil {
		return ""
	}
	rkey := uri[strings.LastIndex(uri, "/")+1:]
	if handle == "" || rkey == "" {
		return ""
	}
	return webHost + "/profile/" + handle + "/post/" + rkey
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := syntax.ParseDatetimeTime(raw)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

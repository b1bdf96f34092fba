package bluesky

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"regexp"
	"strings"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/atproto/syntax"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"go.uber.org/zap"

	"github.com/wordpadbot/wordpadbot/internal/core"
)

// maxGetPosts is the app.bsky.feed.getPosts batch limit.
const maxGetPosts = 25

var mentionPattern = regexp.MustCompile(`(^|\s)(@[a-zA-Z0-9][a-zA-Z0-9.-]*[a-zA-Z0-9])`)

// GetPost fetches a single post by AT URI. A post the network no longer
// returns is reported as core.ErrPostNotFound.
func (c *Client) GetPost(ctx context.Context, uri string) (*core.Post, error) {
	posts, err := c.GetPosts(ctx, []string{uri})
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, fmt.Errorf("%s: %w", uri, core.ErrPostNotFound)
	}
	return posts[0], nil
}

// GetPosts hydrates posts by AT URI, in batches. Missing posts are omitted.
func (c *Client) GetPosts(ctx context.Context, uris []string) ([]*core.Post, error) {
	for _, uri := range uris {
		if _, err := syntax.ParseATURI(uri); err != nil {
			return nil, fmt.Errorf("invalid post uri %q: %w", uri, err)
		}
	}

	posts := make([]*core.Post, 0, len(uris))
	for start := 0; start < len(uris); start += maxGetPosts {
		end := min(start+maxGetPosts, len(uris))

		var out *bsky.FeedGetPosts_Output
		err := c.call(ctx, func(ctx context.Context) (err error) {
			out, err = bsky.FeedGetPosts(ctx, c.xrpc, uris[start:end])
			return err
		})
		if err != nil {
			if StatusCode(err) == 400 && len(uris) == 1 {
				return nil, fmt.Errorf("%s: %w: %v", uris[0], core.ErrPostNotFound, err)
			}
			return nil, fmt.Errorf("get posts: %w", err)
		}

		for _, view := range out.Posts {
			post, err := convertPost(view)
			if err != nil {
				c.logger.Warn("Skipping undecodable post", zap.Error(err))
				continue
			}
			posts = append(posts, post)
		}
	}
	return posts, nil
}

// PostReply publishes reply as a post in the thread of reply.ReplyTo, with
// the image attached and the leading handles linked as mentions.
func (c *Client) PostReply(ctx context.Context, reply core.Reply) error {
	if reply.ReplyTo == nil || reply.ReplyTo.Link.IsZero() {
		return errors.New("reply target is required")
	}
	did, _ := c.Self()
	if did == "" {
		return ErrNotLoggedIn
	}

	record := &bsky.FeedPost{
		LexiconTypeID: collectionPost,
		Text:          reply.Text,
		CreatedAt:     datetime(c.now()),
		Reply: &bsky.FeedPost_ReplyRef{
			Root:   toStrongRef(reply.ReplyTo.ThreadRoot()),
			Parent: toStrongRef(reply.ReplyTo.Link),
		},
		Facets: c.mentionFacets(ctx, reply.Text, reply.ReplyTo),
	}

	if len(reply.Image) > 0 {
		blob, err := c.uploadImage(ctx, reply.Image)
		if err != nil {
			return err
		}
		embedded := &bsky.EmbedImages_Image{Alt: reply.ImageAlt, Image: blob}
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(reply.Image)); err == nil && cfg.Width > 0 && cfg.Height > 0 {
			embedded.AspectRatio = &bsky.EmbedDefs_AspectRatio{Width: int64(cfg.Width), Height: int64(cfg.Height)}
		}
		record.Embed = &bsky.FeedPost_Embed{EmbedImages: &bsky.EmbedImages{
			LexiconTypeID: "app.bsky.embed.images",
			Images:        []*bsky.EmbedImages_Image{embedded},
		}}
	}

	var out *comatproto.RepoCreateRecord_Output
	err := c.call(ctx, func(ctx context.Context) (err error) {
		out, err = comatproto.RepoCreateRecord(ctx, c.xrpc, &comatproto.RepoCreateRecord_Input{
			Collection: collectionPost,
			Repo:       did,
			Record:     &lexutil.LexiconTypeDecoder{Val: record},
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("create reply record: %w", err)
	}

	c.logger.Debug("Posted reply", zap.String("uri", out.Uri), zap.String("parent", reply.ReplyTo.Link.URI))
	return nil
}

func (c *Client) uploadImage(ctx context.Context, data []byte) (*lexutil.LexBlob, error) {
	var out *comatproto.RepoUploadBlob_Output
	err := c.call(ctx, func(ctx context.Context) (err error) {
		out, err = comatproto.RepoUploadBlob(ctx, c.xrpc, bytes.NewReader(data))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("upload image: %w", err)
	}
	if out.Blob == nil {
		return nil, errors.New("upload image: no blob in response")
	}
	return out.Blob, nil
}

// mentionFacets links every @handle in text. Handles are resolved from the
// post being replied to when possible and through the network otherwise;
// unresolvable handles are left as plain text.
func (c *Client) mentionFacets(ctx context.Context, text string, replyTo *core.Post) []*bsky.RichtextFacet {
	known := map[string]string{}
	if replyTo != nil {
		known[strings.ToLower(replyTo.Author.Handle)] = replyTo.Author.ID
		for _, m := range replyTo.Mentions {
			known[strings.ToLower(m.Handle)] = m.ID
		}
	}

	var facets []*bsky.RichtextFacet
	for _, match := range mentionPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := match[4], match[5]
		handle := strings.ToLower(text[start+1 : end])
		if _, err := syntax.ParseHandle(handle); err != nil {
			continue
		}

		did, ok := known[handle]
		if !ok || did == "" {
			resolved, err := c.resolveHandle(ctx, handle)
			if err != nil {
				c.logger.Debug("Could not resolve mentioned handle", zap.String("handle", handle), zap.Error(err))
				continue
			}
			did = resolved
			known[handle] = did
		}

		facets = append(facets, &bsky.RichtextFacet{
			Index: &bsky.RichtextFacet_ByteSlice{ByteStart: int64(start), ByteEnd: int64(end)},
			Features: []*bsky.RichtextFacet_Features_Elem{{
				RichtextFacet_Mention: &bsky.RichtextFacet_Mention{
					LexiconTypeID: "app.bsky.richtext.facet#mention",
					Did:           did,
				},
			}},
		})
	}
	return facets
}

func (c *Client) resolveHandle(ctx context.Context, handle string) (string, error) {
	var out *comatproto.IdentityResolveHandle_Output
	err := c.call(ctx, func(ctx context.Context) (err error) {
		out, err = comatproto.IdentityResolveHandle(ctx, c.xrpc, handle)
		return err
	})
	if err != nil {
		return "", err
	}
	if _, err := syntax.ParseDID(out.Did); err != nil {
		return "", fmt.Errorf("resolve %s: %w", handle, err)
	}
	return out.Did, nil
}

func toStrongRef(link core.PostLink) *comatproto.RepoStrongRef {
	return &comatproto.RepoStrongRef{Uri: link.URI, Cid: link.CID}
}

package engine

import (
	"context"
	"iter"
	"strings"

	"go.uber.org/zap"

	"github.com/wordpadbot/wordpadbot/internal/core"
)

// DefaultMaxChainDepth bounds the number of parent fetches per resolution.
const DefaultMaxChainDepth = 32

// PostFetcher loads a post by reference.
type PostFetcher interface {
	GetPost(ctx context.Context, uri string) (*core.Post, error)
}

// MediaResolver walks a post and its reply parents looking for photos.
type MediaResolver struct {
	Posts      PostFetcher
	SelfID     string
	SelfHandle string
	// MaxDepth caps parent fetches; zero uses DefaultMaxChainDepth and a
	// negative value disables the cap.
	MaxDepth int
	Logger   Logger
}

// Resolve yields photo locators from start, then from each parent up the
// chain, closest first. Parents are fetched lazily, only when the consumer
// asks for more. The walk stops at the root, on a fetch error, on a post
// written by the bot, on a post mentioning the bot, on a revisited post, or at
// the depth cap.
func (r *MediaResolver) Resolve(ctx context.Context, start *core.Post) iter.Seq[core.MediaLocator] {
	return func(yield func(core.MediaLocator) bool) {
		if start == nil {
			return
		}
		logger := loggerOrNop(r.Logger)

		if r.isSelf(start) {
			logger.Debug("Start post is my own - nothing to resolve", zap.String("post", start.Ref()))
			return
		}

		visited := map[string]struct{}{}
		post := start
		for depth := 0; ; depth++ {
			if post.Link.URI != "" {
				visited[post.Link.URI] = struct{}{}
			}

			for _, locator := range post.Photos() {
				if !yield(locator) {
					return
				}
			}

			if post.Parent.IsZero() {
				return
			}

			logger.Debug("No more images - checking the reply chain", zap.String("post", post.Ref()))

			if limit := r.maxDepth(); limit >= 0 && depth >= limit {
				logger.Warn("Reply chain depth limit reached - stopping",
					zap.String("post", post.Ref()),
					zap.Int("max_depth", limit))
				return
			}
			if _, seen := visited[post.Parent.URI]; seen {
				logger.Warn("Reply chain loops back on itself - stopping",
					zap.String("post", post.Ref()),
					zap.String("parent", post.Parent.URI))
				return
			}
			if r.Posts == nil || ctx.Err() != nil {
				return
			}

			parent, err := r.Posts.GetPost(ctx, post.Parent.URI)
			if err != nil {
				logger.Warn("Error climbing the reply chain",
					zap.String("parent", post.Parent.URI),
					zap.Error(err))
				return
			}
			if parent == nil {
				return
			}

			// never resolve off our own generated replies
			if r.isSelf(parent) {
				logger.Info("Found my own post - stopping", zap.String("post", parent.Ref()))
				return
			}

			// another mention of us upstream gets its own reply
			if r.mentionsSelf(parent) {
				logger.Info("Found a mention of myself - stopping", zap.String("post", parent.Ref()))
				return
			}

			logger.Debug("Climbing up to post", zap.String("post", parent.Ref()))
			post = parent
		}
	}
}

// First returns the closest locator, fetching only as much of the chain as needed.
func (r *MediaResolver) First(ctx context.Context, start *core.Post) (core.MediaLocator, bool) {
	for locator := range r.Resolve(ctx, start) {
		return locator, true
	}
	return "", false
}

func (r *MediaResolver) isSelf(post *core.Post) bool {
	return r.SelfID != "" && post.Author.ID == r.SelfID
}

func (r *MediaResolver) mentionsSelf(post *core.Post) bool {
	if post.MentionsID(r.SelfID) {
		return true
	}
	if r.SelfHandle == "" {
		return false
	}
	handle := core.MentionMarker + strings.TrimPrefix(r.SelfHandle, core.MentionMarker)
	return strings.Contains(strings.ToLower(post.Text), strings.ToLower(handle))
}

func (r *MediaResolver) maxDepth() int {
	if r.MaxDepth == 0 {
		return DefaultMaxChainDepth
	}
	return r.MaxDepth
}

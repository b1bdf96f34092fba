package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/wordpadbot/wordpadbot/internal/core"
)

// DefaultMaxReplyLength is the reply length budget of the reference deployment.
const DefaultMaxReplyLength = 140

// Source says where an event came from.
type Source string

const (
	SourceMention  Source = "mention"
	SourceTimeline Source = "timeline"
)

// Outcome names how the handling of one event ended.
type Outcome string

const (
	OutcomeReplied         Outcome = "replied"
	OutcomeSilent          Outcome = "silent"
	OutcomeRateLimited     Outcome = "rate_limited"
	OutcomeDiceDeclined    Outcome = "dice_declined"
	OutcomeNoMedia         Outcome = "no_media"
	OutcomeMediaGone       Outcome = "media_gone"
	OutcomeMediaFailed     Outcome = "media_failed"
	OutcomeTransformFailed Outcome = "transform_failed"
	OutcomePostFailed      Outcome = "post_failed"
)

// Expected reports whether the outcome is part of normal operation.
func (o Outcome) Expected() bool {
	switch o {
	case OutcomeMediaFailed, OutcomeTransformFailed, OutcomePostFailed:
		return false
	default:
		return true
	}
}

// MediaFetcher downloads the bytes behind a locator. A missing resource is
// reported as core.ErrMediaNotFound.
type MediaFetcher interface {
	Fetch(ctx context.Context, locator core.MediaLocator) ([]byte, error)
}

// ImageTransformer produces the reply image.
type ImageTransformer interface {
	Transform(data []byte, params core.TransformParams) ([]byte, error)
}

// ReplyPoster publishes a reply.
type ReplyPoster interface {
	PostReply(ctx context.Context, reply core.Reply) error
}

// Dispatcher sequences one event through limiter, gate, resolver, transform,
// composer and poster. It is not safe for concurrent use.
type Dispatcher struct {
	Limiter     *ReplyLimiter
	Resolver    *MediaResolver
	Composer    *Composer
	Media       MediaFetcher
	Transformer ImageTransformer
	Poster      ReplyPoster
	Random      RandomSource
	Logger      Logger

	TimelineReplyProbability float64
	SilentMode               bool
	MaxReplyLength           int

	// OnOutcome, when set, observes every finished event.
	OnOutcome func(source Source, outcome Outcome)
}

// OnMention handles a post that mentions the bot.
func (d *Dispatcher) OnMention(ctx context.Context, post *core.Post, prefix string) (Outcome, error) {
	outcome, err := d.handle(ctx, SourceMention, post, prefix)
	d.observe(SourceMention, outcome)
	return outcome, err
}

// OnTimeline handles a timeline post; only a random fraction gets a reply.
func (d *Dispatcher) OnTimeline(ctx context.Context, post *core.Post, prefix string) (Outcome, error) {
	outcome, err := d.handle(ctx, SourceTimeline, post, prefix)
	d.observe(SourceTimeline, outcome)
	return outcome, err
}

func (d *Dispatcher) handle(ctx context.Context, source Source, post *core.Post, prefix string) (Outcome, error) {
	if post == nil {
		return "", errors.New("post is required")
	}
	if !d.checkReplyThreshold(ctx, post, prefix) {
		return OutcomeRateLimited, nil
	}

	if source == SourceTimeline && !roll(d.random(), d.TimelineReplyProbability) {
		d.logger().Info("Failed dice roll. Not responding", zap.String("post", post.Ref()))
		return OutcomeDiceDeclined, nil
	}

	return d.reply(ctx, post, prefix)
}

func (d *Dispatcher) checkReplyThreshold(ctx context.Context, post *core.Post, prefix string) bool {
	decision, err := d.Limiter.Allow(ctx, core.ExtractParticipants(prefix))
	if err != nil {
		d.logger().Warn("Failed to persist pruned reply log", zap.Error(err))
	}
	d.logger().Debug("Trimmed recent replies", zap.Int("recent_replies", d.Limiter.Len()))

	if !decision.Allowed {
		d.logger().Info("Over reply threshold. Not responding",
			zap.String("participants", strings.Join(decision.Tripped, ", ")),
			zap.String("post", post.Ref()))
		return false
	}
	return true
}

func (d *Dispatcher) reply(ctx context.Context, post *core.Post, prefix string) (Outcome, error) {
	logger := d.logger()
	logger.Info("Getting image for post", zap.String("post", post.Ref()))

	locator, ok := d.Resolver.First(ctx, post)
	if !ok {
		logger.Info("Couldn't find any images", zap.String("post", post.Ref()))
		return OutcomeNoMedia, nil
	}

	original, err := d.Media.Fetch(ctx, locator)
	if err != nil {
		if errors.Is(err, core.ErrMediaNotFound) {
			logger.Info("Image URL returned a 404 - post was probably deleted",
				zap.String("image", string(locator)))
			return OutcomeMediaGone, nil
		}
		logger.Error("Failed to fetch image",
			zap.String("image", string(locator)),
			zap.Error(err))
		return OutcomeMediaFailed, fmt.Errorf("fetch image %s: %w", locator, err)
	}

	logger.Info("Generating response", zap.String("post", post.Ref()))
	image, err := d.Transformer.Transform(original, d.Composer.TransformParams())
	if err != nil {
		logger.Error("Failed to transform image", zap.String("image", string(locator)), zap.Error(err))
		return OutcomeTransformFailed, fmt.Errorf("transform image %s: %w", locator, err)
	}

	text := d.Composer.ComposeText(post, prefix, d.maxReplyLength()-utf8.RuneCountInString(prefix)-1)

	if d.SilentMode {
		logger.Info("Silent mode is on. Would've responded",
			zap.String("post", post.Ref()),
			zap.String("text", text))
		return OutcomeSilent, nil
	}

	reply := core.Reply{Text: text, ReplyTo: post, Image: image, ImageAlt: "A picture, opened and saved in WordPad"}
	if err := d.Poster.PostReply(ctx, reply); err != nil {
		logger.Error("Failed to post reply", zap.String("post", post.Ref()), zap.Error(err))
		return OutcomePostFailed, fmt.Errorf("post reply to %s: %w", post.Ref(), err)
	}

	if err := d.Limiter.Record(ctx, core.ExtractParticipants(prefix)); err != nil {
		logger.Warn("Failed to persist reply log", zap.Error(err))
	}
	logger.Info("Updated recent replies", zap.Int("recent_replies", d.Limiter.Len()))

	return OutcomeReplied, nil
}

func (d *Dispatcher) observe(source Source, outcome Outcome) {
	if d.OnOutcome != nil && outcome != "" {
		d.OnOutcome(source, outcome)
	}
}

func (d *Dispatcher) maxReplyLength() int {
	if d.MaxReplyLength <= 0 {
		return DefaultMaxReplyLength
	}
	return d.MaxReplyLength
}

func (d *Dispatcher) random() RandomSource {
	if d.Random == nil {
		d.Random = NewRandomSource(0)
	}
	return d.Random
}

func (d *Dispatcher) logger() Logger {
	return loggerOrNop(d.Logger)
}

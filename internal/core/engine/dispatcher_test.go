package engine

import (
	"context"
	"errors"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wordpadbot/wordpadbot/internal/core"
)

type dispatcherFixture struct {
	dispatcher *Dispatcher
	store      *memoryStateStore
	posts      *fakePosts
	media      *fakeMedia
	transform  *fakeTransformer
	poster     *fakePoster
	logs       *observer.ObservedLogs
	outcomes   []Outcome
}

func newDispatcherFixture(t *testing.T) *dispatcherFixture {
	t.Helper()

	observed, logs := observer.New(zap.DebugLevel)
	logger := zap.New(observed)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	f := &dispatcherFixture{
		store: &memoryStateStore{},
		posts: &fakePosts{posts: map[string]*core.Post{}},
		media: &fakeMedia{data: map[core.MediaLocator][]byte{
			"https://cdn.test/a.jpg": []byte("jpeg"),
		}},
		transform: &fakeTransformer{},
		poster:    &fakePoster{},
		logs:      logs,
	}

	random := &scriptedRandom{floats: []float64{0.01}, ints: []int{0}}
	limiter := NewReplyLimiter(core.NewBotState(), f.store, 1200*time.Second, 3)
	limiter.Clock = func() time.Time { return now }

	f.dispatcher = &Dispatcher{
		Limiter: limiter,
		Resolver: &MediaResolver{
			Posts:      f.posts,
			SelfID:     "did:plc:wordpad",
			SelfHandle: "wordpad.test",
			Logger:     logger,
		},
		Composer:                 &Composer{Random: random, RotateProbability: 0.5},
		Media:                    f.media,
		Transformer:              f.transform,
		Poster:                   f.poster,
		Random:                   random,
		Logger:                   logger,
		TimelineReplyProbability: 0.05,
		MaxReplyLength:           DefaultMaxReplyLength,
		OnOutcome: func(source Source, outcome Outcome) {
			f.outcomes = append(f.outcomes, outcome)
		},
	}
	return f
}

func TestOnMentionReplies(t *testing.T) {
	f := newDispatcherFixture(t)
	post := photoPost("at://a/1", "alice", "", "https://cdn.test/a.jpg")

	outcome, err := f.dispatcher.OnMention(context.Background(), post, "@alice.test @bob.test")
	require.NoError(t, err)
	require.Equal(t, OutcomeReplied, outcome)

	require.Len(t, f.poster.replies, 1)
	reply := f.poster.replies[0]
	require.Equal(t, "@alice.test @bob.test Hello!", reply.Text)
	require.Same(t, post, reply.ReplyTo)
	require.Equal(t, []byte("wordpad:jpeg"), reply.Image)

	require.Len(t, f.transform.params, 1)
	require.True(t, f.transform.params[0].Rotate)
	require.Equal(t, 1024, f.transform.params[0].MaxWidth)

	require.Equal(t, 1, f.dispatcher.Limiter.Len())
	require.Equal(t, core.Participants{"alice.test", "bob.test"}, f.dispatcher.Limiter.State.RecentReplies[0].Participants)
	require.Equal(t, []Outcome{OutcomeReplied}, f.outcomes)
}

func TestOnMentionRespectsThreshold(t *testing.T) {
	f := newDispatcherFixture(t)
	post := photoPost("at://a/1", "alice", "", "https://cdn.test/a.jpg")

	for i := 0; i < 3; i++ {
		outcome, err := f.dispatcher.OnMention(context.Background(), post, "@alice.test")
		require.NoError(t, err)
		require.Equal(t, OutcomeReplied, outcome)
	}

	outcome, err := f.dispatcher.OnMention(context.Background(), post, "@alice.test")
	require.NoError(t, err)
	require.Equal(t, OutcomeRateLimited, outcome)
	require.Len(t, f.poster.replies, 3)
	require.Equal(t, 1, f.logs.FilterMessage("Over reply threshold. Not responding").Len())
}

func TestOnTimelineZeroProbabilityNeverReplies(t *testing.T) {
	f := newDispatcherFixture(t)
	f.dispatcher.TimelineReplyProbability = 0
	f.dispatcher.Random = &scriptedRandom{floats: []float64{0}}
	post := photoPost("at://a/1", "alice", "", "https://cdn.test/a.jpg")

	for i := 0; i < 5; i++ {
		outcome, err := f.dispatcher.OnTimeline(context.Background(), post, "@alice.test")
		require.NoError(t, err)
		require.Equal(t, OutcomeDiceDeclined, outcome)
	}
	require.Empty(t, f.poster.replies)
	require.Empty(t, f.media.fetched)
}

func TestOnTimelineDiceRoll(t *testing.T) {
	f := newDispatcherFixture(t)
	f.dispatcher.Random = &scriptedRandom{floats: []float64{0.5, 0.04}}
	post := photoPost("at://a/1", "alice", "", "https://cdn.test/a.jpg")

	outcome, err := f.dispatcher.OnTimeline(context.Background(), post, "@alice.test")
	require.NoError(t, err)
	require.Equal(t, OutcomeDiceDeclined, outcome)

	outcome, err = f.dispatcher.OnTimeline(context.Background(), post, "@alice.test")
	require.NoError(t, err)
	require.Equal(t, OutcomeReplied, outcome)
}

func TestOnTimelineRateLimitedBeforeDice(t *testing.T) {
	f := newDispatcherFixture(t)
	random := &scriptedRandom{floats: []float64{0}}
	f.dispatcher.Random = random
	f.dispatcher.Limiter.MaxReplies = 1
	require.NoError(t, f.dispatcher.Limiter.Record(context.Background(), core.Participants{"alice.test"}))

	outcome, err := f.dispatcher.OnTimeline(context.Background(), photoPost("at://a/1", "alice", ""), "@alice.test")
	require.NoError(t, err)
	require.Equal(t, OutcomeRateLimited, outcome)
	require.Zero(t, random.calls)
}

func TestSilentModeRunsPipelineWithoutRecording(t *testing.T) {
	f := newDispatcherFixture(t)
	f.dispatcher.SilentMode = true
	f.dispatcher.Limiter.MaxReplies = 1
	post := photoPost("at://a/1", "alice", "", "https://cdn.test/a.jpg")

	for i := 0; i < 2; i++ {
		outcome, err := f.dispatcher.OnMention(context.Background(), post, "@alice.test")
		require.NoError(t, err)
		require.Equal(t, OutcomeSilent, outcome)
	}

	require.Empty(t, f.poster.replies)
	require.Len(t, f.media.fetched, 2)
	require.Len(t, f.transform.params, 2)
	require.Zero(t, f.dispatcher.Limiter.Len())
	require.Empty(t, f.store.saved)

	entries := f.logs.FilterMessage("Silent mode is on. Would've responded").All()
	require.Len(t, entries, 2)
	require.Equal(t, "@alice.test Hello!", entries[0].ContextMap()["text"])
}

func TestReplyNoMedia(t *testing.T) {
	f := newDispatcherFixture(t)

	outcome, err := f.dispatcher.OnMention(context.Background(), photoPost("at://a/1", "alice", ""), "@alice.test")
	require.NoError(t, err)
	require.Equal(t, OutcomeNoMedia, outcome)
	require.Equal(t, 1, f.logs.FilterMessage("Couldn't find any images").Len())
	require.Empty(t, f.poster.replies)
}

func TestReplyMediaGone(t *testing.T) {
	f := newDispatcherFixture(t)
	post := photoPost("at://a/1", "alice", "", "https://cdn.test/deleted.jpg")

	outcome, err := f.dispatcher.OnMention(context.Background(), post, "@alice.test")
	require.NoError(t, err)
	require.Equal(t, OutcomeMediaGone, outcome)
	require.True(t, outcome.Expected())
	require.Empty(t, f.transform.params)
}

func TestReplyMediaTransportFailure(t *testing.T) {
	f := newDispatcherFixture(t)
	f.media.err = errors.New("tls handshake timeout")
	post := photoPost("at://a/1", "alice", "", "https://cdn.test/a.jpg")

	outcome, err := f.dispatcher.OnMention(context.Background(), post, "@alice.test")
	require.Error(t, err)
	require.Equal(t, OutcomeMediaFailed, outcome)
	require.False(t, outcome.Expected())
	require.Empty(t, f.poster.replies)
}

func TestReplyTransformFailure(t *testing.T) {
	f := newDispatcherFixture(t)
	f.transform.err = errors.New("unknown format")
	post := photoPost("at://a/1", "alice", "", "https://cdn.test/a.jpg")

	outcome, err := f.dispatcher.OnMention(context.Background(), post, "@alice.test")
	require.Error(t, err)
	require.Equal(t, OutcomeTransformFailed, outcome)
}

func TestReplyPostFailureDoesNotRecord(t *testing.T) {
	f := newDispatcherFixture(t)
	f.poster.err = errors.New("502 bad gateway")
	post := photoPost("at://a/1", "alice", "", "https://cdn.test/a.jpg")

	outcome, err := f.dispatcher.OnMention(context.Background(), post, "@alice.test")
	require.Error(t, err)
	require.Equal(t, OutcomePostFailed, outcome)
	require.Zero(t, f.dispatcher.Limiter.Len())
}

func TestReplyUsesParentImage(t *testing.T) {
	f := newDispatcherFixture(t)
	f.posts.posts["at://b/1"] = photoPost("at://b/1", "bob", "", "https://cdn.test/a.jpg")
	post := photoPost("at://a/1", "alice", "at://b/1")

	outcome, err := f.dispatcher.OnMention(context.Background(), post, "@alice.test")
	require.NoError(t, err)
	require.Equal(t, OutcomeReplied, outcome)
	require.Equal(t, []core.MediaLocator{"https://cdn.test/a.jpg"}, f.media.fetched)
}

func TestReplyTextFitsLengthBudget(t *testing.T) {
	f := newDispatcherFixture(t)
	f.dispatcher.MaxReplyLength = 30
	f.dispatcher.Composer.Random = &scriptedRandom{ints: []int{13}}
	post := photoPost("at://a/1", "alice", "", "https://cdn.test/a.jpg")
	prefix := "@alice.test @bob.test"

	outcome, err := f.dispatcher.OnMention(context.Background(), post, prefix)
	require.NoError(t, err)
	require.Equal(t, OutcomeReplied, outcome)
	require.LessOrEqual(t, utf8.RuneCountInString(f.poster.replies[0].Text), 30)
}

func TestReplyPrefixLongerThanBudget(t *testing.T) {
	f := newDispatcherFixture(t)
	f.dispatcher.MaxReplyLength = 10
	post := photoPost("at://a/1", "alice", "", "https://cdn.test/a.jpg")

	_, err := f.dispatcher.OnMention(context.Background(), post, "@alice.test")
	require.NoError(t, err)
	require.Equal(t, "@alice.test ", f.poster.replies[0].Text)
}

package engine

import (
	"context"
	"fmt"

	"github.com/wordpadbot/wordpadbot/internal/core"
)

// scriptedRandom replays fixed draws; it repeats the last value when exhausted.
type scriptedRandom struct {
	floats []float64
	ints   []int
	calls  int
}

func (s *scriptedRandom) Float64() float64 {
	s.calls++
	if len(s.floats) == 0 {
		return 0
	}
	v := s.floats[0]
	if len(s.floats) > 1 {
		s.floats = s.floats[1:]
	}
	return v
}

func (s *scriptedRandom) IntN(n int) int {
	if len(s.ints) == 0 {
		return 0
	}
	v := s.ints[0]
	if len(s.ints) > 1 {
		s.ints = s.ints[1:]
	}
	return v % n
}

type memoryStateStore struct {
	saved []core.EventLog
	err   error
}

func (m *memoryStateStore) SaveEventLog(ctx context.Context, log core.EventLog) error {
	if m.err != nil {
		return m.err
	}
	snapshot := make(core.EventLog, len(log))
	copy(snapshot, log)
	m.saved = append(m.saved, snapshot)
	return nil
}

type fakePosts struct {
	posts   map[string]*core.Post
	errs    map[string]error
	fetched []string
}

func (f *fakePosts) GetPost(ctx context.Context, uri string) (*core.Post, error) {
	f.fetched = append(f.fetched, uri)
	if err, ok := f.errs[uri]; ok {
		return nil, err
	}
	post, ok := f.posts[uri]
	if !ok {
		return nil, fmt.Errorf("%s: %w", uri, core.ErrPostNotFound)
	}
	return post, nil
}

type fakeMedia struct {
	data    map[core.MediaLocator][]byte
	err     error
	fetched []core.MediaLocator
}

func (f *fakeMedia) Fetch(ctx context.Context, locator core.MediaLocator) ([]byte, error) {
	f.fetched = append(f.fetched, locator)
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.data[locator]
	if !ok {
		return nil, core.ErrMediaNotFound
	}
	return data, nil
}

type fakeTransformer struct {
	params []core.TransformParams
	err    error
}

func (f *fakeTransformer) Transform(data []byte, params core.TransformParams) ([]byte, error) {
	f.params = append(f.params, params)
	if f.err != nil {
		return nil, f.err
	}
	return append([]byte("wordpad:"), data...), nil
}

type fakePoster struct {
	replies []core.Reply
	err     error
}

func (f *fakePoster) PostReply(ctx context.Context, reply core.Reply) error {
	if f.err != nil {
		return f.err
	}
	f.replies = append(f.replies, reply)
	return nil
}

func photoPost(uri string, author string, parent string, photos ...string) *core.Post {
	post := &core.Post{
		Link:   core.PostLink{URI: uri, CID: "cid-" + uri},
		Author: core.Author{ID: "did:plc:" + author, Handle: author + ".test", DisplayName: author},
		Text:   "look at this",
	}
	for _, photo := range photos {
		post.Attachments = append(post.Attachments, core.Attachment{Kind: core.MediaKindPhoto, Locator: core.MediaLocator(photo)})
	}
	if parent != "" {
		post.Parent = &core.PostLink{URI: parent, CID: "cid-" + parent}
	}
	return post
}

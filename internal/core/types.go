package core

import "time"

// MediaKind identifies the type of an attachment on a post.
type MediaKind string

const (
	MediaKindPhoto MediaKind = "photo"
	MediaKindVideo MediaKind = "video"
	MediaKindOther MediaKind = "other"
)

// MediaLocator is an opaque reference (a URL) to a single image.
type MediaLocator string

// Attachment is a single media item attached to a post.
type Attachment struct {
	Kind    MediaKind    `json:"kind"`
	Locator MediaLocator `json:"locator"`
	Alt     string       `json:"alt,omitempty"`
}

// PostLink is a strong reference to another post.
type PostLink struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// IsZero reports whether the link points nowhere.
func (l *PostLink) IsZero() bool {
	return l == nil || l.URI == ""
}

// Author identifies the account that wrote a post.
type Author struct {
	ID          string `json:"id"`
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name,omitempty"`
}

// Name returns the display name, falling back to the handle.
func (a Author) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Handle
}

// Post is the read-only view of a network post used by the engine.
type Post struct {
	Link PostLink `json:"link"`
	// URL is the public web address of the post, used for log lines.
	URL         string       `json:"url,omitempty"`
	Author      Author       `json:"author"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
	// Parent is nil when the post is not a reply.
	Parent *PostLink `json:"parent,omitempty"`
	// Root is the thread root; nil for top-level posts.
	Root *PostLink `json:"root,omitempty"`
	// Mentions lists the accounts mentioned in the text, in text order.
	Mentions  []Mention `json:"mentions,omitempty"`
	IsRepost  bool      `json:"is_repost,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Mention is an account referenced from post text.
type Mention struct {
	Handle string `json:"handle"`
	ID     string `json:"id"`
}

// MentionedHandles returns the handles of Mentions in text order.
func (p *Post) MentionedHandles() []string {
	if p == nil {
		return nil
	}
	out := make([]string, 0, len(p.Mentions))
	for _, m := range p.Mentions {
		out = append(out, m.Handle)
	}
	return out
}

// MentionsID reports whether the post mentions the account.
func (p *Post) MentionsID(id string) bool {
	if p == nil || id == "" {
		return false
	}
	for _, m := range p.Mentions {
		if m.ID == id {
			return true
		}
	}
	return false
}

// Photos returns the locators of photo attachments in network order.
func (p *Post) Photos() []MediaLocator {
	if p == nil {
		return nil
	}
	out := make([]MediaLocator, 0, len(p.Attachments))
	for _, a := range p.Attachments {
		if a.Kind == MediaKindPhoto && a.Locator != "" {
			out = append(out, a.Locator)
		}
	}
	return out
}

// Ref returns a human-friendly reference for log lines.
func (p *Post) Ref() string {
	if p == nil {
		return ""
	}
	if p.URL != "" {
		return p.URL
	}
	return p.Link.URI
}

// ThreadRoot returns the root reference a reply to this post must carry.
func (p *Post) ThreadRoot() PostLink {
	if p.Root != nil && !p.Root.IsZero() {
		return *p.Root
	}
	return p.Link
}

// TransformParams are the parameters passed to the image transform.
type TransformParams struct {
	MaxWidth  int  `json:"max_width"`
	MaxHeight int  `json:"max_height"`
	Rotate    bool `json:"rotate"`
}

// Reply is an outgoing reply with an attached image.
type Reply struct {
	Text     string
	ReplyTo  *Post
	Image    []byte
	ImageAlt string
}

// Event is an incoming mention or timeline candidate.
type Event struct {
	Post   *Post
	Prefix string
}

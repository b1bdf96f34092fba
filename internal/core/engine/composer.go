package engine

import (
	"strings"
	"unicode/utf8"

	"github.com/wordpadbot/wordpadbot/internal/core"
)

// AuthorPlaceholder is replaced with the post author's display name.
const AuthorPlaceholder = "{author}"

// DefaultMaxImageSize bounds both image dimensions handed to the transform.
const DefaultMaxImageSize = 1024

// Salutations is the fixed catalogue of reply texts.
var Salutations = []string{
	"Hello!",
	"Hello " + AuthorPlaceholder + "!",
	"Thank you!",
	"Thank you, " + AuthorPlaceholder + "!",
	"Fixed it!",
	"Oh no!",
	"WordPad! WordPad.",
	"Is this OK?",
	"Is this OK, " + AuthorPlaceholder + "?",
	"Check it out!",
	"Hahahaha! Haha.",
	"Let’s rock!",
	"(◕‿◕✿)",
	"ヽ(*・ω・)ﾉ",
}

// Composer picks reply text and image transform parameters.
type Composer struct {
	Templates         []string
	Random            RandomSource
	RotateProbability float64
	MaxImageSize      int
}

// Salutation resolves every template against the post and picks one at random
// among those no longer than maxLen runes. It returns "" when none fit.
func (c *Composer) Salutation(post *core.Post, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}

	name := ""
	if post != nil {
		name = post.Author.Name()
	}

	candidates := make([]string, 0, len(c.templates()))
	for _, template := range c.templates() {
		candidate := strings.ReplaceAll(template, AuthorPlaceholder, name)
		if utf8.RuneCountInString(candidate) > maxLen {
			continue
		}
		candidates = append(candidates, candidate)
	}

	if len(candidates) == 0 {
		return ""
	}
	return candidates[c.random().IntN(len(candidates))]
}

// ComposeText returns the mention prefix, a space, and a salutation of at most
// maxLen runes. The space is present even when no salutation fits.
func (c *Composer) ComposeText(post *core.Post, prefix string, maxLen int) string {
	return prefix + " " + c.Salutation(post, maxLen)
}

// TransformParams decides the size cap and flips the rotation coin.
func (c *Composer) TransformParams() core.TransformParams {
	size := c.MaxImageSize
	if size <= 0 {
		size = DefaultMaxImageSize
	}
	return core.TransformParams{
		MaxWidth:  size,
		MaxHeight: size,
		Rotate:    roll(c.random(), c.RotateProbability),
	}
}

func (c *Composer) templates() []string {
	if c.Templates == nil {
		return Salutations
	}
	return c.Templates
}

func (c *Composer) random() RandomSource {
	if c.Random == nil {
		c.Random = NewRandomSource(0)
	}
	return c.Random
}

package core

import "strings"

// MentionMarker prefixes a handle in post text.
const MentionMarker = "@"

// Participants is the set of handles a reply is addressed to. Duplicates are
// tolerated and have no effect on rate limiting.
type Participants []string

// Contains reports whether the handle is part of the set.
func (p Participants) Contains(handle string) bool {
	for _, candidate := range p {
		if candidate == handle {
			return true
		}
	}
	return false
}

// Unique returns the participants with duplicates removed, first occurrence wins.
func (p Participants) Unique() Participants {
	seen := make(map[string]struct{}, len(p))
	out := make(Participants, 0, len(p))
	for _, handle := range p {
		if _, ok := seen[handle]; ok {
			continue
		}
		seen[handle] = struct{}{}
		out = append(out, handle)
	}
	return out
}

// ExtractParticipants splits a mention prefix on whitespace and strips one
// leading mention marker from each token. Tokens are otherwise passed through.
func ExtractParticipants(prefix string) Participants {
	fields := strings.Fields(prefix)
	out := make(Participants, 0, len(fields))
	for _, field := range fields {
		out = append(out, strings.TrimPrefix(field, MentionMarker))
	}
	return out
}

// MentionPrefix builds the leading "@a @b" prefix for a reply: the author
// first, then every other mentioned handle, skipping self and repeats.
func MentionPrefix(author string, mentioned []string, self string) string {
	seen := map[string]struct{}{}
	if self != "" {
		seen[strings.ToLower(self)] = struct{}{}
	}

	parts := make([]string, 0, len(mentioned)+1)
	for _, handle := range append([]string{author}, mentioned...) {
		handle = strings.TrimPrefix(strings.TrimSpace(handle), MentionMarker)
		if handle == "" {
			continue
		}
		key := strings.ToLower(handle)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		parts = append(parts, MentionMarker+handle)
	}
	return strings.Join(parts, " ")
}

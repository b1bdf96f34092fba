// Package appid holds the application identity used for CLI help text,
// config discovery and the environment variable prefix.
package appid

import "context"

// Identity describes the application to the CLI and config layers.
type Identity struct {
	BinaryName  string
	ConfigName  string
	EnvPrefix   string
	Description string
	// UserAgent is sent on every outbound HTTP request.
	UserAgent string
}

var identity = Identity{
	BinaryName:  "wordpadbot",
	ConfigName:  "wordpadbot",
	EnvPrefix:   "WORDPADBOT_",
	Description: "Replies to Bluesky posts with their picture opened and saved in WordPad",
	UserAgent:   "wordpadbot/1.0 (+https://bsky.app/profile/wordpad.bsky.social)",
}

// Get returns the application identity. The context is accepted for
// symmetry with other loaders and is currently unused.
func Get(ctx context.Context) (*Identity, error) {
	copied := identity
	return &copied, nil
}

// EnvPrefix returns the environment prefix with a trailing underscore.
func EnvPrefix() string {
	return identity.EnvPrefix
}

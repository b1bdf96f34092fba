package core

import "errors"

var (
	// ErrNoMedia means the reply chain was exhausted without finding a photo.
	ErrNoMedia = errors.New("no images found in reply chain")

	// ErrMediaNotFound means the media reference is gone, usually because the
	// post that carried it was deleted.
	ErrMediaNotFound = errors.New("media not found")

	// ErrPostNotFound means the network has no post for a reference.
	ErrPostNotFound = errors.New("post not found")
)

// Package media downloads the image bytes behind a media locator.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/wordpadbot/wordpadbot/internal/core"
)

// DefaultMaxBytes caps a single download.
const DefaultMaxBytes int64 = 20 << 20

// ErrTooLarge is returned when a download exceeds the size cap.
var ErrTooLarge = errors.New("media exceeds size limit")

// Fetcher downloads media over HTTP.
type Fetcher struct {
	Client   *http.Client
	MaxBytes int64
}

// NewFetcher returns a fetcher around client. A nil client uses http.DefaultClient.
func NewFetcher(client *http.Client, maxBytes int64) *Fetcher {
	return &Fetcher{Client: client, MaxBytes: maxBytes}
}

// Fetch returns the bytes behind locator. 404 and 410 responses are reported
// as core.ErrMediaNotFound; any other failure is a wrapped transport error.
func (f *Fetcher) Fetch(ctx context.Context, locator core.MediaLocator) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	target := strings.TrimSpace(string(locator))
	if target == "" {
		return nil, errors.New("media locator is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build media request: %w", err)
	}

	resp, err := f.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch media: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%s: status %d: %w", target, resp.StatusCode, core.ErrMediaNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("fetch media %s: unexpected status %d", target, resp.StatusCode)
	}

	limit := f.maxBytes()
	if resp.ContentLength > limit {
		return nil, fmt.Errorf("%s: %d bytes: %w", target, resp.ContentLength, ErrTooLarge)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read media body: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%s: %w", target, ErrTooLarge)
	}
	return data, nil
}

func (f *Fetcher) client() *http.Client {
	if f == nil || f.Client == nil {
		return http.DefaultClient
	}
	return f.Client
}

func (f *Fetcher) maxBytes() int64 {
	if f == nil || f.MaxBytes <= 0 {
		return DefaultMaxBytes
	}
	return f.MaxBytes
}

package media

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wordpadbot/wordpadbot/internal/core"
	"github.com/wordpadbot/wordpadbot/internal/social/httpclient"
)

func newMediaServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/img/ok.jpg", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("jpeg-bytes"))
	})
	mux.HandleFunc("/img/deleted.jpg", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/img/gone.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	})
	mux.HandleFunc("/img/forbidden.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/img/broken.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/img/huge.jpg", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 2048))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestFetch(t *testing.T) {
	server := newMediaServer(t)
	client := httpclient.New(httpclient.Options{Retries: -1, Timeout: 5 * time.Second})
	fetcher := NewFetcher(client, 1024)
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		data, err := fetcher.Fetch(ctx, core.MediaLocator(server.URL+"/img/ok.jpg"))
		require.NoError(t, err)
		require.Equal(t, []byte("jpeg-bytes"), data)
	})

	for _, path := range []string{"/img/deleted.jpg", "/img/gone.jpg"} {
		t.Run("NotFound"+path, func(t *testing.T) {
			_, err := fetcher.Fetch(ctx, core.MediaLocator(server.URL+path))
			require.ErrorIs(t, err, core.ErrMediaNotFound)
		})
	}

	t.Run("OtherStatusIsTransportError", func(t *testing.T) {
		_, err := fetcher.Fetch(ctx, core.MediaLocator(server.URL+"/img/forbidden.jpg"))
		require.Error(t, err)
		require.False(t, errors.Is(err, core.ErrMediaNotFound))
	})

	t.Run("ServerError", func(t *testing.T) {
		_, err := fetcher.Fetch(ctx, core.MediaLocator(server.URL+"/img/broken.jpg"))
		require.Error(t, err)
		require.False(t, errors.Is(err, core.ErrMediaNotFound))
	})

	t.Run("TooLarge", func(t *testing.T) {
		_, err := fetcher.Fetch(ctx, core.MediaLocator(server.URL+"/img/huge.jpg"))
		require.ErrorIs(t, err, ErrTooLarge)
	})

	t.Run("EmptyLocator", func(t *testing.T) {
		_, err := fetcher.Fetch(ctx, "")
		require.Error(t, err)
	})

	t.Run("ConnectionRefused", func(t *testing.T) {
		closed := httptest.NewServer(http.NotFoundHandler())
		url := closed.URL
		closed.Close()

		_, err := fetcher.Fetch(ctx, core.MediaLocator(url+"/img/ok.jpg"))
		require.Error(t, err)
		require.False(t, errors.Is(err, core.ErrMediaNotFound))
	})
}

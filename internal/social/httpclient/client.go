// Package httpclient builds the retrying HTTP client shared by the network
// and media adapters.
package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const (
	DefaultTimeout      = 20 * time.Second
	DefaultRetries      = 3
	DefaultRetryWaitMin = 1 * time.Second
	DefaultRetryWaitMax = 10 * time.Second
)

// Logger is the subset of the application logger the client reports to.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
}

// Options tune New. Zero values select the defaults; Retries < 0 disables
// retries.
type Options struct {
	Timeout      time.Duration
	Retries      int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	UserAgent    string
	Logger       Logger
	Transport    http.RoundTripper
}

// New returns a stdlib *http.Client with retryablehttp logic inside. It
// retries connection errors and 5xx responses (except 501); 429 is returned
// to the caller.
func New(opts Options) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = DefaultRetries
	switch {
	case opts.Retries > 0:
		retryClient.RetryMax = opts.Retries
	case opts.Retries < 0:
		retryClient.RetryMax = 0
	}
	retryClient.RetryWaitMin = orDefault(opts.RetryWaitMin, DefaultRetryWaitMin)
	retryClient.RetryWaitMax = orDefault(opts.RetryWaitMax, DefaultRetryWaitMax)
	retryClient.CheckRetry = RetryPolicy
	retryClient.Logger = nil
	if opts.Logger != nil {
		retryClient.Logger = retryablehttp.LeveledLogger(leveledZap{inner: opts.Logger})
	}
	if opts.Transport != nil {
		retryClient.HTTPClient.Transport = opts.Transport
	}

	client := retryClient.StandardClient()
	client.Timeout = orDefault(opts.Timeout, DefaultTimeout)
	if opts.UserAgent != "" {
		client.Transport = userAgentTransport{next: client.Transport, userAgent: opts.UserAgent}
	}
	return client
}

// RetryPolicy wraps retryablehttp.DefaultRetryPolicy, treating 429 Too Many
// Requests as final so the caller decides how to back off.
func RetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

type userAgentTransport struct {
	next      http.RoundTripper
	userAgent string
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}
	return t.next.RoundTrip(req)
}

// leveledZap adapts the application logger to retryablehttp. Errors are
// logged as warnings since the request may still succeed on retry.
type leveledZap struct {
	inner Logger
}

func (l leveledZap) Error(msg string, keysAndValues ...interface{}) {
	l.inner.Warn(msg, fields(keysAndValues)...)
}

func (l leveledZap) Warn(msg string, keysAndValues ...interface{}) {
	l.inner.Warn(msg, fields(keysAndValues)...)
}

func (l leveledZap) Info(msg string, keysAndValues ...interface{}) {
	l.inner.Info(msg, fields(keysAndValues)...)
}

func (l leveledZap) Debug(msg string, keysAndValues ...interface{}) {
	l.inner.Debug(msg, fields(keysAndValues)...)
}

func fields(keysAndValues []interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		out = append(out, zap.Any(key, keysAndValues[i+1]))
	}
	return out
}

func orDefault(value, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}

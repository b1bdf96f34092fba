// Package bluesky is the atproto network client used by the bot: session
// management, post lookup, replies with images, notification and timeline
// polling, and follow-back.
package bluesky

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/xrpc"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	DefaultHost         = "https://bsky.social"
	DefaultLoginRetries = 5
	defaultLoginBackoff = 2 * time.Second
	maxLoginBackoff     = time.Minute
)

// ErrNotLoggedIn is returned by calls that need a session before Login.
var ErrNotLoggedIn = errors.New("bluesky: not logged in")

// Logger is the logging surface used by the client.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
}

// Options configure New.
type Options struct {
	Host       string
	Identifier string
	Password   string
	HTTPClient *http.Client
	UserAgent  string
	// LoginRetries is the number of retries after a failed login attempt.
	LoginRetries int
	// LoginBackoff is the first retry interval; it doubles per attempt.
	LoginBackoff time.Duration
	Logger       Logger
	Clock        func() time.Time
}

// Client talks XRPC to a PDS. It is not safe for concurrent use; the poller
// drives it from a single goroutine.
type Client struct {
	xrpc         *xrpc.Client
	identifier   string
	password     string
	loginRetries int
	loginBackoff time.Duration
	logger       Logger
	clock        func() time.Time
}

// New builds a client. Login must be called before any other method.
func New(opts Options) (*Client, error) {
	host := strings.TrimRight(strings.TrimSpace(opts.Host), "/")
	if host == "" {
		host = DefaultHost
	}
	parsed, err := url.Parse(host)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid bluesky host %q", opts.Host)
	}

	client := &xrpc.Client{
		Host:   host,
		Client: opts.HTTPClient,
	}
	if client.Client == nil {
		client.Client = http.DefaultClient
	}
	if opts.UserAgent != "" {
		ua := opts.UserAgent
		client.UserAgent = &ua
	}

	c := &Client{
		xrpc:         client,
		identifier:   strings.TrimPrefix(strings.TrimSpace(opts.Identifier), "@"),
		password:     opts.Password,
		loginRetries: opts.LoginRetries,
		loginBackoff: opts.LoginBackoff,
		logger:       opts.Logger,
		clock:        opts.Clock,
	}
	if c.loginRetries < 0 {
		c.loginRetries = 0
	}
	if c.loginBackoff <= 0 {
		c.loginBackoff = defaultLoginBackoff
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.clock == nil {
		c.clock = func() time.Time { return time.Now().UTC() }
	}
	return c, nil
}

// Login creates a session, retrying transient failures with exponential
// backoff. Rejected credentials fail immediately.
func (c *Client) Login(ctx context.Context) error {
	if c.identifier == "" || c.password == "" {
		return errors.New("bluesky identifier and password are required")
	}

	attempt := 0
	operation := func() error {
		attempt++
		out, err := comatproto.ServerCreateSession(ctx, c.xrpc, &comatproto.ServerCreateSession_Input{
			Identifier: c.identifier,
			Password:   c.password,
		})
		if err != nil {
			if isPermanent(err) {
				return backoff.Permanent(err)
			}
			c.logger.Warn("Login failed",
				zap.String("identifier", c.identifier),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
		c.setSession(out.AccessJwt, out.RefreshJwt, out.Handle, out.Did)
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.loginBackoff
	policy.Multiplier = 2
	policy.MaxInterval = maxLoginBackoff
	policy.MaxElapsedTime = 0
	policy.Reset()

	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.loginRetries)), ctx)
	if err := backoff.Retry(operation, retry); err != nil {
		return fmt.Errorf("login as %s: %w", c.identifier, err)
	}

	c.logger.Info("Logged in", zap.String("handle", c.xrpc.Auth.Handle), zap.String("did", c.xrpc.Auth.Did))
	return nil
}

// Self returns the account DID and handle of the session.
func (c *Client) Self() (did string, handle string) {
	if c == nil || c.xrpc.Auth == nil {
		return "", ""
	}
	return c.xrpc.Auth.Did, c.xrpc.Auth.Handle
}

func (c *Client) setSession(accessJwt, refreshJwt, handle, did string) {
	c.xrpc.Auth = &xrpc.AuthInfo{
		AccessJwt:  accessJwt,
		RefreshJwt: refreshJwt,
		Handle:     handle,
		Did:        did,
	}
}

// refresh exchanges the refresh token for a new session. The refresh token
// is presented as the bearer token for that one call.
func (c *Client) refresh(ctx context.Context) error {
	auth := c.xrpc.Auth
	if auth == nil || auth.RefreshJwt == "" {
		return ErrNotLoggedIn
	}

	accessJwt := auth.AccessJwt
	auth.AccessJwt = auth.RefreshJwt
	out, err := comatproto.ServerRefreshSession(ctx, c.xrpc)
	if err != nil {
		auth.AccessJwt = accessJwt
		return fmt.Errorf("refresh session: %w", err)
	}
	c.setSession(out.AccessJwt, out.RefreshJwt, out.Handle, out.Did)
	c.logger.Debug("Refreshed session", zap.String("did", out.Did))
	return nil
}

// call runs an authenticated request, refreshing the session once if the
// access token has expired.
func (c *Client) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if c.xrpc.Auth == nil {
		return ErrNotLoggedIn
	}
	if ctx == nil {
		ctx = context.Background()
	}

	err := fn(ctx)
	if err == nil || !isExpiredToken(err) {
		return err
	}

	if rerr := c.refresh(ctx); rerr != nil {
		return errors.Join(err, rerr)
	}
	return fn(ctx)
}

func (c *Client) now() time.Time {
	return c.clock()
}

// datetime formats t the way atproto records expect.
func datetime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func isExpiredToken(err error) bool {
	var xe *xrpc.XRPCError
	return errors.As(err, &xe) && xe.ErrStr == "ExpiredToken"
}

// isPermanent reports client errors that retrying will not fix.
func isPermanent(err error) bool {
	var xe *xrpc.Error
	if !errors.As(err, &xe) {
		return false
	}
	return xe.StatusCode >= 400 && xe.StatusCode < 500 && xe.StatusCode != http.StatusTooManyRequests
}

// StatusCode returns the HTTP status of an XRPC failure, or 0.
func StatusCode(err error) int {
	var xe *xrpc.Error
	if errors.As(err, &xe) {
		return xe.StatusCode
	}
	return 0
}

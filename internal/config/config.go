package config

import (
	"errors"
	"fmt"
	"time"
)

// Config represents the complete application configuration.
// Layer 1: built-in defaults (SetDefaults)
// Layer 2: YAML config file (--config or $XDG_CONFIG_HOME/wordpadbot/config.yaml)
// Layer 3: environment variables, including the legacy unprefixed names
type Config struct {
	Bot     BotConfig     `mapstructure:"bot" yaml:"bot"`
	Bluesky BlueskyConfig `mapstructure:"bluesky" yaml:"bluesky"`
	Media   MediaConfig   `mapstructure:"media" yaml:"media"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// BotConfig holds the reply policy. It is read once at startup.
type BotConfig struct {
	// Window is the retention window for recent replies.
	Window time.Duration `mapstructure:"window" yaml:"window"`
	// WindowSeconds overrides Window when positive.
	WindowSeconds int `mapstructure:"window_seconds" yaml:"window_seconds,omitempty"`

	MaxRepliesPerWindow      int     `mapstructure:"max_replies_per_window" yaml:"max_replies_per_window"`
	TimelineReplyProbability float64 `mapstructure:"timeline_reply_probability" yaml:"timeline_reply_probability"`
	RotateProbability        float64 `mapstructure:"rotate_probability" yaml:"rotate_probability"`
	SilentMode               bool    `mapstructure:"silent_mode" yaml:"silent_mode"`
	MaxReplyLength           int     `mapstructure:"max_reply_length" yaml:"max_reply_length"`
	MaxImageSize             int     `mapstructure:"max_image_size" yaml:"max_image_size"`

	// MaxChainDepth caps parent fetches per resolution; negative disables it.
	MaxChainDepth int `mapstructure:"max_chain_depth" yaml:"max_chain_depth"`

	Autofollow            bool `mapstructure:"autofollow" yaml:"autofollow"`
	IgnoreTimelineReposts bool `mapstructure:"ignore_timeline_reposts" yaml:"ignore_timeline_reposts"`

	MentionPollInterval  time.Duration `mapstructure:"mention_poll_interval" yaml:"mention_poll_interval"`
	TimelinePollInterval time.Duration `mapstructure:"timeline_poll_interval" yaml:"timeline_poll_interval"`
	FollowPollInterval   time.Duration `mapstructure:"follow_poll_interval" yaml:"follow_poll_interval"`

	// Seed fixes the random source; zero seeds from the clock.
	Seed uint64 `mapstructure:"seed" yaml:"seed"`
}

// BlueskyConfig contains the account and PDS settings.
type BlueskyConfig struct {
	Host           string        `mapstructure:"host" yaml:"host"`
	Identifier     string        `mapstructure:"identifier" yaml:"identifier"`
	Password       string        `mapstructure:"password" yaml:"-"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	LoginRetries   int           `mapstructure:"login_retries" yaml:"login_retries"`
}

// MediaConfig controls image downloads.
type MediaConfig struct {
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Retries  int           `mapstructure:"retries" yaml:"retries"`
	MaxBytes int64         `mapstructure:"max_bytes" yaml:"max_bytes"`
}

// StoreConfig contains database configuration for libsql/Turso, sqlite or postgres.
type StoreConfig struct {
	Driver    string `mapstructure:"driver" yaml:"driver"`
	Path      string `mapstructure:"path" yaml:"path"`
	URL       string `mapstructure:"url" yaml:"url"`
	AuthToken string `mapstructure:"auth_token" yaml:"-"`
}

// ServerConfig contains the health/metrics HTTP server configuration.
type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled" yaml:"enabled"`
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	// AdminToken enables the authenticated signal endpoint when set.
	AdminToken string `mapstructure:"admin_token" yaml:"-"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED
	Profile string `mapstructure:"profile" yaml:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port" yaml:"port"`
}

// ReplyWindow returns the effective retention window.
func (b BotConfig) ReplyWindow() time.Duration {
	if b.WindowSeconds > 0 {
		return time.Duration(b.WindowSeconds) * time.Second
	}
	return b.Window
}

// Validate checks the values the bot cannot run without.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	var errs []error
	if p := c.Bot.TimelineReplyProbability; p < 0 || p > 1 {
		errs = append(errs, fmt.Errorf("bot.timeline_reply_probability must be within [0,1], got %v", p))
	}
	if p := c.Bot.RotateProbability; p < 0 || p > 1 {
		errs = append(errs, fmt.Errorf("bot.rotate_probability must be within [0,1], got %v", p))
	}
	if c.Bot.ReplyWindow() <= 0 {
		errs = append(errs, errors.New("bot.window must be positive"))
	}
	if c.Bot.MaxRepliesPerWindow < 1 {
		errs = append(errs, fmt.Errorf("bot.max_replies_per_window must be at least 1, got %d", c.Bot.MaxRepliesPerWindow))
	}
	if c.Bot.MaxReplyLength <= 0 {
		errs = append(errs, fmt.Errorf("bot.max_reply_length must be positive, got %d", c.Bot.MaxReplyLength))
	}
	if c.Bot.MaxImageSize <= 0 {
		errs = append(errs, fmt.Errorf("bot.max_image_size must be positive, got %d", c.Bot.MaxImageSize))
	}
	intervals := []struct {
		key   string
		value time.Duration
	}{
		{"bot.mention_poll_interval", c.Bot.MentionPollInterval},
		{"bot.timeline_poll_interval", c.Bot.TimelinePollInterval},
		{"bot.follow_poll_interval", c.Bot.FollowPollInterval},
	}
	for _, interval := range intervals {
		if interval.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", interval.key))
		}
	}
	return errors.Join(errs...)
}

// ValidateCredentials checks the settings needed to talk to the network.
func (c *Config) ValidateCredentials() error {
	var errs []error
	if c.Bluesky.Host == "" {
		errs = append(errs, errors.New("bluesky.host is required"))
	}
	if c.Bluesky.Identifier == "" {
		errs = append(errs, errors.New("bluesky.identifier is required"))
	}
	if c.Bluesky.Password == "" {
		errs = append(errs, errors.New("bluesky.password is required"))
	}
	return errors.Join(errs...)
}

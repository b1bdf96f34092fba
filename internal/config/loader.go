// Package config provides centralized configuration management for wordpadbot.
// Values are layered with viper: built-in defaults, then an optional YAML
// file, then environment variables, then flags. Legacy unprefixed environment
// names from earlier deployments sit just above the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/wordpadbot/wordpadbot/internal/appid"
)

const (
	appName = "wordpadbot"

	// DefaultBlueskyHost is the PDS entryway used when none is configured.
	DefaultBlueskyHost = "https://bsky.social"
)

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// LookupEnv matches os.LookupEnv; tests substitute it.
type LookupEnv func(key string) (string, bool)

// legacyEnv maps unprefixed environment names to config keys.
var legacyEnv = []struct {
	name string
	key  string
	kind string
}{
	{name: "TIMELINE_REPLY_PROBABILITY", key: "bot.timeline_reply_probability", kind: "float"},
	{name: "ROTATE_PROBABILITY", key: "bot.rotate_probability", kind: "float"},
	{name: "SILENT_MODE", key: "bot.silent_mode", kind: "intbool"},
	{name: "DATABASE_URL", key: "store.url", kind: "dburl"},
}

// New returns a viper instance with defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	return v
}

// SetDefaults sets default configuration values
func SetDefaults(v *viper.Viper) {
	// Bot defaults match the reference deployment
	v.SetDefault("bot.window", "20m")
	v.SetDefault("bot.window_seconds", 0)
	v.SetDefault("bot.max_replies_per_window", 3)
	v.SetDefault("bot.timeline_reply_probability", 0.05)
	v.SetDefault("bot.rotate_probability", 0.5)
	v.SetDefault("bot.silent_mode", true)
	v.SetDefault("bot.max_reply_length", 140)
	v.SetDefault("bot.max_image_size", 1024)
	v.SetDefault("bot.max_chain_depth", 32)
	v.SetDefault("bot.autofollow", true)
	v.SetDefault("bot.ignore_timeline_reposts", true)
	v.SetDefault("bot.mention_poll_interval", "30s")
	v.SetDefault("bot.timeline_poll_interval", "60s")
	v.SetDefault("bot.follow_poll_interval", "10m")
	v.SetDefault("bot.seed", 0)

	// Bluesky defaults
	v.SetDefault("bluesky.host", DefaultBlueskyHost)
	v.SetDefault("bluesky.identifier", "")
	v.SetDefault("bluesky.password", "")
	v.SetDefault("bluesky.request_timeout", "20s")
	v.SetDefault("bluesky.login_retries", 5)

	// Media defaults
	v.SetDefault("media.timeout", "20s")
	v.SetDefault("media.retries", 2)
	v.SetDefault("media.max_bytes", 20<<20)

	// Store defaults
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", "")
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	// Server defaults
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.admin_token", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
}

// BindEnv maps {PREFIX}{SECTION}_{KEY} environment variables onto config keys,
// e.g. WORDPADBOT_BOT_SILENT_MODE -> bot.silent_mode.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(strings.TrimSuffix(appid.EnvPrefix(), "_"))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// ApplyLegacyEnv layers the unprefixed environment names of earlier
// deployments over the config file. They rank below flags and prefixed
// variables, so it must run after ReadFile.
func ApplyLegacyEnv(v *viper.Viper, lookup LookupEnv) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	values := map[string]any{}
	for _, legacy := range legacyEnv {
		raw, ok := lookup(legacy.name)
		raw = strings.TrimSpace(raw)
		if !ok || raw == "" {
			continue
		}
		if _, set := lookup(prefixedEnvName(legacy.key)); set {
			continue
		}

		switch legacy.kind {
		case "float":
			value, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", legacy.name, err)
			}
			values[legacy.key] = value
		case "intbool":
			value, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", legacy.name, err)
			}
			values[legacy.key] = value != 0
		case "dburl":
			values[legacy.key] = raw
			if _, set := lookup(prefixedEnvName("store.driver")); !set && isPostgresURL(raw) {
				values["store.driver"] = "postgres"
			}
		}
	}
	if len(values) == 0 {
		return nil
	}
	return v.MergeConfigMap(nestKeys(values))
}

// nestKeys turns {"a.b": x} into {"a": {"b": x}}, the shape viper merges.
func nestKeys(flat map[string]any) map[string]any {
	nested := map[string]any{}
	for key, value := range flat {
		parts := strings.Split(key, ".")
		node := nested
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = value
	}
	return nested
}

// ReadFile reads the YAML config file. An explicit path must exist; otherwise
// the XDG config dir and ./config are searched and a missing file is fine.
// It returns the file used, or "".
func ReadFile(v *viper.Viper, explicit string) (string, error) {
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		if dir := gfconfig.GetAppConfigDir(appName); dir != "" {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath("./config")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit == "" && errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("read config file: %w", err)
	}
	return v.ConfigFileUsed(), nil
}

// Load decodes v into a validated Config and makes it the current config.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = New()
	}

	cfg := &Config{}
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	if cfg.Store.URL == "" && cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	setConfig(cfg)
	return cfg, nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := gfconfig.GetAppConfigDir(appName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	return gfconfig.GetAppDataDir(appName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	dataDir := DefaultDataDir()
	if strings.TrimSpace(dataDir) == "" {
		return "./" + appName + ".db"
	}
	return filepath.Join(dataDir, appName+".db")
}

func prefixedEnvName(key string) string {
	return appid.EnvPrefix() + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func isPostgresURL(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://")
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/wordpadbot/wordpadbot/internal/appid"
	"github.com/wordpadbot/wordpadbot/internal/config"
	errwrap "github.com/wordpadbot/wordpadbot/internal/errors"
	"github.com/wordpadbot/wordpadbot/internal/observability"
)

var (
	cfgFile string
	verbose bool

	// settings is the layered viper instance every command reads from.
	settings *viper.Viper

	appIdentity *appid.Identity

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// GetAppIdentity returns the loaded app identity.
func GetAppIdentity() *appid.Identity {
	if appIdentity == nil {
		identity, _ := appid.Get(context.Background())
		appIdentity = identity
	}
	return appIdentity
}

var rootCmd = &cobra.Command{
	Use:   filepath.Base(os.Args[0]),
	Short: "WordPad bot",
	Long: `Replies to Bluesky posts with their picture opened and saved in WordPad.

Use "run" to start the bot and the admin subcommands to inspect its state.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Disable global telemetry until run initializes the exporter.
	if sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false}); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	if identity := GetAppIdentity(); identity != nil {
		rootCmd.Use = identity.BinaryName
		rootCmd.Short = identity.Description
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/wordpadbot/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
}

// initConfig sets up the CLI logger and the layered settings. Decoding and
// validation happen later in loadConfig so that commands which do not need
// a valid bot config still run.
func initConfig() {
	identity := GetAppIdentity()
	observability.InitCLILogger(identity.BinaryName, verbose)

	settings = config.New()
	used, err := config.ReadFile(settings, cfgFile)
	if err != nil {
		ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Failed to read config file", err)
	}
	if used != "" {
		observability.CLILogger.Debug("Using config file", zap.String("path", used))
	} else {
		observability.CLILogger.Debug("No config file found, using defaults and environment variables")
	}

	if err := config.ApplyLegacyEnv(settings, os.LookupEnv); err != nil {
		ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Invalid legacy environment variable", err)
	}
}

// loadConfig decodes and validates the settings.
func loadConfig(ctx context.Context) (*config.Config, error) {
	if settings == nil {
		settings = config.New()
	}
	cfg, err := config.Load(settings)
	if err != nil {
		return nil, errwrap.WrapConfigInvalid(ctx, err, fmt.Sprintf("invalid configuration: %v", err))
	}
	return cfg, nil
}

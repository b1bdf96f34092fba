package cmd

import (
	"context"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wordpadbot/wordpadbot/internal/config"
	"github.com/wordpadbot/wordpadbot/internal/core"
	"github.com/wordpadbot/wordpadbot/internal/core/engine"
	errwrap "github.com/wordpadbot/wordpadbot/internal/errors"
	"github.com/wordpadbot/wordpadbot/internal/imaging"
	"github.com/wordpadbot/wordpadbot/internal/metrics"
	"github.com/wordpadbot/wordpadbot/internal/observability"
	"github.com/wordpadbot/wordpadbot/internal/poller"
	"github.com/wordpadbot/wordpadbot/internal/server"
	"github.com/wordpadbot/wordpadbot/internal/server/handlers"
	"github.com/wordpadbot/wordpadbot/internal/social/bluesky"
	"github.com/wordpadbot/wordpadbot/internal/social/httpclient"
	"github.com/wordpadbot/wordpadbot/internal/social/media"
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.New(errwrap.CodeInternal, "telemetry system not initialized")
	}
	return nil
}

// timedTransformer records the duration of every successful transform.
type timedTransformer struct {
	inner engine.ImageTransformer
}

func (t timedTransformer) Transform(data []byte, params core.TransformParams) ([]byte, error) {
	start := time.Now()
	out, err := t.inner.Transform(data, params)
	if err == nil {
		metrics.RecordImageTransform(time.Since(start))
	}
	return out, err
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot",
	Long: `Log in to Bluesky and answer mentions (and a random share of the home
timeline) with the picture opened and saved in WordPad.

A status server with health probes, /status and /metrics runs alongside the
bot unless server.enabled is false.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit

Silent mode is on by default: replies are composed and logged but not posted.
Pass --silent=false (or set bot.silent_mode: false) to go live.`,
	RunE: runBot,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("host", "localhost", "status server host")
	runCmd.Flags().IntP("port", "p", 8080, "status server port")
	runCmd.Flags().Bool("silent", true, "log replies instead of posting them")
}

func bindRunFlags(cmd *cobra.Command) {
	if settings == nil {
		return
	}
	_ = settings.BindPFlag("server.host", cmd.Flags().Lookup("host"))
	_ = settings.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	_ = settings.BindPFlag("bot.silent_mode", cmd.Flags().Lookup("silent"))
}

func runBot(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	bindRunFlags(cmd)
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if err := cfg.ValidateCredentials(); err != nil {
		return errwrap.WrapConfigInvalid(ctx, err, "bluesky credentials are incomplete")
	}

	identity := GetAppIdentity()
	observability.InitServerLogger(identity.BinaryName, cfg.Logging.Level, "bot")
	logger := observability.ServerLogger

	if cfg.Metrics.Enabled {
		if err := observability.InitMetrics(identity.BinaryName, cfg.Metrics.Port); err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
		}
		metrics.SetServerStartTime(time.Now().Unix())
	}

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close() // nolint:errcheck // best-effort cleanup

	state, err := db.LoadBotState(ctx)
	if err != nil {
		return errwrap.WrapDatabaseError(ctx, err, "failed to load bot state")
	}
	limiter := engine.NewReplyLimiter(state, db, cfg.Bot.ReplyWindow(), cfg.Bot.MaxRepliesPerWindow)

	client, err := bluesky.New(bluesky.Options{
		Host:       cfg.Bluesky.Host,
		Identifier: cfg.Bluesky.Identifier,
		Password:   cfg.Bluesky.Password,
		// createRecord is not idempotent; login retries are handled by the client
		HTTPClient: httpclient.New(httpclient.Options{
			Timeout:   cfg.Bluesky.RequestTimeout,
			Retries:   -1,
			UserAgent: identity.UserAgent,
		}),
		UserAgent:    identity.UserAgent,
		LoginRetries: cfg.Bluesky.LoginRetries,
		Logger:       logger,
	})
	if err != nil {
		return errwrap.WrapConfigInvalid(ctx, err, "invalid bluesky settings")
	}

	logger.Info("Logging in", zap.String("host", cfg.Bluesky.Host), zap.String("identifier", cfg.Bluesky.Identifier))
	if err := client.Login(ctx); err != nil {
		return errwrap.WrapExternalService(ctx, err, "bluesky login failed")
	}
	selfID, selfHandle := client.Self()

	fetcher := media.NewFetcher(httpclient.New(httpclient.Options{
		Timeout:   cfg.Media.Timeout,
		Retries:   cfg.Media.Retries,
		UserAgent: identity.UserAgent,
		Logger:    logger,
	}), cfg.Media.MaxBytes)

	random := engine.NewRandomSource(cfg.Bot.Seed)
	dispatcher := &engine.Dispatcher{
		Limiter: limiter,
		Resolver: &engine.MediaResolver{
			Posts:      client,
			SelfID:     selfID,
			SelfHandle: selfHandle,
			MaxDepth:   cfg.Bot.MaxChainDepth,
			Logger:     logger,
		},
		Composer: &engine.Composer{
			Random:            random,
			RotateProbability: cfg.Bot.RotateProbability,
			MaxImageSize:      cfg.Bot.MaxImageSize,
		},
		Media:                    fetcher,
		Transformer:              timedTransformer{inner: imaging.Transformer{}},
		Poster:                   client,
		Random:                   random,
		Logger:                   logger,
		TimelineReplyProbability: cfg.Bot.TimelineReplyProbability,
		SilentMode:               cfg.Bot.SilentMode,
		MaxReplyLength:           cfg.Bot.MaxReplyLength,
		OnOutcome: func(source engine.Source, outcome engine.Outcome) {
			metrics.RecordOutcome(string(source), string(outcome))
			metrics.SetRecentReplies(limiter.Len())
		},
	}

	poll := &poller.Poller{
		Network:               client,
		Handler:               dispatcher,
		Cursors:               db,
		Logger:                logger,
		SelfID:                selfID,
		SelfHandle:            selfHandle,
		MentionInterval:       cfg.Bot.MentionPollInterval,
		TimelineInterval:      cfg.Bot.TimelinePollInterval,
		FollowInterval:        cfg.Bot.FollowPollInterval,
		Timeline:              cfg.Bot.TimelineReplyProbability > 0,
		Autofollow:            cfg.Bot.Autofollow,
		IgnoreTimelineReposts: cfg.Bot.IgnoreTimelineReposts,
	}

	logger.Info("Bot ready",
		zap.String("handle", selfHandle),
		zap.String("did", selfID),
		zap.String("version", versionInfo.Version),
		zap.Bool("silent_mode", cfg.Bot.SilentMode),
		zap.Duration("window", cfg.Bot.ReplyWindow()),
		zap.Int("max_replies_per_window", cfg.Bot.MaxRepliesPerWindow),
		zap.Int("recent_replies", limiter.Len()))

	var srv *server.Server
	errChan := make(chan error, 2)
	if cfg.Server.Enabled {
		hm := handlers.NewHealthManager(versionInfo.Version)
		hm.RegisterChecker("store", db)
		hm.RegisterChecker("poller", poll)
		if cfg.Metrics.Enabled {
			hm.RegisterChecker("telemetry", telemetryHealthChecker{})
		}

		srv = server.New(server.Options{
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
			Health:       hm,
			Status:       newStatusSource(db, poll, selfHandle, cfg.Bot),
			AdminToken:   cfg.Server.AdminToken,
		})

		go func() {
			logger.Info("Starting status server...",
				zap.String("host", cfg.Server.Host),
				zap.Int("port", cfg.Server.Port))
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()
	}

	registerShutdown(cancel, srv, cfg)

	go func() {
		if err := signals.Listen(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Signal handler error", zap.Error(err))
			errChan <- err
		}
	}()

	pollDone := make(chan error, 1)
	go func() { pollDone <- poll.Run(ctx) }()

	select {
	case err := <-errChan:
		cancel()
		<-pollDone
		shutdownServer(srv, cfg.Server.ShutdownTimeout)
		return errwrap.WrapInternal(ctx, err, "bot stopped on error")
	case err := <-pollDone:
		shutdownServer(srv, cfg.Server.ShutdownTimeout)
		if err != nil {
			return errwrap.WrapInternal(ctx, err, "poller failed")
		}
		logger.Info("Bot stopped")
		return nil
	}
}

// registerShutdown wires graceful stop into gofulmen signals. Handlers run
// in LIFO order: stop the poller and server first, flush the logger last.
func registerShutdown(cancel context.CancelFunc, srv *server.Server, cfg *config.Config) {
	logger := observability.ServerLogger

	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Flushing logger...")
		if err := logger.Sync(); err != nil {
			logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
		}
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Stopping poller and status server...")
		cancel()
		shutdownServer(srv, cfg.Server.ShutdownTimeout)
		return nil
	})

	signals.OnReload(func(ctx context.Context) error {
		logger.Info("Received SIGHUP: bot settings are read once at startup, restart to apply changes")
		return nil
	})

	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}
}

func shutdownServer(srv *server.Server, timeout time.Duration) {
	if srv == nil {
		return
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		observability.ServerLogger.Warn("Status server shutdown failed", zap.Error(err))
	}
}

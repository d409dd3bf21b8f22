package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/mitchins/SmolRouter/pkg/cli"
	"github.com/mitchins/SmolRouter/pkg/config"
	"github.com/mitchins/SmolRouter/pkg/dispatch"
	"github.com/mitchins/SmolRouter/pkg/logsink"
	"github.com/mitchins/SmolRouter/pkg/quota"
	"github.com/mitchins/SmolRouter/pkg/server"
	"github.com/mitchins/SmolRouter/pkg/telemetry/health"
	"github.com/mitchins/SmolRouter/pkg/telemetry/logging"
	"github.com/mitchins/SmolRouter/pkg/telemetry/metrics"
	"github.com/mitchins/SmolRouter/pkg/telemetry/tracing"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	watch         bool
	dryRun        bool
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the router",
		Long: `Start the router with the specified configuration.

Examples:
  # Start with the default config.yaml
  smolrouter run

  # Reload routes, aliases and providers when the file changes
  smolrouter run --config /etc/smolrouter/config.yaml --watch

  # Override the listen address
  smolrouter run --listen 0.0.0.0:11434

  # Build everything but do not listen
  smolrouter run --dry-run`,
		RunE: runServer,
	}

	cmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	cmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	cmd.Flags().BoolVarP(&runFlags.watch, "watch", "w", false, "reload the config file when it changes")
	cmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config and build the router without starting it")
	return cmd
}

func applyRunOverrides(cfg *config.Config) {
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunOverrides(cfg)

	logger, err := logging.New(logging.Config{
		Level:         cfg.Telemetry.Logging.Level,
		Format:        cfg.Telemetry.Logging.Format,
		AddSource:     cfg.Telemetry.Logging.AddSource,
		RedactSecrets: cfg.Telemetry.Logging.Redacting(),
	})
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}
	// Components capture slog.Default() when they are built.
	logger.SetDefault()

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	tracer, err := tracing.New(tracing.Config{
		Enabled:     cfg.Telemetry.Tracing.Enabled,
		Sampler:     cfg.Telemetry.Tracing.Sampler,
		SampleRatio: cfg.Telemetry.Tracing.SampleRatio,
		Endpoint:    cfg.Telemetry.Tracing.Endpoint,
		Insecure:    cfg.Telemetry.Tracing.Insecure,
		Timeout:     cfg.Telemetry.Tracing.Timeout,
		ServiceName: cfg.Telemetry.Tracing.ServiceName,
		Version:     Version,
	})
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer shutdownWithTimeout(tracer.Shutdown)

	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)

	sink, blobs, closeLog, err := openRequestLog(cfg)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer closeLog()

	ledger := quota.NewLedger()
	engine, err := dispatch.New(cfg, dispatch.Options{
		Ledger:   ledger,
		Sink:     sink,
		Blobs:    blobs,
		Observer: collector,
	})
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}

	sources := metrics.Sources{Ledger: ledger, Failovers: engine.FailoverStats()}
	checker := health.New(0)
	checker.RegisterCheck("routing", health.RoutingCheck(engine.Snapshot))
	checker.RegisterCheck("quota", health.QuotaCheck(ledger))
	if sq, ok := sink.(*logsink.SQLiteSink); ok {
		sources.Dropped = sq.Dropped
		checker.RegisterCheck("logsink", health.PingCheck(sq))
	}
	collector.Watch(sources)

	p := cli.NewPrinter(cmd.OutOrStdout(), noColor)
	printBanner(p, cfg, engine.Snapshot())

	if runFlags.dryRun {
		p.Success("Configuration valid, not starting (--dry-run)")
		return nil
	}

	sweeper := quota.NewSweeper(ledger, cfg.Quota.SweepSchedule)
	if err := sweeper.Start(ctx); err != nil {
		return cli.NewConfigError(cfgFile, err)
	}
	defer sweeper.Stop()

	if runFlags.watch {
		watcher, err := config.NewWatcher(cfgFile, 0)
		if err != nil {
			return cli.NewCommandError("run", err)
		}
		defer watcher.Stop()
		go func() {
			if err := watcher.Watch(ctx, reloadFunc(engine, logger)); err != nil {
				slog.Error("config watcher stopped", "error", err)
			}
		}()
	}

	srv := server.NewServer(cfg.Server, server.Dependencies{
		Engine:      engine,
		Metrics:     collector,
		MetricsPath: cfg.Telemetry.Metrics.Path,
		Health:      checker,
		Version:     Version,
		Commit:      GitCommit,
		BuildTime:   BuildDate,
	})
	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	return nil
}

// openRequestLog builds the request log sink and blob store from cfg. The
// returned func closes whatever was opened.
func openRequestLog(cfg *config.Config) (logsink.Sink, logsink.BlobStore, func(), error) {
	var (
		sink    logsink.Sink      = logsink.NopSink{}
		blobs   logsink.BlobStore = logsink.NopBlobStore{}
		closers []func() error
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				slog.Warn("failed to close request log", "error", err)
			}
		}
	}

	if cfg.LogSink.Enabled {
		sq, err := logsink.NewSQLiteSink(logsink.SQLiteConfig{
			Path:       cfg.LogSink.SQLitePath,
			BufferSize: cfg.LogSink.BufferSize,
		})
		if err != nil {
			return nil, nil, closeAll, fmt.Errorf("failed to open request log: %w", err)
		}
		sink = sq
		closers = append(closers, sq.Close)
	}

	if cfg.Blobs.Enabled {
		fb, err := logsink.NewFilesystemBlobStore(cfg.Blobs.Dir, cfg.Blobs.MaxSize)
		if err != nil {
			closeAll()
			return nil, nil, func() {}, fmt.Errorf("failed to open blob store: %w", err)
		}
		blobs = fb
		closers = append(closers, fb.Close)
	}

	return sink, blobs, closeAll, nil
}

// reloadFunc re-reads the config file and swaps the engine's snapshot. A
// bad file leaves the running configuration in place.
func reloadFunc(engine *dispatch.Engine, logger *logging.Logger) func() error {
	return func() error {
		cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
		if err != nil {
			return err
		}
		applyRunOverrides(cfg)
		if err := engine.Reload(cfg); err != nil {
			return err
		}
		if err := logger.SetLevel(cfg.Telemetry.Logging.Level); err != nil {
			slog.Warn("ignoring log level from reloaded config", "error", err)
		}
		slog.Info("configuration reloaded",
			"routes", len(cfg.Routes),
			"aliases", len(cfg.Aliases),
			"providers", len(cfg.Providers),
		)
		return nil
	}
}

func shutdownWithTimeout(fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		slog.Warn("shutdown error", "error", err)
	}
}

func printBanner(p *cli.Printer, cfg *config.Config, snap *dispatch.Snapshot) {
	p.Heading("SmolRouter %s", Version)
	p.Field("listen", cfg.Server.ListenAddress)
	if snap.DefaultUpstream != "" {
		p.Field("default upstream", snap.DefaultUpstream)
	}
	p.Field("routes", len(cfg.Routes))
	p.Field("aliases", len(snap.Aliases.Names()))
	p.Field("providers", fmt.Sprintf("%d (%d enabled)", snap.Registry.Len(), len(snap.Registry.Enabled())))
	if cfg.Telemetry.Metrics.IsEnabled() {
		p.Field("metrics", cfg.Telemetry.Metrics.Path)
	}
	if cfg.LogSink.Enabled {
		p.Field("request log", cfg.LogSink.SQLitePath)
	}
}

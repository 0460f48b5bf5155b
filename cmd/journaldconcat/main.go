// Package main implements the journaldconcat daemon. It reads Docker
// journald log batches from NATS, joins partial messages and publishes the
// merged records.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/c360/journaldconcat/component"
	"github.com/c360/journaldconcat/componentregistry"
	"github.com/c360/journaldconcat/config"
	"github.com/c360/journaldconcat/health"
	"github.com/c360/journaldconcat/metric"
	"github.com/c360/journaldconcat/natsclient"
	"github.com/c360/journaldconcat/pkg/retry"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "journaldconcat"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	cliCfg, err := parseFlags(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse flags: %w", err)
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp(fs)
		return nil
	}

	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return err
	}

	logger := setupLogger(os.Stdout,
		firstNonEmpty(cliCfg.LogLevel, cfg.Log.Level),
		firstNonEmpty(cliCfg.LogFormat, cfg.Log.Format))
	slog.SetDefault(logger)

	if cliCfg.Validate {
		logger.Info("Configuration is valid", "config_path", cliCfg.ConfigPath)
		return nil
	}

	logger.Info("Starting journaldconcat",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsRegistry := metric.NewMetricsRegistry()

	natsClient, err := connectToNATS(ctx, cfg, cliCfg.ShutdownTimeout, metricsRegistry, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cliCfg.ShutdownTimeout)
		defer cancel()
		if err := natsClient.Close(closeCtx); err != nil {
			logger.Warn("Failed to close NATS client", "error", err)
		}
	}()

	monitor := health.NewMonitor()
	monitor.Register("nats", func() health.Status {
		if natsClient.IsHealthy() {
			return health.NewHealthy("nats", "Connected")
		}
		return health.NewUnhealthy("nats", "Disconnected")
	})

	if cfg.Metrics.Enabled {
		server := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, metricsRegistry)
		server.SetHealthHandler(monitor.Handler(appName))
		go func() {
			if err := server.Start(); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
		defer func() { _ = server.Stop() }()
		logger.Info("Metrics server listening", "address", server.Address())
	}

	registry := component.NewRegistry()
	if err := componentregistry.Register(registry); err != nil {
		return fmt.Errorf("register components: %w", err)
	}
	logger.Debug("Component factories registered", "factories", registry.ListComponentTypes())

	deps := component.Dependencies{
		NATSClient:      natsClient,
		MetricsRegistry: metricsRegistry,
		Logger:          logger,
		Platform: component.PlatformMeta{
			Org:      cfg.Platform.Org,
			Platform: cfg.GetPlatform(),
		},
	}
	logger.Info("Platform identity configured",
		"org", deps.Platform.Org,
		"platform", deps.Platform.Platform,
		"environment", cfg.Platform.Environment)

	set, err := createComponents(registry, cfg.Components, deps, logger)
	if err != nil {
		return err
	}
	if len(set.managed) == 0 {
		return fmt.Errorf("no enabled components in %s", cliCfg.ConfigPath)
	}
	set.registerHealth(monitor, metricsRegistry)

	if err := set.startAll(ctx, cliCfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("start components: %w", err)
	}
	logger.Info("journaldconcat started", "components", set.names())

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	if err := set.stopAll(cliCfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("journaldconcat shutdown complete")
	return nil
}

// loadConfig loads the config file with environment overrides, applies
// flag overrides and validates the result
func loadConfig(cliCfg *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	cfg, err := loader.LoadFile(cliCfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cliCfg.MetricsPort > 0 {
		cfg.Metrics.Port = cliCfg.MetricsPort
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newNATSClient builds a client from the nats config section
func newNATSClient(
	cfg *config.Config,
	drainTimeout time.Duration,
	registry *metric.MetricsRegistry,
	logger *slog.Logger,
) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithName(cfg.NATS.ClientName),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithDrainTimeout(drainTimeout),
		natsclient.WithLogger(natsclient.NewSlogLogger(logger)),
		natsclient.WithDisconnectCallback(func(err error) {
			logger.Warn("NATS disconnected", "error", err)
		}),
		natsclient.WithReconnectCallback(func() {
			logger.Info("NATS reconnected")
		}),
		natsclient.WithMetrics(registry),
	}
	if cfg.NATS.ReconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(cfg.NATS.ReconnectWait))
	}
	if cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}

	return natsclient.NewClient(strings.Join(cfg.NATS.URLs, ","), opts...)
}

// connectToNATS connects with startup backoff and waits until the
// connection is ready
func connectToNATS(
	ctx context.Context,
	cfg *config.Config,
	drainTimeout time.Duration,
	registry *metric.MetricsRegistry,
	logger *slog.Logger,
) (*natsclient.Client, error) {
	client, err := newNATSClient(cfg, drainTimeout, registry, logger)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	policy := retry.Startup()
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		logger.Warn("NATS connect failed, retrying",
			"attempt", attempt, "error", err, "wait", wait)
	}

	logger.Info("Connecting to NATS", "urls", cfg.NATS.URLs)
	if err := retry.Do(ctx, policy, client.Connect); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		_ = client.Close(context.Background())
		return nil, fmt.Errorf("NATS connection timeout: %w", err)
	}

	return client, nil
}

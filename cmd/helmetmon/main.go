// Package main is the entry point for helmetmon, the live operator
// monitor for the helmet fatigue prediction service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/spyhelmet/helmetmon/internal/alertsink"
	"github.com/spyhelmet/helmetmon/internal/client"
	"github.com/spyhelmet/helmetmon/internal/config"
	"github.com/spyhelmet/helmetmon/internal/engine"
	"github.com/spyhelmet/helmetmon/internal/hostinfo"
	"github.com/spyhelmet/helmetmon/internal/httpapi"
	"github.com/spyhelmet/helmetmon/internal/metrics"
	"github.com/spyhelmet/helmetmon/internal/models"
	"github.com/spyhelmet/helmetmon/internal/report"
	"github.com/spyhelmet/helmetmon/internal/scheduler"
	"github.com/spyhelmet/helmetmon/internal/service"
)

var (
	// version is set at build time via -ldflags.
	version = "dev"

	configPath  = flag.String("config", "", "Path to configuration file (default: search standard locations)")
	serverURL   = flag.String("server", "", "Prediction service base URL")
	listenAddr  = flag.String("listen", "", "View server listen address")
	writeConfig = flag.String("write-config", "", "Write the effective configuration to this path and exit")
	showVersion = flag.Bool("version", false, "Show version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("helmetmon %s\n", version)
		os.Exit(0)
	}

	cli := config.CLIOverrides{URL: *serverURL, Listen: *listenAddr}
	cfg, err := loadConfig(cli, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if *writeConfig != "" {
		if err := config.WriteConfig(cfg, *writeConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Configuration written to %s\n", *writeConfig)
		os.Exit(0)
	}

	logger := initLogger(cfg)
	defer logger.Sync()

	if service.IsWindowsService() {
		logger.Info("Running as Windows service")
		svc := service.New(logger, func(ctx context.Context) error {
			return run(ctx, cfg, logger)
		})
		if err := svc.Run(); err != nil {
			logger.Error("Service failed", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("Received signal, shutting down",
			zap.String("signal", sig.String()))
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Monitor failed", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Monitor stopped")
}

// loadConfig resolves the layered configuration and validates it. An
// empty path searches the standard locations.
func loadConfig(cli config.CLIOverrides, path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadLayered(cli, embeddedConfig, path)
	} else {
		cfg, err = config.LoadLayered(cli, embeddedConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// run wires all components and blocks until ctx is cancelled. Teardown
// runs in a fixed order: poller, view server, alert sink.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	hostCtx, hostCancel := context.WithTimeout(ctx, 3*time.Second)
	session := models.Session{
		ID:        uuid.New().String(),
		StartedAt: time.Now(),
		Host:      hostinfo.Collect(hostCtx, logger),
	}
	hostCancel()

	logger.Info("Starting helmetmon",
		zap.String("version", version),
		zap.String("session", session.ID),
		zap.String("server", cfg.Server.URL),
		zap.String("host", session.Host.Hostname))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	sink, err := alertsink.New(cfg.Alerts.Kafka, logger.Named("alertsink"))
	if err != nil {
		return fmt.Errorf("creating alert sink: %w", err)
	}

	opts := engine.Options{
		Session:    session,
		Channels:   cfg.ChannelSpecs(),
		StaleAfter: cfg.Poll.StaleAfter.Duration,
		Pulse:      cfg.Poll.Pulse.Duration,
		Recorder:   recorder,
	}
	// A nil *Publisher must not become a non-nil interface.
	if sink != nil {
		opts.Alerts = sink
	}
	eng := engine.New(opts, logger.Named("engine"))

	api := client.New(cfg, logger.Named("client"))
	reports := report.New(api, cfg.Server.ReportTimeout.Duration, recorder, logger.Named("report"))

	sched := scheduler.New(api, eng, scheduler.Options{
		Interval:       cfg.Poll.Interval.Duration,
		RequestTimeout: cfg.Poll.RequestTimeout.Duration,
		Recorder:       recorder,
	}, logger.Named("poller"))

	srvCtx, srvCancel := context.WithCancel(context.Background())
	var (
		wg     sync.WaitGroup
		srvErr error
	)
	if cfg.HTTP.Listen != "" {
		srv := httpapi.New(cfg.HTTP.Listen, eng, reports, reg, logger.Named("http"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(srvCtx); err != nil {
				srvErr = err
				logger.Error("View server failed", zap.Error(err))
			}
		}()
	}

	logger.Info("Monitor running",
		zap.Duration("poll_interval", cfg.Poll.Interval.Duration),
		zap.Duration("request_timeout", cfg.Poll.RequestTimeout.Duration),
		zap.String("listen", cfg.HTTP.Listen))
	sched.Start(ctx)

	<-ctx.Done()

	sched.Stop()
	srvCancel()
	wg.Wait()
	if sink != nil {
		if err := sink.Close(); err != nil {
			logger.Warn("Failed to close alert sink", zap.Error(err))
		}
	}
	return srvErr
}

// initLogger creates a zap logger based on the configuration.
// It outputs to the console and optionally to a JSON log file.
func initLogger(cfg *config.Config) *zap.Logger {
	var level zapcore.Level
	switch cfg.Logging.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.AddSync(os.Stdout),
			level,
		),
	}

	if cfg.Logging.File != "" {
		file, err := os.OpenFile(cfg.Logging.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
		if err == nil {
			cores = append(cores, zapcore.NewCore(
				zapcore.NewJSONEncoder(encoderConfig),
				zapcore.AddSync(file),
				level,
			))
		}
	}

	return zap.New(zapcore.NewTee(cores...))
}

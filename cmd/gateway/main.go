// Package main is the entry point for the mTLS gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vyrodovalexey/avapigw-mtls/internal/config"
	"github.com/vyrodovalexey/avapigw-mtls/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags(os.Args[1:])

	if flags.showVersion {
		printVersion()
		return
	}

	bootstrap := initLogger(observability.LogConfig{
		Level:  valueOr(flags.logLevel, "info"),
		Format: valueOr(flags.logFormat, "json"),
	})

	cfg := loadAndValidateConfig(flags.configPath, bootstrap)

	logCfg := resolveLogConfig(flags, cfg.Gateway.Observability.Logging)
	logger := initLogger(logCfg)
	defer func() { _ = logger.Sync() }()
	observability.InstallOTelDiagnostics(logger, otelVerbosity(logCfg.Level))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		fatalWithSync(logger, "failed to initialize gateway", observability.Error(err))
		return
	}

	if err := app.start(ctx, flags.configPath); err != nil {
		app.shutdown(context.Background())
		fatalWithSync(logger, "failed to start gateway", observability.Error(err))
		return
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go app.handleReloadSignals(ctx, hup)

	<-ctx.Done()
	logger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		cfg.Gateway.Listener.ShutdownTimeout.Duration())
	defer cancel()
	app.shutdown(shutdownCtx)
}

// parseFlags parses command line flags. Unset flags fall back to the
// GATEWAY_* environment variables.
func parseFlags(args []string) cliFlags {
	fs := flag.NewFlagSet("gateway", flag.ExitOnError)
	configPath := fs.String("config", getEnvOrDefault("GATEWAY_CONFIG_PATH", "configs/gateway.yaml"),
		"Path to configuration file")
	logLevel := fs.String("log-level", getEnvOrDefault("GATEWAY_LOG_LEVEL", ""),
		"Log level (debug, info, warn, error); overrides the configuration")
	logFormat := fs.String("log-format", getEnvOrDefault("GATEWAY_LOG_FORMAT", ""),
		"Log format (json, console); overrides the configuration")
	showVersion := fs.Bool("version", false, "Show version information")
	_ = fs.Parse(args)

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("avapigw-mtls version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(cfg observability.LogConfig) observability.Logger {
	logger, err := observability.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// resolveLogConfig applies command line overrides to the configured
// logging section.
func resolveLogConfig(flags cliFlags, cfg observability.LogConfig) observability.LogConfig {
	if flags.logLevel != "" {
		cfg.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Format = flags.logFormat
	}
	return cfg
}

// otelVerbosity passes OpenTelemetry's internal info and debug output
// through only when the gateway logs at debug.
func otelVerbosity(level string) int {
	if level == "debug" {
		return observability.OTelVerbosityDebug
	}
	return observability.OTelVerbosityWarn
}

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig(configPath string, logger observability.Logger) *config.GatewayConfig {
	logger.Info("starting avapigw-mtls",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fatalWithSync(logger, "failed to load configuration", observability.Error(err))
		return nil
	}

	if err := config.ValidateConfig(cfg); err != nil {
		fatalWithSync(logger, "invalid configuration", observability.Error(err))
		return nil
	}

	for _, w := range configWarnings(cfg) {
		logger.Warn(w)
	}

	logger.Info("configuration loaded",
		observability.String("name", cfg.Gateway.Name),
		observability.String("tls_mode", cfg.Gateway.TLS.EffectiveMode().String()),
		observability.String("store", cfg.Gateway.Subscriptions.Store),
		observability.Bool("enforce_subscriptions", cfg.Gateway.Subscriptions.Enforce),
	)

	return cfg
}

// fatalWithSync flushes the logger before exiting.
func fatalWithSync(logger observability.Logger, msg string, fields ...observability.Field) {
	logger.Error(msg, fields...)
	_ = logger.Sync()
	os.Exit(1)
}

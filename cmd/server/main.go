// Package main is the entry point for the bridge fee registry service: it holds
// per-chain fee schedules and token routes and quotes cross-chain fees in the
// native currency of the deployment chain.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Emmet-Finance/Bridge-Data/internal/api"
	"github.com/Emmet-Finance/Bridge-Data/internal/config"
	"github.com/Emmet-Finance/Bridge-Data/internal/estimate"
	"github.com/Emmet-Finance/Bridge-Data/internal/registry"
	"github.com/Emmet-Finance/Bridge-Data/internal/security"
	"github.com/Emmet-Finance/Bridge-Data/internal/telemetry"
	"github.com/Emmet-Finance/Bridge-Data/internal/validation"
	"github.com/sirupsen/logrus"
)

// main is the entry point for the application
func main() {
	cfg, err := config.Load()
	setupLogging(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logrus.Errorf("Service failed: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	shutdownTracer := telemetry.InitTracer(cfg.OtelEndpoint)
	defer shutdownTracer()

	var seed *config.Seed
	if cfg.SeedFile != "" {
		var err error
		if seed, err = config.LoadSeed(cfg.SeedFile); err != nil {
			return err
		}
		cfg.PriceFeeds = append(cfg.PriceFeeds, seed.Feeds...)
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	feeds := buildFeeds(cfg)

	exporter, err := buildExporter(cfg)
	if err != nil {
		return err
	}
	opts := registry.Options{
		Store: st,
		Validation: validation.ValidationOptions{
			StrictStepCodes:  cfg.StrictStrategies,
			MaxStepsPerPhase: cfg.MaxStepsPerPhase,
		},
	}
	if exporter != nil {
		defer exporter.Stop()
		opts.Events = exporter
	}

	reg, err := registry.New(ctx, cfg.SelfChainID, cfg.SelfSymbol, cfg.AdminAddress, opts)
	if err != nil {
		return err
	}

	if seed != nil {
		applied, err := applySeed(ctx, reg, seed)
		if err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{
			"file":    cfg.SeedFile,
			"applied": applied,
		}).Info("Seed processed")
	}

	signer, err := security.NewDataIntegrityService(cfg.SignerKey, 0)
	if err != nil {
		return err
	}

	server := api.NewServer(api.Options{
		Registry:        reg,
		Estimator:       estimate.New(reg, feeds),
		Feeds:           feeds,
		Signer:          signer,
		Status:          statusSections(cfg, exporter),
		MaxSignatureAge: cfg.SignatureMaxAge,
		RequestTimeout:  cfg.RequestTimeout,
		RateLimitRPS:    cfg.RateLimitRPS,
		RateLimitBurst:  cfg.RateLimitBurst,
		BatchWorkers:    cfg.BatchWorkers,
		MaxBatchSize:    cfg.MaxBatchSize,
	})

	logrus.WithFields(logrus.Fields{
		"port":        cfg.Port,
		"selfChainId": cfg.SelfChainID,
		"selfSymbol":  cfg.SelfSymbol,
		"feeds":       feeds.Len(),
		"persistent":  cfg.DatabaseURL != "",
		"strict":      cfg.StrictStrategies,
	}).Info("Bridge fee registry configured")

	return server.Start(ctx, cfg.Port)
}

// setupLogging configures the logging for the application
func setupLogging(level, format string) {
	// Set log formatter based on environment
	switch format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	// Set log level based on environment
	switch level {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}

	logrus.Info("Logging configured")
}

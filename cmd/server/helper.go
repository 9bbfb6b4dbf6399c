package main

import (
	"context"

	"github.com/Emmet-Finance/Bridge-Data/internal/circuitbreaker"
	"github.com/Emmet-Finance/Bridge-Data/internal/config"
	"github.com/Emmet-Finance/Bridge-Data/internal/events"
	"github.com/Emmet-Finance/Bridge-Data/internal/oracle"
	"github.com/Emmet-Finance/Bridge-Data/internal/registry"
	"github.com/Emmet-Finance/Bridge-Data/internal/store"
	"github.com/Emmet-Finance/Bridge-Data/internal/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
)

// openStore connects to PostgreSQL when configured, otherwise keeps state in memory
func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		logrus.Warn("DATABASE_URL not set, registry state will not survive a restart")
		return store.NewMemoryStore(), nil
	}
	return store.Connect(ctx, cfg.DatabaseURL)
}

// applySeed bootstraps a registry that started empty. A registry restored from the
// store keeps its state, so writes made over the API survive restarts.
func applySeed(ctx context.Context, reg *registry.Registry, seed *config.Seed) (bool, error) {
	if reg.Restored() {
		logrus.Info("Registry state restored from store, skipping seed")
		return false, nil
	}
	if err := seed.Apply(ctx, reg, reg.Admin()); err != nil {
		return false, err
	}
	return true, nil
}

// buildFeeds registers every configured feed. Feeds with a URL are polled over HTTP,
// the rest are operator-updated. With ORACLE_MAX_CHANGE set each feed sits behind its
// own circuit breaker.
func buildFeeds(cfg config.Config) *oracle.Directory {
	dir := oracle.NewDirectory()
	maxChange := cfg.OracleMaxChangeBps()

	for _, fc := range cfg.PriceFeeds {
		feed := newFeed(fc)
		if maxChange > 0 {
			description := fc.Description
			breaker := circuitbreaker.New(circuitbreaker.Thresholds{MaxChangeBps: maxChange, RejectZero: true}).
				WithResetDelay(cfg.CircuitResetDelay).
				WithTripCallback(func(reason string, price *uint256.Int) {
					logrus.WithFields(logrus.Fields{
						"feed":   description,
						"reason": reason,
					}).Warn("Circuit breaker tripped")
				})
			feed = oracle.NewGuardedFeed(feed, breaker)
		}
		dir.Register(common.HexToAddress(fc.Address), feed)
	}
	return dir
}

func newFeed(fc types.FeedConfig) oracle.PriceFeed {
	if fc.URL != "" {
		return oracle.NewHTTPFeed(fc)
	}
	static := oracle.NewStaticFeed(fc.Decimals, fc.Description)
	if fc.Price != "" {
		price, err := uint256.FromDecimal(fc.Price)
		if err != nil {
			logrus.Warnf("Ignoring invalid starting price %q for feed %s", fc.Price, fc.Description)
		} else {
			static.UpdatePrice(price)
		}
	}
	return static
}

// buildExporter returns nil when no webhook is configured
func buildExporter(cfg config.Config) (*events.Exporter, error) {
	if cfg.EventsWebhookURL == "" {
		return nil, nil
	}
	return events.NewExporter(events.ExporterConfig{
		WebhookURL:    cfg.EventsWebhookURL,
		WebhookAPIKey: cfg.EventsAPIKey,
	})
}

func statusSections(cfg config.Config, exporter *events.Exporter) func() map[string]interface{} {
	return func() map[string]interface{} {
		sections := map[string]interface{}{
			"persistence": map[string]interface{}{
				"postgres": cfg.DatabaseURL != "",
			},
			"validation": map[string]interface{}{
				"strict":              cfg.StrictStrategies,
				"max_steps_per_phase": cfg.MaxStepsPerPhase,
			},
		}
		if exporter != nil {
			sections["events"] = exporter.Status()
		} else {
			sections["events"] = "disabled"
		}
		return sections
	}
}

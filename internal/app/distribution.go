package app

import (
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/contentieux/contentieux/internal/distribution"
	"github.com/contentieux/contentieux/internal/distribution/export"
)

// Currency returns the configured reporting currency.
func (c *Config) Currency() distribution.Currency {
	return distribution.Currency{Code: c.CurrencyCode, MinorUnits: c.CurrencyMinorUnits}
}

// Formatter returns the display formatter for REPORT_LOCALE.
func (c *Config) Formatter() export.Formatter {
	return export.NewFormatter(c.ReportLocale)
}

// LoadRuleBook loads DISTRIBUTION_RULES_FILE, or a single rule built from
// DISTRIBUTION_DEFAULT_STATE_PERCENT when no file is configured.
func (c *Config) LoadRuleBook() (*distribution.RuleBook, error) {
	if c.RulesFile != "" {
		return distribution.LoadRuleBookFile(c.RulesFile)
	}
	pct, err := c.StatePercent()
	if err != nil {
		return nil, err
	}
	return distribution.SingleRuleBook(pct)
}

// DistributionDeps are the runtime collaborators of the report service.
type DistributionDeps struct {
	Source   distribution.RecordSource
	Redis    *redis.Client
	Recorder distribution.Recorder
	Logger   *slog.Logger
}

// NewDistributionService wires the report service from configuration.
// A nil Redis client disables caching.
func NewDistributionService(cfg *Config, deps DistributionDeps) (*distribution.Service, error) {
	rules, err := cfg.LoadRuleBook()
	if err != nil {
		return nil, fmt.Errorf("load rule book: %w", err)
	}
	var cache *distribution.Cache
	if deps.Redis != nil {
		cache = distribution.NewCache(deps.Redis, cfg.ReportCacheTTL, deps.Logger)
	}
	return distribution.NewService(distribution.ServiceConfig{
		Source:   deps.Source,
		Rules:    rules,
		Cache:    cache,
		Currency: cfg.Currency(),
		Recorder: deps.Recorder,
		Logger:   deps.Logger,
	})
}

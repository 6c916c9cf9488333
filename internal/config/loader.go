package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New(ctx))
//  2. file (YAML) if MERIT_CONFIG is set
//  3. env (prefix MERIT_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv("MERIT_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: MERIT_ADDR, MERIT_QUEUE_SIZE, ...
	// Map env keys like MERIT_QUEUE_SIZE -> queue_size (flat keys).
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("MERIT_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "merit_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects configurations the service cannot start with.
func (c *Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	pool, err := decimal.NewFromString(c.TotalValuePool)
	if err != nil || pool.Sign() <= 0 {
		return fmt.Errorf("%w: total_value_pool %q must be a positive decimal", ErrInvalidConfig, c.TotalValuePool)
	}
	max, err := decimal.NewFromString(c.MaxInvestment)
	if err != nil || max.Sign() <= 0 {
		return fmt.Errorf("%w: max_investment %q must be a positive decimal", ErrInvalidConfig, c.MaxInvestment)
	}
	switch c.InvestmentFunding {
	case "points", "external":
	default:
		return fmt.Errorf("%w: investment_funding %q must be points or external", ErrInvalidConfig, c.InvestmentFunding)
	}
	return nil
}

// Pool returns the configured total value pool as a decimal.
func (c *Config) Pool() decimal.Decimal {
	pool, _ := decimal.NewFromString(c.TotalValuePool)
	return pool
}

// MaxInvestmentAmount returns the configured ceiling as a decimal.
func (c *Config) MaxInvestmentAmount() decimal.Decimal {
	max, _ := decimal.NewFromString(c.MaxInvestment)
	return max
}

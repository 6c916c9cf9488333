// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"context"
	"runtime"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory recalculation queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of recalculation workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the record-id deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	// TotalValuePool is the merit value pool distributed per work item.
	TotalValuePool string `koanf:"total_value_pool"`

	// SmallGroupK dampens proportionality for 3..10 participants.
	SmallGroupK float64 `koanf:"small_group_k"`

	// LargeGroupBlend mixes proportional and logarithmic shares for
	// groups above 10 participants.
	LargeGroupBlend float64 `koanf:"large_group_blend"`

	// LargeGroupSmoothing compresses the spread of large-group shares.
	LargeGroupSmoothing float64 `koanf:"large_group_smoothing"`

	// MaxInvestment caps a single self-investment amount.
	MaxInvestment string `koanf:"max_investment"`

	// InvestmentFunding selects how self-investments are funded:
	// "points" debits the investor's points account, "external" does not
	// touch the ledger.
	InvestmentFunding string `koanf:"investment_funding"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention; it is reserved for future use and currently
// unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:            "info",
		Addr:                ":9080",
		QueueSize:           10_000,
		WorkerCount:         runtime.NumCPU() * 2,
		DedupeSize:          50_000,
		TotalValuePool:      "100",
		SmallGroupK:         0.2,
		LargeGroupBlend:     0.5,
		LargeGroupSmoothing: 0.25,
		MaxInvestment:       "10.00",
		InvestmentFunding:   "points",
	}
}

// Package numerator provides the domain contract for movement numbering.
// The sys_sequences implementation lives in pkg/numerator.
package numerator

import (
	"context"
	"time"
)

// Strategy defines the numbering generation strategy.
type Strategy int

const (
	// StrategyStrict takes every number from the database. Numbers are gapless.
	StrategyStrict Strategy = iota

	// StrategyCached reserves ranges in memory. Restarts may leave gaps.
	StrategyCached
)

// Options configuration for number generation.
type Options struct {
	Strategy Strategy
	// RangeSize is the number of values reserved at once by StrategyCached. Default 50.
	RangeSize int64
}

// DefaultOptions returns standard options (Strict).
func DefaultOptions() *Options {
	return &Options{Strategy: StrategyStrict}
}

// Config holds numbering configuration.
type Config struct {
	// Prefix added to all numbers (e.g. "MI", "GRN")
	Prefix string
	// IncludeYear adds year to the number
	IncludeYear bool
	// PadWidth is the minimum number width (default 5)
	PadWidth int
	// ResetPeriod: "year", "month", "never"
	ResetPeriod string
}

// DefaultConfig returns PREFIX-YYYY-00001 numbering reset every year.
func DefaultConfig(prefix string) Config {
	return Config{
		Prefix:      prefix,
		IncludeYear: true,
		PadWidth:    5,
		ResetPeriod: "year",
	}
}

// Generator generates sequential movement numbers.
type Generator interface {
	// GetNextNumber returns the next number, e.g. MI-2026-00042.
	GetNextNumber(ctx context.Context, cfg Config, opts *Options, period time.Time) (string, error)
}

package numerator

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SequenceGenerator is an in-memory Generator for tests and local tooling.
type SequenceGenerator struct {
	mu      sync.Mutex
	counter map[string]int64
}

// NewSequenceGenerator creates an empty in-memory generator.
func NewSequenceGenerator() *SequenceGenerator {
	return &SequenceGenerator{counter: make(map[string]int64)}
}

// GetNextNumber implements Generator.
func (g *SequenceGenerator) GetNextNumber(_ context.Context, cfg Config, _ *Options, period time.Time) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := fmt.Sprintf("%s-%d", cfg.Prefix, period.Year())
	g.counter[key]++
	width := cfg.PadWidth
	if width <= 0 {
		width = 5
	}
	if cfg.IncludeYear {
		return fmt.Sprintf("%s-%d-%0*d", cfg.Prefix, period.Year(), width, g.counter[key]), nil
	}
	return fmt.Sprintf("%s-%0*d", cfg.Prefix, width, g.counter[key]), nil
}

var _ Generator = (*SequenceGenerator)(nil)

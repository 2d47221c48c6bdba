// Package numerator implements movement numbering on top of sys_sequences.
// Sequences are kept per company and per reset period.
package numerator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	appctx "pestctl/internal/core/context"
	core "pestctl/internal/core/numerator"
)

// Querier is the subset of pgx used by the service.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// QuerierFunc resolves the querier for ctx, typically the active transaction.
type QuerierFunc func(ctx context.Context) Querier

type cachedRange struct {
	current int64
	max     int64
}

// Service generates numbers. Strict numbers are taken in the caller's
// transaction so a rolled back movement does not burn its number.
type Service struct {
	querier QuerierFunc

	cacheMu sync.Mutex
	// ranges is keyed by company and sequence key.
	ranges map[string]*cachedRange
}

var _ core.Generator = (*Service)(nil)

// New creates a service that always uses q.
func New(q Querier) *Service {
	return NewWithResolver(func(context.Context) Querier { return q })
}

// NewWithResolver creates a service resolving its querier per call.
func NewWithResolver(resolve QuerierFunc) *Service {
	return &Service{querier: resolve, ranges: make(map[string]*cachedRange)}
}

// GetNextNumber implements numerator.Generator. Pattern: PREFIX-YEAR-00001.
func (s *Service) GetNextNumber(ctx context.Context, cfg core.Config, opts *core.Options, period time.Time) (string, error) {
	if s == nil || s.querier == nil {
		return "", fmt.Errorf("numerator service is not initialized")
	}
	if opts == nil {
		opts = core.DefaultOptions()
	}

	company := appctx.GetCompanyID(ctx)
	if company == "" {
		return "", fmt.Errorf("numerator requires a company scope")
	}
	key := BuildKey(cfg, period)

	var (
		num int64
		err error
	)
	switch opts.Strategy {
	case core.StrategyCached:
		num, err = s.nextCached(ctx, company, key, opts.RangeSize)
	default:
		num, err = s.reserve(ctx, company, key, 1)
	}
	if err != nil {
		return "", err
	}
	return Format(cfg, period, num), nil
}

// reserve bumps the sequence by n and returns its new value.
func (s *Service) reserve(ctx context.Context, company, key string, n int64) (int64, error) {
	var val int64
	err := s.querier(ctx).QueryRow(ctx, `
		INSERT INTO sys_sequences (company_id, key, current_val)
		VALUES ($1, $2, $3)
		ON CONFLICT (company_id, key) DO UPDATE SET current_val = sys_sequences.current_val + $3
		RETURNING current_val
	`, company, key, n).Scan(&val)
	if err != nil {
		return 0, fmt.Errorf("next %s: %w", key, err)
	}
	return val, nil
}

func (s *Service) nextCached(ctx context.Context, company, key string, size int64) (int64, error) {
	if size <= 0 {
		size = 50
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	cacheKey := company + ":" + key
	rng, ok := s.ranges[cacheKey]
	if !ok {
		rng = &cachedRange{}
		s.ranges[cacheKey] = rng
	}
	if rng.current >= rng.max {
		newMax, err := s.reserve(ctx, company, key, size)
		if err != nil {
			return 0, fmt.Errorf("reserve range: %w", err)
		}
		rng.current = newMax - size
		rng.max = newMax
	}
	rng.current++
	return rng.current, nil
}

// BuildKey is the sys_sequences key of a prefix in period.
func BuildKey(cfg core.Config, period time.Time) string {
	switch cfg.ResetPeriod {
	case "month":
		return fmt.Sprintf("%s_%s", cfg.Prefix, period.Format("2006_01"))
	case "year":
		return fmt.Sprintf("%s_%s", cfg.Prefix, period.Format("2006"))
	default:
		return cfg.Prefix
	}
}

// Format renders a sequence value.
func Format(cfg core.Config, period time.Time, num int64) string {
	width := cfg.PadWidth
	if width == 0 {
		width = 5
	}
	if cfg.IncludeYear {
		return fmt.Sprintf("%s-%s-%0*d", cfg.Prefix, period.Format("2006"), width, num)
	}
	return fmt.Sprintf("%s-%0*d", cfg.Prefix, width, num)
}

// ParseNumber extracts the numeric part of a formatted number, or -1.
func ParseNumber(formatted string) int64 {
	i := strings.LastIndexByte(formatted, '-')
	if i < 0 {
		return -1
	}
	n, err := strconv.ParseInt(formatted[i+1:], 10, 64)
	if err != nil {
		return -1
	}
	return n
}

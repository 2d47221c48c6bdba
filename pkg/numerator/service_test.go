package numerator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "pestctl/internal/core/context"
	core "pestctl/internal/core/numerator"
)

type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	*dest[0].(*int64) = m.val
	return nil
}

// mockQuerier keeps one counter per (company, key) like sys_sequences.
type mockQuerier struct {
	mu    sync.Mutex
	vals  map[string]int64
	calls int
	err   error
}

func (m *mockQuerier) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return &mockRow{err: m.err}
	}
	if m.vals == nil {
		m.vals = make(map[string]int64)
	}
	k := fmt.Sprintf("%v/%v", args[0], args[1])
	m.vals[k] += args[2].(int64)
	return &mockRow{val: m.vals[k]}
}

func companyCtx(company string) context.Context {
	return appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "u", CompanyID: company})
}

func TestGetNextNumber_Strict(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	period := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cfg := core.DefaultConfig("MI")

	num, err := svc.GetNextNumber(companyCtx("c1"), cfg, nil, period)
	require.NoError(t, err)
	assert.Equal(t, "MI-2026-00001", num)

	num, err = svc.GetNextNumber(companyCtx("c1"), cfg, nil, period)
	require.NoError(t, err)
	assert.Equal(t, "MI-2026-00002", num)

	// Another company has its own sequence.
	num, err = svc.GetNextNumber(companyCtx("c2"), cfg, nil, period)
	require.NoError(t, err)
	assert.Equal(t, "MI-2026-00001", num)
}

func TestGetNextNumber_Cached(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := companyCtx("c1")
	period := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cfg := core.DefaultConfig("MT")
	opts := &core.Options{Strategy: core.StrategyCached, RangeSize: 10}

	for i := 1; i <= 10; i++ {
		num, err := svc.GetNextNumber(ctx, cfg, opts, period)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("MT-2026-%05d", i), num)
	}
	assert.Equal(t, 1, q.calls, "one range covers ten numbers")

	num, err := svc.GetNextNumber(ctx, cfg, opts, period)
	require.NoError(t, err)
	assert.Equal(t, "MT-2026-00011", num)
	assert.Equal(t, 2, q.calls)
}

func TestGetNextNumber_Errors(t *testing.T) {
	svc := New(&mockQuerier{})
	_, err := svc.GetNextNumber(context.Background(), core.DefaultConfig("MI"), nil, time.Now())
	assert.Error(t, err, "company scope is required")

	svc = New(&mockQuerier{err: fmt.Errorf("connection reset")})
	_, err = svc.GetNextNumber(companyCtx("c1"), core.DefaultConfig("MI"), nil, time.Now())
	assert.ErrorContains(t, err, "connection reset")
}

func TestBuildKeyAndParse(t *testing.T) {
	period := time.Date(2026, 7, 9, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "GRN_2026", BuildKey(core.DefaultConfig("GRN"), period))
	assert.Equal(t, "GRN_2026_07", BuildKey(core.Config{Prefix: "GRN", ResetPeriod: "month"}, period))
	assert.Equal(t, "GRN", BuildKey(core.Config{Prefix: "GRN"}, period))

	assert.Equal(t, "MC-0042", Format(core.Config{Prefix: "MC", PadWidth: 4}, period, 42))
	assert.Equal(t, int64(42), ParseNumber("MC-2026-00042"))
	assert.Equal(t, int64(-1), ParseNumber("garbage"))
}

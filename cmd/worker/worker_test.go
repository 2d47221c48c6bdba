package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pestctl/pkg/logger"
)

type fakeRelay struct {
	mu       sync.Mutex
	batches  []int
	calls    int
	dlq      int
	purged   int
	failNext bool
}

func (f *fakeRelay) ProcessBatch(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failNext {
		f.failNext = false
		return 0, errors.New("redis down")
	}
	if len(f.batches) == 0 {
		return 0, nil
	}
	n := f.batches[0]
	f.batches = f.batches[1:]
	return n, nil
}

func (f *fakeRelay) MoveToDLQ(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dlq++
	return 1, nil
}

func (f *fakeRelay) PurgePublished(_ context.Context, retention time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purged++
	return 0, nil
}

type fakeSweeper struct {
	mu   sync.Mutex
	asOf []time.Time
}

func (f *fakeSweeper) SweepExpired(_ context.Context, asOf time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asOf = append(f.asOf, asOf)
	return 2, nil
}

type fakeCleaner struct{ calls int }

func (f *fakeCleaner) CleanupExpired(context.Context) (int64, error) {
	f.calls++
	return 0, nil
}

func newTestWorker(relay *fakeRelay, sweeper *fakeSweeper, cleaner *fakeCleaner) *Worker {
	w := NewWorker(Config{
		OutboxInterval:      time.Hour,
		OutboxRetention:     time.Hour,
		ExpirySweepInterval: time.Hour,
		HousekeepingEvery:   time.Hour,
	}, Deps{Relay: relay, Batches: sweeper, Idempotency: cleaner}, logger.Default())
	w.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return w
}

func TestRelayOutbox_DrainsUntilEmpty(t *testing.T) {
	relay := &fakeRelay{batches: []int{100, 100, 3}}
	w := newTestWorker(relay, &fakeSweeper{}, &fakeCleaner{})

	w.relayOutbox(context.Background())

	assert.Equal(t, 4, relay.calls, "three batches plus the empty one")
}

func TestRelayOutbox_StopsOnError(t *testing.T) {
	relay := &fakeRelay{batches: []int{5}, failNext: true}
	w := newTestWorker(relay, &fakeSweeper{}, &fakeCleaner{})

	w.relayOutbox(context.Background())

	assert.Equal(t, 1, relay.calls)
	assert.Len(t, relay.batches, 1)
}

func TestSweepExpired_UsesClock(t *testing.T) {
	sweeper := &fakeSweeper{}
	w := newTestWorker(&fakeRelay{}, sweeper, &fakeCleaner{})

	w.sweepExpired(context.Background())

	require.Len(t, sweeper.asOf, 1)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), sweeper.asOf[0])
}

func TestHousekeeping_RunsAllJobs(t *testing.T) {
	relay := &fakeRelay{}
	cleaner := &fakeCleaner{}
	w := newTestWorker(relay, &fakeSweeper{}, cleaner)

	w.housekeeping(context.Background())

	assert.Equal(t, 1, relay.dlq)
	assert.Equal(t, 1, relay.purged)
	assert.Equal(t, 1, cleaner.calls)
}

func TestRun_RunsEachLoopOnceAndStops(t *testing.T) {
	relay := &fakeRelay{}
	sweeper := &fakeSweeper{}
	cleaner := &fakeCleaner{}
	w := newTestWorker(relay, sweeper, cleaner)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool {
		relay.mu.Lock()
		defer relay.mu.Unlock()
		sweeper.mu.Lock()
		defer sweeper.mu.Unlock()
		return relay.calls >= 1 && relay.dlq >= 1 && len(sweeper.asOf) >= 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

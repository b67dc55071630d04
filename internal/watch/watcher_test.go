package watch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/busybox42/mailprobe/internal/catalogue"
	"github.com/busybox42/mailprobe/internal/metrics"
	"github.com/busybox42/mailprobe/internal/runner"
)

// fakeRunner produces scripted all-pass or all-fail cycles
type fakeRunner struct {
	mu      sync.Mutex
	runs    int
	failAll bool
}

func (f *fakeRunner) Run(ctx context.Context, cases []catalogue.TestCase) []runner.Result {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.runs++
	results := make([]runner.Result, len(cases))
	for i, tc := range cases {
		results[i] = runner.Result{CaseName: tc.Name, Category: tc.Category, Succeeded: !f.failAll}
		if f.failAll {
			results[i].ErrorDetail = "failed to dial 127.0.0.1:2525: connect: connection refused"
		}
	}
	return results
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.runs
}

func (f *fakeRunner) setFailAll(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAll = v
}

// partialRunner fails a fixed subset of cases every cycle
type partialRunner struct {
	fakeRunner
}

func (p *partialRunner) Run(ctx context.Context, cases []catalogue.TestCase) []runner.Result {
	results := p.fakeRunner.Run(ctx, cases)
	if len(results) > 0 {
		results[0].Succeeded = false
		results[0].ErrorDetail = "MAIL FROM failed: 554 5.7.1 sender rejected"
	}
	return results
}

func TestWatcherInitiallyClosed(t *testing.T) {
	w := New(&fakeRunner{}, catalogue.Builtin(), DefaultConfig())
	assert.Equal(t, "closed", w.State())
}

func TestPartialFailuresKeepBreakerClosed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 2

	fake := &partialRunner{}
	w := New(fake, catalogue.Builtin(), cfg)

	for i := 0; i < 5; i++ {
		w.cycle(context.Background())
	}

	assert.Equal(t, "closed", w.State(), "rejected threat cases are signal, not endpoint death")
	assert.Equal(t, 5, fake.count())
}

func TestBreakerOpensAfterConsecutiveDeadCycles(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 2
	cfg.Cooldown = time.Hour

	fake := &fakeRunner{failAll: true}
	w := New(fake, catalogue.Builtin(), cfg)

	w.cycle(context.Background())
	w.cycle(context.Background())
	require.Equal(t, "open", w.State())

	skippedBefore := testutil.ToFloat64(metrics.Get().WatchCyclesSkipped)

	w.cycle(context.Background())

	assert.Equal(t, 2, fake.count(), "open breaker must suppress the probe cycle")
	assert.Equal(t, skippedBefore+1, testutil.ToFloat64(metrics.Get().WatchCyclesSkipped))
}

func TestBreakerRecoversAfterCooldown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1
	cfg.Cooldown = 50 * time.Millisecond

	fake := &fakeRunner{failAll: true}
	w := New(fake, catalogue.Builtin(), cfg)

	w.cycle(context.Background())
	require.Equal(t, "open", w.State())

	fake.setFailAll(false)
	time.Sleep(80 * time.Millisecond)

	w.cycle(context.Background())

	assert.Equal(t, 2, fake.count(), "cooldown expiry must let a trial cycle through")
	assert.Equal(t, "closed", w.State())
}

func TestEmptyCatalogueCycleDoesNotTripBreaker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FailureThreshold = 1

	fake := &fakeRunner{failAll: true}
	w := New(fake, nil, cfg)

	w.cycle(context.Background())
	w.cycle(context.Background())

	assert.Equal(t, "closed", w.State())
}

func TestStartRunsImmediateCycleAndStopsOnCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Interval = time.Hour // only the immediate cycle should run

	fake := &fakeRunner{}
	w := New(fake, catalogue.Builtin(), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.Eventually(t, func() bool { return fake.count() == 1 },
		2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after cancellation")
	}

	assert.Equal(t, 1, fake.count())
}

func TestStartTicksOnInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Interval = 20 * time.Millisecond

	fake := &fakeRunner{}
	w := New(fake, catalogue.Builtin(), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.Eventually(t, func() bool { return fake.count() >= 3 },
		2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

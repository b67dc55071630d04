// Package watch re-runs the probe catalogue on an interval. A circuit
// breaker guards against a dead endpoint: once every case in a cycle fails
// repeatedly, cycles are skipped until the cooldown lets a trial through.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/busybox42/mailprobe/internal/catalogue"
	"github.com/busybox42/mailprobe/internal/metrics"
	"github.com/busybox42/mailprobe/internal/runner"
)

// Runner executes one probe pass over the catalogue. Implemented by
// runner.Runner; tests substitute fakes.
type Runner interface {
	Run(ctx context.Context, cases []catalogue.TestCase) []runner.Result
}

// Config holds soak-mode parameters
type Config struct {
	Interval         time.Duration
	FailureThreshold int           // consecutive dead cycles before the breaker opens
	Cooldown         time.Duration // how long the breaker stays open
	MetricsListen    string        // exposition address, empty disables
}

// DefaultConfig returns soak-mode defaults
func DefaultConfig() Config {
	return Config{
		Interval:         time.Minute,
		FailureThreshold: 3,
		Cooldown:         2 * time.Minute,
	}
}

// Watcher drives repeated probe cycles against one endpoint
type Watcher struct {
	runner  Runner
	cases   []catalogue.TestCase
	config  Config
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a watcher over the given catalogue
func New(r Runner, cases []catalogue.TestCase, config Config) *Watcher {
	logger := slog.Default().With("component", "watch")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "probe-endpoint",
		MaxRequests: 1,
		Timeout:     config.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(config.FailureThreshold)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String())
		},
	})

	return &Watcher{
		runner:  r,
		cases:   cases,
		config:  config,
		breaker: breaker,
		logger:  logger,
		metrics: metrics.Get(),
	}
}

// State reports the breaker state: closed, half-open or open
func (w *Watcher) State() string {
	return w.breaker.State().String()
}

// Start blocks until ctx is cancelled, executing one probe cycle immediately
// and then one per interval tick. The optional metrics server is supervised
// alongside the cycle loop and shut down on exit.
func (w *Watcher) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if w.config.MetricsListen != "" {
		server := metrics.StartMetricsServer(w.config.MetricsListen)
		w.logger.Info("metrics exposition started", "addr", w.config.MetricsListen)

		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return w.loop(gctx)
	})

	return g.Wait()
}

func (w *Watcher) loop(ctx context.Context) error {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.cycle(ctx)
		}
	}
}

// cycle runs one probe pass through the breaker. A cycle counts as a breaker
// failure only when every case fails, which is the signature of a dead
// endpoint; partial failures are normal probe signal and keep the breaker
// closed.
func (w *Watcher) cycle(ctx context.Context) {
	cycleID := uuid.New().String()
	start := time.Now()

	_, err := w.breaker.Execute(func() (interface{}, error) {
		results := w.runner.Run(ctx, w.cases)

		accepted := runner.Accepted(results)
		w.logger.Info("probe cycle complete",
			"cycle", cycleID,
			"cases", len(results),
			"accepted", accepted,
			"failed", len(results)-accepted,
			"duration", time.Since(start).Round(time.Millisecond))

		if len(results) > 0 && accepted == 0 {
			return nil, fmt.Errorf("all %d cases failed", len(results))
		}
		return nil, nil
	})

	if err == nil {
		return
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		w.metrics.RecordSkippedCycle()
		w.logger.Warn("probe cycle skipped, circuit breaker open", "cycle", cycleID)
		return
	}

	w.logger.Error("probe cycle failed", "cycle", cycleID, "error", err)
}

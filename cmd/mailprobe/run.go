package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/busybox42/mailprobe/internal/catalogue"
	"github.com/busybox42/mailprobe/internal/config"
	"github.com/busybox42/mailprobe/internal/runner"
	"github.com/busybox42/mailprobe/internal/smtpclient"
	"github.com/busybox42/mailprobe/internal/watch"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Submit the test catalogue once and report per-case outcome",
	Long: `Run submits every catalogue case to the configured endpoint in order,
one connection per case, and prints a per-case outcome report. Case
failures are reported, not fatal; the command only exits non-zero on
configuration or catalogue errors.`,
	RunE: runProbe,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run the catalogue on an interval until interrupted",
	Long: `Watch submits the catalogue repeatedly on a fixed interval. When the
endpoint looks dead (every case in a cycle failing, several cycles in a
row) a circuit breaker skips cycles until a cooldown expires. Progress
is logged rather than printed; enable metrics for scrape-based visibility.`,
	RunE: runWatch,
}

// loadCatalogue resolves the case list from config and runs preflight on it
func loadCatalogue(cfg *config.Config) ([]catalogue.TestCase, error) {
	cases := catalogue.Builtin()
	if cfg.Catalogue.File != "" {
		var err error
		cases, err = catalogue.Load(cfg.Catalogue.File)
		if err != nil {
			return nil, err
		}
	}

	result := catalogue.Validate(cases)
	for _, warning := range result.Warnings {
		slog.Warn("catalogue warning",
			"case", warning.Case,
			"field", warning.Field,
			"message", warning.Message)
	}
	if !result.Valid {
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "  %s\n", e.Error())
		}
		return nil, fmt.Errorf("catalogue validation failed with %d errors", len(result.Errors))
	}

	return cases, nil
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadRuntimeConfig(cmd)
	if err != nil {
		return err
	}

	cases, err := loadCatalogue(cfg)
	if err != nil {
		return err
	}

	client := smtpclient.New(cfg.ClientConfig())
	probe := runner.New(client, runner.Config{
		Hostname: cfg.Endpoint.Hello,
		Pause:    cfg.Pause(),
	})

	out := cmd.OutOrStdout()
	jsonOut, _ := cmd.Flags().GetBool("json")
	if jsonOut {
		// Keep stdout pure JSON; per-case progress goes nowhere
		probe.SetProgress(io.Discard)
	} else {
		probe.SetProgress(out)
		fmt.Fprintf(out, "mailprobe %s -> %s (%d cases)\n\n", version, client.Addr(), len(cases))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results := probe.Run(ctx, cases)

	if jsonOut {
		return runner.ReportJSON(out, results)
	}

	fmt.Fprintln(out)
	runner.Report(out, results)
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadRuntimeConfig(cmd)
	if err != nil {
		return err
	}

	cases, err := loadCatalogue(cfg)
	if err != nil {
		return err
	}

	client := smtpclient.New(cfg.ClientConfig())
	probe := runner.New(client, runner.Config{
		Hostname: cfg.Endpoint.Hello,
		Pause:    cfg.Pause(),
	})
	probe.SetProgress(io.Discard)

	watcher := watch.New(probe, cases, cfg.WatchConfig())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("watch mode started",
		"endpoint", client.Addr(),
		"cases", len(cases),
		"interval", cfg.WatchConfig().Interval)

	if err := watcher.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	slog.Info("watch mode stopped")
	return nil
}

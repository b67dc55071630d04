package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/busybox42/mailprobe/internal/sink"
)

var sinkCmd = &cobra.Command{
	Use:   "sink",
	Short: "Run a local capture endpoint for harness development",
	Long: `Sink starts a local ESMTP server that accepts and records submissions
the way an analysis endpoint's interceptor does. With --reject-from it
answers matching senders with a 554, which exercises the harness's
failure paths end to end.`,
	RunE: runSink,
}

func runSink(cmd *cobra.Command, args []string) error {
	cfg, err := loadRuntimeConfig(cmd)
	if err != nil {
		return err
	}

	captureSink := sink.New(cfg.SinkConfig())

	// Start sink server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		if err := captureSink.ListenAndServe(); err != nil {
			serverErrors <- fmt.Errorf("sink server error: %w", err)
		}
	}()

	// Set up signal handling for graceful shutdown
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	slog.Info("capture sink started",
		"addr", cfg.Sink.Listen,
		"domain", cfg.Sink.Domain,
		"reject_from", cfg.Sink.RejectFrom)

	select {
	case sig := <-signalChan:
		slog.Info("received signal, shutting down", "signal", sig.String())
	case err := <-serverErrors:
		return err
	}

	if err := captureSink.Close(); err != nil {
		slog.Error("error stopping sink", "error", err)
	}

	slog.Info("shutdown complete", "captured", len(captureSink.Envelopes()))
	return nil
}

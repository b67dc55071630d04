package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/busybox42/mailprobe/internal/config"
	"github.com/busybox42/mailprobe/internal/logging"
)

var (
	configPath string
	version    = "dev"
	commit     = "unknown"
	date       = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "mailprobe",
	Short: "Mailprobe - ESMTP submission harness for threat analysis endpoints",
	Long: `Mailprobe exercises an email threat-analysis endpoint by submitting a
catalogue of categorized test messages (benign, newsletter, phishing,
malware lure, social engineering) over plaintext ESMTP and reporting
the per-message outcome.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "Mailprobe %s\n", cmd.Root().Version)
		fmt.Fprintf(cmd.OutOrStdout(), "Commit: %s\n", commit)
		fmt.Fprintf(cmd.OutOrStdout(), "Built: %s\n", date)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  "Commands for generating and validating mailprobe configuration",
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file")

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(sinkCmd)
	rootCmd.AddCommand(catalogueCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	// Run command flags
	runCmd.Flags().String("host", "", "endpoint host (overrides config)")
	runCmd.Flags().Int("port", 0, "endpoint port (overrides config)")
	runCmd.Flags().String("catalogue", "", "catalogue file (overrides config)")
	runCmd.Flags().Int("pause", -1, "seconds between cases (overrides config)")
	runCmd.Flags().Bool("json", false, "emit the report as JSON")

	// Watch command flags
	watchCmd.Flags().String("host", "", "endpoint host (overrides config)")
	watchCmd.Flags().Int("port", 0, "endpoint port (overrides config)")
	watchCmd.Flags().String("catalogue", "", "catalogue file (overrides config)")
	watchCmd.Flags().Int("interval", 0, "seconds between probe cycles (overrides config)")

	// Sink command flags
	sinkCmd.Flags().String("listen", "", "listen address (overrides config)")
	sinkCmd.Flags().String("reject-from", "", "reject senders containing this substring")

	// Config subcommands
	configCmd.AddCommand(&cobra.Command{
		Use:   "generate [path]",
		Short: "Generate default configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  generateConfig,
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate [path]",
		Short: "Validate configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  validateConfig,
	})
}

// loadRuntimeConfig loads the configuration, applies flag overrides,
// installs logging and validates the result
func loadRuntimeConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Override config with command line flags where the command defines them
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Endpoint.Host = host
	}
	if cmd.Flags().Changed("port") {
		cfg.Endpoint.Port, _ = cmd.Flags().GetInt("port")
	}
	if file, _ := cmd.Flags().GetString("catalogue"); file != "" {
		cfg.Catalogue.File = file
	}
	if cmd.Flags().Changed("pause") {
		cfg.Submit.Pause, _ = cmd.Flags().GetInt("pause")
	}
	if cmd.Flags().Changed("interval") {
		cfg.Watch.Interval, _ = cmd.Flags().GetInt("interval")
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Sink.Listen = listen
	}
	if rule, _ := cmd.Flags().GetString("reject-from"); rule != "" {
		cfg.Sink.RejectFrom = rule
	}

	logging.Initialize(cfg.Logging.Level, cfg.Logging.Format)

	result := cfg.Validate()
	for _, warning := range result.Warnings {
		slog.Warn("configuration warning", "field", warning.Field, "message", warning.Message)
	}
	if !result.Valid {
		for _, e := range result.Errors {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", e.Error())
		}
		return nil, fmt.Errorf("configuration validation failed with %d errors", len(result.Errors))
	}

	return cfg, nil
}

func generateConfig(cmd *cobra.Command, args []string) error {
	outputPath := "mailprobe.toml"
	if len(args) > 0 {
		outputPath = args[0]
	}

	if err := config.CreateDefaultConfig(outputPath); err != nil {
		return fmt.Errorf("failed to generate config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Default configuration generated at: %s\n", outputPath)
	return nil
}

func validateConfig(cmd *cobra.Command, args []string) error {
	configFile := configPath
	if len(args) > 0 {
		configFile = args[0]
	}

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	result := cfg.Validate()
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "=== Configuration Validation Report ===\n\n")

	if result.Valid {
		fmt.Fprintf(out, "Configuration is VALID\n\n")
	} else {
		fmt.Fprintf(out, "Configuration has ERRORS\n\n")
	}

	if len(result.Errors) > 0 {
		fmt.Fprintf(out, "ERRORS (%d):\n", len(result.Errors))
		for i, e := range result.Errors {
			fmt.Fprintf(out, "  %d. %s\n", i+1, e.Error())
		}
		fmt.Fprintln(out)
	}

	if len(result.Warnings) > 0 {
		fmt.Fprintf(out, "WARNINGS (%d):\n", len(result.Warnings))
		for i, warning := range result.Warnings {
			fmt.Fprintf(out, "  %d. %s\n", i+1, warning.Error())
		}
		fmt.Fprintln(out)
	}

	if !result.Valid {
		return fmt.Errorf("configuration validation failed with %d errors", len(result.Errors))
	}
	return nil
}

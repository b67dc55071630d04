package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/busybox42/mailprobe/internal/catalogue"
)

var catalogueCmd = &cobra.Command{
	Use:   "catalogue",
	Short: "Catalogue management commands",
	Long:  "Commands for listing, generating and validating test case catalogues",
}

func init() {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the test cases that a run would submit",
		RunE:  listCatalogue,
	}
	listCmd.Flags().String("file", "", "catalogue file (defaults to the builtin cases)")

	generateCmd := &cobra.Command{
		Use:   "generate [path]",
		Short: "Write the builtin catalogue to a TOML file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  generateCatalogue,
	}

	validateCmd := &cobra.Command{
		Use:   "validate <path>",
		Short: "Run preflight checks over a catalogue file",
		Args:  cobra.ExactArgs(1),
		RunE:  validateCatalogue,
	}

	catalogueCmd.AddCommand(listCmd)
	catalogueCmd.AddCommand(generateCmd)
	catalogueCmd.AddCommand(validateCmd)
}

func resolveCases(file string) ([]catalogue.TestCase, error) {
	if file == "" {
		return catalogue.Builtin(), nil
	}
	return catalogue.Load(file)
}

func listCatalogue(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	cases, err := resolveCases(file)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, tc := range cases {
		fmt.Fprintf(out, "%s [%s]\n", tc.Name, tc.Category)
		fmt.Fprintf(out, "    From:    %s\n", tc.From)
		fmt.Fprintf(out, "    To:      %s\n", tc.To)
		fmt.Fprintf(out, "    Subject: %s\n", tc.Subject)
	}
	fmt.Fprintf(out, "\n%d cases\n", len(cases))
	return nil
}

func generateCatalogue(cmd *cobra.Command, args []string) error {
	outputPath := "catalogue.toml"
	if len(args) > 0 {
		outputPath = args[0]
	}

	if err := catalogue.Save(outputPath, catalogue.Builtin()); err != nil {
		return fmt.Errorf("failed to generate catalogue: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Builtin catalogue written to: %s\n", outputPath)
	return nil
}

func validateCatalogue(cmd *cobra.Command, args []string) error {
	cases, err := catalogue.Load(args[0])
	if err != nil {
		return err
	}

	result := catalogue.Validate(cases)
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "=== Catalogue Validation Report ===\n\n")

	if result.Valid {
		fmt.Fprintf(out, "Catalogue is VALID (%d cases)\n\n", len(cases))
	} else {
		fmt.Fprintf(out, "Catalogue has ERRORS\n\n")
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
		return fmt.Errorf("catalogue validation failed with %d errors", len(result.Errors))
	}
	return nil
}

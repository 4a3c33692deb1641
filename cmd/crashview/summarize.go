package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"example.com/crashview/internal/minidump"
)

var (
	summarizeAnalysis bool
	summarizeFs       = afero.NewOsFs()
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize <file.dmp>",
	Short: "Summarize a minidump file",
	Long: `Decode a minidump and print its summary.

Examples:
  crashview summarize crash_dump_1234.dmp
  crashview summarize --analysis crash_dump_1234.dmp`,
	Args: cobra.ExactArgs(1),
	RunE: runSummarize,
}

func init() {
	rootCmd.AddCommand(summarizeCmd)

	summarizeCmd.Flags().BoolVar(&summarizeAnalysis, "analysis", false, "Include the full decoded analysis")
}

func runSummarize(cmd *cobra.Command, args []string) error {
	data, err := afero.ReadFile(summarizeFs, args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	pool := minidump.NewPool(cfg.SummarizeWorkers, cfg.SummarizeTimeout)
	res, err := pool.Summarize(cmd.Context(), data)
	if err != nil {
		return fmt.Errorf("failed to summarize %s: %w", args[0], err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if !summarizeAnalysis {
		return enc.Encode(res.Summary)
	}
	return enc.Encode(struct {
		Summary  minidump.Summary   `json:"minidump_summary"`
		Analysis *minidump.Analysis `json:"minidump_analysis"`
	}{res.Summary, res.Analysis})
}

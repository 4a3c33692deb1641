package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded crashes, newest first",
	Long: `List every readable crash report in the artifact directory.

Examples:
  crashview list
  crashview list --dir /var/crashes --json`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().BoolVar(&listJSON, "json", false, "Print the list as JSON")
}

func runList(cmd *cobra.Command, args []string) error {
	entries, err := newCatalog(cfg).List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list crashes: %w", err)
	}
	out := cmd.OutOrStdout()

	if listJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "No crashes found")
		return nil
	}
	for _, e := range entries {
		when := "-"
		if e.Timestamp != nil {
			when = time.UnixMicro(int64(*e.Timestamp * 1e6)).UTC().Format(time.RFC3339)
		}
		msg := ""
		if e.Message != nil {
			msg = strconv.Quote(*e.Message)
		}
		fmt.Fprintf(out, "%s  %-20s  %s\n", e.ID, when, msg)
	}
	return nil
}

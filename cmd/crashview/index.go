package main

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"example.com/crashview/internal/ingest"
	spg "example.com/crashview/internal/storage/postgres"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index every crash into Postgres once",
	Long: `Read every crash in the artifact directory and upsert it into the
crash_index table. Requires POSTGRES_DSN.`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	if cfg.PostgresDSN == "" {
		return errors.New("POSTGRES_DSN is not set")
	}
	ctx := cmd.Context()

	db, err := spg.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migration: %w", err)
	}

	recs, err := newCatalog(cfg).Records(ctx)
	if err != nil {
		return fmt.Errorf("failed to read crashes: %w", err)
	}
	n, err := ingest.WriteAll(ctx, spg.NewWriter(db), recs, cfg.BatchMaxSize)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"records": len(recs), "rows": n}).Info("index written")
	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d crashes\n", len(recs))
	return nil
}

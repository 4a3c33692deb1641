package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"example.com/crashview/internal/ingest"
	spg "example.com/crashview/internal/storage/postgres"
	transport "example.com/crashview/internal/transport/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the crash catalog over HTTP",
	Long: `Serve the crash catalog on PORT (default 8080).

When POSTGRES_DSN is set, crashes are also indexed into Postgres in the
background and GET /crashes/stats is enabled.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	gin.SetMode(gin.ReleaseMode)
	cat := newCatalog(cfg)
	deps := &transport.ServerDeps{
		Cfg:     cfg,
		Catalog: cat,
		Now:     func() time.Time { return time.Now().UTC() },
	}

	var ingestor *ingest.Ingestor
	if cfg.PostgresDSN != "" {
		db, err := spg.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("migration: %w", err)
		}
		log.Info("db: migrations applied")

		ingestor = ingest.NewIngestor(spg.NewWriter(db), cfg.QueueMaxSize, cfg.BatchMaxSize, cfg.BatchMaxWait)
		ingestor.Start(ctx)
		go ingest.NewScanner(cat, ingestor, cfg.IndexInterval).Run(ctx)
		log.WithFields(log.Fields{
			"queue":    cfg.QueueMaxSize,
			"batch":    cfg.BatchMaxSize,
			"wait":     cfg.BatchMaxWait.String(),
			"interval": cfg.IndexInterval.String(),
		}).Info("ingest: started")
		deps.DB = db
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           deps.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.SummarizeTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{"port": cfg.Port, "dir": cfg.ArtifactDir}).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		cancel()
	}

	shutdownCtx, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if ingestor != nil {
		<-ingestor.Done()
	}
	if serveErr != nil {
		return fmt.Errorf("http server: %w", serveErr)
	}
	log.Info("stopped")
	return nil
}

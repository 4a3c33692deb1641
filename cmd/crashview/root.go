package main

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"example.com/crashview/internal/catalog"
	"example.com/crashview/internal/config"
	"example.com/crashview/internal/logging"
	"example.com/crashview/internal/minidump"
	"example.com/crashview/internal/recorder"
)

var (
	cfgFile     string
	artifactDir string
	cfg         config.Config
)

var rootCmd = &cobra.Command{
	Use:   "crashview",
	Short: "Crash artifact recorder and catalog",
	Long: `crashview pairs crash reports (crash_report_<id>.json) with minidump
snapshots (crash_dump_<id>.dmp) and serves them over HTTP:
  GET /crashes       list of crashes, newest first
  GET /crash/:id     report plus snapshot summary and analysis

Run without a subcommand to start the server.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE:              runServe,
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (TOML, YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&artifactDir, "dir", "", "artifact directory (overrides ARTIFACT_DIR)")
}

// setup loads configuration, configures logging and installs the crash
// recorder for the running process.
func setup(cmd *cobra.Command, args []string) error {
	v := config.New()
	if artifactDir != "" {
		v.Set("artifact_dir", artifactDir)
	}
	c, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}
	if err := logging.Setup(c.LogLevel, c.LogFormat); err != nil {
		return err
	}
	cfg = c

	if recorder.Installed() == nil {
		if err := recorder.Install(recorder.New(recorder.Options{Dir: cfg.ArtifactDir})); err != nil {
			return fmt.Errorf("install recorder: %w", err)
		}
	}
	log.WithField("dir", cfg.ArtifactDir).Debug("config loaded")
	return nil
}

func newCatalog(c config.Config) *catalog.Service {
	return catalog.New(catalog.Options{
		Dir:         c.ArtifactDir,
		Pool:        minidump.NewPool(c.SummarizeWorkers, c.SummarizeTimeout),
		ListWorkers: c.ListWorkers,
	})
}

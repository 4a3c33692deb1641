package main

import (
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"example.com/crashview/internal/recorder"
)

var crashInGoroutine bool

var crashCmd = &cobra.Command{
	Use:   "crash [message]",
	Short: "Crash on purpose and record a report",
	Long: `Panic with the given message so the installed recorder writes a
crash_report_<id>.json into the artifact directory. The process then
terminates as an unrecovered panic.`,
	RunE: runCrash,
}

func init() {
	rootCmd.AddCommand(crashCmd)

	crashCmd.Flags().BoolVar(&crashInGoroutine, "goroutine", false, "Panic on a separate goroutine")
}

func runCrash(cmd *cobra.Command, args []string) error {
	msg := "crashview: deliberate crash"
	if len(args) > 0 {
		msg = strings.Join(args, " ")
	}
	if r := recorder.Installed(); r != nil {
		log.WithField("report", r.ReportPath()).Warn("crashing")
	}
	if !crashInGoroutine {
		panic(msg)
	}
	block := make(chan struct{})
	recorder.Go(func() { panic(msg) })
	<-block
	return nil
}

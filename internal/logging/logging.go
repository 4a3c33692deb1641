// Package logging configures the process logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Setup configures the standard logrus logger to write to stderr.
func Setup(level, format string) error {
	return Configure(log.StandardLogger(), os.Stderr, level, format)
}

// Configure sets level, formatter ("text" or "json") and output of l.
func Configure(l *log.Logger, out io.Writer, level, format string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	switch strings.ToLower(format) {
	case "", "text":
		l.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	case "json":
		l.SetFormatter(&log.JSONFormatter{})
	default:
		return fmt.Errorf("log format %q: want text or json", format)
	}
	l.SetLevel(lvl)
	l.SetOutput(out)
	return nil
}

// Package signature groups crash events that share a root cause.
package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"example.com/crashview/internal/domain"
)

type Source string

const (
	FromFrame   Source = "frame"
	FromMessage Source = "message"
	FromNothing Source = "none"
)

const Unknown = "unknown"

// Derive returns a stable signature and the source used.
// - Prefer the innermost frame that names a function.
// - Fallback to a hex SHA-256 of the message so the value has a fixed length.
func Derive(ev *domain.CrashEvent) (sig string, src Source) {
	if ev.Stacktrace != nil {
		for _, f := range ev.Stacktrace.Frames {
			if f.Function == nil || *f.Function == "" {
				continue
			}
			return frameSignature(f), FromFrame
		}
	}
	if ev.Message != nil && *ev.Message != "" {
		sum := sha256.Sum256([]byte(*ev.Message))
		return hex.EncodeToString(sum[:]), FromMessage
	}
	return Unknown, FromNothing
}

func frameSignature(f domain.Frame) string {
	if f.Filename == nil {
		return *f.Function
	}
	if f.Line == nil {
		return fmt.Sprintf("%s (%s)", *f.Function, *f.Filename)
	}
	return fmt.Sprintf("%s (%s:%d)", *f.Function, *f.Filename, *f.Line)
}

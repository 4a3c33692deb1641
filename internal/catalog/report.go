package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"example.com/crashview/internal/domain"
)

var errMalformedReport = errors.New("malformed report")

// report is the subset of a crash report the catalog reads. Reports from
// other writers may use different field types, so each field is decoded on
// its own and dropped when it does not fit.
type report struct {
	raw        json.RawMessage
	timestamp  *float64
	message    *string
	stacktrace *domain.Stacktrace
}

type reportFields struct {
	Timestamp  json.RawMessage `json:"timestamp"`
	Message    json.RawMessage `json:"message"`
	Stacktrace json.RawMessage `json:"stacktrace"`
}

// parseReport accepts any JSON document. Only objects contribute fields.
func parseReport(data []byte) (*report, error) {
	data = bytes.TrimSpace(data)
	if !json.Valid(data) {
		return nil, errMalformedReport
	}
	r := &report{raw: json.RawMessage(data)}
	if data[0] != '{' {
		return r, nil
	}
	var f reportFields
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errMalformedReport
	}
	r.timestamp = parseTimestamp(f.Timestamp)
	var msg string
	if isString(f.Message) && json.Unmarshal(f.Message, &msg) == nil {
		r.message = &msg
	}
	var st domain.Stacktrace
	if len(f.Stacktrace) > 0 && json.Unmarshal(f.Stacktrace, &st) == nil && len(st.Frames) > 0 {
		r.stacktrace = &st
	}
	return r, nil
}

func isString(raw json.RawMessage) bool { return len(raw) > 0 && raw[0] == '"' }

// parseTimestamp reads epoch seconds from a number or a numeric string, or
// an RFC 3339 time string.
func parseTimestamp(raw json.RawMessage) *float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		return &v
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		v := float64(t.UnixMicro()) / 1e6
		return &v
	}
	return nil
}

func (r *report) event() *domain.CrashEvent {
	return &domain.CrashEvent{Message: r.message, Stacktrace: r.stacktrace}
}

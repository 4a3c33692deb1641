// Package artifact pairs crash reports with their snapshots by the id
// embedded in their file names.
package artifact

import "strings"

const (
	ReportPrefix   = "crash_report_"
	ReportSuffix   = ".json"
	SnapshotPrefix = "crash_dump_"
	SnapshotSuffix = ".dmp"
)

func ReportName(id string) string { return ReportPrefix + id + ReportSuffix }

func SnapshotName(id string) string { return SnapshotPrefix + id + SnapshotSuffix }

// ParseReportName extracts the id from a report file name.
func ParseReportName(name string) (string, bool) {
	rest, ok := strings.CutPrefix(name, ReportPrefix)
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, ReportSuffix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

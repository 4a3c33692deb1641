package artifact

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"example.com/crashview/internal/domain"
)

// Pair is a report artifact and its optional snapshot. SnapshotPath is empty
// when no snapshot was written for the crash.
type Pair struct {
	ID           string
	ReportPath   string
	SnapshotPath string
}

type Correlator struct {
	fs  afero.Fs
	dir string
}

func NewCorrelator(fs afero.Fs, dir string) *Correlator {
	return &Correlator{fs: fs, dir: dir}
}

func (c *Correlator) Dir() string { return c.dir }

// IDs enumerates the directory once and returns the ids of every report
// artifact in it. Ids that domain.ValidateID rejects are skipped, so every
// listed id can be looked up. Order is unspecified.
func (c *Correlator) IDs() ([]string, error) {
	entries, err := afero.ReadDir(c.fs, c.dir)
	if err != nil {
		return nil, fmt.Errorf("read artifact dir %s: %w", c.dir, err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if id, ok := ParseReportName(e.Name()); ok && domain.ValidateID(id) == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (c *Correlator) ReportPath(id string) string {
	return filepath.Join(c.dir, ReportName(id))
}

func (c *Correlator) SnapshotPath(id string) string {
	return filepath.Join(c.dir, SnapshotName(id))
}

// HasSnapshot reports whether a snapshot artifact exists for id. Any stat
// failure counts as absence.
func (c *Correlator) HasSnapshot(id string) bool {
	fi, err := c.fs.Stat(c.SnapshotPath(id))
	return err == nil && !fi.IsDir()
}

func (c *Correlator) Pair(id string) Pair {
	p := Pair{ID: id, ReportPath: c.ReportPath(id)}
	if c.HasSnapshot(id) {
		p.SnapshotPath = c.SnapshotPath(id)
	}
	return p
}

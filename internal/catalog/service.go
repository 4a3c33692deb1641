// Package catalog lists crash artifacts and assembles per-crash detail.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"

	"example.com/crashview/internal/artifact"
	"example.com/crashview/internal/domain"
	"example.com/crashview/internal/minidump"
	"example.com/crashview/internal/signature"
)

var ErrNotFound = errors.New("crash not found")

const defaultListWorkers = 8

// Entry is one row of the crash list.
type Entry struct {
	ID        string   `json:"id"`
	Timestamp *float64 `json:"timestamp,omitempty"`
	Message   *string  `json:"message,omitempty"`
}

// Detail is a report plus the summary and analysis of its snapshot. Summary
// and Analysis are nil when there is no usable snapshot.
type Detail struct {
	Report   json.RawMessage    `json:"sentry_report"`
	Summary  *minidump.Summary  `json:"minidump_summary,omitempty"`
	Analysis *minidump.Analysis `json:"minidump_analysis,omitempty"`
}

type Options struct {
	Fs          afero.Fs
	Dir         string
	Pool        *minidump.Pool
	ListWorkers int
	Logger      log.FieldLogger
}

type Service struct {
	fs          afero.Fs
	corr        *artifact.Correlator
	pool        *minidump.Pool
	listWorkers int
	logger      log.FieldLogger
}

func New(opts Options) *Service {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if opts.Pool == nil {
		opts.Pool = minidump.NewPool(0, 0)
	}
	if opts.ListWorkers <= 0 {
		opts.ListWorkers = defaultListWorkers
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	return &Service{
		fs:          opts.Fs,
		corr:        artifact.NewCorrelator(opts.Fs, opts.Dir),
		pool:        opts.Pool,
		listWorkers: opts.ListWorkers,
		logger:      opts.Logger,
	}
}

func (s *Service) Dir() string { return s.corr.Dir() }

type loaded struct {
	id     string
	report *report
}

// load reads every report in the directory on a bounded pool. Unreadable or
// malformed reports are skipped.
func (s *Service) load(ctx context.Context) ([]loaded, error) {
	ids, err := s.corr.IDs()
	if err != nil {
		return nil, err
	}
	p := pool.NewWithResults[*loaded]().WithMaxGoroutines(s.listWorkers)
	for _, id := range ids {
		p.Go(func() *loaded {
			if ctx.Err() != nil {
				return nil
			}
			rep, err := s.readReport(id)
			if err != nil {
				s.logger.WithError(err).WithField("id", id).Debug("skip report")
				return nil
			}
			return &loaded{id: id, report: rep}
		})
	}
	results := p.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]loaded, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i], out[j]) })
	return out, nil
}

// newer orders by timestamp descending, reports without one last, then by id.
func newer(a, b loaded) bool {
	ta, tb := a.report.timestamp, b.report.timestamp
	switch {
	case ta != nil && tb != nil && *ta != *tb:
		return *ta > *tb
	case ta != nil && tb == nil:
		return true
	case ta == nil && tb != nil:
		return false
	}
	return a.id < b.id
}

func (s *Service) readReport(id string) (*report, error) {
	path := s.corr.ReportPath(id)
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	rep, err := parseReport(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return rep, nil
}

// List returns one entry per readable report, newest first. It fails only
// when the directory cannot be enumerated.
func (s *Service) List(ctx context.Context) ([]Entry, error) {
	reports, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(reports))
	for _, r := range reports {
		entries = append(entries, Entry{ID: r.id, Timestamp: r.report.timestamp, Message: r.report.message})
	}
	return entries, nil
}

// Records returns the list data plus signature and snapshot presence, in the
// shape the crash index stores.
func (s *Service) Records(ctx context.Context) ([]domain.IndexRecord, error) {
	reports, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]domain.IndexRecord, 0, len(reports))
	for _, r := range reports {
		sig, _ := signature.Derive(r.report.event())
		records = append(records, domain.IndexRecord{
			ID:          r.id,
			Timestamp:   r.report.timestamp,
			Message:     r.report.message,
			Signature:   sig,
			HasSnapshot: s.corr.HasSnapshot(r.id),
		})
	}
	return records, nil
}

// Detail loads the report for id and summarizes its snapshot when one
// exists. A missing or invalid report is ErrNotFound; snapshot problems only
// leave Summary and Analysis nil.
func (s *Service) Detail(ctx context.Context, id string) (*Detail, error) {
	if err := domain.ValidateID(id); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	rep, err := s.readReport(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	d := &Detail{Report: rep.raw}

	pair := s.corr.Pair(id)
	if pair.SnapshotPath == "" {
		return d, nil
	}
	entry := s.logger.WithField("id", id)
	data, err := afero.ReadFile(s.fs, pair.SnapshotPath)
	if err != nil {
		entry.WithError(err).Warn("snapshot unreadable")
		return d, nil
	}
	res, err := s.pool.Summarize(ctx, data)
	if err != nil {
		entry.WithError(err).Warn("snapshot not summarized")
		return d, nil
	}
	d.Summary = &res.Summary
	d.Analysis = res.Analysis
	return d, nil
}

// Package recorder captures a structured crash event from inside the failing
// process and persists it as a report artifact.
package recorder

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"reflect"
	"sync/atomic"
	"time"

	goerrors "github.com/go-errors/errors"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"example.com/crashview/internal/artifact"
	"example.com/crashview/internal/domain"
)

type Options struct {
	// Fs defaults to the OS filesystem.
	Fs afero.Fs
	// Dir receives crash_report_<id>.json. Defaults to the working directory.
	Dir    string
	Logger log.FieldLogger
	Now    func() time.Time
	NewID  func() string
}

// Recorder captures at most one crash event. The event id is generated up
// front so the failure path does no random-number I/O.
type Recorder struct {
	fs     afero.Fs
	dir    string
	logger log.FieldLogger
	now    func() time.Time

	id    string
	fired atomic.Bool
}

func New(opts Options) *Recorder {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Recorder{
		fs:     opts.Fs,
		dir:    opts.Dir,
		logger: opts.Logger,
		now:    opts.Now,
		id:     opts.NewID(),
	}
}

// ID is the id the next capture will use.
func (r *Recorder) ID() string { return r.id }

// ReportPath is where the report will be written.
func (r *Recorder) ReportPath() string {
	return filepath.Join(r.dir, artifact.ReportName(r.id))
}

// Capture records the panic value v. Only the first call on a recorder does
// anything; later calls return nil, false. Persistence failures are logged
// and otherwise ignored.
func (r *Recorder) Capture(v any) (*domain.CrashEvent, bool) {
	if !r.fired.CompareAndSwap(false, true) {
		return nil, false
	}
	ev := r.event(v)
	if err := r.write(ev); err != nil {
		r.logger.WithError(err).WithField("event_id", ev.EventID).Error("crash report not written")
	} else {
		r.logger.WithField("path", r.ReportPath()).Info("crash report written")
	}
	return ev, true
}

func (r *Recorder) event(v any) *domain.CrashEvent {
	msg := Classify(v).Message()
	return &domain.CrashEvent{
		EventID:    r.id,
		Timestamp:  float64(r.now().UnixMicro()) / 1e6,
		Message:    &msg,
		Level:      domain.LevelFatal,
		Platform:   domain.PlatformGo,
		Stacktrace: &domain.Stacktrace{Frames: Frames(v)},
	}
}

func (r *Recorder) write(ev *domain.CrashEvent) error {
	data, err := json.MarshalIndent(ev, "", "  ")
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := r.fs.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", r.dir, err)
	}
	path := r.ReportPath()
	if err := afero.WriteFile(r.fs, path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

var selfPkg = reflect.TypeOf(Recorder{}).PkgPath()

// Frames returns the stack of v innermost call first, without runtime or
// recorder frames. An *errors.Error payload (github.com/go-errors/errors)
// keeps the stack of its origin; anything else uses the current stack.
func Frames(v any) []domain.Frame {
	se := goerrors.Wrap(v, 1)
	if se == nil {
		return nil
	}
	stack := se.StackFrames()
	frames := make([]domain.Frame, 0, len(stack))
	for _, sf := range stack {
		if sf.Package == "runtime" || sf.Package == selfPkg {
			continue
		}
		file := sf.File
		line := uint32(sf.LineNumber)
		fn := sf.Name
		if sf.Package != "" {
			fn = sf.Package + "." + sf.Name
		}
		frames = append(frames, domain.Frame{Filename: &file, Line: &line, Function: &fn})
	}
	return frames
}

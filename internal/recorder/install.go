package recorder

import (
	"errors"
	"sync/atomic"
)

var ErrAlreadyInstalled = errors.New("recorder: already installed")

var installed atomic.Pointer[Recorder]

// Install registers r as the process-wide recorder. Only the first call
// succeeds.
func Install(r *Recorder) error {
	if r == nil {
		return errors.New("recorder: nil recorder")
	}
	if !installed.CompareAndSwap(nil, r) {
		return ErrAlreadyInstalled
	}
	return nil
}

// Installed returns the registered recorder, or nil.
func Installed() *Recorder { return installed.Load() }

// Recover must be deferred directly: defer recorder.Recover(). It captures a
// panic with the installed recorder and then re-panics so the process still
// terminates.
func Recover() {
	v := recover()
	if v == nil {
		return
	}
	if r := installed.Load(); r != nil {
		r.Capture(v)
	}
	panic(v)
}

// Go runs f on a new goroutine guarded by Recover.
func Go(f func()) {
	go func() {
		defer Recover()
		f()
	}()
}

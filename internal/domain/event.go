package domain

// CrashEvent is the structured report written when the process fails.
// Timestamp is epoch seconds with a fractional part.
type CrashEvent struct {
	EventID    string      `json:"event_id"`
	Timestamp  float64     `json:"timestamp"`
	Message    *string     `json:"message,omitempty"`
	Level      string      `json:"level,omitempty"`
	Platform   string      `json:"platform,omitempty"`
	Stacktrace *Stacktrace `json:"stacktrace,omitempty"`
}

type Stacktrace struct {
	// Frames are ordered innermost call first.
	Frames []Frame `json:"frames"`
}

// Frame fields are individually optional since symbol data may be stripped.
type Frame struct {
	Filename *string `json:"filename,omitempty"`
	Line     *uint32 `json:"lineno,omitempty"`
	Column   *uint32 `json:"colno,omitempty"`
	Function *string `json:"function,omitempty"`
}

// IndexRecord is the row pushed to the crash index.
type IndexRecord struct {
	ID          string
	Timestamp   *float64
	Message     *string
	Signature   string
	HasSnapshot bool
}

const (
	LevelFatal = "fatal"
	PlatformGo = "go"
)

// MaxIDLength is the longest file name component common filesystems allow,
// so every id read back from a directory fits.
const MaxIDLength = 255

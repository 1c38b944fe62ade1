package processevent

import (
	"time"
)

// TimestampLayout is the display layout for creation times ("%Y-%m-%d %H:%M:%S %z").
const TimestampLayout = "2006-01-02 15:04:05 -0700"

// ProcessEvent is a normalized process-creation notification.
// Optional fields keep their absence; accessors return copies so consumers cannot mutate an event.
type ProcessEvent struct {
	pid            uint32
	name           string
	executablePath *string
	parentPID      *uint32
	commandLine    *string
	createdAt      *time.Time
}

type Option func(*ProcessEvent)

func WithExecutablePath(path string) Option {
	return func(e *ProcessEvent) {
		e.executablePath = &path
	}
}

func WithParentPID(ppid uint32) Option {
	return func(e *ProcessEvent) {
		e.parentPID = &ppid
	}
}

func WithCommandLine(cmdline string) Option {
	return func(e *ProcessEvent) {
		e.commandLine = &cmdline
	}
}

// WithCreatedAt sets the creation time, truncated to the second. The location (and so
// the UTC offset) of t is kept as is.
func WithCreatedAt(t time.Time) Option {
	return func(e *ProcessEvent) {
		truncated := t.Truncate(time.Second)
		e.createdAt = &truncated
	}
}

// New builds an event from its required fields and any optional ones.
func New(pid uint32, name string, opts ...Option) ProcessEvent {
	e := ProcessEvent{
		pid:  pid,
		name: name,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

func (e ProcessEvent) PID() uint32 {
	return e.pid
}

func (e ProcessEvent) Name() string {
	return e.name
}

func (e ProcessEvent) ExecutablePath() (string, bool) {
	if e.executablePath == nil {
		return "", false
	}
	return *e.executablePath, true
}

// ParentPID reports the parent process ID. A missing parent is not the same as parent 0.
func (e ProcessEvent) ParentPID() (uint32, bool) {
	if e.parentPID == nil {
		return 0, false
	}
	return *e.parentPID, true
}

func (e ProcessEvent) CommandLine() (string, bool) {
	if e.commandLine == nil {
		return "", false
	}
	return *e.commandLine, true
}

func (e ProcessEvent) CreatedAt() (time.Time, bool) {
	if e.createdAt == nil {
		return time.Time{}, false
	}
	return *e.createdAt, true
}

// FormatTimestamp renders t with its own UTC offset, e.g. "2024-03-05 14:22:01 +0200".
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

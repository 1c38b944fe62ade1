package processevent

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Property names of a raw process-creation record.
const (
	FieldProcessID       = "ProcessId"
	FieldName            = "Name"
	FieldExecutablePath  = "ExecutablePath"
	FieldParentProcessID = "ParentProcessId"
	FieldCommandLine     = "CommandLine"
	FieldCreationDate    = "CreationDate"
)

// RawRecord is an unprocessed notification payload. A missing key or a nil value
// means the facility did not report the property.
type RawRecord map[string]any

var ErrRecordParse = errors.New("malformed process record")

// RecordParseError is returned by Normalize for a record that cannot become a ProcessEvent.
type RecordParseError struct {
	Field string
	Err   error
}

func (e *RecordParseError) Error() string {
	return fmt.Sprintf("%s: field %q: %v", ErrRecordParse, e.Field, e.Err)
}

func (e *RecordParseError) Unwrap() error {
	return e.Err
}

func (e *RecordParseError) Is(target error) bool {
	return target == ErrRecordParse
}

var (
	errMissing = errors.New("missing")
	errEmpty   = errors.New("empty")
)

// Normalize maps a raw record to a ProcessEvent. ProcessId and Name are required;
// every other property is carried over only when present, never defaulted.
func Normalize(raw RawRecord) (ProcessEvent, error) {
	pidValue, ok := lookup(raw, FieldProcessID)
	if !ok {
		return ProcessEvent{}, &RecordParseError{Field: FieldProcessID, Err: errMissing}
	}
	pid, err := toUint32(pidValue)
	if err != nil {
		return ProcessEvent{}, &RecordParseError{Field: FieldProcessID, Err: err}
	}

	nameValue, ok := lookup(raw, FieldName)
	if !ok {
		return ProcessEvent{}, &RecordParseError{Field: FieldName, Err: errMissing}
	}
	name, err := toString(nameValue)
	if err != nil {
		return ProcessEvent{}, &RecordParseError{Field: FieldName, Err: err}
	}
	if name == "" {
		return ProcessEvent{}, &RecordParseError{Field: FieldName, Err: errEmpty}
	}

	var opts []Option

	if v, ok := lookup(raw, FieldExecutablePath); ok {
		path, err := toString(v)
		if err != nil {
			return ProcessEvent{}, &RecordParseError{Field: FieldExecutablePath, Err: err}
		}
		opts = append(opts, WithExecutablePath(path))
	}

	if v, ok := lookup(raw, FieldParentProcessID); ok {
		ppid, err := toUint32(v)
		if err != nil {
			return ProcessEvent{}, &RecordParseError{Field: FieldParentProcessID, Err: err}
		}
		opts = append(opts, WithParentPID(ppid))
	}

	if v, ok := lookup(raw, FieldCommandLine); ok {
		cmdline, err := toString(v)
		if err != nil {
			return ProcessEvent{}, &RecordParseError{Field: FieldCommandLine, Err: err}
		}
		opts = append(opts, WithCommandLine(cmdline))
	}

	if v, ok := lookup(raw, FieldCreationDate); ok {
		created, err := toTime(v)
		if err != nil {
			return ProcessEvent{}, &RecordParseError{Field: FieldCreationDate, Err: err}
		}
		opts = append(opts, WithCreatedAt(created))
	}

	return New(pid, name, opts...), nil
}

func lookup(raw RawRecord, field string) (any, bool) {
	v, ok := raw[field]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func toString(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case *string:
		if s == nil {
			return "", errMissing
		}
		return *s, nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

func toUint32(v any) (uint32, error) {
	var n int64
	switch x := v.(type) {
	case uint32:
		return x, nil
	case uint8:
		return uint32(x), nil
	case uint16:
		return uint32(x), nil
	case uint:
		if uint64(x) > math.MaxUint32 {
			return 0, fmt.Errorf("value %d out of range", x)
		}
		return uint32(x), nil
	case uint64:
		if x > math.MaxUint32 {
			return 0, fmt.Errorf("value %d out of range", x)
		}
		return uint32(x), nil
	case int:
		n = int64(x)
	case int8:
		n = int64(x)
	case int16:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case float64:
		if x != math.Trunc(x) {
			return 0, fmt.Errorf("value %v is not an integer", x)
		}
		if x < 0 || x > math.MaxUint32 {
			return 0, fmt.Errorf("value %v out of range", x)
		}
		return uint32(x), nil
	case json.Number:
		return parseUint32(x.String())
	case string:
		return parseUint32(x)
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
	if n < 0 || n > math.MaxUint32 {
		return 0, fmt.Errorf("value %d out of range", n)
	}
	return uint32(n), nil
}

func parseUint32(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

func toTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case *time.Time:
		if x == nil {
			return time.Time{}, errMissing
		}
		return *x, nil
	case string:
		if t, err := time.Parse(time.RFC3339, x); err == nil {
			return t, nil
		}
		return ParseCIMDateTime(x)
	default:
		return time.Time{}, fmt.Errorf("expected timestamp, got %T", v)
	}
}

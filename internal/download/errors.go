package download

import (
	"errors"
	"fmt"
	"strings"
)

// ErrFallbackFailed is returned when the single-stream attempt that follows a
// failed segmented plan also fails.
var ErrFallbackFailed = errors.New("download: single-stream fallback failed")

// SegmentFault describes one segment that did not validate.
type SegmentFault struct {
	Index    int
	Path     string
	Expected int64 // -1 when unknown
	Actual   int64 // -1 when the part file is missing
	Status   Status
	// Marker holds the worker's error marker text, if one was left.
	Marker string
}

func (f SegmentFault) String() string {
	switch {
	case f.Actual < 0:
		return fmt.Sprintf("segment %d: part file missing (%s)", f.Index, f.Status)
	case f.Expected >= 0 && f.Actual != f.Expected:
		return fmt.Sprintf("segment %d: got %d bytes, want %d (%s)", f.Index, f.Actual, f.Expected, f.Status)
	default:
		return fmt.Sprintf("segment %d: %s", f.Index, f.Status)
	}
}

// SegmentIncompleteError reports a plan whose segments did not all arrive
// complete and at their expected size.
type SegmentIncompleteError struct {
	Faults []SegmentFault
}

func (e *SegmentIncompleteError) Error() string {
	parts := make([]string, len(e.Faults))
	for i, f := range e.Faults {
		parts[i] = f.String()
	}
	return "incomplete download: " + strings.Join(parts, "; ")
}

// MergeIOError is a read or write failure while reassembling segments.
type MergeIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *MergeIOError) Error() string {
	return fmt.Sprintf("merge: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *MergeIOError) Unwrap() error {
	return e.Err
}

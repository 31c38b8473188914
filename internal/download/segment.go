package download

import (
	"fmt"
	"strconv"
)

// Status is the lifecycle state of a segment.
type Status int

const (
	StatusPending Status = iota
	StatusInProgress
	StatusComplete
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInProgress:
		return "in_progress"
	case StatusComplete:
		return "complete"
	case StatusFailed:
		return "failed"
	default:
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Segment is one contiguous byte range of the target file, fetched into its
// own temporary file.
//
// A worker owns the segment while it is in progress. Once every worker has
// returned, the segment belongs to the orchestrator.
type Segment struct {
	Index int
	Start int64
	// End is inclusive. It is -1 when the total size is unknown.
	End  int64
	Path string

	ranged  bool
	status  Status
	written int64
}

// Length is the expected number of bytes, or -1 when unknown.
func (s *Segment) Length() int64 {
	if s.End < 0 {
		return -1
	}
	return s.End - s.Start + 1
}

// Ranged reports whether the segment is fetched with a Range request.
func (s *Segment) Ranged() bool {
	return s.ranged
}

// Status returns the current status.
func (s *Segment) Status() Status {
	return s.status
}

// Written returns the number of bytes the worker wrote to Path.
func (s *Segment) Written() int64 {
	return s.written
}

// ErrorPath is where a failed worker leaves its error marker.
func (s *Segment) ErrorPath() string {
	return s.Path + ".error"
}

// transition moves the segment forward. Backward moves and moves out of a
// terminal state are rejected.
func (s *Segment) transition(to Status) error {
	ok := false
	switch s.status {
	case StatusPending:
		ok = to == StatusInProgress
	case StatusInProgress:
		ok = to == StatusComplete || to == StatusFailed
	}
	if !ok {
		return fmt.Errorf("segment %d: invalid transition %s -> %s", s.Index, s.status, to)
	}
	s.status = to
	return nil
}

func (s *Segment) String() string {
	if s.End < 0 {
		return fmt.Sprintf("#%d [%d-]", s.Index, s.Start)
	}
	return fmt.Sprintf("#%d [%d-%d]", s.Index, s.Start, s.End)
}

func partPath(destination string, index int) string {
	return destination + ".part" + strconv.Itoa(index)
}

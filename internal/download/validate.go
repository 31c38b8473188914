package download

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// Validate checks every segment of plan after all workers have returned.
// A segment is valid when its status is Complete, its part file exists, and
// the file holds exactly the expected number of bytes. Validation is
// all-or-nothing: one bad segment fails the plan.
func Validate(plan *Plan) error {
	var faults []SegmentFault

	for _, seg := range plan.Segments {
		fault := SegmentFault{
			Index:    seg.Index,
			Path:     seg.Path,
			Expected: seg.Length(),
			Actual:   -1,
			Status:   seg.Status(),
		}

		fi, err := os.Stat(seg.Path)
		if err == nil {
			fault.Actual = fi.Size()
		}

		if seg.Status() == StatusComplete && fault.Actual >= 0 &&
			(fault.Expected < 0 || fault.Actual == fault.Expected) {
			continue
		}

		if marker, err := os.ReadFile(seg.ErrorPath()); err == nil {
			fault.Marker = strings.TrimSpace(string(marker))
		}
		faults = append(faults, fault)
	}

	if len(faults) > 0 {
		return &SegmentIncompleteError{Faults: faults}
	}
	return nil
}

// Cleanup removes every part file and error marker of plan. Missing files
// are not an error.
func Cleanup(plan *Plan) error {
	var errs []error
	for _, seg := range plan.Segments {
		for _, path := range []string{seg.Path, seg.ErrorPath()} {
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, fmt.Errorf("remove %s: %w", path, err))
			}
		}
	}
	return errors.Join(errs...)
}

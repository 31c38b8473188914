package download

import (
	"fmt"
	"io"
	"os"
)

// Merge reassembles the validated segments of plan into its destination,
// strictly in index order. Each part file is removed as soon as it has been
// copied. The destination appears only after every byte has been written and
// synced; on error it is left absent.
func Merge(plan *Plan) error {
	if plan.Single() {
		return finalizeSingle(plan)
	}

	staging := plan.Destination + ".merging"
	out, err := os.OpenFile(staging, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return &MergeIOError{Op: "create", Path: staging, Err: err}
	}

	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			out.Close()
			os.Remove(staging)
		}
	}()

	var written int64
	for _, seg := range plan.Segments {
		n, err := appendPart(out, seg)
		if err != nil {
			return err
		}
		written += n
	}

	if plan.Known() && written != plan.TotalSize {
		return &MergeIOError{
			Op:   "verify",
			Path: staging,
			Err:  fmt.Errorf("merged %d bytes, want %d", written, plan.TotalSize),
		}
	}

	if err := out.Sync(); err != nil {
		return &MergeIOError{Op: "sync", Path: staging, Err: err}
	}
	if err := out.Close(); err != nil {
		os.Remove(staging)
		cleanupNeeded = false
		return &MergeIOError{Op: "close", Path: staging, Err: err}
	}
	cleanupNeeded = false

	if err := os.Rename(staging, plan.Destination); err != nil {
		os.Remove(staging)
		return &MergeIOError{Op: "rename", Path: plan.Destination, Err: err}
	}
	return nil
}

// appendPart copies one part file onto out and removes it.
func appendPart(out io.Writer, seg *Segment) (int64, error) {
	in, err := os.Open(seg.Path)
	if err != nil {
		return 0, &MergeIOError{Op: "open", Path: seg.Path, Err: err}
	}

	n, err := io.Copy(out, in)
	in.Close()
	if err != nil {
		return n, &MergeIOError{Op: "copy", Path: seg.Path, Err: err}
	}
	if want := seg.Length(); want >= 0 && n != want {
		return n, &MergeIOError{
			Op:   "copy",
			Path: seg.Path,
			Err:  fmt.Errorf("read %d bytes, want %d", n, want),
		}
	}

	if err := os.Remove(seg.Path); err != nil {
		return n, &MergeIOError{Op: "remove", Path: seg.Path, Err: err}
	}
	return n, nil
}

// finalizeSingle moves the only part file onto the destination.
func finalizeSingle(plan *Plan) error {
	part := plan.Segments[0].Path

	f, err := os.OpenFile(part, os.O_RDWR, 0)
	if err != nil {
		return &MergeIOError{Op: "open", Path: part, Err: err}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return &MergeIOError{Op: "sync", Path: part, Err: err}
	}
	if err := f.Close(); err != nil {
		return &MergeIOError{Op: "close", Path: part, Err: err}
	}

	if err := os.Rename(part, plan.Destination); err != nil {
		return &MergeIOError{Op: "rename", Path: plan.Destination, Err: err}
	}
	return nil
}

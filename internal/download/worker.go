package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ZebulonRouseFrantzich/fetchrun/internal/config"
	"github.com/ZebulonRouseFrantzich/fetchrun/internal/httpclient"
)

// Event is a progress message from a worker. Bytes is cumulative for the
// segment.
type Event struct {
	Index  int
	Bytes  int64
	Status Status
}

// Worker fetches one segment into its temporary file.
//
// A worker never returns an error to its caller: failures are recorded as
// the segment's Failed status plus an error marker next to the part file.
type Worker struct {
	client *httpclient.Client
	events chan<- Event
	logger config.Logger
}

// NewWorker returns a worker reporting to events. events may be nil.
func NewWorker(client *httpclient.Client, events chan<- Event, logger config.Logger) *Worker {
	if logger == nil {
		logger = config.NopLogger()
	}
	return &Worker{client: client, events: events, logger: logger}
}

// Run fetches seg from url.
func (w *Worker) Run(ctx context.Context, seg *Segment, url string) {
	if err := seg.transition(StatusInProgress); err != nil {
		w.logger.Error("segment not runnable", "segment", seg.Index, "error", err)
		return
	}
	w.emit(Event{Index: seg.Index, Status: StatusInProgress}, false)

	err := w.fetch(ctx, seg, url)
	if err != nil {
		w.logger.Debug("segment failed", "segment", seg.Index, "written", seg.written, "error", err)
		if markErr := writeMarker(seg, err); markErr != nil {
			w.logger.Warn("write error marker", "path", seg.ErrorPath(), "error", markErr)
		}
		_ = seg.transition(StatusFailed)
		w.emit(Event{Index: seg.Index, Bytes: seg.written, Status: StatusFailed}, true)
		return
	}

	_ = seg.transition(StatusComplete)
	w.logger.Debug("segment complete", "segment", seg.Index, "written", seg.written)
	w.emit(Event{Index: seg.Index, Bytes: seg.written, Status: StatusComplete}, true)
}

func (w *Worker) fetch(ctx context.Context, seg *Segment, url string) error {
	var (
		resp *httpclient.Response
		err  error
	)
	if seg.Ranged() {
		resp, err = w.client.GetRange(ctx, url, seg.Start, seg.End)
	} else {
		resp, err = w.client.Get(ctx, url)
	}
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	f, err := os.OpenFile(seg.Path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create part file: %w", err)
	}

	pw := &progressWriter{w: f, seg: seg, worker: w}
	if _, err := io.Copy(pw, resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("read segment body: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close part file: %w", err)
	}
	return nil
}

// emit sends ev to the aggregator. Intermediate byte counts are dropped when
// the channel is full since the next one supersedes them; terminal events
// always block until delivered.
func (w *Worker) emit(ev Event, wait bool) {
	if w.events == nil {
		return
	}
	if wait {
		w.events <- ev
		return
	}
	select {
	case w.events <- ev:
	default:
	}
}

// progressWriter counts bytes written to a part file and reports them.
type progressWriter struct {
	w      io.Writer
	seg    *Segment
	worker *Worker
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	pw.seg.written += int64(n)
	pw.worker.emit(Event{Index: pw.seg.Index, Bytes: pw.seg.written, Status: StatusInProgress}, false)
	return n, err
}

// writeMarker records the failure next to the part file. Transport failures
// are recorded with status 0.
func writeMarker(seg *Segment, cause error) error {
	status := 0
	var statusErr *httpclient.HTTPStatusError
	if errors.As(cause, &statusErr) {
		status = statusErr.StatusCode
	}
	body := fmt.Sprintf("status=%d\nerror=%s\n", status, cause)
	return os.WriteFile(seg.ErrorPath(), []byte(body), 0644)
}

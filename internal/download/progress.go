package download

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/ZebulonRouseFrantzich/fetchrun/internal/config"
)

// Snapshot is the aggregate progress at one sample.
type Snapshot struct {
	Bytes int64
	// Total is -1 when unknown; Percent is then 0.
	Total      int64
	Percent    float64
	Throughput float64 // bytes per second since the previous sample
	Segments   int
	Complete   int
	Failed     int
}

// Renderer displays progress. Render is called only from the aggregator's
// goroutine.
type Renderer interface {
	Render(s Snapshot)
	Finish(s Snapshot)
}

// AggregatorOptions tunes sampling and output volume.
type AggregatorOptions struct {
	// Interval between samples. Default: 200ms.
	Interval time.Duration
	// Step is the minimum percentage change that triggers a render.
	// Default: 1.
	Step float64
	// Buffer is the event channel capacity. Default: 16 per segment.
	Buffer   int
	Renderer Renderer
	Logger   config.Logger
}

// Aggregator collects worker events and renders aggregate progress. It only
// observes: it never touches segment state.
type Aggregator struct {
	events   chan Event
	interval time.Duration
	step     float64
	renderer Renderer
	logger   config.Logger
	total    int64

	// indexed by segment, owned by Run
	bytes    []int64
	statuses []Status
}

// NewAggregator returns an aggregator for plan.
func NewAggregator(plan *Plan, opts AggregatorOptions) *Aggregator {
	if opts.Interval <= 0 {
		opts.Interval = config.DefaultProgressInterval
	}
	if opts.Step <= 0 {
		opts.Step = config.DefaultProgressStep
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 16 * len(plan.Segments)
	}
	if opts.Renderer == nil {
		opts.Renderer = nopRenderer{}
	}
	if opts.Logger == nil {
		opts.Logger = config.NopLogger()
	}

	return &Aggregator{
		events:   make(chan Event, opts.Buffer),
		interval: opts.Interval,
		step:     opts.Step,
		renderer: opts.Renderer,
		logger:   opts.Logger,
		total:    plan.TotalSize,
		bytes:    make([]int64, len(plan.Segments)),
		statuses: make([]Status, len(plan.Segments)),
	}
}

// Events is the channel workers send to. The orchestrator closes it once
// every worker has returned.
func (a *Aggregator) Events() chan<- Event {
	return a.events
}

// Close ends the event stream.
func (a *Aggregator) Close() {
	close(a.events)
}

// Run consumes events until the channel is closed and returns the final
// snapshot. Rendering happens at most once per interval, and only when the
// percentage moved by at least the step or a segment finished. With an
// unknown total any new bytes count as movement.
func (a *Aggregator) Run() Snapshot {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	var (
		lastSample    = time.Now()
		lastBytes     int64
		renderedPct   = -1.0
		renderedBytes int64
		throughput    float64
		finished      bool
	)

	for {
		select {
		case ev, ok := <-a.events:
			if !ok {
				s := a.snapshot(throughput)
				a.renderer.Finish(s)
				return s
			}
			if a.apply(ev) && ev.Status.Terminal() {
				finished = true
			}

		case now := <-ticker.C:
			s := a.snapshot(0)
			if elapsed := now.Sub(lastSample).Seconds(); elapsed > 0 {
				throughput = float64(s.Bytes-lastBytes) / elapsed
			}
			s.Throughput = throughput
			lastSample = now
			lastBytes = s.Bytes

			moved := s.Percent-renderedPct >= a.step
			if s.Total < 0 {
				moved = s.Bytes > renderedBytes
			}
			if moved || finished {
				a.renderer.Render(s)
				renderedPct = s.Percent
				renderedBytes = s.Bytes
				finished = false
			}
		}
	}
}

// apply records ev in the local arrays. Events for unknown segments and
// stale byte counts are ignored.
func (a *Aggregator) apply(ev Event) bool {
	if ev.Index < 0 || ev.Index >= len(a.bytes) {
		a.logger.Debug("progress event for unknown segment", "segment", ev.Index)
		return false
	}
	if a.statuses[ev.Index].Terminal() {
		return false
	}
	if ev.Bytes > a.bytes[ev.Index] {
		a.bytes[ev.Index] = ev.Bytes
	}
	a.statuses[ev.Index] = ev.Status
	return true
}

func (a *Aggregator) snapshot(throughput float64) Snapshot {
	s := Snapshot{Total: a.total, Throughput: throughput, Segments: len(a.bytes)}
	for i, b := range a.bytes {
		s.Bytes += b
		switch a.statuses[i] {
		case StatusComplete:
			s.Complete++
		case StatusFailed:
			s.Failed++
		}
	}
	if s.Total > 0 {
		s.Percent = math.Min(100, float64(s.Bytes)/float64(s.Total)*100)
	}
	return s
}

type nopRenderer struct{}

func (nopRenderer) Render(Snapshot) {}
func (nopRenderer) Finish(Snapshot) {}

// BarRenderer draws a terminal progress bar.
type BarRenderer struct {
	bar  *progressbar.ProgressBar
	desc string
}

// NewBarRenderer returns a bar writing to w. total may be -1.
func NewBarRenderer(w io.Writer, total int64, description string) *BarRenderer {
	bar := progressbar.NewOptions64(
		total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(w)
		}),
	)
	return &BarRenderer{bar: bar, desc: description}
}

func (r *BarRenderer) Render(s Snapshot) {
	r.bar.Describe(fmt.Sprintf("%s %s/s", r.desc, FormatBytes(int64(s.Throughput))))
	_ = r.bar.Set64(s.Bytes)
}

func (r *BarRenderer) Finish(s Snapshot) {
	_ = r.bar.Set64(s.Bytes)
	if s.Failed > 0 || (s.Total >= 0 && s.Bytes < s.Total) {
		_ = r.bar.Exit()
		return
	}
	_ = r.bar.Finish()
}

// LogRenderer reports progress as structured log lines, for
// non-interactive output.
type LogRenderer struct {
	logger config.Logger
	start  time.Time
}

// NewLogRenderer returns a renderer logging at info level.
func NewLogRenderer(logger config.Logger) *LogRenderer {
	return &LogRenderer{logger: logger, start: time.Now()}
}

func (r *LogRenderer) Render(s Snapshot) {
	r.log("downloading", s)
}

func (r *LogRenderer) Finish(s Snapshot) {
	r.log("download finished", s)
}

func (r *LogRenderer) log(msg string, s Snapshot) {
	attrs := []any{
		"elapsed", time.Since(r.start).Round(time.Millisecond),
		"transferred", s.Bytes,
		"throughput", FormatBytes(int64(s.Throughput)) + "/s",
		"segments", fmt.Sprintf("%d/%d", s.Complete, s.Segments),
	}
	if s.Total >= 0 {
		attrs = append(attrs, "progress", fmt.Sprintf("%.1f%%", s.Percent), "total", s.Total)
	}
	if s.Failed > 0 {
		attrs = append(attrs, "failed", s.Failed)
	}
	r.logger.Info(msg, attrs...)
}

// FormatBytes formats b as a human-readable size.
func FormatBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ZebulonRouseFrantzich/fetchrun/internal/config"
	"github.com/ZebulonRouseFrantzich/fetchrun/internal/httpclient"
)

// Phase is a step of Fetch.
type Phase int

const (
	PhaseDownloading Phase = iota
	PhaseValid
	PhaseInvalid
	PhaseFallbackDownloading
	PhaseMerging
)

func (p Phase) String() string {
	switch p {
	case PhaseDownloading:
		return "downloading"
	case PhaseValid:
		return "valid"
	case PhaseInvalid:
		return "invalid"
	case PhaseFallbackDownloading:
		return "fallback_downloading"
	case PhaseMerging:
		return "merging"
	default:
		return "unknown"
	}
}

// PhaseFunc observes phase changes. It is called from the goroutine that
// called Fetch.
type PhaseFunc func(Phase, *Plan)

// Options configures a Fetcher.
type Options struct {
	Parallelism        int
	SmallFileThreshold int64
	ProgressInterval   time.Duration
	ProgressStep       float64

	// NewRenderer builds the progress display for a plan. Nil disables
	// progress output.
	NewRenderer func(plan *Plan) Renderer

	Logger config.Logger
}

// Result describes a finished download.
type Result struct {
	Path     string
	Size     int64
	Plans    int
	FellBack bool
}

// Fetcher downloads one file with parallel range requests, validates the
// parts and merges them. A segmented plan that fails validation is replaced
// once by a single-stream plan.
type Fetcher struct {
	client  *httpclient.Client
	planner *Planner
	opts    Options
	logger  config.Logger
}

// NewFetcher returns a fetcher using client for every request.
func NewFetcher(client *httpclient.Client, opts Options) *Fetcher {
	if opts.Logger == nil {
		opts.Logger = config.NopLogger()
	}
	return &Fetcher{
		client:  client,
		planner: NewPlanner(client, opts.Parallelism, opts.SmallFileThreshold, opts.Logger),
		opts:    opts,
		logger:  opts.Logger,
	}
}

// Plan returns the plan Fetch would start with, without downloading.
func (f *Fetcher) Plan(ctx context.Context, url, destination string) *Plan {
	return f.planner.Create(ctx, url, destination)
}

// Fetch downloads url to destination. At most two plans are created: the
// primary plan and, if a segmented primary plan fails, one single-stream
// replacement. A failed single-segment primary plan is not retried.
func (f *Fetcher) Fetch(ctx context.Context, url, destination string, observe PhaseFunc) (*Result, error) {
	if err := os.MkdirAll(filepath.Dir(destination), 0755); err != nil {
		return nil, fmt.Errorf("create destination directory: %w", err)
	}
	phase := func(p Phase, plan *Plan) {
		f.logger.Debug("download phase", "phase", p.String(), "segments", len(plan.Segments))
		if observe != nil {
			observe(p, plan)
		}
	}

	plan := f.planner.Create(ctx, url, destination)
	plans := 1
	// Leftovers of an interrupted run would otherwise be validated as ours.
	if err := Cleanup(plan); err != nil {
		return nil, fmt.Errorf("remove stale parts: %w", err)
	}
	phase(PhaseDownloading, plan)

	err := f.attempt(ctx, plan)
	if err == nil {
		phase(PhaseValid, plan)
		phase(PhaseMerging, plan)
		return f.merge(plan, plans, false)
	}

	phase(PhaseInvalid, plan)
	if cerr := Cleanup(plan); cerr != nil {
		return nil, fmt.Errorf("clean up failed plan: %w", cerr)
	}

	if plan.Single() {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	f.logger.Warn("segmented download failed, retrying as a single stream", "error", err)

	single := f.planner.Single(plan)
	plans++
	phase(PhaseFallbackDownloading, single)

	if err := f.attempt(ctx, single); err != nil {
		if cerr := Cleanup(single); cerr != nil {
			f.logger.Warn("clean up after fallback failure", "error", cerr)
		}
		return nil, fmt.Errorf("%w: %w", ErrFallbackFailed, err)
	}
	return f.merge(single, plans, true)
}

// attempt runs one worker per segment, waits for all of them and validates
// the result. The aggregator runs alongside and is drained before return.
func (f *Fetcher) attempt(ctx context.Context, plan *Plan) error {
	var renderer Renderer
	if f.opts.NewRenderer != nil {
		renderer = f.opts.NewRenderer(plan)
	}
	agg := NewAggregator(plan, AggregatorOptions{
		Interval: f.opts.ProgressInterval,
		Step:     f.opts.ProgressStep,
		Renderer: renderer,
		Logger:   f.logger,
	})

	aggDone := make(chan Snapshot, 1)
	go func() {
		aggDone <- agg.Run()
	}()

	var wg sync.WaitGroup
	for _, seg := range plan.Segments {
		wg.Add(1)
		go func(seg *Segment) {
			defer wg.Done()
			NewWorker(f.client, agg.Events(), f.logger).Run(ctx, seg, plan.URL)
		}(seg)
	}
	wg.Wait()
	agg.Close()
	snap := <-aggDone

	f.logger.Debug("all segments finished",
		"segments", snap.Segments, "complete", snap.Complete, "failed", snap.Failed, "bytes", snap.Bytes)

	return Validate(plan)
}

func (f *Fetcher) merge(plan *Plan, plans int, fellBack bool) (*Result, error) {
	if err := Merge(plan); err != nil {
		if cerr := Cleanup(plan); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return nil, err
	}

	fi, err := os.Stat(plan.Destination)
	if err != nil {
		return nil, &MergeIOError{Op: "stat", Path: plan.Destination, Err: err}
	}

	return &Result{Path: plan.Destination, Size: fi.Size(), Plans: plans, FellBack: fellBack}, nil
}

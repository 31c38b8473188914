package download

import (
	"context"

	"github.com/ZebulonRouseFrantzich/fetchrun/internal/config"
	"github.com/ZebulonRouseFrantzich/fetchrun/internal/httpclient"
)

// Planner decides how a file is split before it is fetched.
type Planner struct {
	client      *httpclient.Client
	parallelism int
	threshold   int64
	logger      config.Logger
}

// NewPlanner returns a planner that splits files of at least threshold bytes
// into parallelism segments.
func NewPlanner(client *httpclient.Client, parallelism int, threshold int64, logger config.Logger) *Planner {
	if parallelism < 1 {
		parallelism = config.DefaultParallelism
	}
	if threshold <= 0 {
		threshold = config.DefaultSmallFileThreshold
	}
	if logger == nil {
		logger = config.NopLogger()
	}
	return &Planner{client: client, parallelism: parallelism, threshold: threshold, logger: logger}
}

// Create issues one metadata request and returns the plan for url. A failed
// metadata request, an unknown length, a small file or a server that refuses
// ranges all produce a single-segment plan; Create never fails.
func (p *Planner) Create(ctx context.Context, url, destination string) *Plan {
	info, err := p.client.Head(ctx, url)
	if err != nil {
		p.logger.Warn("metadata request failed, streaming in one segment", "url", url, "error", err)
		return NewPlan(url, destination, -1, 1)
	}

	switch {
	case info.Size < 0:
		p.logger.Debug("content length unknown", "url", url)
		return NewPlan(url, destination, -1, 1)
	case info.Size < p.threshold:
		p.logger.Debug("small file, single segment", "size", info.Size, "threshold", p.threshold)
		return NewPlan(url, destination, info.Size, 1)
	case !info.AcceptsRanges:
		p.logger.Debug("server refuses ranges, single segment", "size", info.Size)
		return NewPlan(url, destination, info.Size, 1)
	}

	plan := NewPlan(url, destination, info.Size, p.parallelism)
	p.logger.Debug("plan created", "size", info.Size, "segments", len(plan.Segments))
	return plan
}

// Single returns the forced single-segment replacement for failed. The
// declared size of the failed plan is kept so the result can be validated.
func (p *Planner) Single(failed *Plan) *Plan {
	return NewPlan(failed.URL, failed.Destination, failed.TotalSize, 1)
}

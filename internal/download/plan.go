package download

// Plan describes how one download attempt splits the target into segments.
type Plan struct {
	URL         string
	Destination string
	// TotalSize is the declared content length, or -1 when unknown.
	TotalSize int64
	Segments  []*Segment
}

// NewPlan partitions [0, total) into parts contiguous segments. The last
// segment absorbs the remainder of the integer division. A total below one
// byte yields a single segment of unknown length. parts is clamped to
// [1, total].
func NewPlan(url, destination string, total int64, parts int) *Plan {
	p := &Plan{URL: url, Destination: destination, TotalSize: total}

	if total <= 0 {
		p.TotalSize = -1
		p.Segments = []*Segment{{Index: 0, Start: 0, End: -1, Path: partPath(destination, 0)}}
		return p
	}

	if parts < 1 {
		parts = 1
	}
	if int64(parts) > total {
		parts = int(total)
	}

	size := total / int64(parts)
	p.Segments = make([]*Segment, parts)
	for i := range parts {
		start := int64(i) * size
		end := start + size - 1
		if i == parts-1 {
			end = total - 1
		}
		p.Segments[i] = &Segment{
			Index:  i,
			Start:  start,
			End:    end,
			Path:   partPath(destination, i),
			ranged: parts > 1,
		}
	}
	return p
}

// Single reports whether the plan streams the whole file in one segment.
func (p *Plan) Single() bool {
	return len(p.Segments) == 1
}

// Known reports whether the total size is known.
func (p *Plan) Known() bool {
	return p.TotalSize >= 0
}

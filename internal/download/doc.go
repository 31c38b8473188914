// Package download fetches a file as parallel byte-range segments and
// reassembles it.
//
// A Planner turns one HEAD request into a Plan: a list of contiguous
// segments covering the file, or a single segment when the size is unknown,
// the file is small, or the server refuses ranges. Each Segment is fetched
// by its own Worker into "{destination}.part{index}". Workers share nothing;
// they report progress as Events over a bounded channel to an Aggregator,
// which owns the per-segment counters and drives the Renderer.
//
// After every worker has returned, Validate checks each part file against
// its expected length. A valid plan is merged in index order by Merge. An
// invalid segmented plan is cleaned up and replaced by one single-stream
// plan; if that fails too, Fetch returns ErrFallbackFailed.
//
// Artifacts on disk:
//
//	{destination}.part{i}        segment data
//	{destination}.part{i}.error  failure marker ("status=<code>\nerror=<msg>\n")
//	{destination}.merging        staging file during merge
package download

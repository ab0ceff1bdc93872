package render

import (
	"sort"

	"podforge/internal/ducking"
	"podforge/internal/media/pcm"
)

// Cut is a half-open millisecond range removed from a segment's source.
type Cut struct {
	StartMS int64
	EndMS   int64
}

// frameRange is a half-open range of source frames.
type frameRange struct {
	start int64
	end   int64
}

// keptRanges returns the complement of cuts within [0, total), merging
// overlapping or touching cuts first.
func keptRanges(cuts []Cut, total int64, format pcm.Format) []frameRange {
	removed := make([]frameRange, 0, len(cuts))
	for _, cut := range cuts {
		start := min(max(format.MSToFrames(cut.StartMS), 0), total)
		end := min(max(format.MSToFrames(cut.EndMS), 0), total)
		if end > start {
			removed = append(removed, frameRange{start: start, end: end})
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].start < removed[j].start })

	var merged []frameRange
	for _, r := range removed {
		if n := len(merged); n > 0 && r.start <= merged[n-1].end {
			merged[n-1].end = max(merged[n-1].end, r.end)
			continue
		}
		merged = append(merged, r)
	}

	kept := make([]frameRange, 0, len(merged)+1)
	cursor := int64(0)
	for _, r := range merged {
		if r.start > cursor {
			kept = append(kept, frameRange{start: cursor, end: r.start})
		}
		cursor = r.end
	}
	if cursor < total {
		kept = append(kept, frameRange{start: cursor, end: total})
	}
	return kept
}

// piece is a contiguous run of source frames placed on the output timeline.
type piece struct {
	source  *pcm.File
	segment int
	src     frameRange
	// at is the output frame where the piece begins.
	at int64
	// rampIn and rampOut are declick lengths in frames at cut boundaries.
	rampIn  int64
	rampOut int64
}

func (p piece) frames() int64 {
	return p.src.end - p.src.start
}

// gainAt returns the declick gain for the n-th frame of the piece.
func (p piece) gainAt(n int64) float64 {
	gain := 1.0
	if p.rampIn > 0 && n < p.rampIn {
		gain = float64(n) / float64(p.rampIn)
	}
	if remaining := p.frames() - 1 - n; p.rampOut > 0 && remaining < p.rampOut {
		gain = min(gain, float64(remaining)/float64(p.rampOut))
	}
	return gain
}

// layout places the kept ranges of every segment back to back and returns
// the pieces, the post-edit span of each segment, and the total frame count.
// Ramps are applied only where a cut joins two pieces or trims a segment
// edge, so uncut audio passes through untouched.
func layout(segments []openSegment, format pcm.Format, declickFrames int64) ([]piece, []ducking.Span, int64) {
	var (
		pieces   []piece
		timeline []ducking.Span
		cursor   int64
	)
	for _, seg := range segments {
		total := seg.file.Frames()
		kept := keptRanges(seg.cuts, total, format)
		segStart := cursor
		for _, r := range kept {
			p := piece{source: seg.file, segment: seg.index, src: r, at: cursor}
			ramp := min(declickFrames, p.frames()/2)
			if r.start > 0 {
				p.rampIn = ramp
			}
			if r.end < total {
				p.rampOut = ramp
			}
			pieces = append(pieces, p)
			cursor += p.frames()
		}
		timeline = append(timeline, ducking.Span{
			Index:   seg.index,
			Kind:    seg.kind,
			StartMS: format.FramesToMS(segStart),
			EndMS:   format.FramesToMS(cursor),
		})
	}
	return pieces, timeline, cursor
}

package ducking

import (
	"fmt"
	"slices"
	"sort"

	"podforge/internal/blob"
)

// Rule places one music bed under the segments of the listed kinds.
// StartOffsetMS counts from the segment start; EndOffsetMS counts back from
// the segment end.
type Rule struct {
	MusicRef      blob.Ref `yaml:"music_ref" json:"music_ref"`
	ApplyTo       []string `yaml:"apply_to_segment_kinds" json:"apply_to_segment_kinds"`
	StartOffsetMS int64    `yaml:"start_offset_ms" json:"start_offset_ms"`
	EndOffsetMS   int64    `yaml:"end_offset_ms" json:"end_offset_ms"`
	FadeInMS      int64    `yaml:"fade_in_ms" json:"fade_in_ms"`
	FadeOutMS     int64    `yaml:"fade_out_ms" json:"fade_out_ms"`
	VolumeLevel   float64  `yaml:"volume_level" json:"volume_level"`
	Loop          bool     `yaml:"loop" json:"loop"`
}

// Validate checks the rule for values BuildCues cannot honor.
func (r Rule) Validate() error {
	if err := r.MusicRef.Validate(); err != nil {
		return fmt.Errorf("music rule: %w", err)
	}
	if r.VolumeLevel < MinLevel || r.VolumeLevel > MaxLevel {
		return fmt.Errorf("music rule: volume_level %.2f outside %.0f-%.0f", r.VolumeLevel, MinLevel, MaxLevel)
	}
	if r.StartOffsetMS < 0 || r.EndOffsetMS < 0 || r.FadeInMS < 0 || r.FadeOutMS < 0 {
		return fmt.Errorf("music rule: offsets and fades must be non-negative")
	}
	return nil
}

func (r Rule) appliesTo(kind string) bool {
	return len(r.ApplyTo) == 0 || slices.Contains(r.ApplyTo, kind)
}

// Span is one segment's position on the final (post-edit) timeline.
type Span struct {
	Index   int
	Kind    string
	StartMS int64
	EndMS   int64
}

// Point is an envelope vertex: linear Gain at AtMS.
type Point struct {
	AtMS float64
	Gain float64
}

// Envelope is a piecewise-linear gain curve. Gain is zero before the first
// point and after the last.
type Envelope []Point

// At returns the linear gain at ms.
func (e Envelope) At(ms float64) float64 {
	if len(e) == 0 || ms < e[0].AtMS || ms > e[len(e)-1].AtMS {
		return 0
	}
	for i := 1; i < len(e); i++ {
		a, b := e[i-1], e[i]
		if ms > b.AtMS {
			continue
		}
		if b.AtMS == a.AtMS {
			return b.Gain
		}
		frac := (ms - a.AtMS) / (b.AtMS - a.AtMS)
		return a.Gain + (b.Gain-a.Gain)*frac
	}
	return e[len(e)-1].Gain
}

// Cue is one music bed instance on the timeline.
type Cue struct {
	Rule     int
	Segment  int
	MusicRef blob.Ref
	Loop     bool
	StartMS  int64
	EndMS    int64
	GainDB   float64
	Envelope Envelope
}

// BuildCues expands rules over the timeline. Windows that collapse to nothing
// after offsets produce no cue. Cues are ordered by start time, then rule.
func BuildCues(timeline []Span, rules []Rule, curve Curve) ([]Cue, error) {
	minFade := curve.Crossfade.Milliseconds()
	var cues []Cue
	for ri, rule := range rules {
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", ri, err)
		}
		gainDB := curve.GainDB(rule.VolumeLevel)
		amplitude := DBToAmplitude(gainDB)
		for _, span := range timeline {
			if !rule.appliesTo(span.Kind) {
				continue
			}
			start := span.StartMS + rule.StartOffsetMS
			end := span.EndMS - rule.EndOffsetMS
			if end <= start {
				continue
			}
			cues = append(cues, Cue{
				Rule:     ri,
				Segment:  span.Index,
				MusicRef: rule.MusicRef,
				Loop:     rule.Loop,
				StartMS:  start,
				EndMS:    end,
				GainDB:   gainDB,
				Envelope: envelope(start, end, max(rule.FadeInMS, minFade), max(rule.FadeOutMS, minFade), amplitude),
			})
		}
	}
	sort.SliceStable(cues, func(i, j int) bool {
		if cues[i].StartMS != cues[j].StartMS {
			return cues[i].StartMS < cues[j].StartMS
		}
		return cues[i].Rule < cues[j].Rule
	})
	return cues, nil
}

// envelope fades in from silence at start, sustains at gain, and fades out to
// silence at end. Fades longer than the window share it proportionally.
func envelope(start, end, fadeIn, fadeOut int64, gain float64) Envelope {
	length := end - start
	if fadeIn+fadeOut > length {
		total := fadeIn + fadeOut
		fadeIn = length * fadeIn / total
		fadeOut = length - fadeIn
	}
	points := Envelope{
		{AtMS: float64(start), Gain: 0},
		{AtMS: float64(start + fadeIn), Gain: gain},
	}
	if sustainEnd := end - fadeOut; sustainEnd > start+fadeIn {
		points = append(points, Point{AtMS: float64(sustainEnd), Gain: gain})
	}
	return append(points, Point{AtMS: float64(end), Gain: 0})
}

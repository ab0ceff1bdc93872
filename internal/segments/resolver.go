package segments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"podforge/internal/blob"
	"podforge/internal/logging"
	"podforge/internal/services"
	"podforge/internal/services/synthesis"
)

// Overrides maps a segment order index to the audio an episode supplies for it.
type Overrides map[int]blob.Ref

// Resolved pairs a template segment with the audio that fills it.
type Resolved struct {
	Segment Segment  `json:"segment"`
	Ref     blob.Ref `json:"ref"`
}

// Synthesizer renders a script to an audio file.
type Synthesizer interface {
	Synthesize(ctx context.Context, req synthesis.Request, dest string) (int64, error)
}

// Options configures a Resolver.
type Options struct {
	Synthesizer Synthesizer
	// SynthesisTimeout bounds each synthesis call; defaults to 30s.
	SynthesisTimeout time.Duration
	Logger           *slog.Logger
}

// Resolver expands template segments into concrete audio references.
type Resolver struct {
	synth   Synthesizer
	timeout time.Duration
	logger  *slog.Logger
}

// NewResolver builds a Resolver.
func NewResolver(opts Options) *Resolver {
	timeout := opts.SynthesisTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Resolver{
		synth:   opts.Synthesizer,
		timeout: timeout,
		logger:  logging.NewComponentLogger(opts.Logger, "segments"),
	}
}

// Request is one resolution pass for an episode.
type Request struct {
	Template  *Template
	Overrides Overrides
	// ScratchDir receives synthesized audio.
	ScratchDir string
}

// CheckOverrides verifies that every override targets a declared segment and
// every main_content segment has an episode override. Template audio never
// stands in for main content. Submission runs it before a job is
// queued; Resolve runs it again before any work starts.
func CheckOverrides(tmpl *Template, overrides Overrides) error {
	declared := make(map[int]Segment, len(tmpl.Segments))
	for _, seg := range tmpl.Segments {
		declared[seg.OrderIndex] = seg
	}
	indexes := make([]int, 0, len(overrides))
	for idx := range overrides {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	for _, idx := range indexes {
		if _, ok := declared[idx]; !ok {
			return services.Wrap(services.ErrValidation, "segments", "check overrides",
				fmt.Sprintf("override for undeclared segment %d", idx), nil)
		}
		if err := overrides[idx].Validate(); err != nil {
			return services.Wrap(services.ErrValidation, "segments", "check overrides",
				fmt.Sprintf("segment %d", idx), err)
		}
	}
	for _, seg := range tmpl.Segments {
		if seg.Kind != KindMainContent {
			continue
		}
		if _, ok := overrides[seg.OrderIndex]; !ok {
			return services.Wrap(services.ErrMissingContent, "segments", "check overrides",
				fmt.Sprintf("main_content segment %d has no episode override", seg.OrderIndex), nil)
		}
	}
	return nil
}

// Resolve returns the concrete segment list ordered by order index.
// Precedence per segment: episode override, then synthesis for scripted
// segments, then the template's own audio. Non-content segments with no
// audio are declared-but-empty structure and are left out.
func (r *Resolver) Resolve(ctx context.Context, req Request) ([]Resolved, error) {
	if req.Template == nil {
		return nil, services.Wrap(services.ErrValidation, "segments", "resolve", "template is required", nil)
	}
	if err := CheckOverrides(req.Template, req.Overrides); err != nil {
		return nil, err
	}
	logger := logging.WithContext(ctx, r.logger)

	segs := make([]Segment, len(req.Template.Segments))
	copy(segs, req.Template.Segments)
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].OrderIndex < segs[j].OrderIndex })

	out := make([]Resolved, 0, len(segs))
	for _, seg := range segs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if ref, ok := req.Overrides[seg.OrderIndex]; ok {
			out = append(out, Resolved{Segment: seg, Ref: ref})
			continue
		}
		if seg.Source == SourceSynthesizedSpeech && strings.TrimSpace(seg.Script) != "" {
			ref, err := r.synthesize(ctx, seg, req.ScratchDir)
			if err != nil {
				return nil, err
			}
			out = append(out, Resolved{Segment: seg, Ref: ref})
			continue
		}
		if !seg.AudioRef.IsZero() {
			out = append(out, Resolved{Segment: seg, Ref: seg.AudioRef})
			continue
		}
		if seg.Kind == KindMainContent {
			return nil, services.Wrap(services.ErrMissingContent, "segments", "resolve",
				fmt.Sprintf("main_content segment %d has no audio", seg.OrderIndex), nil)
		}
		logger.Info("segment has no audio; skipping",
			logging.Int("order_index", seg.OrderIndex),
			logging.String("kind", string(seg.Kind)),
			logging.String(logging.FieldEventType, "segment_skipped"),
		)
	}
	return out, nil
}

func (r *Resolver) synthesize(ctx context.Context, seg Segment, scratchDir string) (blob.Ref, error) {
	if r.synth == nil {
		return blob.Ref{}, services.Wrap(services.ErrConfiguration, "segments", "synthesize",
			fmt.Sprintf("segment %d needs speech synthesis but no synthesis endpoint is configured", seg.OrderIndex), nil)
	}
	if err := os.MkdirAll(scratchDir, 0o755); err != nil {
		return blob.Ref{}, services.Wrap(services.ErrTransientIO, "segments", "synthesize", "create scratch dir", err)
	}
	dest := filepath.Join(scratchDir, fmt.Sprintf("synth-%03d.wav", seg.OrderIndex))

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	started := time.Now()
	_, err := r.synth.Synthesize(callCtx, synthesis.Request{Text: seg.Script, Voice: seg.Voice}, dest)
	if err != nil {
		return blob.Ref{}, classifySynthesisError(ctx, seg, r.timeout, err)
	}
	logging.WithContext(ctx, r.logger).Debug("segment synthesized",
		logging.Int("order_index", seg.OrderIndex),
		logging.String("kind", string(seg.Kind)),
		logging.Duration("elapsed", time.Since(started)),
	)
	return blob.LocalRef(dest), nil
}

func classifySynthesisError(parent context.Context, seg Segment, timeout time.Duration, err error) error {
	op := fmt.Sprintf("synthesize segment %d", seg.OrderIndex)
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrSynthesisTimeout, "segments", op, fmt.Sprintf("no audio after %s", timeout), err)
	}
	var statusErr *synthesis.StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Temporary():
			return services.Wrap(services.ErrTransientIO, "segments", op, "synthesis service unavailable", err)
		case statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden:
			return services.Wrap(services.ErrConfiguration, "segments", op, "synthesis credentials rejected", err)
		default:
			return services.Wrap(services.ErrValidation, "segments", op, "synthesis request rejected", err)
		}
	}
	return services.Wrap(services.ErrTransientIO, "segments", op, "synthesis call failed", err)
}

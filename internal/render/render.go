package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"podforge/internal/blob"
	"podforge/internal/ducking"
	"podforge/internal/logging"
	"podforge/internal/media/ffprobe"
	"podforge/internal/media/pcm"
	"podforge/internal/services"
)

const (
	// bytesPerSample is the working memory one interleaved sample costs
	// while a chunk is in flight: voice and music int16 buffers, the raw
	// read buffer, the float64 mix bus and the encoded output.
	bytesPerSample = 16
	// minChunkFrames is the smallest block the mixer will process.
	minChunkFrames = 1024

	stageName = "render"
)

var probe = ffprobe.ProbeAudio

// Transcoder converts audio with an external tool.
type Transcoder interface {
	ToCanonical(ctx context.Context, src, dst string, sampleRate, channels int) error
	Encode(ctx context.Context, src, dst, format string) error
}

// MusicResolver returns a local path for a music bed reference.
type MusicResolver func(ctx context.Context, ref blob.Ref) (string, error)

// Options configures a Renderer.
type Options struct {
	SampleRate     int
	Channels       int
	MaxBufferBytes int64
	DeclickMS      int
	OutputFormat   string
	Transcoder     Transcoder
	FFprobeBinary  string
	EncodeTimeout  time.Duration
	Logger         *slog.Logger
}

// Segment is one resolved input in playback order.
type Segment struct {
	Index int
	Kind  string
	Path  string
	Cuts  []Cut
}

// Job describes one render.
type Job struct {
	Segments   []Segment
	Rules      []ducking.Rule
	Curve      ducking.Curve
	Music      MusicResolver
	ScratchDir string
}

// Output describes the rendered file.
type Output struct {
	Path          string
	Format        string
	DurationMS    int64
	FileSizeBytes int64
	Frames        int64
	Timeline      []ducking.Span
	Cues          int
	CutsApplied   int
}

// Renderer mixes resolved segments into the final episode.
type Renderer struct {
	opts   Options
	format pcm.Format
	logger *slog.Logger
}

// New validates opts and returns a Renderer.
func New(opts Options) (*Renderer, error) {
	if opts.SampleRate <= 0 || opts.Channels <= 0 {
		return nil, errors.New("render: sample rate and channels must be positive")
	}
	opts.OutputFormat = strings.ToLower(strings.TrimSpace(opts.OutputFormat))
	if opts.OutputFormat == "" {
		opts.OutputFormat = "wav"
	}
	switch opts.OutputFormat {
	case "wav", "mp3", "m4a":
	default:
		return nil, fmt.Errorf("render: unsupported output format %q", opts.OutputFormat)
	}
	if opts.DeclickMS < 0 {
		opts.DeclickMS = 0
	}
	return &Renderer{
		opts:   opts,
		format: pcm.Format{SampleRate: opts.SampleRate, Channels: opts.Channels},
		logger: logging.NewComponentLogger(opts.Logger, "renderer"),
	}, nil
}

// ChunkFrames returns the number of frames processed per block under the
// configured memory ceiling.
func (r *Renderer) ChunkFrames() int64 {
	return r.opts.MaxBufferBytes / int64(r.opts.Channels*bytesPerSample)
}

// Render produces the episode audio under job.ScratchDir. The caller owns the
// returned file and is responsible for publishing it.
func (r *Renderer) Render(ctx context.Context, job Job) (*Output, error) {
	if len(job.Segments) == 0 {
		return nil, services.Wrap(services.ErrValidation, stageName, "plan", "no segments to render", nil)
	}
	chunk := r.ChunkFrames()
	if chunk < minChunkFrames {
		return nil, services.Wrap(services.ErrBudgetExceeded, stageName, "allocate",
			fmt.Sprintf("memory ceiling of %d bytes holds %d frames, need at least %d", r.opts.MaxBufferBytes, chunk, minChunkFrames), nil)
	}
	if err := os.MkdirAll(job.ScratchDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrTransientIO, stageName, "scratch", "create scratch directory", err)
	}
	logger := logging.WithContext(ctx, r.logger)

	var closers []*pcm.File
	defer func() {
		for _, f := range closers {
			f.Close()
		}
	}()

	segments := make([]openSegment, 0, len(job.Segments))
	cutsApplied := 0
	for i, seg := range job.Segments {
		file, err := r.openCanonical(ctx, seg.Path, filepath.Join(job.ScratchDir, fmt.Sprintf("canon-%03d.wav", i)))
		if err != nil {
			return nil, err
		}
		closers = append(closers, file)
		segments = append(segments, openSegment{index: seg.Index, kind: seg.Kind, file: file, cuts: seg.Cuts})
		cutsApplied += len(seg.Cuts)
	}

	declick := r.format.MSToFrames(int64(r.opts.DeclickMS))
	pieces, timeline, total := layout(segments, r.format, declick)

	cues, err := ducking.BuildCues(timeline, job.Rules, job.Curve)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, stageName, "music", "build music cues", err)
	}
	beds, bedFiles, err := r.openBeds(ctx, job, cues)
	closers = append(closers, bedFiles...)
	if err != nil {
		return nil, err
	}

	mixPath := filepath.Join(job.ScratchDir, "episode.wav")
	if err := r.mix(ctx, mixPath, pieces, beds, total, chunk); err != nil {
		os.Remove(mixPath)
		return nil, err
	}

	out := &Output{
		Path:        mixPath,
		Format:      "wav",
		Frames:      total,
		DurationMS:  r.format.FramesToMS(total),
		Timeline:    timeline,
		Cues:        len(cues),
		CutsApplied: cutsApplied,
	}
	if r.opts.OutputFormat != "wav" {
		if err := r.encode(ctx, out); err != nil {
			return nil, err
		}
	}
	info, err := os.Stat(out.Path)
	if err != nil {
		return nil, services.Wrap(services.ErrTransientIO, stageName, "stat", "inspect rendered file", err)
	}
	out.FileSizeBytes = info.Size()

	logger.Info("episode rendered",
		logging.String(logging.FieldEventType, "render_complete"),
		logging.String("format", out.Format),
		logging.Int64("duration_ms", out.DurationMS),
		logging.Int64("file_size_bytes", out.FileSizeBytes),
		logging.Int("segments", len(segments)),
		logging.Int("cuts", cutsApplied),
		logging.Int("cues", len(cues)),
		logging.Int64("chunk_frames", chunk),
	)
	return out, nil
}

func (r *Renderer) encode(ctx context.Context, out *Output) error {
	if r.opts.Transcoder == nil {
		return services.Wrap(services.ErrConfiguration, stageName, "encode", "ffmpeg is required for "+r.opts.OutputFormat+" output", nil)
	}
	encodeCtx := ctx
	if r.opts.EncodeTimeout > 0 {
		var cancel context.CancelFunc
		encodeCtx, cancel = context.WithTimeout(ctx, r.opts.EncodeTimeout)
		defer cancel()
	}
	dst := strings.TrimSuffix(out.Path, filepath.Ext(out.Path)) + "." + r.opts.OutputFormat
	if err := r.opts.Transcoder.Encode(encodeCtx, out.Path, dst, r.opts.OutputFormat); err != nil {
		os.Remove(dst)
		return toolError(ctx, encodeCtx, "encode", err)
	}
	os.Remove(out.Path)
	out.Path = dst
	out.Format = r.opts.OutputFormat

	if r.opts.FFprobeBinary == "" {
		return nil
	}
	audio, err := probe(ctx, r.opts.FFprobeBinary, dst)
	if err != nil {
		logging.WarnWithContext(r.logger, "ffprobe failed on encoded output", "render_probe_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "duration reported from mixed frame count"),
		)
		return nil
	}
	if audio.HasAudio() && audio.Channels != r.opts.Channels {
		logging.WarnWithContext(r.logger, "encoded channel layout differs from mix", "render_channel_mismatch",
			logging.Int("expected_channels", r.opts.Channels),
			logging.Int("encoded_channels", audio.Channels),
			logging.String("codec", audio.Codec),
		)
	}
	if audio.DurationMS > 0 {
		out.DurationMS = audio.DurationMS
	}
	return nil
}

// toolError classifies an external tool failure. A parent cancellation is
// returned as-is; an expired per-call timeout is a retryable timeout.
func toolError(parent, call context.Context, op string, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(call.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, stageName, op, "ffmpeg timed out", err)
	}
	return services.Wrap(services.ErrExternalTool, stageName, op, "ffmpeg failed", err)
}

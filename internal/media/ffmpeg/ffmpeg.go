package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Runner executes ffmpeg.
type Runner struct {
	Binary string
}

// New returns a Runner for binary, defaulting to "ffmpeg" on PATH.
func New(binary string) *Runner {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Runner{Binary: binary}
}

// ToCanonical decodes src into 16-bit PCM WAV at the given rate and channel count.
func (r *Runner) ToCanonical(ctx context.Context, src, dst string, sampleRate, channels int) error {
	return r.run(ctx, CanonicalArgs(src, dst, sampleRate, channels))
}

// Encode converts a canonical WAV mix into format ("mp3" or "m4a").
func (r *Runner) Encode(ctx context.Context, src, dst, format string) error {
	args, err := EncodeArgs(src, dst, format)
	if err != nil {
		return err
	}
	return r.run(ctx, args)
}

// CanonicalArgs builds the argument list for ToCanonical.
func CanonicalArgs(src, dst string, sampleRate, channels int) []string {
	return []string{
		"-hide_banner", "-nostdin", "-v", "error", "-y",
		"-i", src,
		"-map", "0:a:0",
		"-ac", strconv.Itoa(channels),
		"-ar", strconv.Itoa(sampleRate),
		"-c:a", "pcm_s16le",
		"-f", "wav",
		dst,
	}
}

// EncodeArgs builds the argument list for Encode.
func EncodeArgs(src, dst, format string) ([]string, error) {
	base := []string{"-hide_banner", "-nostdin", "-v", "error", "-y", "-i", src}
	switch strings.ToLower(format) {
	case "mp3":
		return append(base, "-c:a", "libmp3lame", "-b:a", "192k", "-f", "mp3", dst), nil
	case "m4a":
		return append(base, "-c:a", "aac", "-b:a", "192k", "-movflags", "+faststart", "-f", "ipod", dst), nil
	default:
		return nil, fmt.Errorf("ffmpeg encode: unsupported format %q", format)
	}
}

func (r *Runner) run(ctx context.Context, args []string) error {
	cmd := exec.CommandContext(ctx, r.Binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("ffmpeg: %w", errors.Join(ctxErr, err))
		}
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// Audio summarizes the first audio stream of an encoded file together with
// the container duration.
type Audio struct {
	Codec      string
	SampleRate int
	Channels   int
	DurationMS int64
	Container  string
}

// HasAudio reports whether an audio stream was found.
func (a Audio) HasAudio() bool {
	return a.Codec != "" || a.Channels > 0
}

type probeOutput struct {
	Streams []struct {
		CodecName  string `json:"codec_name"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
		Duration   string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
	} `json:"format"`
}

// ProbeAudio runs ffprobe restricted to the first audio stream of path.
func ProbeAudio(ctx context.Context, binary, path string) (Audio, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	if strings.TrimSpace(path) == "" {
		return Audio{}, errors.New("ffprobe: empty path")
	}

	args := []string{
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_name,sample_rate,channels,duration:format=duration,format_name",
		"-of", "json",
		"--", path,
	}
	output, err := exec.CommandContext(ctx, binary, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return Audio{}, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return Audio{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseAudio(output)
}

func parseAudio(raw []byte) (Audio, error) {
	var out probeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return Audio{}, fmt.Errorf("decode ffprobe output: %w", err)
	}
	audio := Audio{
		Container:  out.Format.FormatName,
		DurationMS: secondsToMS(out.Format.Duration),
	}
	if len(out.Streams) == 0 {
		return audio, nil
	}
	stream := out.Streams[0]
	audio.Codec = stream.CodecName
	audio.Channels = stream.Channels
	if rate, err := strconv.Atoi(strings.TrimSpace(stream.SampleRate)); err == nil && rate > 0 {
		audio.SampleRate = rate
	}
	// Some containers only report duration on the stream.
	if audio.DurationMS == 0 {
		audio.DurationMS = secondsToMS(stream.Duration)
	}
	return audio, nil
}

// secondsToMS converts an ffprobe decimal seconds string, returning 0 for
// "N/A", blanks, and negative values.
func secondsToMS(value string) int64 {
	seconds, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(seconds) || seconds <= 0 {
		return 0
	}
	return int64(math.Round(seconds * 1000))
}

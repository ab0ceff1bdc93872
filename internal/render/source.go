package render

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"podforge/internal/blob"
	"podforge/internal/ducking"
	"podforge/internal/media/pcm"
	"podforge/internal/services"
)

type openSegment struct {
	index int
	kind  string
	file  *pcm.File
	cuts  []Cut
}

// bed is the opened audio behind one cue.
type bed struct {
	cue   ducking.Cue
	file  *pcm.File
	start int64
	end   int64
}

// openCanonical opens path directly when it is already 16-bit PCM in the
// render format and otherwise transcodes it to scratch first.
func (r *Renderer) openCanonical(ctx context.Context, path, scratch string) (*pcm.File, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, stageName, "open", path, err)
		}
		return nil, services.Wrap(services.ErrTransientIO, stageName, "open", path, err)
	}
	file, err := pcm.Open(path)
	if err == nil {
		if file.Format() == r.format {
			return file, nil
		}
		file.Close()
	}
	if r.opts.Transcoder == nil {
		return nil, services.Wrap(services.ErrConfiguration, stageName, "transcode",
			fmt.Sprintf("%s is not canonical pcm and ffmpeg is unavailable", path), err)
	}
	if err := r.opts.Transcoder.ToCanonical(ctx, path, scratch, r.format.SampleRate, r.format.Channels); err != nil {
		os.Remove(scratch)
		return nil, toolError(ctx, ctx, "transcode", err)
	}
	file, err = pcm.Open(scratch)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "transcode", "transcoded file unreadable", err)
	}
	if file.Format() != r.format {
		file.Close()
		return nil, services.Wrap(services.ErrExternalTool, stageName, "transcode",
			fmt.Sprintf("transcoder produced %+v, want %+v", file.Format(), r.format), nil)
	}
	return file, nil
}

// openBeds resolves the music behind each cue, opening every distinct bed
// once. The returned files must be closed by the caller, also on error.
func (r *Renderer) openBeds(ctx context.Context, job Job, cues []ducking.Cue) ([]bed, []*pcm.File, error) {
	if len(cues) == 0 {
		return nil, nil, nil
	}
	if job.Music == nil {
		return nil, nil, services.Wrap(services.ErrConfiguration, stageName, "music", "music cues present but no resolver configured", nil)
	}
	opened := make(map[blob.Ref]*pcm.File)
	var files []*pcm.File
	beds := make([]bed, 0, len(cues))
	for _, cue := range cues {
		file, ok := opened[cue.MusicRef]
		if !ok {
			path, err := job.Music(ctx, cue.MusicRef)
			if err != nil {
				return nil, files, err
			}
			file, err = r.openCanonical(ctx, path, filepath.Join(job.ScratchDir, fmt.Sprintf("music-%03d.wav", len(files))))
			if err != nil {
				return nil, files, err
			}
			opened[cue.MusicRef] = file
			files = append(files, file)
		}
		beds = append(beds, bed{
			cue:   cue,
			file:  file,
			start: r.format.MSToFrames(cue.StartMS),
			end:   r.format.MSToFrames(cue.EndMS),
		})
	}
	return beds, files, nil
}

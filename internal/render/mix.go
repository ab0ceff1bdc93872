package render

import (
	"context"
	"fmt"
	"os"

	"podforge/internal/media/pcm"
	"podforge/internal/services"
)

// mix streams the edited voice track and music beds into a WAV file at path,
// chunk frames at a time. Every output frame is computed independently of
// the chunk it falls in, so the result does not depend on the chunk size.
func (r *Renderer) mix(ctx context.Context, path string, pieces []piece, beds []bed, total, chunk int64) error {
	file, err := os.Create(path)
	if err != nil {
		return services.Wrap(services.ErrTransientIO, stageName, "mix", "create output", err)
	}
	defer file.Close()
	writer, err := pcm.NewWriter(file, r.format)
	if err != nil {
		return services.Wrap(services.ErrTransientIO, stageName, "mix", "write header", err)
	}

	ch := int64(r.format.Channels)
	size := max(min(chunk, total), 1)
	voice := make([]int16, size*ch)
	music := make([]int16, size*ch)
	bus := make([]float64, size*ch)

	first := 0
	for pos := int64(0); pos < total; pos += size {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(size, total-pos)
		clear(bus[:n*ch])

		for first < len(pieces) && pieces[first].at+pieces[first].frames() <= pos {
			first++
		}
		for j := first; j < len(pieces) && pieces[j].at < pos+n; j++ {
			if err := addPiece(pieces[j], bus, voice, pos, n, ch); err != nil {
				return err
			}
		}
		for _, b := range beds {
			if b.end <= pos || b.start >= pos+n {
				continue
			}
			if err := r.addBed(b, bus, music, pos, n); err != nil {
				return err
			}
		}

		out := voice[:n*ch]
		for i := range out {
			out[i] = pcm.ClipToInt16(bus[i])
		}
		if err := writer.Write(out); err != nil {
			return services.Wrap(services.ErrTransientIO, stageName, "mix", "write samples", err)
		}
	}
	if err := writer.Close(); err != nil {
		return services.Wrap(services.ErrTransientIO, stageName, "mix", "finalize header", err)
	}
	if err := file.Sync(); err != nil {
		return services.Wrap(services.ErrTransientIO, stageName, "mix", "sync output", err)
	}
	return file.Close()
}

// addPiece adds the part of p that falls in [pos, pos+n) to bus.
func addPiece(p piece, bus []float64, buf []int16, pos, n, ch int64) error {
	from := max(pos, p.at)
	to := min(pos+n, p.at+p.frames())
	offset := from - p.at
	got, err := p.source.ReadFramesAt(buf[:(to-from)*ch], p.src.start+offset)
	if err != nil {
		return services.Wrap(services.ErrTransientIO, stageName, "mix", fmt.Sprintf("read segment %d", p.segment), err)
	}
	base := (from - pos) * ch
	for f := int64(0); f < int64(got); f++ {
		gain := p.gainAt(offset + f)
		for c := int64(0); c < ch; c++ {
			bus[base+f*ch+c] += float64(buf[f*ch+c]) * gain
		}
	}
	return nil
}

// addBed adds the cue's music under [pos, pos+n), looping the bed when the
// cue asks for it and leaving silence after a non-looping bed runs out.
func (r *Renderer) addBed(b bed, bus []float64, buf []int16, pos, n int64) error {
	ch := int64(r.format.Channels)
	length := b.file.Frames()
	if length == 0 {
		return nil
	}
	rate := float64(r.format.SampleRate)
	from := max(pos, b.start)
	to := min(pos+n, b.end)
	for from < to {
		musicFrame := from - b.start
		if b.cue.Loop {
			musicFrame %= length
		} else if musicFrame >= length {
			return nil
		}
		count := min(to-from, length-musicFrame)
		got, err := b.file.ReadFramesAt(buf[:count*ch], musicFrame)
		if err != nil {
			return services.Wrap(services.ErrTransientIO, stageName, "mix", fmt.Sprintf("read music for rule %d", b.cue.Rule), err)
		}
		if got == 0 {
			return nil
		}
		base := (from - pos) * ch
		for f := int64(0); f < int64(got); f++ {
			gain := b.cue.Envelope.At(float64(from+f) * 1000 / rate)
			if gain == 0 {
				continue
			}
			for c := int64(0); c < ch; c++ {
				bus[base+f*ch+c] += float64(buf[f*ch+c]) * gain
			}
		}
		from += int64(got)
	}
	return nil
}

package pcm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Writer streams 16-bit PCM frames into a WAV container.
type Writer struct {
	dst    io.WriteSeeker
	format Format
	frames int64
	buf    []byte
	closed bool
}

// NewWriter writes a provisional header to dst. Close patches the sizes.
func NewWriter(dst io.WriteSeeker, format Format) (*Writer, error) {
	if format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, errors.New("pcm writer: channels and sample rate must be positive")
	}
	w := &Writer{dst: dst, format: format}
	if _, err := dst.Write(header(format, 0)); err != nil {
		return nil, fmt.Errorf("pcm writer: write header: %w", err)
	}
	return w, nil
}

// Write appends interleaved samples. len(samples) must be a multiple of the
// channel count.
func (w *Writer) Write(samples []int16) error {
	if w.closed {
		return errors.New("pcm writer: write after close")
	}
	if len(samples)%w.format.Channels != 0 {
		return fmt.Errorf("pcm writer: %d samples is not a whole number of frames", len(samples))
	}
	need := len(samples) * 2
	if cap(w.buf) < need {
		w.buf = make([]byte, need)
	}
	buf := w.buf[:need]
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(s))
	}
	if _, err := w.dst.Write(buf); err != nil {
		return err
	}
	w.frames += int64(len(samples) / w.format.Channels)
	return nil
}

// Frames returns the number of frames written so far.
func (w *Writer) Frames() int64 {
	return w.frames
}

// Close rewrites the header with the final sizes. It does not close dst.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	dataBytes := w.frames * int64(w.format.BlockAlign())
	if dataBytes > math.MaxUint32-headerSize {
		return errors.New("pcm writer: output exceeds wav size limit")
	}
	if _, err := w.dst.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := w.dst.Write(header(w.format, uint32(dataBytes))); err != nil {
		return err
	}
	_, err := w.dst.Seek(0, io.SeekEnd)
	return err
}

func header(format Format, dataBytes uint32) []byte {
	h := make([]byte, headerSize)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], 36+dataBytes)
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], formatPCM)
	binary.LittleEndian.PutUint16(h[22:24], uint16(format.Channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(format.SampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(format.SampleRate*format.BlockAlign()))
	binary.LittleEndian.PutUint16(h[32:34], uint16(format.BlockAlign()))
	binary.LittleEndian.PutUint16(h[34:36], 16)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], dataBytes)
	return h
}

// ClipToInt16 converts a mixed sample to int16 with saturation.
func ClipToInt16(v float64) int16 {
	switch {
	case v >= math.MaxInt16:
		return math.MaxInt16
	case v <= math.MinInt16:
		return math.MinInt16
	default:
		return int16(math.Round(v))
	}
}

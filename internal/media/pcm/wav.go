package pcm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	formatPCM        = 1
	formatExtensible = 0xFFFE
	headerSize       = 44
)

// ErrNotCanonical is returned when a WAV file is valid but not 16-bit PCM.
var ErrNotCanonical = errors.New("wav is not 16-bit pcm")

// Format describes interleaved 16-bit PCM audio.
type Format struct {
	SampleRate int
	Channels   int
}

// BlockAlign is the size of one frame in bytes.
func (f Format) BlockAlign() int {
	return f.Channels * 2
}

// FramesToMS converts a frame count to milliseconds, rounding down.
func (f Format) FramesToMS(frames int64) int64 {
	if f.SampleRate <= 0 {
		return 0
	}
	return frames * 1000 / int64(f.SampleRate)
}

// MSToFrames converts milliseconds to a frame count, rounding down.
func (f Format) MSToFrames(ms int64) int64 {
	return ms * int64(f.SampleRate) / 1000
}

// Reader provides random access to the frames of a WAV file.
type Reader struct {
	src        io.ReaderAt
	format     Format
	dataOffset int64
	frames     int64
}

// NewReader parses the RIFF header from src. size is the total byte length
// of src and bounds a data chunk that claims more than the file holds.
func NewReader(src io.ReaderAt, size int64) (*Reader, error) {
	var riff [12]byte
	if _, err := src.ReadAt(riff[:], 0); err != nil {
		return nil, fmt.Errorf("read riff header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, errors.New("not a RIFF/WAVE file")
	}

	var (
		format    Format
		haveFmt   bool
		bits      uint16
		formatTag uint16
		offset    int64 = 12
	)
	for {
		var chunk [8]byte
		if _, err := src.ReadAt(chunk[:], offset); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("wav has no data chunk")
			}
			return nil, fmt.Errorf("read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		length := int64(binary.LittleEndian.Uint32(chunk[4:8]))
		body := offset + 8
		switch id {
		case "fmt ":
			if length < 16 {
				return nil, errors.New("wav fmt chunk too short")
			}
			buf := make([]byte, min(length, 40))
			if _, err := src.ReadAt(buf, body); err != nil {
				return nil, fmt.Errorf("read fmt chunk: %w", err)
			}
			formatTag = binary.LittleEndian.Uint16(buf[0:2])
			format.Channels = int(binary.LittleEndian.Uint16(buf[2:4]))
			format.SampleRate = int(binary.LittleEndian.Uint32(buf[4:8]))
			bits = binary.LittleEndian.Uint16(buf[14:16])
			if formatTag == formatExtensible && len(buf) >= 26 {
				formatTag = binary.LittleEndian.Uint16(buf[24:26])
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, errors.New("wav data chunk precedes fmt chunk")
			}
			if formatTag != formatPCM || bits != 16 {
				return nil, fmt.Errorf("%w: format %d, %d bits", ErrNotCanonical, formatTag, bits)
			}
			if format.Channels <= 0 || format.SampleRate <= 0 {
				return nil, errors.New("wav fmt chunk has no channels or sample rate")
			}
			if size > 0 && body+length > size {
				length = size - body
			}
			return &Reader{
				src:        src,
				format:     format,
				dataOffset: body,
				frames:     length / int64(format.BlockAlign()),
			}, nil
		}
		// Chunks are word aligned.
		offset = body + length + length%2
	}
}

// Format returns the audio format.
func (r *Reader) Format() Format {
	return r.format
}

// Frames returns the number of frames in the data chunk.
func (r *Reader) Frames() int64 {
	return r.frames
}

// DurationMS returns the audio length in milliseconds.
func (r *Reader) DurationMS() int64 {
	return r.format.FramesToMS(r.frames)
}

// ReadFramesAt fills dst with interleaved samples starting at frame. It
// returns the number of whole frames read; fewer than requested means the
// end of the data was reached.
func (r *Reader) ReadFramesAt(dst []int16, frame int64) (int, error) {
	channels := r.format.Channels
	want := len(dst) / channels
	if frame >= r.frames || want == 0 {
		return 0, nil
	}
	if remaining := r.frames - frame; int64(want) > remaining {
		want = int(remaining)
	}
	raw := make([]byte, want*r.format.BlockAlign())
	n, err := r.src.ReadAt(raw, r.dataOffset+frame*int64(r.format.BlockAlign()))
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}
	got := n / r.format.BlockAlign()
	for i := 0; i < got*channels; i++ {
		dst[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
	}
	return got, nil
}

// File is a Reader over an open file.
type File struct {
	*Reader
	file *os.File
}

// Open opens a WAV file for random-access reading.
func Open(path string) (*File, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	reader, err := NewReader(file, info.Size())
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &File{Reader: reader, file: file}, nil
}

// Close releases the file.
func (f *File) Close() error {
	return f.file.Close()
}

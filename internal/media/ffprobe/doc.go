// Package ffprobe reads back the audio properties of encoded episodes.
//
// ProbeAudio limits ffprobe to the first audio stream and returns an Audio
// summary; the renderer uses it to report the real duration of lossy
// outputs and to confirm the encoder kept the requested channel layout.
package ffprobe

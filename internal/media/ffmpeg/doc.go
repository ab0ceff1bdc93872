// Package ffmpeg wraps the ffmpeg command line for the two jobs the renderer
// hands off: converting arbitrary inputs to canonical PCM WAV and encoding
// the finished mix to a delivery format.
package ffmpeg

// Package pcm reads and writes canonical 16-bit little-endian PCM WAV files.
//
// Readers use io.ReaderAt so several goroutines or cues can read different
// positions of one file without sharing a cursor. Writers stream samples and
// patch the RIFF sizes on Close, so output of any length is written with a
// fixed amount of memory.
package pcm

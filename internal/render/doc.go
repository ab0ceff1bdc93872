// Package render assembles the final episode audio.
//
// The renderer canonicalizes every input to 16-bit PCM WAV, removes the
// edit ranges from the main content, concatenates segments in template
// order and mixes music cues over the result. Audio is processed in bounded
// chunks so memory use stays under the configured ceiling regardless of
// episode length. Output is WAV, optionally encoded to mp3 or m4a with
// ffmpeg.
package render

// Package ducking computes background music gain over the final episode
// timeline.
//
// A MusicRule's 1-11 volume level maps to a base gain through Curve.GainDB.
// Levels 1-10 follow an exponent-weighted amplitude ratio so mid levels stay
// audible; levels above 10 boost linearly toward MaxBoostDB. BuildCues turns
// each rule into one cue per matching segment with a piecewise-linear
// envelope. Gain depends only on the timeline and offsets, never on the
// loudness of the speech underneath.
package ducking

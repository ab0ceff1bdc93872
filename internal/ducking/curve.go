package ducking

import (
	"math"
	"time"

	"podforge/internal/config"
)

const (
	MinLevel = 1.0
	MaxLevel = 11.0
)

// Curve maps volume levels to gain.
type Curve struct {
	Exponent   float64
	MaxBoostDB float64
	FloorDB    float64
	// Crossfade is the shortest fade applied to any cue edge.
	Crossfade time.Duration
}

// CurveFrom reads the curve from the music settings.
func CurveFrom(cfg config.Music) Curve {
	return Curve{
		Exponent:   cfg.CurveExponent,
		MaxBoostDB: cfg.MaxBoostDB,
		FloorDB:    cfg.FloorDB,
		Crossfade:  time.Duration(cfg.CrossfadeMillis) * time.Millisecond,
	}
}

// DefaultCurve is the curve shipped in the default configuration.
func DefaultCurve() Curve {
	return CurveFrom(config.Default().Music)
}

// GainDB returns the base gain for level. Levels are clamped to [1, 11].
// The result is non-decreasing in level.
func (c Curve) GainDB(level float64) float64 {
	level = math.Max(MinLevel, math.Min(MaxLevel, level))
	if level > 10 {
		return (level - 10) * c.MaxBoostDB
	}
	ratio := math.Pow(level/10, c.Exponent)
	return math.Max(c.FloorDB, 20*math.Log10(ratio))
}

// Amplitude returns the linear multiplier for level.
func (c Curve) Amplitude(level float64) float64 {
	return DBToAmplitude(c.GainDB(level))
}

// DBToAmplitude converts decibels to a linear multiplier; -Inf maps to 0.
func DBToAmplitude(db float64) float64 {
	if math.IsInf(db, -1) {
		return 0
	}
	return math.Pow(10, db/20)
}

// Package walls turns calibrated line primitives into wall candidates,
// merges collinear fragments, and assigns progressive multi-signal
// confidence scores. Detection never scores; scoring never creates
// candidates.
package walls

import (
	"math"

	v2 "github.com/deadsy/sdfx/vec/v2"
)

// Orientation classifies a candidate's direction.
type Orientation int

const (
	Horizontal Orientation = iota
	Vertical
	Oblique // structural-layer candidates may be off-axis
)

func (o Orientation) String() string {
	switch o {
	case Horizontal:
		return "horizontal"
	case Vertical:
		return "vertical"
	case Oblique:
		return "oblique"
	default:
		return "unknown"
	}
}

// Tier is the final confidence classification of a candidate.
type Tier int

const (
	TierUnscored Tier = iota
	TierLow
	TierMedium
	TierHigh
)

func (t Tier) String() string {
	switch t {
	case TierUnscored:
		return "unscored"
	case TierLow:
		return "low"
	case TierMedium:
		return "medium"
	case TierHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Signal names recorded in the score history.
const (
	SignalConnectivity = "connectivity"
	SignalOpening      = "opening_proximity"
)

// ScoreRecord is one immutable entry in a candidate's score history.
// Pass 1 results stay auditable after pass 2 has run.
type ScoreRecord struct {
	Pass   int     `json:"pass"`
	Signal string  `json:"signal"`
	Score  float64 `json:"score"`
}

// Candidate is a detected wall segment. Coordinates are world meters.
// Page and Layer carry the provenance of the source primitives (merged
// fragments keep the first fragment's tags). Only the validator appends
// to History; the detector leaves candidates unscored.
type Candidate struct {
	ID          int           `json:"id"`
	Start       v2.Vec        `json:"start"`
	End         v2.Vec        `json:"end"`
	Page        int           `json:"page"`
	Layer       string        `json:"layer,omitempty"`
	Orientation Orientation   `json:"orientation"`
	History     []ScoreRecord `json:"history,omitempty"`
}

// Length returns the candidate's length in meters.
func (c *Candidate) Length() float64 {
	return c.End.Sub(c.Start).Length()
}

// Angle returns the candidate's direction in degrees, normalized to
// [0, 180).
func (c *Candidate) Angle() float64 {
	d := c.End.Sub(c.Start)
	a := math.Atan2(d.Y, d.X) * 180 / math.Pi
	if a < 0 {
		a += 180
	}
	if a >= 180 {
		a -= 180
	}
	return a
}

// Midpoint returns the candidate's center point.
func (c *Candidate) Midpoint() v2.Vec {
	return c.Start.Add(c.End).MulScalar(0.5)
}

// MaxScore returns the highest score observed across all passes, or 0
// for an unscored candidate.
func (c *Candidate) MaxScore() float64 {
	best := 0.0
	for _, r := range c.History {
		if r.Score > best {
			best = r.Score
		}
	}
	return best
}

// Scores returns the per-signal score map, keeping the highest score
// recorded for each signal.
func (c *Candidate) Scores() map[string]float64 {
	m := make(map[string]float64, len(c.History))
	for _, r := range c.History {
		if r.Score > m[r.Signal] {
			m[r.Signal] = r.Score
		}
	}
	return m
}

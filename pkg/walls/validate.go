package walls

import (
	"math"

	v2 "github.com/deadsy/sdfx/vec/v2"
)

// OpeningKind distinguishes door and window openings.
type OpeningKind int

const (
	OpeningDoor OpeningKind = iota
	OpeningWindow
)

func (k OpeningKind) String() string {
	switch k {
	case OpeningDoor:
		return "door"
	case OpeningWindow:
		return "window"
	default:
		return "unknown"
	}
}

// Opening is a door or window position supplied once the opening pass of
// the external extractor has run. Coordinates are world meters.
type Opening struct {
	Kind   OpeningKind `json:"kind"`
	Center v2.Vec      `json:"center"`
	Width  float64     `json:"width"`
}

// ValidatorConfig holds the tunable scoring parameters.
type ValidatorConfig struct {
	// ConnectTolerance is the endpoint distance (meters) within which two
	// candidates count as connected.
	ConnectTolerance float64
	// OpeningTolerance is the perpendicular distance (meters) within
	// which an opening center counts as lying in a wall.
	OpeningTolerance float64
	// OpeningBoost is added to a candidate's score when an opening lies
	// in it. Pass 2 can only raise scores, never lower them.
	OpeningBoost float64
	// HighThreshold and MediumThreshold map the maximum observed score to
	// a tier. Empirically tuned; not invariants.
	HighThreshold   float64
	MediumThreshold float64
}

// DefaultValidatorConfig returns the default scoring parameters. The
// medium threshold admits candidates with a single connected endpoint
// (dead-end walls).
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		ConnectTolerance: 0.15,
		OpeningTolerance: 0.3,
		OpeningBoost:     0.25,
		HighThreshold:    0.9,
		MediumThreshold:  0.5,
	}
}

// Validator assigns progressive confidence scores to wall candidates.
// Scores accumulate in each candidate's immutable history; the tier is a
// pure function of the maximum score observed across passes, so pass 2
// can raise but never lower a tier.
type Validator struct {
	cfg ValidatorConfig
}

// NewValidator returns a validator with the given configuration.
func NewValidator(cfg ValidatorConfig) *Validator {
	return &Validator{cfg: cfg}
}

// Pass1 scores each candidate by endpoint connectivity: the fraction of
// its two endpoints that lie within ConnectTolerance of another
// candidate's endpoint. A fully degenerate drawing (nothing connected)
// produces all-zero scores, which tiers everything Low; that is a
// reported condition, not an error.
func (v *Validator) Pass1(cands []*Candidate) {
	for i, c := range cands {
		connected := 0
		for _, ep := range [2]v2.Vec{c.Start, c.End} {
			if v.endpointConnected(ep, i, cands) {
				connected++
			}
		}
		c.History = append(c.History, ScoreRecord{
			Pass:   1,
			Signal: SignalConnectivity,
			Score:  float64(connected) / 2,
		})
	}
}

func (v *Validator) endpointConnected(ep v2.Vec, self int, cands []*Candidate) bool {
	for j, other := range cands {
		if j == self {
			continue
		}
		if ep.Sub(other.Start).Length() <= v.cfg.ConnectTolerance ||
			ep.Sub(other.End).Length() <= v.cfg.ConnectTolerance {
			return true
		}
	}
	return false
}

// Pass2 boosts candidates that have a door or window center within
// OpeningTolerance of the wall line (with the projection inside the
// segment span). Monotonic refinement: it appends boosted scores and
// never invents new candidates.
func (v *Validator) Pass2(cands []*Candidate, openings []Opening) {
	if len(openings) == 0 {
		return
	}
	for _, c := range cands {
		if !v.openingInWall(c, openings) {
			continue
		}
		boosted := math.Min(1, c.MaxScore()+v.cfg.OpeningBoost)
		c.History = append(c.History, ScoreRecord{
			Pass:   2,
			Signal: SignalOpening,
			Score:  boosted,
		})
	}
}

// openingInWall reports whether any opening center lies in the
// candidate's wall line.
func (v *Validator) openingInWall(c *Candidate, openings []Opening) bool {
	dir := c.End.Sub(c.Start).Normalize()
	length := c.Length()
	for _, o := range openings {
		rel := o.Center.Sub(c.Start)
		along := rel.Dot(dir)
		if along < 0 || along > length {
			continue
		}
		perp := rel.Sub(dir.MulScalar(along)).Length()
		if perp <= v.cfg.OpeningTolerance {
			return true
		}
	}
	return false
}

// TierOf maps a candidate's maximum observed score to its tier. An empty
// history is TierUnscored.
func (v *Validator) TierOf(c *Candidate) Tier {
	if len(c.History) == 0 {
		return TierUnscored
	}
	score := c.MaxScore()
	switch {
	case score >= v.cfg.HighThreshold:
		return TierHigh
	case score >= v.cfg.MediumThreshold:
		return TierMedium
	default:
		return TierLow
	}
}

// TierCounts tallies candidates per tier.
func (v *Validator) TierCounts(cands []*Candidate) map[Tier]int {
	counts := make(map[Tier]int)
	for _, c := range cands {
		counts[v.TierOf(c)]++
	}
	return counts
}

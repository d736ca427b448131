package walls

import (
	"math"
	"strings"

	v2 "github.com/deadsy/sdfx/vec/v2"

	"github.com/chazu/tectum/pkg/drawing"
)

// DetectorConfig holds the tunable detection parameters. Values are world
// meters and degrees.
type DetectorConfig struct {
	// MinLength filters out segments too short to be walls.
	MinLength float64
	// AngleTolerance is the deviation from horizontal/vertical (degrees)
	// within which a segment still counts as axis-aligned.
	AngleTolerance float64
	// StructuralLayers are layer-name substrings (case-insensitive) that
	// admit a segment regardless of its angle.
	StructuralLayers []string
	// DistanceTolerance is the maximum perpendicular offset between two
	// collinear-adjacent segments.
	DistanceTolerance float64
	// GapTolerance is the maximum endpoint gap between two
	// collinear-adjacent segments.
	GapTolerance float64
	// MaxMergeIterations bounds the fixed-point merge loop.
	MaxMergeIterations int
}

// DefaultDetectorConfig returns the default detection parameters.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		MinLength:          0.5,
		AngleTolerance:     5,
		StructuralLayers:   []string{"wall", "structural"},
		DistanceTolerance:  0.1,
		GapTolerance:       0.3,
		MaxMergeIterations: 32,
	}
}

// structuralLayer reports whether a layer name matches one of the
// configured structural substrings.
func (cfg DetectorConfig) structuralLayer(layer string) bool {
	l := strings.ToLower(layer)
	for _, s := range cfg.StructuralLayers {
		if s != "" && strings.Contains(l, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

// axisOrientation classifies an angle (degrees, [0,180)) against the
// tolerance. Returns Oblique when the angle is off-axis.
func axisOrientation(angle, tol float64) Orientation {
	switch {
	case angle <= tol || angle >= 180-tol:
		return Horizontal
	case math.Abs(angle-90) <= tol:
		return Vertical
	default:
		return Oblique
	}
}

// Detect filters calibrated primitives into wall candidates and merges
// collinear-adjacent fragments. The returned candidates carry no scores.
// Malformed primitives must already have been skipped by the caller.
func Detect(prims []drawing.Primitive, cfg DetectorConfig) []*Candidate {
	var cands []*Candidate
	for _, p := range prims {
		for _, seg := range drawing.Segments(p) {
			c := &Candidate{
				Start: seg.Start,
				End:   seg.End,
				Page:  seg.Tag.Page,
				Layer: seg.Tag.Layer,
			}
			if c.Length() < cfg.MinLength {
				continue
			}
			o := axisOrientation(c.Angle(), cfg.AngleTolerance)
			if o == Oblique && !cfg.structuralLayer(c.Layer) {
				continue
			}
			c.Orientation = o
			cands = append(cands, c)
		}
	}

	cands = mergeToFixedPoint(cands, cfg)

	for i, c := range cands {
		c.ID = i
	}
	return cands
}

// mergeToFixedPoint runs merge passes until a pass makes no merge or the
// pass cap is reached. Each pass greedily absorbs every fragment that is
// collinear-adjacent to a growing segment, so a chain of N fragments
// collapses in a single pass; the cap guarantees termination on
// pathological inputs where merges keep enabling further merges.
func mergeToFixedPoint(cands []*Candidate, cfg DetectorConfig) []*Candidate {
	for iter := 0; iter < cfg.MaxMergeIterations; iter++ {
		mergedAny := false
		for i := 0; i < len(cands); i++ {
			for j := i + 1; j < len(cands); {
				if m, ok := merge(cands[i], cands[j], cfg); ok {
					cands[i] = m
					cands = append(cands[:j], cands[j+1:]...)
					mergedAny = true
					// Rescan against the grown segment.
					j = i + 1
				} else {
					j++
				}
			}
		}
		if !mergedAny {
			break
		}
	}
	return cands
}

// angleDelta returns the smallest difference between two direction
// angles in degrees, accounting for the 180 degree wraparound.
func angleDelta(a, b float64) float64 {
	d := math.Abs(a - b)
	if d > 90 {
		d = 180 - d
	}
	return d
}

// pointLineDistance returns the perpendicular distance from p to the
// infinite line through a with unit direction dir.
func pointLineDistance(p, a, dir v2.Vec) float64 {
	ap := p.Sub(a)
	along := ap.Dot(dir)
	perp := ap.Sub(dir.MulScalar(along))
	return perp.Length()
}

// endpointGap returns the smallest distance between any endpoint of a and
// any endpoint of b.
func endpointGap(a, b *Candidate) float64 {
	best := math.Inf(1)
	for _, pa := range [2]v2.Vec{a.Start, a.End} {
		for _, pb := range [2]v2.Vec{b.Start, b.End} {
			if d := pa.Sub(pb).Length(); d < best {
				best = d
			}
		}
	}
	return best
}

// merge combines two candidates when they are collinear-adjacent:
// directions agree within the angle tolerance, the perpendicular offset
// between them is small, and their endpoints lie within the gap
// tolerance. The merged segment spans the extreme projections of all
// four endpoints onto the longer candidate's direction.
func merge(a, b *Candidate, cfg DetectorConfig) (*Candidate, bool) {
	if angleDelta(a.Angle(), b.Angle()) > cfg.AngleTolerance {
		return nil, false
	}

	// Project along the longer candidate's direction.
	base := a
	if b.Length() > a.Length() {
		base = b
	}
	dir := base.End.Sub(base.Start).Normalize()

	if pointLineDistance(b.Start, a.Start, dir) > cfg.DistanceTolerance ||
		pointLineDistance(b.End, a.Start, dir) > cfg.DistanceTolerance {
		return nil, false
	}

	// Overlapping segments have zero endpoint gap only sometimes; treat
	// projection overlap as adjacency too.
	if endpointGap(a, b) > cfg.GapTolerance && !projectionsOverlap(a, b, dir) {
		return nil, false
	}

	points := [4]v2.Vec{a.Start, a.End, b.Start, b.End}
	origin := base.Start
	minT, maxT := math.Inf(1), math.Inf(-1)
	var lo, hi v2.Vec
	for _, p := range points {
		t := p.Sub(origin).Dot(dir)
		if t < minT {
			minT = t
			lo = p
		}
		if t > maxT {
			maxT = t
			hi = p
		}
	}

	m := &Candidate{
		Start: lo,
		End:   hi,
		Page:  a.Page,
		Layer: a.Layer,
	}
	m.Orientation = axisOrientation(m.Angle(), cfg.AngleTolerance)
	return m, true
}

// projectionsOverlap reports whether the two segments' projections onto
// dir overlap.
func projectionsOverlap(a, b *Candidate, dir v2.Vec) bool {
	origin := a.Start
	a0 := 0.0
	a1 := a.End.Sub(origin).Dot(dir)
	if a1 < a0 {
		a0, a1 = a1, a0
	}
	b0 := b.Start.Sub(origin).Dot(dir)
	b1 := b.End.Sub(origin).Dot(dir)
	if b1 < b0 {
		b0, b1 = b1, b0
	}
	return a0 <= b1 && b0 <= a1
}

// Package calibrate derives the raw-unit to world-unit transform for a
// drawing from a reference shape whose real dimensions are known
// out-of-band. The result carries a confidence value that downstream
// stages propagate; a degraded calibration never stops the pipeline.
package calibrate

import (
	"errors"
	"math"

	v2 "github.com/deadsy/sdfx/vec/v2"

	"github.com/chazu/tectum/pkg/drawing"
)

// ErrZeroExtent is returned when the reference shape has no measurable
// extent on either axis. Nothing downstream can run without a scale.
var ErrZeroExtent = errors.New("calibrate: reference shape has zero extent")

// Config holds the tunable calibration parameters. The defaults come from
// empirical tuning on residential floor plans and are not invariants.
type Config struct {
	// BaselineConfidence is the starting confidence for a clean reference.
	BaselineConfidence float64
	// AxisTolerance is the relative scale disagreement between the X and Y
	// axes above which confidence is capped at DegradedCeiling.
	AxisTolerance float64
	// DegradedCeiling caps confidence when axis scales disagree beyond
	// AxisTolerance.
	DegradedCeiling float64
	// SparseFloor is the confidence assigned when an axis has fewer than
	// two distinct reference coordinates.
	SparseFloor float64
}

// DefaultConfig returns the default calibration parameters.
func DefaultConfig() Config {
	return Config{
		BaselineConfidence: 95,
		AxisTolerance:      0.05,
		DegradedCeiling:    50,
		SparseFloor:        25,
	}
}

// Result is the calibration for one drawing. Immutable once computed;
// every coordinate transform downstream goes through Apply.
type Result struct {
	// ScaleX and ScaleY are raw units per meter.
	ScaleX float64 `json:"scale_x"`
	ScaleY float64 `json:"scale_y"`
	// OffsetX and OffsetY are the raw coordinates mapped to the world origin.
	OffsetX float64 `json:"offset_x"`
	OffsetY float64 `json:"offset_y"`
	// Confidence is 0-100.
	Confidence float64 `json:"confidence"`
	// Degraded is set when the reference was sparse or the axis scales
	// disagreed beyond tolerance.
	Degraded bool `json:"degraded"`
}

// Apply transforms a raw drawing coordinate into world meters.
func (r Result) Apply(p v2.Vec) v2.Vec {
	return v2.Vec{
		X: (p.X - r.OffsetX) / r.ScaleX,
		Y: (p.Y - r.OffsetY) / r.ScaleY,
	}
}

// distinctCount counts distinct values within a small epsilon. Extractors
// repeat corner points, so exact counting would under-report.
func distinctCount(vals []float64) int {
	const eps = 1e-9
	var kept []float64
	for _, v := range vals {
		dup := false
		for _, k := range kept {
			if math.Abs(v-k) <= eps {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, v)
		}
	}
	return len(kept)
}

// Calibrate derives a Result from a reference shape. It fails hard only
// when the shape has zero extent on both axes (or no points at all);
// a single degenerate axis borrows the other axis's scale and floors the
// confidence instead, so downstream stages still run.
func Calibrate(ref drawing.CalibrationReference, cfg Config) (Result, error) {
	if len(ref.RawPoints) == 0 || ref.KnownWidth <= 0 || ref.KnownLength <= 0 {
		return Result{}, ErrZeroExtent
	}

	minX, maxX := ref.RawPoints[0].X, ref.RawPoints[0].X
	minY, maxY := ref.RawPoints[0].Y, ref.RawPoints[0].Y
	xs := make([]float64, 0, len(ref.RawPoints))
	ys := make([]float64, 0, len(ref.RawPoints))
	for _, p := range ref.RawPoints {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
		xs = append(xs, p.X)
		ys = append(ys, p.Y)
	}

	extentX := maxX - minX
	extentY := maxY - minY
	if extentX == 0 && extentY == 0 {
		return Result{}, ErrZeroExtent
	}

	res := Result{
		OffsetX:    minX,
		OffsetY:    minY,
		Confidence: cfg.BaselineConfidence,
	}

	sparseX := distinctCount(xs) < 2
	sparseY := distinctCount(ys) < 2

	if !sparseX {
		res.ScaleX = extentX / ref.KnownWidth
	}
	if !sparseY {
		res.ScaleY = extentY / ref.KnownLength
	}

	// A degenerate axis borrows the other axis's scale.
	switch {
	case sparseX && sparseY:
		return Result{}, ErrZeroExtent
	case sparseX:
		res.ScaleX = res.ScaleY
		res.Confidence = cfg.SparseFloor
		res.Degraded = true
	case sparseY:
		res.ScaleY = res.ScaleX
		res.Confidence = cfg.SparseFloor
		res.Degraded = true
	default:
		disagreement := math.Abs(res.ScaleX-res.ScaleY) / res.ScaleX
		res.Confidence = cfg.BaselineConfidence - disagreement*100
		if disagreement > cfg.AxisTolerance {
			res.Confidence = math.Min(res.Confidence, cfg.DegradedCeiling)
			res.Degraded = true
		}
		if res.Confidence < 0 {
			res.Confidence = 0
		}
	}

	return res, nil
}

// CalibratePrimitive returns a copy of the primitive with all raw
// coordinates transformed into world meters. The switch is exhaustive
// over the drawing.Primitive variant.
func CalibratePrimitive(r Result, p drawing.Primitive) drawing.Primitive {
	switch s := p.(type) {
	case drawing.Line:
		s.Start = r.Apply(s.Start)
		s.End = r.Apply(s.End)
		return s
	case drawing.Arc:
		s.Center = r.Apply(s.Center)
		s.Radius = s.Radius / r.ScaleX
		return s
	case drawing.Polyline:
		pts := make([]v2.Vec, len(s.Points))
		for i, pt := range s.Points {
			pts[i] = r.Apply(pt)
		}
		s.Points = pts
		return s
	case drawing.Circle:
		s.Center = r.Apply(s.Center)
		s.Radius = s.Radius / r.ScaleX
		return s
	default:
		return p
	}
}

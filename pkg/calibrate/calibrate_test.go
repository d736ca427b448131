package calibrate

import (
	"errors"
	"math"
	"testing"

	v2 "github.com/deadsy/sdfx/vec/v2"

	"github.com/chazu/tectum/pkg/drawing"
)

// rectRef builds a rectangular reference shape from corner coordinates.
func rectRef(minX, minY, maxX, maxY, knownW, knownL float64) drawing.CalibrationReference {
	return drawing.CalibrationReference{
		RawPoints: []v2.Vec{
			{X: minX, Y: minY},
			{X: maxX, Y: minY},
			{X: maxX, Y: maxY},
			{X: minX, Y: maxY},
		},
		KnownWidth:  knownW,
		KnownLength: knownL,
	}
}

func TestCalibrateReferenceRectangle(t *testing.T) {
	// 1000x800 raw units representing a 10m x 8m perimeter.
	ref := rectRef(0, 0, 1000, 800, 10, 8)

	res, err := Calibrate(ref, DefaultConfig())
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	if res.ScaleX != 100 || res.ScaleY != 100 {
		t.Errorf("scale = (%v, %v), want (100, 100)", res.ScaleX, res.ScaleY)
	}
	if res.Confidence < 90 {
		t.Errorf("confidence = %v, want >= 90", res.Confidence)
	}
	if res.Degraded {
		t.Error("clean rectangle should not be degraded")
	}
}

func TestCalibrateOffset(t *testing.T) {
	ref := rectRef(500, 200, 1500, 1000, 10, 8)
	res, err := Calibrate(ref, DefaultConfig())
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}

	// The reference minimum corner maps to the world origin.
	got := res.Apply(v2.Vec{X: 500, Y: 200})
	if got.X != 0 || got.Y != 0 {
		t.Errorf("Apply(min corner) = %v, want origin", got)
	}
	got = res.Apply(v2.Vec{X: 1500, Y: 1000})
	if math.Abs(got.X-10) > 1e-12 || math.Abs(got.Y-8) > 1e-12 {
		t.Errorf("Apply(max corner) = %v, want (10, 8)", got)
	}
}

func TestCalibrateAxisDisagreementCapsConfidence(t *testing.T) {
	// X scale 100, Y scale 125: 25% disagreement, well past the 5%
	// tolerance.
	ref := rectRef(0, 0, 1000, 1000, 10, 8)
	cfg := DefaultConfig()

	res, err := Calibrate(ref, cfg)
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	if !res.Degraded {
		t.Error("expected degraded calibration")
	}
	if res.Confidence > cfg.DegradedCeiling {
		t.Errorf("confidence = %v, want <= %v", res.Confidence, cfg.DegradedCeiling)
	}
}

func TestCalibrateConfidenceProportionalToDisagreement(t *testing.T) {
	// 2% disagreement: within tolerance, confidence drops but stays high.
	ref := rectRef(0, 0, 1000, 784, 10, 8) // scaleY = 98
	cfg := DefaultConfig()

	res, err := Calibrate(ref, cfg)
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	if res.Degraded {
		t.Error("2%% disagreement should not degrade")
	}
	want := cfg.BaselineConfidence - 2
	if math.Abs(res.Confidence-want) > 1e-9 {
		t.Errorf("confidence = %v, want %v", res.Confidence, want)
	}
}

func TestCalibrateSparseAxisFloorsConfidence(t *testing.T) {
	// All points share one X coordinate: no X extent, Y still measurable.
	ref := drawing.CalibrationReference{
		RawPoints: []v2.Vec{
			{X: 100, Y: 0},
			{X: 100, Y: 400},
			{X: 100, Y: 800},
		},
		KnownWidth:  10,
		KnownLength: 8,
	}
	cfg := DefaultConfig()

	res, err := Calibrate(ref, cfg)
	if err != nil {
		t.Fatalf("sparse axis must not hard-fail: %v", err)
	}
	if res.Confidence != cfg.SparseFloor {
		t.Errorf("confidence = %v, want floor %v", res.Confidence, cfg.SparseFloor)
	}
	if res.ScaleX != res.ScaleY {
		t.Errorf("degenerate axis should borrow the other scale, got (%v, %v)", res.ScaleX, res.ScaleY)
	}
}

func TestCalibrateZeroExtentFails(t *testing.T) {
	refs := []drawing.CalibrationReference{
		{RawPoints: nil, KnownWidth: 10, KnownLength: 8},
		{RawPoints: []v2.Vec{{X: 5, Y: 5}, {X: 5, Y: 5}}, KnownWidth: 10, KnownLength: 8},
		{RawPoints: []v2.Vec{{X: 0, Y: 0}, {X: 100, Y: 100}}, KnownWidth: 0, KnownLength: 8},
	}
	for i, ref := range refs {
		if _, err := Calibrate(ref, DefaultConfig()); !errors.Is(err, ErrZeroExtent) {
			t.Errorf("case %d: err = %v, want ErrZeroExtent", i, err)
		}
	}
}

func TestCalibrateDeterministic(t *testing.T) {
	ref := rectRef(13, 37, 1013, 837, 10, 8)
	first, err := Calibrate(ref, DefaultConfig())
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Calibrate(ref, DefaultConfig())
		if err != nil {
			t.Fatalf("Calibrate: %v", err)
		}
		if again != first {
			t.Fatalf("run %d: result %+v differs from first %+v", i, again, first)
		}
	}
}

func TestCalibratePrimitiveExhaustive(t *testing.T) {
	res, err := Calibrate(rectRef(0, 0, 1000, 800, 10, 8), DefaultConfig())
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}

	line := CalibratePrimitive(res, drawing.Line{
		Start: v2.Vec{X: 0, Y: 0}, End: v2.Vec{X: 1000, Y: 800},
	}).(drawing.Line)
	if line.End.X != 10 || line.End.Y != 8 {
		t.Errorf("line end = %v, want (10, 8)", line.End)
	}

	circle := CalibratePrimitive(res, drawing.Circle{
		Center: v2.Vec{X: 500, Y: 400}, Radius: 50,
	}).(drawing.Circle)
	if circle.Radius != 0.5 {
		t.Errorf("circle radius = %v, want 0.5", circle.Radius)
	}

	poly := CalibratePrimitive(res, drawing.Polyline{
		Points: []v2.Vec{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 80}},
	}).(drawing.Polyline)
	if poly.Points[2].X != 1 || poly.Points[2].Y != 0.8 {
		t.Errorf("polyline point = %v, want (1, 0.8)", poly.Points[2])
	}

	arc := CalibratePrimitive(res, drawing.Arc{
		Center: v2.Vec{X: 100, Y: 100}, Radius: 200, StartAngle: 0, EndAngle: 90,
	}).(drawing.Arc)
	if arc.Radius != 2 {
		t.Errorf("arc radius = %v, want 2", arc.Radius)
	}
}

package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	v2 "github.com/deadsy/sdfx/vec/v2"

	"github.com/chazu/tectum/pkg/calibrate"
	"github.com/chazu/tectum/pkg/drawing"
	"github.com/chazu/tectum/pkg/inference"
	"github.com/chazu/tectum/pkg/store"
	"github.com/chazu/tectum/pkg/walls"
)

func openTemp(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "elements.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func rawLine(x0, y0, x1, y1 float64) drawing.Line {
	return drawing.Line{Start: v2.Vec{X: x0, Y: y0}, End: v2.Vec{X: x1, Y: y1}}
}

// roomInput is a synthetic drawing in raw units: a 1000x800 calibration
// rectangle representing a 10m x 8m room, its four perimeter walls, one
// malformed primitive, one sub-threshold fragment, and a door on the
// south wall.
func roomInput() Input {
	return Input{
		Reference: drawing.CalibrationReference{
			RawPoints: []v2.Vec{
				{X: 0, Y: 0}, {X: 1000, Y: 0}, {X: 1000, Y: 800}, {X: 0, Y: 800},
			},
			KnownWidth:  10,
			KnownLength: 8,
		},
		Primitives: []drawing.Primitive{
			rawLine(0, 0, 1000, 0),
			rawLine(1000, 0, 1000, 800),
			rawLine(1000, 800, 0, 800),
			rawLine(0, 800, 0, 0),
			rawLine(500, 500, 500, 500), // zero length: malformed
			rawLine(300, 300, 320, 300), // 0.2m calibrated: filtered
		},
		Openings: []walls.Opening{
			{Kind: walls.OpeningDoor, Center: v2.Vec{X: 500, Y: 0}, Width: 90},
		},
	}
}

func TestRunEndToEnd(t *testing.T) {
	st := openTemp(t)
	chain := inference.New("test-run")

	res, err := Run(context.Background(), roomInput(), st, chain, DefaultConfig())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Stats.PrimitivesSeen != 6 || res.Stats.PrimitivesSkipped != 1 {
		t.Errorf("primitives seen/skipped = %d/%d, want 6/1",
			res.Stats.PrimitivesSeen, res.Stats.PrimitivesSkipped)
	}
	if res.Stats.Candidates != 4 {
		t.Fatalf("candidates = %d, want the 4 perimeter walls", res.Stats.Candidates)
	}
	if res.Stats.TierCounts["high"] != 4 {
		t.Errorf("tier counts = %v, want 4 high (all corners connect)", res.Stats.TierCounts)
	}

	// 4 walls + 1 door stored; the two 10m walls share a geometry, as do
	// the two 8m walls.
	if res.Stats.ElementsStored != 5 {
		t.Errorf("elements stored = %d, want 5", res.Stats.ElementsStored)
	}
	if res.Stats.GeometriesDeduped != 2 {
		t.Errorf("geometries deduped = %d, want 2", res.Stats.GeometriesDeduped)
	}
	geoms, instances, err := st.Counts()
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if geoms != 3 || instances != 5 {
		t.Errorf("store = (%d geometries, %d instances), want (3, 5)", geoms, instances)
	}

	if res.Calibration.ScaleX != 100 || res.Calibration.ScaleY != 100 {
		t.Errorf("scale = (%v, %v), want (100, 100)",
			res.Calibration.ScaleX, res.Calibration.ScaleY)
	}
	if res.Stats.CalibrationConf != res.Calibration.Confidence {
		t.Error("stats must mirror the calibration confidence")
	}

	// Every stored wall is findable around the room perimeter.
	hits, err := st.RangeQuery([3]float64{-1, -1, 0}, [3]float64{11, 9, 3})
	if err != nil {
		t.Fatalf("RangeQuery: %v", err)
	}
	if len(hits) != 5 {
		t.Errorf("perimeter query hits = %d, want 5", len(hits))
	}

	// The chain records all five stages plus the per-candidate and
	// per-element entries, and the skipped primitive.
	if chain.Len() == 0 {
		t.Fatal("chain is empty")
	}
	var sawCalibration, sawSkip, sawStored bool
	for _, s := range chain.Steps() {
		switch {
		case s.StepName == "scale_calibration":
			sawCalibration = true
		case s.StepName == "primitive_skipped":
			sawSkip = true
		case s.StepName == "opening_0_stored":
			sawStored = true
		}
	}
	if !sawCalibration || !sawSkip || !sawStored {
		t.Errorf("chain missing entries: calibration=%v skip=%v opening=%v",
			sawCalibration, sawSkip, sawStored)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	first, err := Run(context.Background(), roomInput(), openTemp(t), inference.New("a"), DefaultConfig())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := Run(context.Background(), roomInput(), openTemp(t), inference.New("b"), DefaultConfig())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if first.Stats.Candidates != second.Stats.Candidates ||
		first.Stats.ElementsStored != second.Stats.ElementsStored ||
		first.Stats.GeometriesDeduped != second.Stats.GeometriesDeduped {
		t.Errorf("stats differ: %+v vs %+v", first.Stats, second.Stats)
	}
	for i := range first.Candidates {
		a, b := first.Candidates[i], second.Candidates[i]
		if a.Start != b.Start || a.End != b.End || a.MaxScore() != b.MaxScore() {
			t.Errorf("candidate %d differs between runs", i)
		}
	}
}

func TestRunAbortsOnCalibrationFailure(t *testing.T) {
	in := roomInput()
	in.Reference.RawPoints = nil

	_, err := Run(context.Background(), in, openTemp(t), inference.New("x"), DefaultConfig())
	if !errors.Is(err, calibrate.ErrZeroExtent) {
		t.Errorf("err = %v, want ErrZeroExtent", err)
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st := openTemp(t)
	_, err := Run(ctx, roomInput(), st, inference.New("x"), DefaultConfig())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	// A cancelled run never leaves partial geometry/instance pairs.
	geoms, instances, err := st.Counts()
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if geoms != 0 || instances != 0 {
		t.Errorf("cancelled run wrote (%d geometries, %d instances)", geoms, instances)
	}
}

func TestRunLowTierCandidatesStayOutOfStore(t *testing.T) {
	in := Input{
		Reference: drawing.CalibrationReference{
			RawPoints: []v2.Vec{
				{X: 0, Y: 0}, {X: 1000, Y: 0}, {X: 1000, Y: 800}, {X: 0, Y: 800},
			},
			KnownWidth:  10,
			KnownLength: 8,
		},
		// Two disconnected parallel lines: valid candidates, low tier.
		Primitives: []drawing.Primitive{
			rawLine(0, 0, 500, 0),
			rawLine(0, 400, 500, 400),
		},
	}

	st := openTemp(t)
	res, err := Run(context.Background(), in, st, inference.New("x"), DefaultConfig())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stats.Candidates != 2 || res.Stats.TierCounts["low"] != 2 {
		t.Fatalf("stats = %+v, want 2 low candidates", res.Stats)
	}
	if res.Stats.ElementsStored != 0 {
		t.Errorf("stored %d elements from low-tier candidates", res.Stats.ElementsStored)
	}

	// Low candidates are still traced in the chain.
	chain := inference.New("y")
	if _, err := Run(context.Background(), in, st, chain, DefaultConfig()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	var scored int
	for _, s := range chain.Steps() {
		if s.Source == "wall_validator" {
			scored++
			if _, ok := s.Input["page"]; !ok {
				t.Error("scored wall snapshot must carry page provenance")
			}
		}
	}
	if scored != 2 {
		t.Errorf("chain scored %d candidates, want 2", scored)
	}
}

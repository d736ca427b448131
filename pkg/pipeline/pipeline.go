// Package pipeline runs the extraction-validation-storage engine for one
// drawing: calibration, wall detection, progressive validation, mesh
// generation, and storage. One drawing is fully processed per Run; each
// run gets its own calibration and inference chain. Parallelism, if any,
// belongs at the whole-drawing granularity with the store as the merge
// boundary.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	v3 "github.com/deadsy/sdfx/vec/v3"

	"github.com/chazu/tectum/internal/logging"
	"github.com/chazu/tectum/pkg/calibrate"
	"github.com/chazu/tectum/pkg/drawing"
	"github.com/chazu/tectum/pkg/inference"
	"github.com/chazu/tectum/pkg/kernel"
	"github.com/chazu/tectum/pkg/store"
	"github.com/chazu/tectum/pkg/walls"
)

// Config aggregates the per-stage tunables plus the element dimensions
// used when promoting candidates to 3D geometry.
type Config struct {
	Calibrate calibrate.Config
	Detector  walls.DetectorConfig
	Validator walls.ValidatorConfig

	// WallThickness and WallHeight shape promoted wall elements (meters).
	WallThickness float64
	WallHeight    float64
	// DoorHeight and WindowHeight shape promoted opening elements.
	DoorHeight   float64
	WindowHeight float64
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		Calibrate:     calibrate.DefaultConfig(),
		Detector:      walls.DefaultDetectorConfig(),
		Validator:     walls.DefaultValidatorConfig(),
		WallThickness: 0.2,
		WallHeight:    2.7,
		DoorHeight:    2.1,
		WindowHeight:  1.2,
	}
}

// Input is one drawing's worth of work: the calibration reference, the
// raw primitive stream, and (optionally) raw opening positions from the
// second extractor pass.
type Input struct {
	Reference  drawing.CalibrationReference
	Primitives []drawing.Primitive
	Openings   []walls.Opening // raw coordinates; calibrated before pass 2
}

// Stats are the run-level counters every recoverable condition feeds.
type Stats struct {
	PrimitivesSeen    int            `json:"primitives_seen"`
	PrimitivesSkipped int            `json:"primitives_skipped"`
	Candidates        int            `json:"candidates"`
	TierCounts        map[string]int `json:"tier_counts"`
	ElementsStored    int            `json:"elements_stored"`
	GeometriesDeduped int            `json:"geometries_deduped"`
	CalibrationConf   float64        `json:"calibration_confidence"`
}

// Result is the outcome of one run.
type Result struct {
	Calibration calibrate.Result
	Candidates  []*walls.Candidate
	Stats       Stats
}

// Run processes one drawing. Per-primitive and per-candidate failures
// are localized (skipped, counted, logged to the chain); calibration
// impossibility and store integrity errors abort the run. Cancellation
// is whole-run: a cancelled context stops between stages and between
// element inserts, and never leaves a partially-written
// geometry/instance pair behind.
func Run(ctx context.Context, in Input, st *store.Store, chain *inference.Chain, cfg Config) (*Result, error) {
	res := &Result{Stats: Stats{TierCounts: make(map[string]int)}}

	// Stage 1: calibration.
	start := time.Now()
	logging.StageStart("calibration")
	cal, err := calibrate.Calibrate(in.Reference, cfg.Calibrate)
	if err != nil {
		return nil, fmt.Errorf("pipeline: calibration: %w", err)
	}
	res.Calibration = cal
	res.Stats.CalibrationConf = cal.Confidence
	chain.Add("scale_calibration", "calibration", "calibration_reference",
		map[string]string{
			"raw_points":   fmt.Sprintf("%d", len(in.Reference.RawPoints)),
			"known_width":  fmt.Sprintf("%.3f", in.Reference.KnownWidth),
			"known_length": fmt.Sprintf("%.3f", in.Reference.KnownLength),
			"offset":       fmt.Sprintf("(%.3f, %.3f)", cal.OffsetX, cal.OffsetY),
		},
		fmt.Sprintf("derived scale %.4f x %.4f raw units per meter (degraded=%v)", cal.ScaleX, cal.ScaleY, cal.Degraded),
		cal.Confidence, []string{"axis_extent_ratio"})
	logging.StageDone("calibration", time.Since(start), "confidence", cal.Confidence)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stage 2: calibrate the primitive stream, skipping malformed input.
	calibrated := make([]drawing.Primitive, 0, len(in.Primitives))
	for _, p := range in.Primitives {
		res.Stats.PrimitivesSeen++
		if err := p.Validate(); err != nil {
			res.Stats.PrimitivesSkipped++
			var malformed *drawing.MalformedError
			if errors.As(err, &malformed) {
				chain.Add("primitive_skipped", "extraction", "primitive_stream",
					map[string]string{"kind": malformed.Kind, "layer": p.Meta().Layer},
					malformed.Reason, 0, nil)
			}
			logging.Warn("primitive skipped", "kind", drawing.Kind(p), "error", err)
			continue
		}
		calibrated = append(calibrated, calibrate.CalibratePrimitive(cal, p))
	}

	openings := make([]walls.Opening, len(in.Openings))
	for i, o := range in.Openings {
		openings[i] = o
		openings[i].Center = cal.Apply(o.Center)
		openings[i].Width = o.Width / cal.ScaleX
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stage 3: wall detection.
	start = time.Now()
	logging.StageStart("detection")
	cands := walls.Detect(calibrated, cfg.Detector)
	res.Candidates = cands
	res.Stats.Candidates = len(cands)
	chain.Add("wall_detection", "detection", "wall_detector",
		map[string]string{
			"primitives": fmt.Sprintf("%d", len(calibrated)),
			"candidates": fmt.Sprintf("%d", len(cands)),
		},
		fmt.Sprintf("filtered and merged %d primitives into %d wall candidates", len(calibrated), len(cands)),
		cal.Confidence, []string{"length_filter", "axis_alignment", "collinear_merge"})
	logging.StageDone("detection", time.Since(start), "candidates", len(cands))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stage 4: progressive validation.
	start = time.Now()
	logging.StageStart("validation")
	v := walls.NewValidator(cfg.Validator)
	v.Pass1(cands)
	v.Pass2(cands, openings)
	for _, c := range cands {
		tier := v.TierOf(c)
		res.Stats.TierCounts[tier.String()]++
		signals := make([]string, 0, len(c.History))
		for _, rec := range c.History {
			signals = append(signals, rec.Signal)
		}
		// Low-tier candidates stay in the chain for traceability even
		// though they never reach the store.
		chain.Add(fmt.Sprintf("wall_%d_scored", c.ID), "validation", "wall_validator",
			map[string]string{
				"start":  fmt.Sprintf("(%.3f, %.3f)", c.Start.X, c.Start.Y),
				"end":    fmt.Sprintf("(%.3f, %.3f)", c.End.X, c.End.Y),
				"length": fmt.Sprintf("%.3f", c.Length()),
				"page":   fmt.Sprintf("%d", c.Page),
				"layer":  c.Layer,
			},
			fmt.Sprintf("candidate %d tiered %s with max score %.2f", c.ID, tier, c.MaxScore()),
			c.MaxScore()*100, signals)
	}
	logging.StageDone("validation", time.Since(start), "tiers", res.Stats.TierCounts)

	// Stage 5: promote High/Medium candidates to stored elements.
	start = time.Now()
	logging.StageStart("storage")
	for _, c := range cands {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tier := v.TierOf(c)
		if tier != walls.TierHigh && tier != walls.TierMedium {
			continue
		}
		if err := storeWall(st, chain, c, cal.Confidence, cfg, res); err != nil {
			return nil, err
		}
	}
	for i, o := range openings {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !nearValidatedWall(o, cands, v, cfg) {
			continue
		}
		if err := storeOpening(st, chain, i, o, cal.Confidence, cfg, res); err != nil {
			return nil, err
		}
	}
	logging.StageDone("storage", time.Since(start), "elements", res.Stats.ElementsStored)

	return res, nil
}

// storeWall builds a wall box mesh in local space, hashes it, and stores
// the placement as the instance transform.
func storeWall(st *store.Store, chain *inference.Chain, c *walls.Candidate, conf float64, cfg Config, res *Result) error {
	mesh, err := kernel.Box(c.Length(), cfg.WallThickness, cfg.WallHeight, v3.Vec{})
	if err != nil {
		// Fatal for the element only; record and continue.
		chain.Add(fmt.Sprintf("wall_%d_geometry_invalid", c.ID), "generation", "geometry_builder",
			nil, err.Error(), 0, nil)
		logging.Warn("wall geometry rejected", "wall", c.ID, "error", err)
		return nil
	}

	mid := c.Midpoint()
	t := store.Transform{
		Position: v3.Vec{X: mid.X, Y: mid.Y, Z: cfg.WallHeight / 2},
		Rotation: v3.Vec{Z: c.Angle()},
		Scale:    1,
	}
	guid, deduped, err := st.Insert(mesh, t, fmt.Sprintf("wall-%d", c.ID))
	if err != nil {
		logging.IntegrityError("wall_insert", err, "wall", c.ID)
		return fmt.Errorf("pipeline: store wall %d: %w", c.ID, err)
	}
	res.Stats.ElementsStored++
	if deduped {
		res.Stats.GeometriesDeduped++
	}
	chain.Add(fmt.Sprintf("wall_%d_stored", c.ID), "generation", "geometry_builder",
		map[string]string{
			"guid":     guid,
			"hash":     kernel.Hash(mesh),
			"length":   fmt.Sprintf("%.3f", c.Length()),
			"deduped":  fmt.Sprintf("%v", deduped),
			"rotation": fmt.Sprintf("%.1f", c.Angle()),
		},
		fmt.Sprintf("wall %d stored as %.3fm box element", c.ID, c.Length()),
		conf, []string{"content_hash"})
	return nil
}

// storeOpening promotes a door/window near a validated wall to a stored
// element.
func storeOpening(st *store.Store, chain *inference.Chain, idx int, o walls.Opening, conf float64, cfg Config, res *Result) error {
	height := cfg.DoorHeight
	if o.Kind == walls.OpeningWindow {
		height = cfg.WindowHeight
	}
	width := o.Width
	if width <= 0 {
		width = 0.9
	}
	mesh, err := kernel.Box(width, cfg.WallThickness, height, v3.Vec{})
	if err != nil {
		chain.Add(fmt.Sprintf("opening_%d_geometry_invalid", idx), "generation", "geometry_builder",
			nil, err.Error(), 0, nil)
		return nil
	}
	t := store.Transform{
		Position: v3.Vec{X: o.Center.X, Y: o.Center.Y, Z: height / 2},
		Scale:    1,
	}
	guid, deduped, err := st.Insert(mesh, t, fmt.Sprintf("opening-%d", idx))
	if err != nil {
		logging.IntegrityError("opening_insert", err, "opening", idx)
		return fmt.Errorf("pipeline: store opening %d: %w", idx, err)
	}
	res.Stats.ElementsStored++
	if deduped {
		res.Stats.GeometriesDeduped++
	}
	chain.Add(fmt.Sprintf("opening_%d_stored", idx), "generation", "geometry_builder",
		map[string]string{"guid": guid, "kind": o.Kind.String()},
		fmt.Sprintf("%s stored as %.2fm x %.2fm element", o.Kind, width, height),
		conf, []string{"opening_proximity"})
	return nil
}

// nearValidatedWall reports whether an opening sits in a High or Medium
// tier candidate.
func nearValidatedWall(o walls.Opening, cands []*walls.Candidate, v *walls.Validator, cfg Config) bool {
	for _, c := range cands {
		tier := v.TierOf(c)
		if tier != walls.TierHigh && tier != walls.TierMedium {
			continue
		}
		dir := c.End.Sub(c.Start).Normalize()
		rel := o.Center.Sub(c.Start)
		along := rel.Dot(dir)
		if along < 0 || along > c.Length() {
			continue
		}
		if rel.Sub(dir.MulScalar(along)).Length() <= cfg.Validator.OpeningTolerance {
			return true
		}
	}
	return false
}

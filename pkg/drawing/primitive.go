// Package drawing defines the typed geometric primitives the engine
// consumes. Primitives arrive from an external extractor (DXF/PDF/raster
// tracing lives outside this module) carrying raw, uncalibrated
// coordinates plus page/layer tags.
package drawing

import (
	"fmt"
	"math"

	v2 "github.com/deadsy/sdfx/vec/v2"
)

// Meta carries the page/layer provenance of a primitive.
type Meta struct {
	Page  int    `json:"page"`
	Layer string `json:"layer,omitempty"`
}

// Primitive is the closed variant over the shapes the extractor emits.
// Consumers switch exhaustively on the concrete type.
type Primitive interface {
	primitive() // marker method restricting implementations to this package
	Meta() Meta
	// Validate reports a MalformedError for non-finite or degenerate
	// coordinates. Malformed primitives are skipped, never fatal.
	Validate() error
}

// Line is a straight segment between two points.
type Line struct {
	Tag   Meta   `json:"meta"`
	Start v2.Vec `json:"start"`
	End   v2.Vec `json:"end"`
}

// Arc is a circular arc. Angles are in degrees, counter-clockwise from +X.
type Arc struct {
	Tag        Meta    `json:"meta"`
	Center     v2.Vec  `json:"center"`
	Radius     float64 `json:"radius"`
	StartAngle float64 `json:"start_angle"`
	EndAngle   float64 `json:"end_angle"`
}

// Polyline is a connected sequence of points.
type Polyline struct {
	Tag    Meta     `json:"meta"`
	Points []v2.Vec `json:"points"`
}

// Circle is a full circle.
type Circle struct {
	Tag    Meta    `json:"meta"`
	Center v2.Vec  `json:"center"`
	Radius float64 `json:"radius"`
}

func (Line) primitive()     {}
func (Arc) primitive()      {}
func (Polyline) primitive() {}
func (Circle) primitive()   {}

func (p Line) Meta() Meta     { return p.Tag }
func (p Arc) Meta() Meta      { return p.Tag }
func (p Polyline) Meta() Meta { return p.Tag }
func (p Circle) Meta() Meta   { return p.Tag }

// MalformedError describes a primitive that cannot be processed.
// It is recoverable: callers skip the primitive and record the skip.
type MalformedError struct {
	Kind   string
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed %s primitive: %s", e.Kind, e.Reason)
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Validate checks a line for non-finite coordinates and zero length.
func (p Line) Validate() error {
	if !finite(p.Start.X, p.Start.Y, p.End.X, p.End.Y) {
		return &MalformedError{Kind: "line", Reason: "non-finite coordinate"}
	}
	if p.Start.Sub(p.End).Length() == 0 {
		return &MalformedError{Kind: "line", Reason: "zero length"}
	}
	return nil
}

// Validate checks an arc for non-finite values and a non-positive radius.
func (p Arc) Validate() error {
	if !finite(p.Center.X, p.Center.Y, p.Radius, p.StartAngle, p.EndAngle) {
		return &MalformedError{Kind: "arc", Reason: "non-finite value"}
	}
	if p.Radius <= 0 {
		return &MalformedError{Kind: "arc", Reason: "non-positive radius"}
	}
	return nil
}

// Validate checks a polyline for non-finite points and fewer than 2 points.
func (p Polyline) Validate() error {
	if len(p.Points) < 2 {
		return &MalformedError{Kind: "polyline", Reason: "fewer than 2 points"}
	}
	for _, pt := range p.Points {
		if !finite(pt.X, pt.Y) {
			return &MalformedError{Kind: "polyline", Reason: "non-finite coordinate"}
		}
	}
	return nil
}

// Validate checks a circle for non-finite values and a non-positive radius.
func (p Circle) Validate() error {
	if !finite(p.Center.X, p.Center.Y, p.Radius) {
		return &MalformedError{Kind: "circle", Reason: "non-finite value"}
	}
	if p.Radius <= 0 {
		return &MalformedError{Kind: "circle", Reason: "non-positive radius"}
	}
	return nil
}

// Kind returns the variant name of a primitive for logs and reports.
func Kind(p Primitive) string {
	switch p.(type) {
	case Line:
		return "line"
	case Arc:
		return "arc"
	case Polyline:
		return "polyline"
	case Circle:
		return "circle"
	default:
		return "unknown"
	}
}

// Segments decomposes a primitive into straight segments where that is
// meaningful: a line yields itself, a polyline one segment per edge.
// Arcs and circles yield nothing; they never form wall candidates.
func Segments(p Primitive) []Line {
	switch s := p.(type) {
	case Line:
		return []Line{s}
	case Polyline:
		segs := make([]Line, 0, len(s.Points)-1)
		for i := 0; i+1 < len(s.Points); i++ {
			segs = append(segs, Line{Tag: s.Tag, Start: s.Points[i], End: s.Points[i+1]})
		}
		return segs
	default:
		return nil
	}
}

// CalibrationReference is the known-dimension shape used to derive the
// raw-unit to world-unit transform. KnownWidth/KnownLength are in meters.
type CalibrationReference struct {
	RawPoints   []v2.Vec `json:"raw_points"`
	KnownWidth  float64  `json:"known_width"`
	KnownLength float64  `json:"known_length"`
}

package drawing

import (
	"encoding/json"
	"fmt"
	"io"

	v2 "github.com/deadsy/sdfx/vec/v2"
)

// Wire format for the primitive stream. Points are [x, y] pairs so hand
// written fixtures stay compact.

type streamDoc struct {
	Primitives []streamPrimitive `json:"primitives"`
	Reference  *streamReference  `json:"reference,omitempty"`
}

type streamPrimitive struct {
	Kind       string       `json:"kind"`
	Page       int          `json:"page"`
	Layer      string       `json:"layer,omitempty"`
	Start      *[2]float64  `json:"start,omitempty"`
	End        *[2]float64  `json:"end,omitempty"`
	Center     *[2]float64  `json:"center,omitempty"`
	Radius     float64      `json:"radius,omitempty"`
	StartAngle float64      `json:"start_angle,omitempty"`
	EndAngle   float64      `json:"end_angle,omitempty"`
	Points     [][2]float64 `json:"points,omitempty"`
}

type streamReference struct {
	RawPoints   [][2]float64 `json:"raw_points"`
	KnownWidth  float64      `json:"known_width"`
	KnownLength float64      `json:"known_length"`
}

func toVec(p [2]float64) v2.Vec { return v2.Vec{X: p[0], Y: p[1]} }

// Stream is a decoded primitive stream plus its calibration reference.
type Stream struct {
	Primitives []Primitive
	Reference  *CalibrationReference
}

// ReadStream decodes a JSON primitive stream. Unknown primitive kinds are
// an error; the wire contract is closed, matching the Primitive variant.
func ReadStream(r io.Reader) (*Stream, error) {
	var doc streamDoc
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("drawing: decode stream: %w", err)
	}

	out := &Stream{}
	for i, sp := range doc.Primitives {
		tag := Meta{Page: sp.Page, Layer: sp.Layer}
		switch sp.Kind {
		case "line":
			if sp.Start == nil || sp.End == nil {
				return nil, fmt.Errorf("drawing: primitive %d: line requires start and end", i)
			}
			out.Primitives = append(out.Primitives, Line{Tag: tag, Start: toVec(*sp.Start), End: toVec(*sp.End)})
		case "arc":
			if sp.Center == nil {
				return nil, fmt.Errorf("drawing: primitive %d: arc requires center", i)
			}
			out.Primitives = append(out.Primitives, Arc{
				Tag: tag, Center: toVec(*sp.Center), Radius: sp.Radius,
				StartAngle: sp.StartAngle, EndAngle: sp.EndAngle,
			})
		case "polyline":
			pts := make([]v2.Vec, len(sp.Points))
			for j, p := range sp.Points {
				pts[j] = toVec(p)
			}
			out.Primitives = append(out.Primitives, Polyline{Tag: tag, Points: pts})
		case "circle":
			if sp.Center == nil {
				return nil, fmt.Errorf("drawing: primitive %d: circle requires center", i)
			}
			out.Primitives = append(out.Primitives, Circle{Tag: tag, Center: toVec(*sp.Center), Radius: sp.Radius})
		default:
			return nil, fmt.Errorf("drawing: primitive %d: unknown kind %q", i, sp.Kind)
		}
	}

	if doc.Reference != nil {
		ref := &CalibrationReference{
			KnownWidth:  doc.Reference.KnownWidth,
			KnownLength: doc.Reference.KnownLength,
		}
		for _, p := range doc.Reference.RawPoints {
			ref.RawPoints = append(ref.RawPoints, toVec(p))
		}
		out.Reference = ref
	}

	return out, nil
}

// Command tectum runs the floor-plan extraction pipeline on a primitive
// stream and queries the resulting building element store. It is a thin
// caller of the core packages; parsing drawings into primitives happens
// upstream.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"

	"github.com/chazu/tectum/internal/logging"
	"github.com/chazu/tectum/pkg/drawing"
	"github.com/chazu/tectum/pkg/inference"
	"github.com/chazu/tectum/pkg/pipeline"
	"github.com/chazu/tectum/pkg/store"
)

const version = "0.1.0"

// CLI defines the command-line interface for tectum.
var CLI struct {
	LogLevel string `name:"log-level" default:"info" enum:"debug,info,warn,error" help:"Log level"`
	LogJSON  bool   `name:"log-json" help:"Emit JSON logs"`

	Run     RunCmd     `cmd:"" help:"Run the extraction pipeline on a primitive stream"`
	Query   QueryCmd   `cmd:"" help:"Range-query a building element store"`
	Audit   AuditCmd   `cmd:"" help:"Render an exported inference chain"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// RunCmd runs the full pipeline.
type RunCmd struct {
	Input string `arg:"" help:"Primitive stream JSON file" type:"existingfile"`
	DB    string `name:"db" default:"elements.db" help:"Store path"`
	Audit string `name:"audit" help:"Write the inference chain JSON report here"`
}

func (c *RunCmd) Run() error {
	f, err := os.Open(c.Input)
	if err != nil {
		return err
	}
	defer f.Close()

	stream, err := drawing.ReadStream(f)
	if err != nil {
		return err
	}
	if stream.Reference == nil {
		return fmt.Errorf("input has no calibration reference")
	}

	st, err := store.Open(c.DB)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	chain := inference.New(uuid.NewString())
	res, err := pipeline.Run(ctx, pipeline.Input{
		Reference:  *stream.Reference,
		Primitives: stream.Primitives,
	}, st, chain, pipeline.DefaultConfig())
	if err != nil {
		return err
	}

	if c.Audit != "" {
		out, err := os.Create(c.Audit)
		if err != nil {
			return err
		}
		defer out.Close()
		if err := chain.ExportJSON(out); err != nil {
			return err
		}
	}

	fmt.Printf("calibration confidence: %.1f\n", res.Stats.CalibrationConf)
	fmt.Printf("primitives: %d seen, %d skipped\n", res.Stats.PrimitivesSeen, res.Stats.PrimitivesSkipped)
	fmt.Printf("candidates: %d, tiers: %v\n", res.Stats.Candidates, res.Stats.TierCounts)
	fmt.Printf("elements stored: %d (%d deduplicated geometries)\n",
		res.Stats.ElementsStored, res.Stats.GeometriesDeduped)
	return nil
}

// QueryCmd answers a range query against an existing store.
type QueryCmd struct {
	DB  string    `name:"db" required:"" help:"Store path" type:"existingfile"`
	Min []float64 `name:"min" required:"" sep:"," help:"Query box minimum corner x,y,z"`
	Max []float64 `name:"max" required:"" sep:"," help:"Query box maximum corner x,y,z"`
}

func (c *QueryCmd) Run() error {
	if len(c.Min) != 3 || len(c.Max) != 3 {
		return fmt.Errorf("--min and --max need exactly 3 coordinates")
	}
	st, err := store.Open(c.DB)
	if err != nil {
		return err
	}
	defer st.Close()

	guids, err := st.RangeQuery(
		[3]float64{c.Min[0], c.Min[1], c.Min[2]},
		[3]float64{c.Max[0], c.Max[1], c.Max[2]})
	if err != nil {
		return err
	}
	for _, g := range guids {
		el, _, err := st.Get(g)
		if err != nil {
			return err
		}
		fmt.Printf("%s geometry=%s pos=(%.3f, %.3f, %.3f)\n",
			el.GUID, el.GeometryHash[:12],
			el.Transform.Position.X, el.Transform.Position.Y, el.Transform.Position.Z)
	}
	fmt.Printf("%d elements\n", len(guids))
	return nil
}

// AuditCmd renders a previously exported inference chain as text.
type AuditCmd struct {
	Report string `arg:"" help:"Inference chain JSON report" type:"existingfile"`
}

func (c *AuditCmd) Run() error {
	f, err := os.Open(c.Report)
	if err != nil {
		return err
	}
	defer f.Close()

	chain, err := inference.Import(f)
	if err != nil {
		return err
	}
	return chain.Render(os.Stdout)
}

// VersionCmd prints the version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println("tectum", version)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("tectum"),
		kong.Description("Floor-plan extraction, validation, and element storage"),
		kong.UsageOnError(),
	)

	level := logging.LevelInfo
	switch CLI.LogLevel {
	case "debug":
		level = logging.LevelDebug
	case "warn":
		level = logging.LevelWarn
	case "error":
		level = logging.LevelError
	}
	format := logging.FormatText
	if CLI.LogJSON {
		format = logging.FormatJSON
	}
	logging.InitLogger(level, format)

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

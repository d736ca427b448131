// Package inference records the provenance of every derived value in a
// pipeline run. The chain is append-only: steps are never edited or
// deleted, so a failure investigation can replay exactly which signals
// produced which number and with what confidence.
package inference

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// Step is one append-only provenance record.
type Step struct {
	StepName    string            `json:"step_name"`
	Phase       string            `json:"phase"`
	Source      string            `json:"source"`
	Input       map[string]string `json:"input,omitempty"`
	Inference   string            `json:"inference"`
	Confidence  float64           `json:"confidence"`
	ValidatedBy []string          `json:"validated_by,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// Chain is the audit log for one pipeline run. Add is the only mutator.
type Chain struct {
	mu    sync.Mutex
	run   string
	steps []Step
}

// New creates an empty chain tagged with a run identifier.
func New(runID string) *Chain {
	return &Chain{run: runID}
}

// RunID returns the chain's run identifier.
func (c *Chain) RunID() string {
	return c.run
}

// Add appends a step. The input snapshot is copied so later mutation by
// the caller cannot rewrite history.
func (c *Chain) Add(step, phase, source string, input map[string]string, inference string, confidence float64, validatedBy []string) {
	in := make(map[string]string, len(input))
	for k, v := range input {
		in[k] = v
	}
	vb := make([]string, len(validatedBy))
	copy(vb, validatedBy)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, Step{
		StepName:    step,
		Phase:       phase,
		Source:      source,
		Input:       in,
		Inference:   inference,
		Confidence:  confidence,
		ValidatedBy: vb,
		Timestamp:   time.Now().UTC(),
	})
}

// Len returns the number of recorded steps.
func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.steps)
}

// Steps returns a snapshot of the recorded steps. Mutating the returned
// slice does not affect the chain.
func (c *Chain) Steps() []Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Step, len(c.steps))
	copy(out, c.steps)
	return out
}

// export is the machine-readable report envelope.
type export struct {
	RunID      string    `json:"run_id"`
	ExportedAt time.Time `json:"exported_at"`
	StepCount  int       `json:"step_count"`
	Steps      []Step    `json:"steps"`
}

// ExportJSON writes the machine-readable report.
func (c *Chain) ExportJSON(w io.Writer) error {
	doc := export{
		RunID:      c.run,
		ExportedAt: time.Now().UTC(),
		Steps:      c.Steps(),
	}
	doc.StepCount = len(doc.Steps)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("inference: export: %w", err)
	}
	return nil
}

// Import reads a chain back from its JSON export so a previously written
// audit report can be re-rendered or inspected.
func Import(r io.Reader) (*Chain, error) {
	var doc export
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("inference: import: %w", err)
	}
	return &Chain{run: doc.RunID, steps: doc.Steps}, nil
}

// Render writes a human-readable report of the same steps.
func (c *Chain) Render(w io.Writer) error {
	steps := c.Steps()
	if _, err := fmt.Fprintf(w, "inference chain %s (%d steps)\n", c.run, len(steps)); err != nil {
		return err
	}
	for i, s := range steps {
		fmt.Fprintf(w, "%3d. [%s/%s] %s (confidence %.1f)\n", i+1, s.Phase, s.Source, s.StepName, s.Confidence)
		fmt.Fprintf(w, "     %s\n", s.Inference)
		keys := make([]string, 0, len(s.Input))
		for k := range s.Input {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "       %s = %s\n", k, s.Input[k])
		}
		if len(s.ValidatedBy) > 0 {
			fmt.Fprintf(w, "     validated by: %v\n", s.ValidatedBy)
		}
	}
	return nil
}

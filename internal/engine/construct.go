package engine

import (
	"fmt"
	"strings"

	"github.com/cameron5906/workpipe/internal/ir"
	"github.com/cameron5906/workpipe/internal/protocol"
)

// Construct is one lowered cycle as the engine executes it.
type Construct struct {
	Workflow  string
	Namespace string
	Schema    ir.StateSchema
}

// Cycle returns the cycle name.
func (c Construct) Cycle() string { return c.Schema.Cycle }

// id identifies the construct among the engine's registered ones.
func (c Construct) id() string { return c.Workflow + "/" + c.Schema.Cycle }

// ConstructFor extracts the construct of cycle from a compiled workflow.
// The artifact namespace is recovered from the schema's artifact pattern.
func ConstructFor(w *ir.Workflow, cycle string) (Construct, error) {
	for _, st := range w.States {
		if st.Cycle != cycle {
			continue
		}
		// ArtifactPattern("", cycle) is "-<cycle>-iter-{iteration}-run-{invocation}".
		ns, ok := strings.CutSuffix(st.Artifact, protocol.ArtifactPattern("", cycle))
		if !ok || ns == "" {
			return Construct{}, fmt.Errorf("cycle %s: artifact pattern %q does not match protocol", cycle, st.Artifact)
		}
		return Construct{
			Workflow:  w.Name,
			Namespace: ns,
			Schema:    st,
		}, nil
	}
	return Construct{}, fmt.Errorf("workflow %s has no cycle %q", w.Name, cycle)
}

// Constructs extracts every construct of a compiled workflow in state
// order.
func Constructs(w *ir.Workflow) ([]Construct, error) {
	out := make([]Construct, 0, len(w.States))
	for _, st := range w.States {
		c, err := ConstructFor(w, st.Cycle)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

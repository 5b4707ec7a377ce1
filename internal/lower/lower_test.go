package lower

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cameron5906/workpipe/internal/ast"
	"github.com/cameron5906/workpipe/internal/diag"
	"github.com/cameron5906/workpipe/internal/ir"
	"github.com/cameron5906/workpipe/internal/protocol"
)

func ident(name string, start int) ast.Ident {
	return ast.Ident{Name: name, Span: ast.Span{Start: start, End: start + len(name)}}
}

func cycle(name string, maxIters *int, until string, body ...string) *ast.Cycle {
	cy := &ast.Cycle{Name: ident(name, 0)}
	if maxIters != nil {
		cy.MaxIters = &ast.IntLit{Value: *maxIters, Span: ast.Span{Start: 40, End: 41}}
	}
	if until != "" {
		cy.Until = &ast.Script{Body: until}
	}
	for i, b := range body {
		cy.Body = append(cy.Body, &ast.Job{Kind: ast.KindJob, Name: ident(b, 100+i*50)})
	}
	return cy
}

func intp(v int) *int { return &v }

func blankUntil(cy *ast.Cycle) *ast.Cycle {
	cy.Until = &ast.Script{Body: "  \n\t"}
	return cy
}

func opts() Options {
	return Options{Namespace: "review", WorkflowFile: "review.yml", FileStem: "review"}
}

func codes(ds []diag.Diagnostic) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Code
	}
	return out
}

func unitNames(us []ir.Unit) []string {
	out := make([]string, len(us))
	for i, u := range us {
		out[i] = u.Name
	}
	return out
}

func TestLowerCappedCycle(t *testing.T) {
	cy := cycle("refine", intp(3), "", "analyze")
	cy.Key = &ast.Script{Body: "review-${{ github.ref }}"}
	body := []ir.Unit{{
		Name:   "analyze",
		Phase:  ir.PhaseUser,
		RunsOn: "ubuntu-latest",
		Steps:  []ir.Step{{ID: "run", Run: "./analyze.sh"}},
		Outputs: []ir.KV{
			{Key: "score", Value: "${{ steps.run.outputs.score }}"},
		},
	}}

	c := diag.NewCollector()
	res, ok := Lower(cy, body, opts(), c)
	require.True(t, ok)

	assert.Equal(t, []string{"refine_hydrate", "refine_body_analyze", "refine_decide", "refine_dispatch"}, unitNames(res.Units))
	assert.Equal(t, []ir.Phase{ir.PhaseHydrate, ir.PhaseBody, ir.PhaseDecide, ir.PhaseDispatch},
		[]ir.Phase{res.Units[0].Phase, res.Units[1].Phase, res.Units[2].Phase, res.Units[3].Phase})

	decide := res.Units[2]
	var script string
	for _, s := range decide.Steps {
		assert.NotEqual(t, "predicate", s.ID, "no predicate step without until")
		if s.ID == "decide" {
			script = s.Run
		}
	}
	assert.Contains(t, script, `if [ "$WP_ITERATION" -ge 2 ]; then done=true; fi`)
	assert.NotContains(t, script, "WP_SATISFIED")

	// The runtime rule the script mirrors fires at iteration 2 for cap 3.
	d := protocol.Decide(protocol.State{Iteration: 2, Key: "k"}, intp(3), nil)
	assert.True(t, d.Done)
	assert.True(t, d.Rail)

	assert.Equal(t, []string{diag.InfoCycleLowered}, codes(c.Drain()))
	assert.Equal(t, ir.Concurrency{Group: "review-${{ github.ref }}"}, res.Concurrency)
	for _, u := range res.Units {
		require.NotNil(t, u.Concurrency, u.Name)
		assert.Equal(t, res.Concurrency, *u.Concurrency, u.Name)
	}
}

func TestLowerStateSchema(t *testing.T) {
	cy := cycle("refine", intp(5), "test -f done", "plan", "apply")
	cy.Key = &ast.Script{Body: "k"}
	body := []ir.Unit{
		{Name: "plan", Outputs: []ir.KV{{Key: "diff", Value: "x"}, {Key: "count", Value: "y"}}},
		{Name: "apply", Needs: []string{"plan"}},
	}

	res, ok := Lower(cy, body, opts(), diag.NewCollector())
	require.True(t, ok)

	want := ir.StateSchema{
		Cycle:     "refine",
		Key:       "k",
		MaxIters:  intp(5),
		Predicate: true,
		Artifact:  "review-refine-iter-{iteration}-run-{invocation}",
		Captured: []ir.CapturedUnit{
			{Unit: "plan", Outputs: []string{"diff", "count"}},
			{Unit: "apply", Outputs: []string{}},
		},
	}
	if diff := cmp.Diff(want, res.State); diff != "" {
		t.Errorf("state schema mismatch (-want +got):\n%s", diff)
	}
}

func TestLowerMemberRewrite(t *testing.T) {
	cy := cycle("loop", nil, "exit 0", "a", "b")
	cy.Key = &ast.Script{Body: "k"}
	body := []ir.Unit{
		{Name: "a", Needs: []string{"setup"}, Outputs: []ir.KV{{Key: "v", Value: "${{ steps.s.outputs.v }}"}}},
		{
			Name:  "b",
			Needs: []string{"a", "setup"},
			If:    "needs.a.outputs.v == 'go' && needs.setup.outputs.ok == 'true'",
			Env:   []ir.KV{{Key: "V", Value: "${{ needs.a.outputs.v }}"}},
			Steps: []ir.Step{{Run: "echo ${{ needs.a.outputs.v }}"}},
		},
	}

	res, ok := Lower(cy, body, opts(), diag.NewCollector())
	require.True(t, ok)

	a, b := res.Units[1], res.Units[2]
	assert.Equal(t, []string{"loop_hydrate", "setup"}, a.Needs)
	assert.Equal(t, []string{"loop_hydrate", "loop_body_a", "setup"}, b.Needs)
	assert.Equal(t, "needs.loop_body_a.outputs.v == 'go' && needs.setup.outputs.ok == 'true'", b.If)
	assert.Equal(t, "${{ needs.loop_body_a.outputs.v }}", b.Env[0].Value)
	assert.Equal(t, "echo ${{ needs.loop_body_a.outputs.v }}", b.Steps[0].Run)
	assert.Equal(t, "a", a.Origin)

	// Every member ends with the capture step and exposes its JSON.
	capA := a.Steps[len(a.Steps)-1]
	assert.Equal(t, CaptureOutput, capA.ID)
	assert.Equal(t, []ir.KV{{Key: "WP_OUT_0", Value: "${{ steps.s.outputs.v }}"}}, capA.Env)
	assert.Equal(t, ir.KV{Key: CaptureOutput, Value: "${{ steps.wp_capture.outputs.json }}"}, a.Outputs[len(a.Outputs)-1])

	capB := b.Steps[len(b.Steps)-1]
	assert.Equal(t, []ir.KV{{Key: "WP_UP_0", Value: "${{ needs.loop_body_a.outputs.wp_capture }}"}}, capB.Env)
	assert.Contains(t, capB.Run, `$up0 * {"b": {}}`)

	// Only b is terminal, and b's capture already carries a's outputs.
	decide := res.Units[3]
	assert.Equal(t, []string{"loop_hydrate", "loop_body_b"}, decide.Needs)
}

func TestLowerDecidePlan(t *testing.T) {
	tests := []struct {
		name      string
		maxIters  *int
		until     string
		predicate bool
		rail      string
	}{
		{"cap only", intp(3), "", false, "-ge 2"},
		{"predicate only", nil, "grep -q ok out.txt", true, ""},
		{"both", intp(1), "true", true, "-ge 0"},
		{"zero cap", intp(0), "true", true, "-ge -1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cy := cycle("c", tt.maxIters, tt.until, "x")
			cy.Key = &ast.Script{Body: "k"}
			res, ok := Lower(cy, []ir.Unit{{Name: "x"}}, opts(), diag.NewCollector())
			require.True(t, ok)

			decide := res.Units[2]
			var ids []string
			var script string
			for _, s := range decide.Steps {
				ids = append(ids, s.ID)
				if s.ID == "decide" {
					script = s.Run
				}
			}
			if tt.predicate {
				assert.Equal(t, []string{"collect", "predicate", "decide", ""}, ids)
				assert.Contains(t, script, "WP_SATISFIED")
			} else {
				assert.Equal(t, []string{"collect", "decide", ""}, ids)
			}
			if tt.rail != "" {
				assert.Contains(t, script, tt.rail)
			} else {
				assert.NotContains(t, script, "-ge")
			}

			upload := decide.Steps[len(decide.Steps)-1]
			assert.Equal(t, UploadAction, upload.Uses)
			assert.Equal(t, "review-c-iter-${{ needs.c_hydrate.outputs.iteration }}-run-${{ github.run_id }}", upload.With[0].Value)

			var outs []string
			for _, o := range decide.Outputs {
				outs = append(outs, o.Key)
			}
			assert.Equal(t, []string{"done", "continue", "iteration", "key"}, outs)
		})
	}
}

func TestLowerHydrateAndDispatch(t *testing.T) {
	cy := cycle("refine", intp(2), "", "a")
	cy.Key = &ast.Script{Body: "k"}
	res, ok := Lower(cy, []ir.Unit{{Name: "a"}}, opts(), diag.NewCollector())
	require.True(t, ok)

	hydrate := res.Units[0]
	assert.Empty(t, hydrate.Needs)
	assert.Equal(t, "inputs.wp_construct == '' || inputs.wp_construct == 'refine'", hydrate.If)
	require.Len(t, hydrate.Steps, 2)
	assert.Equal(t, "inputs.wp_iteration != '' && inputs.wp_iteration != '0'", hydrate.Steps[0].If)
	assert.Contains(t, hydrate.Steps[0].Run, `review-refine-iter-$((WP_ITERATION - 1))-run-${WP_PREV_RUN}`)
	assert.Equal(t, "state", hydrate.Steps[1].ID)

	dispatch := res.Units[3]
	assert.Equal(t, []string{"refine_decide"}, dispatch.Needs)
	assert.Equal(t, "needs.refine_decide.outputs.continue == 'true'", dispatch.If)
	run := dispatch.Steps[0].Run
	assert.Contains(t, run, "gh workflow run 'review.yml'")
	for _, in := range []string{"wp_construct=refine", `wp_iteration="$((WP_ITERATION + 1))"`, `wp_key="$WP_KEY"`, `wp_prev_run="$GITHUB_RUN_ID"`} {
		assert.Contains(t, run, in)
	}
}

func TestLowerDefaultsKey(t *testing.T) {
	cy := cycle("refine", intp(2), "", "a")
	c := diag.NewCollector()
	res, ok := Lower(cy, []ir.Unit{{Name: "a"}}, opts(), c)
	require.True(t, ok)

	assert.Equal(t, "review-refine", res.Concurrency.Group)
	assert.False(t, res.Concurrency.CancelInProgress)
	assert.Equal(t, []string{diag.WarnMissingKey, diag.InfoCycleLowered}, codes(c.Drain()))
}

func TestLowerRejectsBodyLoop(t *testing.T) {
	cy := cycle("refine", intp(2), "", "a", "b")
	body := []ir.Unit{
		{Name: "a", Needs: []string{"b"}},
		{Name: "b", Needs: []string{"a"}},
	}
	c := diag.NewCollector()
	res, ok := Lower(cy, body, opts(), c)
	assert.False(t, ok)
	assert.Empty(t, res.Units)

	ds := c.Drain()
	require.Len(t, ds, 1)
	assert.Equal(t, diag.ErrBodyInternalLoop, ds[0].Code)
	assert.Equal(t, cy.Body[0].DeclName().Span, ds[0].Span)
	assert.Contains(t, ds[0].Message, "a -> b -> a")
	assert.Contains(t, ds[0].Hint, "refine_hydrate")
}

func TestLowerDeterministic(t *testing.T) {
	build := func() []ir.Unit {
		cy := cycle("refine", intp(4), "test -s out", "a", "b", "c")
		cy.Key = &ast.Script{Body: "k"}
		body := []ir.Unit{
			{Name: "a", Outputs: []ir.KV{{Key: "x", Value: "1"}, {Key: "y", Value: "2"}}},
			{Name: "b", Needs: []string{"a"}},
			{Name: "c", Needs: []string{"a"}},
		}
		res, ok := Lower(cy, body, opts(), diag.NewCollector())
		require.True(t, ok)
		return res.Units
	}
	first, second := build(), build()
	assert.Equal(t, first, second)

	w1 := ir.Workflow{Name: "review", Units: first}
	w2 := ir.Workflow{Name: "review", Units: second}
	assert.Equal(t, ir.MustDigest(&w1), ir.MustDigest(&w2))
}

func TestCheck(t *testing.T) {
	nested := cycle("outer", intp(2), "", "a")
	nested.Body = append(nested.Body, &ast.Cycle{Name: ident("inner", 300), MaxIters: &ast.IntLit{Value: 1}})

	tests := []struct {
		name string
		cy   *ast.Cycle
		want []string
	}{
		{"valid", cycle("c", intp(2), "", "a"), nil},
		{"no termination", cycle("c", nil, "", "a"), []string{diag.ErrNoTermination}},
		{"blank until", blankUntil(cycle("c", nil, "", "a")), []string{diag.ErrNoTermination}},
		{"blank until with cap", blankUntil(cycle("c", intp(3), "", "a")), nil},
		{"negative cap", cycle("c", intp(-1), "", "a"), []string{diag.ErrInvalidCap}},
		{"empty body", cycle("c", intp(1), ""), []string{diag.ErrEmptyCycleBody}},
		{"nested", nested, []string{diag.ErrNestedCycle}},
		{"empty and unbounded", cycle("c", nil, ""), []string{diag.ErrNoTermination, diag.ErrEmptyCycleBody}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Check(tt.cy)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, codes(got))
		})
	}
}

func TestPhaseNames(t *testing.T) {
	assert.Equal(t,
		[]string{"refine_hydrate", "refine_body_a", "refine_body_b", "refine_decide", "refine_dispatch"},
		PhaseNames("refine", []string{"a", "b"}))
	assert.True(t, strings.HasPrefix(StateDir("refine"), ".workpipe/"))
}

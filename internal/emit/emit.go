// Package emit renders a lowered workflow as engine YAML.
//
// Rendering goes through yaml.Node so key order is exactly the order of
// the IR. Nothing is sorted here; determinism is the compiler's job.
package emit

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cameron5906/workpipe/internal/ir"
)

const triggerDispatch = "workflow_dispatch"

// YAML encodes w as a workflow file.
func YAML(w *ir.Workflow) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(Document(w)); err != nil {
		return nil, fmt.Errorf("encode workflow %s: %w", w.Name, err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode workflow %s: %w", w.Name, err)
	}
	return buf.Bytes(), nil
}

// Document builds the YAML document node for w.
func Document(w *ir.Workflow) *yaml.Node {
	root := mapping()
	root.HeadComment = fmt.Sprintf("Code generated by workpipe from %s. DO NOT EDIT.", w.Source)
	put(root, "name", str(w.Name))
	put(root, "on", triggers(w))
	if len(w.Permissions) > 0 {
		perms := mapping()
		for _, p := range w.Permissions {
			put(perms, p.Scope, str(p.Level))
		}
		put(root, "permissions", perms)
	}
	if w.Concurrency != nil {
		put(root, "concurrency", concurrency(w.Concurrency))
	}
	jobs := mapping()
	for i := range w.Units {
		put(jobs, w.Units[i].Name, job(&w.Units[i]))
	}
	put(root, "jobs", jobs)
	return &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}
}

func triggers(w *ir.Workflow) *yaml.Node {
	on := mapping()
	for _, t := range w.Triggers {
		if t == triggerDispatch && len(w.Inputs) > 0 {
			inputs := mapping()
			for _, in := range w.Inputs {
				spec := mapping()
				put(spec, "description", str(in.Description))
				put(spec, "required", boolean(in.Required))
				put(spec, "default", str(in.Default))
				put(inputs, in.Name, spec)
			}
			dispatch := mapping()
			put(dispatch, "inputs", inputs)
			put(on, t, dispatch)
			continue
		}
		put(on, t, flowMapping())
	}
	return on
}

func concurrency(c *ir.Concurrency) *yaml.Node {
	n := mapping()
	put(n, "group", str(c.Group))
	put(n, "cancel-in-progress", boolean(c.CancelInProgress))
	return n
}

func job(u *ir.Unit) *yaml.Node {
	n := mapping()
	if len(u.Needs) > 0 {
		put(n, "needs", flowSequence(u.Needs))
	}
	if u.If != "" {
		put(n, "if", str(u.If))
	}
	put(n, "runs-on", str(u.RunsOn))
	if u.Concurrency != nil {
		put(n, "concurrency", concurrency(u.Concurrency))
	}
	if len(u.Env) > 0 {
		put(n, "env", kvs(u.Env))
	}
	if len(u.Outputs) > 0 {
		put(n, "outputs", kvs(u.Outputs))
	}
	steps := &yaml.Node{Kind: yaml.SequenceNode}
	for i := range u.Steps {
		steps.Content = append(steps.Content, step(&u.Steps[i]))
	}
	put(n, "steps", steps)
	return n
}

func step(s *ir.Step) *yaml.Node {
	n := mapping()
	for _, f := range []struct{ key, value string }{
		{"name", s.Name},
		{"id", s.ID},
		{"if", s.If},
		{"uses", s.Uses},
	} {
		if f.value != "" {
			put(n, f.key, str(f.value))
		}
	}
	if len(s.With) > 0 {
		put(n, "with", kvs(s.With))
	}
	if len(s.Env) > 0 {
		put(n, "env", kvs(s.Env))
	}
	if s.Run != "" {
		put(n, "run", str(s.Run))
	}
	return n
}

func kvs(pairs []ir.KV) *yaml.Node {
	n := mapping()
	for _, kv := range pairs {
		put(n, kv.Key, str(kv.Value))
	}
	return n
}

func mapping() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

func flowMapping() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Style: yaml.FlowStyle}
}

func flowSequence(items []string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Style: yaml.FlowStyle}
	for _, it := range items {
		n.Content = append(n.Content, str(it))
	}
	return n
}

func put(m *yaml.Node, key string, value *yaml.Node) {
	m.Content = append(m.Content, str(key), value)
}

// str is always a string scalar: values such as "true", "3" or "on" must
// not change type when the engine reads them back.
func str(s string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
	if strings.Contains(s, "\n") {
		n.Style = yaml.LiteralStyle
	}
	return n
}

func boolean(b bool) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(b)}
}

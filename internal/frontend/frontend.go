// Package frontend reads workflow sources written in CUE into the source
// tree the compiler consumes.
//
// A source file is plain CUE data:
//
//	workflow: "release"
//	on: ["push"]
//	jobs: build: {
//		"runs-on": "ubuntu-latest"
//		outputs: version: "string"
//	}
//	cycles: refine: {
//		max_iters: 3
//		jobs: analyze: {"runs-on": "ubuntu-latest"}
//	}
//
// CUE evaluates the file first, so references and unification inside it
// are resolved before decoding. Byte spans come from the syntax tree.
package frontend

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/parser"
	"cuelang.org/go/cue/token"

	"github.com/cameron5906/workpipe/internal/ast"
)

// Error codes for load failures. Compiler findings use the diag codes.
const (
	ErrCodeGeneric  = "E001" // Generic/unknown error
	ErrCodeScan     = "E002" // Directory scan error
	ErrCodeNoFiles  = "E003" // No CUE files found
	ErrCodeParse    = "E004" // CUE syntax error
	ErrCodeNotFound = "E005" // Path not found
	ErrCodeBuild    = "E006" // CUE evaluation error
	ErrCodeShape    = "E008" // Value has the wrong shape
)

// LoadError is a failure to turn a file into a source tree.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// cueError extracts position info from CUE errors.
func cueError(code string, err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{Code: code, Message: err.Error()}
	}
	first := errs[0]
	le := &LoadError{Code: code, Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}

// Workspace is every source file of a directory.
type Workspace struct {
	Root    string
	Files   []*ast.File
	Sources map[string][]byte // keyed by ast.File.Path
}

// ParseFile reads one source. path becomes ast.File.Path and should be
// relative to the workspace root with forward slashes.
func ParseFile(path string, src []byte) (*ast.File, error) {
	syntax, err := parser.ParseFile(path, src, parser.ParseComments)
	if err != nil {
		return nil, cueError(ErrCodeParse, err)
	}
	v := cuecontext.New().BuildFile(syntax)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, cueError(ErrCodeBuild, err)
	}
	d := &decoder{path: path, src: src, ix: indexFile(syntax)}
	return d.file(v)
}

// LoadDir parses every .cue file below root.
func LoadDir(root string) (*Workspace, error) {
	info, err := os.Stat(root)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("directory not found: %s", root)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", root)}
	}

	paths, err := FindCUEFiles(root)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScan, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(paths) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", root)}
	}

	ws := &Workspace{Root: root, Sources: make(map[string][]byte, len(paths))}
	for _, p := range paths {
		src, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil, fmt.Errorf("relative path of %s: %w", p, err)
		}
		rel = filepath.ToSlash(rel)
		f, err := ParseFile(rel, src)
		if err != nil {
			return nil, err
		}
		ws.Files = append(ws.Files, f)
		ws.Sources[rel] = src
	}
	return ws, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths in
// lexical order.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() && path != dir && strings.HasPrefix(info.Name(), ".") {
			return filepath.SkipDir
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// Position converts a byte offset into a 1-based line and column.
func Position(src []byte, offset int) (line, col int) {
	line, col = 1, 1
	for i := 0; i < offset && i < len(src); i++ {
		if src[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}

type decoder struct {
	path string
	src  []byte
	ix   *spanIndex
}

type field struct {
	name  string
	path  []string
	value cue.Value
}

func (d *decoder) shapeError(v cue.Value, path []string, format string, args ...any) error {
	return &LoadError{
		Code:    ErrCodeShape,
		Message: fmt.Sprintf("%s: %s", strings.Join(path, "."), fmt.Sprintf(format, args...)),
		Pos:     v.Pos(),
	}
}

func (d *decoder) lookup(v cue.Value, name string) (cue.Value, bool) {
	f := v.LookupPath(cue.MakePath(cue.Str(name)))
	return f, f.Exists()
}

// fields lists the regular fields of the struct at path in source order.
func (d *decoder) fields(v cue.Value, path []string) ([]field, error) {
	if v.IncompleteKind() != cue.StructKind {
		return nil, d.shapeError(v, path, "expected a struct, got %s", v.IncompleteKind())
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, cueError(ErrCodeBuild, err)
	}
	var out []field
	for iter.Next() {
		sel := iter.Selector()
		name := sel.String()
		if sel.IsString() {
			name = sel.Unquoted()
		}
		out = append(out, field{name: name, path: append(slices.Clone(path), name), value: iter.Value()})
	}
	slices.SortStableFunc(out, func(a, b field) int {
		return cmp.Compare(d.ix.label(a.path).Start, d.ix.label(b.path).Start)
	})
	return out, nil
}

func (d *decoder) list(v cue.Value, path []string) ([]field, error) {
	if v.IncompleteKind() != cue.ListKind {
		return nil, d.shapeError(v, path, "expected a list, got %s", v.IncompleteKind())
	}
	iter, err := v.List()
	if err != nil {
		return nil, cueError(ErrCodeBuild, err)
	}
	var out []field
	for i := 0; iter.Next(); i++ {
		p := append(slices.Clone(path), fmt.Sprint(i))
		out = append(out, field{path: p, value: iter.Value()})
	}
	return out, nil
}

func (d *decoder) str(v cue.Value, path []string) (string, error) {
	s, err := v.String()
	if err != nil {
		return "", d.shapeError(v, path, "expected a string")
	}
	return s, nil
}

// optString reads the string field name of v, or "" when it is absent.
func (d *decoder) optString(v cue.Value, path []string, names ...string) (string, []string, error) {
	for _, name := range names {
		f, ok := d.lookup(v, name)
		if !ok {
			continue
		}
		p := append(slices.Clone(path), name)
		s, err := d.str(f, p)
		return s, p, err
	}
	return "", nil, nil
}

func (d *decoder) ident(path []string, name string) ast.Ident {
	return ast.Ident{Name: name, Span: d.ix.label(path)}
}

// declSpan covers a field from its label to the end of its value.
func (d *decoder) declSpan(path []string) ast.Span {
	return ast.Span{Start: d.ix.label(path).Start, End: d.ix.value(path).End}
}

func (d *decoder) file(v cue.Value) (*ast.File, error) {
	f := &ast.File{Path: d.path, Span: ast.Span{Start: 0, End: len(d.src)}}
	var err error

	if f.Workflow, _, err = d.optString(v, nil, "workflow", "name"); err != nil {
		return nil, err
	}
	if on, ok := d.lookup(v, "on"); ok {
		if f.Triggers, err = d.triggers(on, []string{"on"}); err != nil {
			return nil, err
		}
	}
	if perms, ok := d.lookup(v, "permissions"); ok {
		fs, err := d.fields(perms, []string{"permissions"})
		if err != nil {
			return nil, err
		}
		for _, p := range fs {
			level, err := d.str(p.value, p.path)
			if err != nil {
				return nil, err
			}
			f.Permissions = append(f.Permissions, ast.Permission{Scope: p.name, Level: level, Span: d.declSpan(p.path)})
		}
	}
	if conc, ok := d.lookup(v, "concurrency"); ok {
		if f.Concurrency, err = d.concurrency(conc, []string{"concurrency"}); err != nil {
			return nil, err
		}
	}
	if imps, ok := d.lookup(v, "imports"); ok {
		if f.Imports, err = d.imports(imps, []string{"imports"}); err != nil {
			return nil, err
		}
	}
	if types, ok := d.lookup(v, "types"); ok {
		fs, err := d.fields(types, []string{"types"})
		if err != nil {
			return nil, err
		}
		for _, t := range fs {
			expr, err := d.typeExpr(t.value, t.path)
			if err != nil {
				return nil, err
			}
			f.Types = append(f.Types, &ast.TypeDecl{Name: d.ident(t.path, t.name), Type: expr, Span: d.declSpan(t.path)})
		}
	}
	if tmpls, ok := d.lookup(v, "templates"); ok {
		fs, err := d.fields(tmpls, []string{"templates"})
		if err != nil {
			return nil, err
		}
		for _, t := range fs {
			tmpl, err := d.template(t)
			if err != nil {
				return nil, err
			}
			f.Templates = append(f.Templates, tmpl)
		}
	}
	if f.Decls, err = d.decls(v, nil); err != nil {
		return nil, err
	}
	return f, nil
}

// triggers accepts a single event name, a list of names, or a struct whose
// labels are the events.
func (d *decoder) triggers(v cue.Value, path []string) ([]ast.Ident, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		s, err := d.str(v, path)
		if err != nil {
			return nil, err
		}
		return []ast.Ident{{Name: s, Span: d.ix.value(path)}}, nil
	case cue.ListKind:
		items, err := d.list(v, path)
		if err != nil {
			return nil, err
		}
		out := make([]ast.Ident, 0, len(items))
		for _, it := range items {
			s, err := d.str(it.value, it.path)
			if err != nil {
				return nil, err
			}
			out = append(out, ast.Ident{Name: s, Span: d.ix.value(it.path)})
		}
		return out, nil
	case cue.StructKind:
		fs, err := d.fields(v, path)
		if err != nil {
			return nil, err
		}
		out := make([]ast.Ident, 0, len(fs))
		for _, e := range fs {
			out = append(out, d.ident(e.path, e.name))
		}
		return out, nil
	default:
		return nil, d.shapeError(v, path, "expected an event name, list or struct")
	}
}

func (d *decoder) concurrency(v cue.Value, path []string) (*ast.ConcurrencyDecl, error) {
	c := &ast.ConcurrencyDecl{Span: d.declSpan(path)}
	if v.IncompleteKind() == cue.StringKind {
		s, err := d.str(v, path)
		c.Group = s
		return c, err
	}
	group, _, err := d.optString(v, path, "group")
	if err != nil {
		return nil, err
	}
	c.Group = group
	for _, name := range []string{"cancel-in-progress", "cancel_in_progress"} {
		if b, ok := d.lookup(v, name); ok {
			if c.CancelInProgress, err = b.Bool(); err != nil {
				return nil, d.shapeError(b, append(slices.Clone(path), name), "expected a bool")
			}
		}
	}
	return c, nil
}

func (d *decoder) imports(v cue.Value, path []string) ([]*ast.Import, error) {
	items, err := d.list(v, path)
	if err != nil {
		return nil, err
	}
	var out []*ast.Import
	for _, it := range items {
		from, fromPath, err := d.optString(it.value, it.path, "from")
		if err != nil {
			return nil, err
		}
		if fromPath == nil {
			return nil, d.shapeError(it.value, it.path, "import needs a from path")
		}
		imp := &ast.Import{From: from, FromSpan: d.ix.value(fromPath), Span: d.ix.value(it.path)}
		names, ok := d.lookup(it.value, "names")
		if !ok {
			return nil, d.shapeError(it.value, it.path, "import needs a names list")
		}
		namesPath := append(slices.Clone(it.path), "names")
		entries, err := d.list(names, namesPath)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			s, err := d.str(e.value, e.path)
			if err != nil {
				return nil, err
			}
			name, alias, _ := strings.Cut(s, " as ")
			imp.Names = append(imp.Names, ast.ImportName{
				Name:  strings.TrimSpace(name),
				Alias: strings.TrimSpace(alias),
				Span:  d.ix.value(e.path),
			})
		}
		out = append(out, imp)
	}
	return out, nil
}

// typeExpr decodes a type written as a mini-grammar string or as a struct
// of field types.
func (d *decoder) typeExpr(v cue.Value, path []string) (ast.TypeExpr, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		s, err := d.str(v, path)
		if err != nil {
			return nil, err
		}
		t, err := parseType(s, d.ix.value(path))
		if err != nil {
			return nil, d.shapeError(v, path, "%v", err)
		}
		return t, nil
	case cue.StructKind:
		fs, err := d.fields(v, path)
		if err != nil {
			return nil, err
		}
		obj := &ast.ObjectType{Span: d.ix.value(path)}
		for _, e := range fs {
			ft, err := d.typeExpr(e.value, e.path)
			if err != nil {
				return nil, err
			}
			obj.Fields = append(obj.Fields, ast.Field{Name: e.name, Type: ft})
		}
		return obj, nil
	default:
		return nil, d.shapeError(v, path, "expected a type string or struct")
	}
}

// outputs decodes `name: <type>` and `name: {type: <type>, value: "..."}`.
func (d *decoder) outputs(v cue.Value, path []string) ([]*ast.OutputDecl, []ast.OutputRef, error) {
	fs, err := d.fields(v, path)
	if err != nil {
		return nil, nil, err
	}
	var (
		decls []*ast.OutputDecl
		refs  []ast.OutputRef
	)
	for _, e := range fs {
		od := &ast.OutputDecl{Name: d.ident(e.path, e.name), Span: d.declSpan(e.path)}
		typeVal, typePath := e.value, e.path
		if isOutputDecl(e.value) {
			typeVal, _ = d.lookup(e.value, "type")
			typePath = append(slices.Clone(e.path), "type")
			val, valPath, err := d.optString(e.value, e.path, "value")
			if err != nil {
				return nil, nil, err
			}
			if valPath != nil {
				od.Value = val
				refs = append(refs, scanRefs(d.src, d.ix.value(valPath))...)
			}
		}
		if od.Type, err = d.typeExpr(typeVal, typePath); err != nil {
			return nil, nil, err
		}
		decls = append(decls, od)
	}
	return decls, refs, nil
}

// isOutputDecl reports whether v is the long output form: a struct with a
// type field and nothing besides type and value.
func isOutputDecl(v cue.Value) bool {
	if v.IncompleteKind() != cue.StructKind {
		return false
	}
	if !v.LookupPath(cue.MakePath(cue.Str("type"))).Exists() {
		return false
	}
	iter, err := v.Fields()
	if err != nil {
		return false
	}
	for iter.Next() {
		switch iter.Selector().Unquoted() {
		case "type", "value":
		default:
			return false
		}
	}
	return true
}

// kvs decodes a struct of strings into ordered pairs, collecting output
// references written in the values.
func (d *decoder) kvs(v cue.Value, path []string) ([]ast.KV, []ast.OutputRef, error) {
	fs, err := d.fields(v, path)
	if err != nil {
		return nil, nil, err
	}
	var (
		out  []ast.KV
		refs []ast.OutputRef
	)
	for _, e := range fs {
		s, err := d.scalar(e.value, e.path)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, ast.KV{Key: e.name, Value: s})
		refs = append(refs, scanRefs(d.src, d.ix.value(e.path))...)
	}
	return out, refs, nil
}

// scalar renders a string, number or bool as text.
func (d *decoder) scalar(v cue.Value, path []string) (string, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		return d.str(v, path)
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return "", d.shapeError(v, path, "expected a bool")
		}
		return fmt.Sprint(b), nil
	case cue.IntKind, cue.FloatKind, cue.NumberKind:
		syn := d.ix.value(path)
		if validSpan(d.src, syn) && syn.End > syn.Start {
			return string(d.src[syn.Start:syn.End]), nil
		}
		f, err := v.Float64()
		if err != nil {
			return "", d.shapeError(v, path, "expected a number")
		}
		return fmt.Sprint(f), nil
	default:
		return "", d.shapeError(v, path, "expected a scalar value")
	}
}

func (d *decoder) steps(v cue.Value, path []string) ([]*ast.Step, []ast.OutputRef, []ast.Comparison, error) {
	items, err := d.list(v, path)
	if err != nil {
		return nil, nil, nil, err
	}
	var (
		steps []*ast.Step
		refs  []ast.OutputRef
		cmps  []ast.Comparison
	)
	for _, it := range items {
		s := &ast.Step{Span: d.ix.value(it.path)}
		for _, sf := range []struct {
			name string
			dst  *string
		}{
			{"name", &s.Name},
			{"id", &s.ID},
			{"if", &s.If},
			{"uses", &s.Uses},
			{"run", &s.Run},
		} {
			val, p, err := d.optString(it.value, it.path, sf.name)
			if err != nil {
				return nil, nil, nil, err
			}
			if p == nil {
				continue
			}
			*sf.dst = val
			span := d.ix.value(p)
			refs = append(refs, scanRefs(d.src, span)...)
			if sf.name == "if" {
				cmps = append(cmps, scanComparisons(d.src, span)...)
			}
		}
		for _, kv := range []struct {
			name string
			dst  *[]ast.KV
		}{
			{"with", &s.With},
			{"env", &s.Env},
		} {
			f, ok := d.lookup(it.value, kv.name)
			if !ok {
				continue
			}
			pairs, rs, err := d.kvs(f, append(slices.Clone(it.path), kv.name))
			if err != nil {
				return nil, nil, nil, err
			}
			*kv.dst = pairs
			refs = append(refs, rs...)
		}
		steps = append(steps, s)
	}
	return steps, refs, cmps, nil
}

func (d *decoder) template(e field) (*ast.Template, error) {
	t := &ast.Template{Name: d.ident(e.path, e.name), Span: d.declSpan(e.path)}
	var err error
	if t.RunsOn, _, err = d.optString(e.value, e.path, "runs-on", "runs_on"); err != nil {
		return nil, err
	}
	if env, ok := d.lookup(e.value, "env"); ok {
		var refs []ast.OutputRef
		if t.Env, refs, err = d.kvs(env, append(slices.Clone(e.path), "env")); err != nil {
			return nil, err
		}
		t.Refs = append(t.Refs, refs...)
	}
	if steps, ok := d.lookup(e.value, "steps"); ok {
		var refs []ast.OutputRef
		if t.Steps, refs, t.Comparisons, err = d.steps(steps, append(slices.Clone(e.path), "steps")); err != nil {
			return nil, err
		}
		t.Refs = append(t.Refs, refs...)
	}
	if outs, ok := d.lookup(e.value, "outputs"); ok {
		var refs []ast.OutputRef
		if t.Outputs, refs, err = d.outputs(outs, append(slices.Clone(e.path), "outputs")); err != nil {
			return nil, err
		}
		t.Refs = append(t.Refs, refs...)
	}
	return t, nil
}

// decls decodes the jobs, agents and cycles of a file or cycle body and
// returns them in source order.
func (d *decoder) decls(v cue.Value, path []string) ([]ast.Decl, error) {
	var out []ast.Decl
	for _, group := range []string{"jobs", "agents", "cycles"} {
		g, ok := d.lookup(v, group)
		if !ok {
			continue
		}
		fs, err := d.fields(g, append(slices.Clone(path), group))
		if err != nil {
			return nil, err
		}
		for _, e := range fs {
			var decl ast.Decl
			switch group {
			case "jobs":
				decl, err = d.job(e, ast.KindJob)
			case "agents":
				decl, err = d.job(e, ast.KindAgent)
			case "cycles":
				decl, err = d.cycle(e)
			}
			if err != nil {
				return nil, err
			}
			out = append(out, decl)
		}
	}
	slices.SortStableFunc(out, func(a, b ast.Decl) int {
		return cmp.Compare(a.DeclName().Span.Start, b.DeclName().Span.Start)
	})
	return out, nil
}

func (d *decoder) job(e field, kind ast.JobKind) (*ast.Job, error) {
	if e.value.IncompleteKind() != cue.StructKind {
		return nil, d.shapeError(e.value, e.path, "expected a struct")
	}
	j := &ast.Job{Kind: kind, Name: d.ident(e.path, e.name), Span: d.declSpan(e.path)}
	var err error

	if needs, ok := d.lookup(e.value, "needs"); ok {
		p := append(slices.Clone(e.path), "needs")
		if needs.IncompleteKind() == cue.StringKind {
			s, err := d.str(needs, p)
			if err != nil {
				return nil, err
			}
			j.Needs = []ast.Ident{{Name: s, Span: d.ix.value(p)}}
		} else {
			items, err := d.list(needs, p)
			if err != nil {
				return nil, err
			}
			for _, it := range items {
				s, err := d.str(it.value, it.path)
				if err != nil {
					return nil, err
				}
				j.Needs = append(j.Needs, ast.Ident{Name: s, Span: d.ix.value(it.path)})
			}
		}
	}
	if j.RunsOn, _, err = d.optString(e.value, e.path, "runs-on", "runs_on"); err != nil {
		return nil, err
	}
	cond, condPath, err := d.optString(e.value, e.path, "if")
	if err != nil {
		return nil, err
	}
	if condPath != nil {
		j.If = cond
		span := d.ix.value(condPath)
		j.Refs = append(j.Refs, scanRefs(d.src, span)...)
		j.Comparisons = append(j.Comparisons, scanComparisons(d.src, span)...)
	}
	uses, usesPath, err := d.optString(e.value, e.path, "uses")
	if err != nil {
		return nil, err
	}
	if usesPath != nil {
		j.Uses = &ast.Ident{Name: uses, Span: d.ix.value(usesPath)}
	}
	prompt, promptPath, err := d.optString(e.value, e.path, "prompt")
	if err != nil {
		return nil, err
	}
	if promptPath != nil {
		if kind != ast.KindAgent {
			return nil, d.shapeError(e.value, e.path, "prompt is only valid on agents")
		}
		j.Prompt = prompt
		j.Refs = append(j.Refs, scanRefs(d.src, d.ix.value(promptPath))...)
	}
	if env, ok := d.lookup(e.value, "env"); ok {
		var refs []ast.OutputRef
		if j.Env, refs, err = d.kvs(env, append(slices.Clone(e.path), "env")); err != nil {
			return nil, err
		}
		j.Refs = append(j.Refs, refs...)
	}
	if outs, ok := d.lookup(e.value, "outputs"); ok {
		var refs []ast.OutputRef
		if j.Outputs, refs, err = d.outputs(outs, append(slices.Clone(e.path), "outputs")); err != nil {
			return nil, err
		}
		j.Refs = append(j.Refs, refs...)
	}
	if steps, ok := d.lookup(e.value, "steps"); ok {
		var (
			refs []ast.OutputRef
			cmps []ast.Comparison
		)
		if j.Steps, refs, cmps, err = d.steps(steps, append(slices.Clone(e.path), "steps")); err != nil {
			return nil, err
		}
		j.Refs = append(j.Refs, refs...)
		j.Comparisons = append(j.Comparisons, cmps...)
	}
	slices.SortStableFunc(j.Refs, func(a, b ast.OutputRef) int { return cmp.Compare(a.Span.Start, b.Span.Start) })
	return j, nil
}

func (d *decoder) cycle(e field) (*ast.Cycle, error) {
	if e.value.IncompleteKind() != cue.StructKind {
		return nil, d.shapeError(e.value, e.path, "expected a struct")
	}
	c := &ast.Cycle{Name: d.ident(e.path, e.name), Span: d.declSpan(e.path)}
	for _, name := range []string{"max_iters", "max-iters"} {
		mi, ok := d.lookup(e.value, name)
		if !ok {
			continue
		}
		p := append(slices.Clone(e.path), name)
		n, err := mi.Int64()
		if err != nil {
			return nil, d.shapeError(mi, p, "expected an integer")
		}
		c.MaxIters = &ast.IntLit{Value: int(n), Span: d.ix.value(p)}
		break
	}
	for _, s := range []struct {
		name string
		dst  **ast.Script
	}{
		{"until", &c.Until},
		{"key", &c.Key},
	} {
		body, p, err := d.optString(e.value, e.path, s.name)
		if err != nil {
			return nil, err
		}
		if p != nil {
			*s.dst = &ast.Script{Body: body, Span: d.ix.value(p)}
		}
	}
	body, err := d.decls(e.value, e.path)
	if err != nil {
		return nil, err
	}
	c.Body = body
	return c, nil
}

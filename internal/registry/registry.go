// Package registry resolves the names of one file: units, their outputs,
// structural types and templates, plus the names the file imports.
//
// A Registry is owned by exactly one file compilation. Other files read it
// through Import, which copies what it needs; nothing is shared live.
package registry

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cameron5906/workpipe/internal/ast"
	"github.com/cameron5906/workpipe/internal/diag"
	"github.com/cameron5906/workpipe/internal/graph"
)

// Unit is a registered job or cycle.
type Unit struct {
	Name    string
	Span    ast.Span
	Decl    ast.Decl
	Outputs []OutputDef
	Cycle   string // enclosing cycle for body members, "" at top level
}

// OutputDef is a resolved output declaration.
type OutputDef struct {
	Name string
	Type TypeID
	Decl *ast.OutputDecl
}

// TypeDef is a named structural type.
type TypeDef struct {
	Name     string
	Span     ast.Span
	Root     TypeID
	Local    bool // declared in this file, and therefore exportable
	Unusable bool // rejected as directly self-referential; reads as json
}

// Template is a registered job template with its outputs resolved.
type Template struct {
	Name    string
	Span    ast.Span
	Decl    *ast.Template
	Outputs []OutputDef
	Local   bool
}

// Binding is one name brought in by an import statement.
type Binding struct {
	Local string
	Name  string
	From  string
	Span  ast.Span
}

// Registry holds every name visible in one file.
type Registry struct {
	arena *Arena

	units     map[string]*Unit
	unitOrder []string
	reserved  map[string]string // generated phase name → owning cycle

	types     map[string]*TypeDef
	typeOrder []string

	templates     map[string]*Template
	templateOrder []string

	bindings []Binding
	used     map[string]bool
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		arena:     NewArena(),
		units:     make(map[string]*Unit),
		reserved:  make(map[string]string),
		types:     make(map[string]*TypeDef),
		templates: make(map[string]*Template),
		used:      make(map[string]bool),
	}
}

// Arena exposes the registry's type arena.
func (r *Registry) Arena() *Arena {
	return r.arena
}

// Reserve claims a generated unit name for cycle. User units registered
// under a reserved name collide with it.
func (r *Registry) Reserve(name, cycle string) {
	if _, ok := r.reserved[name]; !ok {
		r.reserved[name] = cycle
	}
}

// Reserved returns the cycle a generated name belongs to.
func (r *Registry) Reserved(name string) (string, bool) {
	c, ok := r.reserved[name]
	return c, ok
}

// RegisterUnit adds u. A second unit with the same name is rejected with
// E101 and the first stays resolvable.
func (r *Registry) RegisterUnit(u Unit) *diag.Diagnostic {
	if prev, ok := r.units[u.Name]; ok {
		return &diag.Diagnostic{
			Code:     diag.ErrDuplicateUnit,
			Severity: diag.SeverityError,
			Message:  fmt.Sprintf("duplicate unit name %q", u.Name),
			Span:     u.Span,
			Related:  []diag.Related{{Span: prev.Span, Message: "first declared here"}},
		}
	}
	if cycle, ok := r.reserved[u.Name]; ok {
		return &diag.Diagnostic{
			Code:     diag.ErrDuplicateUnit,
			Severity: diag.SeverityError,
			Message:  fmt.Sprintf("unit name %q collides with a unit generated for cycle %q", u.Name, cycle),
			Span:     u.Span,
			Hint:     "rename the unit; names of the form <cycle>_hydrate, <cycle>_body_<unit>, <cycle>_decide and <cycle>_dispatch are reserved",
		}
	}
	uu := u
	r.units[u.Name] = &uu
	r.unitOrder = append(r.unitOrder, u.Name)
	return nil
}

// ResolveUnit looks up a registered unit.
func (r *Registry) ResolveUnit(name string) (*Unit, bool) {
	u, ok := r.units[name]
	return u, ok
}

// Units returns the registered units in registration order.
func (r *Registry) Units() []*Unit {
	out := make([]*Unit, 0, len(r.unitOrder))
	for _, n := range r.unitOrder {
		out = append(out, r.units[n])
	}
	return out
}

// DeclareOutputs interns the types of decls, rejecting repeated names with
// E106. The first declaration of a name wins.
func (r *Registry) DeclareOutputs(unit string, decls []*ast.OutputDecl, c *diag.Collector) []OutputDef {
	out := make([]OutputDef, 0, len(decls))
	seen := make(map[string]ast.Span, len(decls))
	for _, d := range decls {
		if first, dup := seen[d.Name.Name]; dup {
			c.Record(diag.ErrDuplicateOutput, diag.SeverityError,
				fmt.Sprintf("duplicate output %q in unit %q", d.Name.Name, unit),
				d.Name.Span, diag.WithRelated(first, "first declared here"))
			continue
		}
		seen[d.Name.Name] = d.Name.Span
		out = append(out, OutputDef{Name: d.Name.Name, Type: r.arena.intern(d.Type, ""), Decl: d})
	}
	return out
}

// ResolveOutput finds output on unit.
func (r *Registry) ResolveOutput(unit, output string) (OutputDef, bool) {
	u, ok := r.units[unit]
	if !ok {
		return OutputDef{}, false
	}
	for _, o := range u.Outputs {
		if o.Name == output {
			return o, true
		}
	}
	return OutputDef{}, false
}

// OutputNames returns the outputs of unit, sorted.
func (r *Registry) OutputNames(unit string) []string {
	u, ok := r.units[unit]
	if !ok {
		return nil
	}
	names := make([]string, len(u.Outputs))
	for i, o := range u.Outputs {
		names[i] = o.Name
	}
	slices.Sort(names)
	return names
}

// RegisterType adds a named type. A duplicate name is rejected with E102.
func (r *Registry) RegisterType(decl *ast.TypeDecl) *diag.Diagnostic {
	name := decl.Name.Name
	if prev, ok := r.types[name]; ok {
		return &diag.Diagnostic{
			Code:     diag.ErrDuplicateType,
			Severity: diag.SeverityError,
			Message:  fmt.Sprintf("duplicate type name %q", name),
			Span:     decl.Name.Span,
			Related:  []diag.Related{{Span: prev.Span, Message: "first declared here"}},
		}
	}
	if ast.IsPrimitive(name) {
		return &diag.Diagnostic{
			Code:     diag.ErrDuplicateType,
			Severity: diag.SeverityError,
			Message:  fmt.Sprintf("type name %q shadows a built-in type", name),
			Span:     decl.Name.Span,
		}
	}
	r.addType(&TypeDef{
		Name:  name,
		Span:  decl.Name.Span,
		Root:  r.arena.intern(decl.Type, name),
		Local: true,
	})
	return nil
}

func (r *Registry) addType(td *TypeDef) {
	r.types[td.Name] = td
	r.typeOrder = append(r.typeOrder, td.Name)
}

// ResolveType looks up a named type.
func (r *Registry) ResolveType(name string) (*TypeDef, bool) {
	td, ok := r.types[name]
	return td, ok
}

// Intern converts a type expression outside any type declaration, such as
// an output type, into the arena. Call Link afterwards.
func (r *Registry) Intern(expr ast.TypeExpr) TypeID {
	return r.arena.intern(expr, "")
}

// RegisterTemplate adds a template. A duplicate name is rejected with E109.
func (r *Registry) RegisterTemplate(decl *ast.Template, c *diag.Collector) *diag.Diagnostic {
	name := decl.Name.Name
	if prev, ok := r.templates[name]; ok {
		return &diag.Diagnostic{
			Code:     diag.ErrDuplicateTemplate,
			Severity: diag.SeverityError,
			Message:  fmt.Sprintf("duplicate template name %q", name),
			Span:     decl.Name.Span,
			Related:  []diag.Related{{Span: prev.Span, Message: "first declared here"}},
		}
	}
	r.addTemplate(&Template{
		Name:    name,
		Span:    decl.Name.Span,
		Decl:    decl,
		Outputs: r.DeclareOutputs(name, decl.Outputs, c),
		Local:   true,
	})
	return nil
}

func (r *Registry) addTemplate(t *Template) {
	r.templates[t.Name] = t
	r.templateOrder = append(r.templateOrder, t.Name)
}

// ResolveTemplate looks up a template and marks it used.
func (r *Registry) ResolveTemplate(name string) (*Template, bool) {
	t, ok := r.templates[name]
	if ok {
		r.used[name] = true
	}
	return t, ok
}

// Link resolves every named reference interned so far. Unknown names are
// reported as E103 and read as json. Directly self-referential types are
// then reported as E202 and become unusable.
func (r *Registry) Link(c *diag.Collector) {
	for i := range r.arena.shapes {
		s := &r.arena.shapes[i]
		if s.Kind != ShapeRef || s.Target != NoType {
			continue
		}
		td, ok := r.types[s.Ref]
		if !ok {
			c.Errorf(diag.ErrUndefinedType, s.Span, "undefined type %q", s.Ref)
			s.Target = r.arena.Primitive("json")
			continue
		}
		if s.Owner != s.Ref {
			r.used[s.Ref] = true
		}
		s.Target = td.Root
	}
	r.checkSelfReference(c)
}

// checkSelfReference finds reference chains that loop back without passing
// through an object or array. Such a type has no finite shape.
func (r *Registry) checkSelfReference(c *diag.Collector) {
	g := graph.New[TypeID]()
	for i, s := range r.arena.shapes {
		id := TypeID(i)
		switch s.Kind {
		case ShapeRef:
			if s.Target != NoType {
				g.AddEdge(id, s.Target)
			}
		case ShapeUnion:
			for _, m := range s.Members {
				g.AddEdge(id, m)
			}
		}
	}

	bad := make(map[TypeID]bool)
	for _, scc := range graph.Cycles(g) {
		for _, id := range scc {
			bad[id] = true
		}
	}
	if len(bad) == 0 {
		return
	}

	json := r.arena.Primitive("json")
	for _, name := range r.typeOrder {
		td := r.types[name]
		if !bad[td.Root] {
			continue
		}
		c.Record(diag.ErrSelfReferentialType, diag.SeverityError,
			fmt.Sprintf("type %q refers to itself without an intervening object or array", name),
			td.Span, diag.WithHint("wrap the recursive reference in an object field or an array"))
		td.Unusable = true
		td.Root = json
	}
	for i := range r.arena.shapes {
		s := &r.arena.shapes[i]
		if s.Kind == ShapeRef && bad[TypeID(i)] {
			s.Target = json
		}
	}
}

// Exported reports whether name may be imported from this registry. Only
// local declarations are exported; imported names are not re-exported.
func (r *Registry) Exported(name string) bool {
	if td, ok := r.types[name]; ok && td.Local {
		return true
	}
	if t, ok := r.templates[name]; ok && t.Local {
		return true
	}
	return false
}

// Import binds name from another file's registry under local. Types are
// deep-copied into this arena. It returns E107 when from does not export
// name, or a duplicate-name finding when local is already taken.
func (r *Registry) Import(b Binding, from *Registry) *diag.Diagnostic {
	if !from.Exported(b.Name) {
		return &diag.Diagnostic{
			Code:     diag.ErrNotExported,
			Severity: diag.SeverityError,
			Message:  fmt.Sprintf("%q is not exported by %s", b.Name, b.From),
			Span:     b.Span,
			Hint:     exportHint(from),
		}
	}

	if td, ok := from.types[b.Name]; ok && td.Local {
		if _, dup := r.types[b.Local]; dup {
			return &diag.Diagnostic{
				Code:     diag.ErrDuplicateType,
				Severity: diag.SeverityError,
				Message:  fmt.Sprintf("imported type %q collides with an existing type", b.Local),
				Span:     b.Span,
			}
		}
		r.addType(&TypeDef{
			Name:     b.Local,
			Span:     b.Span,
			Root:     r.arena.copyFrom(from.arena, td.Root),
			Unusable: td.Unusable,
		})
		r.bindings = append(r.bindings, b)
		return nil
	}

	t := from.templates[b.Name]
	if _, dup := r.templates[b.Local]; dup {
		return &diag.Diagnostic{
			Code:     diag.ErrDuplicateTemplate,
			Severity: diag.SeverityError,
			Message:  fmt.Sprintf("imported template %q collides with an existing template", b.Local),
			Span:     b.Span,
		}
	}
	outs := make([]OutputDef, len(t.Outputs))
	for i, o := range t.Outputs {
		outs[i] = OutputDef{Name: o.Name, Type: r.arena.copyFrom(from.arena, o.Type), Decl: o.Decl}
	}
	r.addTemplate(&Template{Name: b.Local, Span: b.Span, Decl: t.Decl, Outputs: outs})
	r.bindings = append(r.bindings, b)
	return nil
}

func exportHint(from *Registry) string {
	var names []string
	for _, n := range from.typeOrder {
		if from.types[n].Local {
			names = append(names, n)
		}
	}
	for _, n := range from.templateOrder {
		if from.templates[n].Local {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return "the file exports nothing"
	}
	slices.Sort(names)
	return "exported names: [" + strings.Join(names, ", ") + "]"
}

// UnusedTypes returns local types never referenced from elsewhere in the
// file, excluding names in keep.
func (r *Registry) UnusedTypes(keep map[string]bool) []*TypeDef {
	var out []*TypeDef
	for _, n := range r.typeOrder {
		td := r.types[n]
		if td.Local && !r.used[n] && !keep[n] {
			out = append(out, td)
		}
	}
	return out
}

// UnusedImports returns bindings whose local name was never referenced.
func (r *Registry) UnusedImports() []Binding {
	var out []Binding
	for _, b := range r.bindings {
		if !r.used[b.Local] {
			out = append(out, b)
		}
	}
	return out
}

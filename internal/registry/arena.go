package registry

import (
	"fmt"

	"github.com/cameron5906/workpipe/internal/ast"
)

// TypeID addresses a shape in an Arena.
type TypeID int32

// NoType marks an unresolved reference.
const NoType TypeID = -1

// ShapeKind is the closed set of shape node kinds.
type ShapeKind uint8

const (
	ShapePrimitive ShapeKind = iota + 1
	ShapeLiteral
	ShapeObject
	ShapeArray
	ShapeUnion
	ShapeRef
)

func (k ShapeKind) String() string {
	switch k {
	case ShapePrimitive:
		return "primitive"
	case ShapeLiteral:
		return "literal"
	case ShapeObject:
		return "object"
	case ShapeArray:
		return "array"
	case ShapeUnion:
		return "union"
	case ShapeRef:
		return "ref"
	default:
		panic(fmt.Sprintf("registry: unknown shape kind %d", k))
	}
}

// Shape is one node of a type graph. Which fields are meaningful depends on
// Kind.
type Shape struct {
	Kind ShapeKind

	Prim    string       // ShapePrimitive
	Lit     ast.Literal  // ShapeLiteral
	Fields  []FieldShape // ShapeObject, in declaration order
	Elem    TypeID       // ShapeArray
	Members []TypeID     // ShapeUnion
	Ref     string       // ShapeRef: the name as written
	Target  TypeID       // ShapeRef: NoType until linked
	Span    ast.Span     // ShapeRef: where the name was written
	Owner   string       // ShapeRef: declaring type, "" outside type declarations
}

// FieldShape is one object member.
type FieldShape struct {
	Name string
	Type TypeID
}

// Arena stores every shape of one registry. Shapes are never removed, and a
// TypeID stays valid for the registry's lifetime.
type Arena struct {
	shapes []Shape
	prims  map[string]TypeID
}

// NewArena returns an arena with the primitive types pre-interned.
func NewArena() *Arena {
	a := &Arena{prims: make(map[string]TypeID, len(ast.Primitives))}
	for _, p := range ast.Primitives {
		a.prims[p] = a.add(Shape{Kind: ShapePrimitive, Prim: p})
	}
	return a
}

func (a *Arena) add(s Shape) TypeID {
	a.shapes = append(a.shapes, s)
	return TypeID(len(a.shapes) - 1)
}

// At returns the shape stored at id.
func (a *Arena) At(id TypeID) *Shape {
	return &a.shapes[id]
}

// Len returns the number of shapes.
func (a *Arena) Len() int {
	return len(a.shapes)
}

// Primitive returns the interned id of a scalar type. It panics on an
// unknown name.
func (a *Arena) Primitive(name string) TypeID {
	id, ok := a.prims[name]
	if !ok {
		panic(fmt.Sprintf("registry: unknown primitive %q", name))
	}
	return id
}

// Literal adds a literal shape.
func (a *Arena) Literal(l ast.Literal) TypeID {
	return a.add(Shape{Kind: ShapeLiteral, Lit: l})
}

// intern converts a type expression into arena shapes. Named types become
// unlinked ShapeRef nodes; owner is the declaring type name, if any.
func (a *Arena) intern(expr ast.TypeExpr, owner string) TypeID {
	switch e := expr.(type) {
	case nil:
		return a.Primitive("json")
	case *ast.PrimitiveType:
		return a.Primitive(e.Name)
	case *ast.NamedType:
		if ast.IsPrimitive(e.Name) {
			return a.Primitive(e.Name)
		}
		return a.add(Shape{Kind: ShapeRef, Ref: e.Name, Target: NoType, Span: e.Span, Owner: owner})
	case *ast.LiteralType:
		return a.Literal(e.Literal)
	case *ast.ArrayType:
		elem := a.intern(e.Elem, owner)
		return a.add(Shape{Kind: ShapeArray, Elem: elem})
	case *ast.ObjectType:
		fields := make([]FieldShape, 0, len(e.Fields))
		for _, f := range e.Fields {
			fields = append(fields, FieldShape{Name: f.Name, Type: a.intern(f.Type, owner)})
		}
		return a.add(Shape{Kind: ShapeObject, Fields: fields})
	case *ast.UnionType:
		members := make([]TypeID, 0, len(e.Members))
		for _, m := range e.Members {
			members = append(members, a.intern(m, owner))
		}
		return a.add(Shape{Kind: ShapeUnion, Members: members})
	default:
		panic(fmt.Sprintf("registry: unknown type expression %T", expr))
	}
}

// deref follows linked references until it reaches a non-ref shape. An
// unlinked reference reads as json.
func (a *Arena) deref(id TypeID) TypeID {
	for hops := 0; a.shapes[id].Kind == ShapeRef; hops++ {
		t := a.shapes[id].Target
		if t == NoType || hops > len(a.shapes) {
			return a.Primitive("json")
		}
		id = t
	}
	return id
}

// copyFrom deep-copies the shape graph reachable from root in src into a,
// returning the new root. References are copied already linked, so the
// copy never depends on names visible in a.
func (a *Arena) copyFrom(src *Arena, root TypeID) TypeID {
	mapping := make(map[TypeID]TypeID)
	var order []TypeID
	work := []TypeID{root}
	for len(work) > 0 {
		id := work[len(work)-1]
		work = work[:len(work)-1]
		if _, seen := mapping[id]; seen {
			continue
		}
		s := src.shapes[id]
		if s.Kind == ShapePrimitive {
			mapping[id] = a.Primitive(s.Prim)
			continue
		}
		mapping[id] = a.add(Shape{})
		order = append(order, id)
		switch s.Kind {
		case ShapeObject:
			for _, f := range s.Fields {
				work = append(work, f.Type)
			}
		case ShapeArray:
			work = append(work, s.Elem)
		case ShapeUnion:
			work = append(work, s.Members...)
		case ShapeRef:
			if s.Target != NoType {
				work = append(work, s.Target)
			}
		}
	}

	for _, id := range order {
		s := src.shapes[id]
		dst := Shape{Kind: s.Kind, Lit: s.Lit, Ref: s.Ref, Span: s.Span, Owner: s.Owner, Target: NoType}
		switch s.Kind {
		case ShapeObject:
			dst.Fields = make([]FieldShape, len(s.Fields))
			for i, f := range s.Fields {
				dst.Fields[i] = FieldShape{Name: f.Name, Type: mapping[f.Type]}
			}
		case ShapeArray:
			dst.Elem = mapping[s.Elem]
		case ShapeUnion:
			dst.Members = make([]TypeID, len(s.Members))
			for i, m := range s.Members {
				dst.Members[i] = mapping[m]
			}
		case ShapeRef:
			dst.Target = a.Primitive("json")
			if s.Target != NoType {
				dst.Target = mapping[s.Target]
			}
		}
		a.shapes[mapping[id]] = dst
	}
	return mapping[root]
}

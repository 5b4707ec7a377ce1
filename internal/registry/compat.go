package registry

import (
	"fmt"
	"maps"
	"strconv"
	"strings"

	"github.com/cameron5906/workpipe/internal/ast"
)

type pair struct{ a, b TypeID }

// matchMode selects between strict structural equality and the widened
// relation used when two values meet in a comparison.
type matchMode uint8

const (
	modeEqual matchMode = iota + 1
	modeComparable
)

// TypesCompatible reports whether a and b are structurally equal.
//
// Primitives match by tag and literals by kind and value. Objects match
// when both carry the same field names, in any order, with compatible
// field types. Arrays match on their element types. A union matches when
// every member on each side has a compatible counterpart on the other.
func (r *Registry) TypesCompatible(a, b TypeID) bool {
	return r.arena.match(a, b, modeEqual, make(map[pair]bool))
}

// Comparable reports whether values of a and b may meet in a binary
// comparison. It is TypesCompatible with widening: a literal compares as
// its primitive, int and float compare with each other, path compares with
// string, and json compares with anything.
func (r *Registry) Comparable(a, b TypeID) bool {
	return r.arena.match(a, b, modeComparable, make(map[pair]bool))
}

// match walks a worklist of type pairs. A pair already in assume is taken as
// matching, which is what lets recursive shapes compare without unbounded
// work: the walk only fails on a concrete mismatch.
func (a *Arena) match(x, y TypeID, mode matchMode, assume map[pair]bool) bool {
	work := []pair{{x, y}}
	for len(work) > 0 {
		p := work[len(work)-1]
		work = work[:len(work)-1]

		l, r := a.deref(p.a), a.deref(p.b)
		if mode == modeComparable {
			l, r = a.widen(l), a.widen(r)
		}
		if l == r || assume[pair{l, r}] {
			continue
		}
		assume[pair{l, r}] = true

		ls, rs := &a.shapes[l], &a.shapes[r]
		if mode == modeComparable && (isJSON(ls) || isJSON(rs)) {
			continue
		}
		if ls.Kind == ShapeUnion || rs.Kind == ShapeUnion {
			if !a.unionMatch(a.members(l), a.members(r), mode, assume) {
				return false
			}
			continue
		}
		if ls.Kind != rs.Kind {
			return false
		}

		switch ls.Kind {
		case ShapePrimitive:
			if primClass(ls.Prim, mode) != primClass(rs.Prim, mode) {
				return false
			}
		case ShapeLiteral:
			if ls.Lit != rs.Lit {
				return false
			}
		case ShapeArray:
			work = append(work, pair{ls.Elem, rs.Elem})
		case ShapeObject:
			if len(ls.Fields) != len(rs.Fields) {
				return false
			}
			for _, f := range ls.Fields {
				other, ok := field(rs, f.Name)
				if !ok {
					return false
				}
				work = append(work, pair{f.Type, other})
			}
		case ShapeRef:
			panic("registry: deref returned a ref")
		default:
			panic(fmt.Sprintf("registry: unknown shape kind %d", ls.Kind))
		}
	}
	return true
}

// unionMatch checks that each member on one side has a counterpart on the
// other. Each candidate is tried on its own worklist with a copy of the
// assumptions, so a failed candidate leaves nothing behind.
func (a *Arena) unionMatch(ls, rs []TypeID, mode matchMode, assume map[pair]bool) bool {
	covered := func(from, to []TypeID, flip bool) bool {
		for _, m := range from {
			found := false
			for _, n := range to {
				x, y := m, n
				if flip {
					x, y = n, m
				}
				if a.match(x, y, mode, maps.Clone(assume)) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	}
	return covered(ls, rs, false) && covered(rs, ls, true)
}

// members flattens nested unions reachable from id. A non-union is its own
// only member.
func (a *Arena) members(id TypeID) []TypeID {
	var out []TypeID
	seen := make(map[TypeID]bool)
	work := []TypeID{id}
	for len(work) > 0 {
		t := a.deref(work[0])
		work = work[1:]
		if seen[t] {
			continue
		}
		seen[t] = true
		if s := &a.shapes[t]; s.Kind == ShapeUnion {
			work = append(work, s.Members...)
			continue
		}
		out = append(out, t)
	}
	return out
}

// widen maps a literal to its primitive.
func (a *Arena) widen(id TypeID) TypeID {
	s := &a.shapes[id]
	if s.Kind != ShapeLiteral {
		return id
	}
	switch s.Lit.Kind {
	case ast.LitString:
		return a.Primitive("string")
	case ast.LitInt:
		return a.Primitive("int")
	case ast.LitFloat:
		return a.Primitive("float")
	case ast.LitBool:
		return a.Primitive("bool")
	default:
		panic(fmt.Sprintf("registry: unknown literal kind %d", s.Lit.Kind))
	}
}

func primClass(name string, mode matchMode) string {
	if mode != modeComparable {
		return name
	}
	switch name {
	case "int", "float":
		return "number"
	case "path":
		return "string"
	}
	return name
}

func isJSON(s *Shape) bool {
	return s.Kind == ShapePrimitive && s.Prim == "json"
}

func field(s *Shape, name string) (TypeID, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	return NoType, false
}

// TypeString renders id for messages. Named references print their name
// and are not expanded.
func (r *Registry) TypeString(id TypeID) string {
	var b strings.Builder
	r.arena.write(&b, id)
	return b.String()
}

func (a *Arena) write(b *strings.Builder, id TypeID) {
	s := &a.shapes[id]
	switch s.Kind {
	case ShapePrimitive:
		b.WriteString(s.Prim)
	case ShapeLiteral:
		if s.Lit.Kind == ast.LitString {
			b.WriteString(strconv.Quote(s.Lit.Value))
		} else {
			b.WriteString(s.Lit.Value)
		}
	case ShapeRef:
		b.WriteString(s.Ref)
	case ShapeArray:
		b.WriteString("[]")
		a.write(b, s.Elem)
	case ShapeUnion:
		for i, m := range s.Members {
			if i > 0 {
				b.WriteString(" | ")
			}
			a.write(b, m)
		}
	case ShapeObject:
		b.WriteString("{")
		for i, f := range s.Fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(f.Name)
			b.WriteString(": ")
			a.write(b, f.Type)
		}
		b.WriteString("}")
	default:
		panic(fmt.Sprintf("registry: unknown shape kind %d", s.Kind))
	}
}

package ast

// TypeExpr is a sealed sum of type expression nodes.
type TypeExpr interface {
	typeExpr()
	TypeSpan() Span
}

// PrimitiveType names one of the scalar types:
// string, int, float, bool, json, path.
type PrimitiveType struct {
	Name string `json:"name"`
	Span Span   `json:"span"`
}

// NamedType refers to a TypeDecl by name (local or imported).
type NamedType struct {
	Name string `json:"name"`
	Span Span   `json:"span"`
}

// ObjectType is a record of named fields.
type ObjectType struct {
	Fields []Field `json:"fields"`
	Span   Span    `json:"span"`
}

// Field is one member of an ObjectType.
type Field struct {
	Name string   `json:"name"`
	Type TypeExpr `json:"type"`
}

// ArrayType is a homogeneous list.
type ArrayType struct {
	Elem TypeExpr `json:"elem"`
	Span Span     `json:"span"`
}

// UnionType accepts any of its members.
type UnionType struct {
	Members []TypeExpr `json:"members"`
	Span    Span       `json:"span"`
}

// LiteralType admits exactly one value.
type LiteralType struct {
	Literal Literal `json:"literal"`
	Span    Span    `json:"span"`
}

func (*PrimitiveType) typeExpr() {}
func (*NamedType) typeExpr()     {}
func (*ObjectType) typeExpr()    {}
func (*ArrayType) typeExpr()     {}
func (*UnionType) typeExpr()     {}
func (*LiteralType) typeExpr()   {}

func (t *PrimitiveType) TypeSpan() Span { return t.Span }
func (t *NamedType) TypeSpan() Span     { return t.Span }
func (t *ObjectType) TypeSpan() Span    { return t.Span }
func (t *ArrayType) TypeSpan() Span     { return t.Span }
func (t *UnionType) TypeSpan() Span     { return t.Span }
func (t *LiteralType) TypeSpan() Span   { return t.Span }

// Primitives lists the scalar type names in declaration order.
var Primitives = []string{"string", "int", "float", "bool", "json", "path"}

// IsPrimitive reports whether name is a scalar type keyword.
func IsPrimitive(name string) bool {
	for _, p := range Primitives {
		if p == name {
			return true
		}
	}
	return false
}

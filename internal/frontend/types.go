package frontend

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cameron5906/workpipe/internal/ast"
)

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// parseType reads the type mini-grammar used in string position:
//
//	T      = Member { "|" Member }
//	Member = "[]" Member | "(" T ")" | literal | identifier
//
// Literals are quoted strings, integers, floats, true and false. Every node
// gets span, the span of the whole string in the source.
func parseType(s string, span ast.Span) (ast.TypeExpr, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty type expression")
	}
	parts, err := splitUnion(s)
	if err != nil {
		return nil, err
	}
	if len(parts) == 1 {
		return parseMember(parts[0], span)
	}
	u := &ast.UnionType{Span: span}
	for _, p := range parts {
		m, err := parseMember(p, span)
		if err != nil {
			return nil, err
		}
		u.Members = append(u.Members, m)
	}
	return u, nil
}

// splitUnion splits s on "|" outside quotes and parentheses.
func splitUnion(s string) ([]string, error) {
	var parts []string
	depth, start := 0, 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced ) in type %q", s)
			}
		case c == '|' && depth == 0:
			parts = append(parts, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	if quote != 0 || depth != 0 {
		return nil, fmt.Errorf("unterminated type expression %q", s)
	}
	parts = append(parts, strings.TrimSpace(s[start:]))
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("empty union member in type %q", s)
		}
	}
	return parts, nil
}

func parseMember(s string, span ast.Span) (ast.TypeExpr, error) {
	switch {
	case strings.HasPrefix(s, "[]"):
		elem, err := parseMember(strings.TrimSpace(s[2:]), span)
		if err != nil {
			return nil, err
		}
		return &ast.ArrayType{Elem: elem, Span: span}, nil
	case strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")"):
		return parseType(s[1:len(s)-1], span)
	case strings.HasPrefix(s, `"`):
		v, err := strconv.Unquote(s)
		if err != nil {
			return nil, fmt.Errorf("invalid string literal %s in type", s)
		}
		return &ast.LiteralType{Literal: ast.Literal{Kind: ast.LitString, Value: v}, Span: span}, nil
	case strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'") && len(s) >= 2:
		return &ast.LiteralType{Literal: ast.Literal{Kind: ast.LitString, Value: s[1 : len(s)-1]}, Span: span}, nil
	case s == "true" || s == "false":
		return &ast.LiteralType{Literal: ast.Literal{Kind: ast.LitBool, Value: s}, Span: span}, nil
	}
	if lit, ok := numberLiteral(s); ok {
		return &ast.LiteralType{Literal: lit, Span: span}, nil
	}
	if !identRE.MatchString(s) {
		return nil, fmt.Errorf("invalid type %q", s)
	}
	if ast.IsPrimitive(s) {
		return &ast.PrimitiveType{Name: s, Span: span}, nil
	}
	return &ast.NamedType{Name: s, Span: span}, nil
}

func numberLiteral(s string) (ast.Literal, bool) {
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ast.Literal{Kind: ast.LitInt, Value: s}, true
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil && strings.ContainsAny(s, ".eE") {
		return ast.Literal{Kind: ast.LitFloat, Value: s}, true
	}
	return ast.Literal{}, false
}

package schema

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxExpressionLen = 256
	maxDepth         = 8
)

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokIdent
	tokLBracket
	tokRBracket
	tokComma
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of expression"
	case tokLBracket:
		return `"["`
	case tokRBracket:
		return `"]"`
	case tokComma:
		return `","`
	}
	return fmt.Sprintf("%q", t.text)
}

// TypeError describes why an expression was rejected. It wraps
// ErrInvalidType.
type TypeError struct {
	Expression string
	Pos        int
	Msg        string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("invalid type expression %q at offset %d: %s", e.Expression, e.Pos, e.Msg)
}

func (e *TypeError) Unwrap() error {
	return ErrInvalidType
}

type constructor uint8

const (
	ctorList constructor = iota + 1
	ctorOptional
	ctorUnion
)

var scalarNames = map[string]*Type{
	"int":     typeInteger,
	"integer": typeInteger,
	"str":     typeString,
	"string":  typeString,
	"float":   typeFloat,
	"number":  typeFloat,
	"bool":    typeBoolean,
	"boolean": typeBoolean,
}

var constructorNames = map[string]constructor{
	"List":     ctorList,
	"list":     ctorList,
	"Optional": ctorOptional,
	"Union":    ctorUnion,
}

func lex(expr string) ([]token, error) {
	var toks []token
	for i := 0; i < len(expr); {
		r, size := utf8.DecodeRuneInString(expr[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
		case r == '[':
			toks = append(toks, token{kind: tokLBracket, pos: i})
			i += size
		case r == ']':
			toks = append(toks, token{kind: tokRBracket, pos: i})
			i += size
		case r == ',':
			toks = append(toks, token{kind: tokComma, pos: i})
			i += size
		case r < utf8.RuneSelf && (r == '_' || unicode.IsLetter(r)):
			start := i
			for i < len(expr) {
				c := expr[i]
				if c == '_' || c == '.' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') {
					i++
					continue
				}
				break
			}
			toks = append(toks, token{kind: tokIdent, text: expr[start:i], pos: start})
		default:
			return nil, &TypeError{Expression: expr, Pos: i, Msg: fmt.Sprintf("unexpected character %q", r)}
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(expr)}), nil
}

type parser struct {
	expr  string
	toks  []token
	pos   int
	depth int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) fail(t token, format string, args ...any) error {
	return &TypeError{Expression: p.expr, Pos: t.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.next()
	if t.kind != kind {
		return t, p.fail(t, "expected %s, found %s", what, t)
	}
	return t, nil
}

func (p *parser) parseType(inUnion bool) (*Type, error) {
	t := p.next()
	if t.kind != tokIdent {
		return nil, p.fail(t, "expected a type name, found %s", t)
	}

	name := strings.TrimPrefix(t.text, "typing.")

	if inUnion && (name == "None" || name == "NoneType") {
		return typeNull, nil
	}

	if s, ok := scalarNames[name]; ok {
		return s, nil
	}

	ctor, ok := constructorNames[name]
	if !ok {
		return nil, p.fail(t, "unknown type %q", t.text)
	}

	if ctor == ctorList && p.peek().kind != tokLBracket {
		return ListOf(nil), nil
	}

	p.depth++
	if p.depth > maxDepth {
		return nil, p.fail(t, "nesting deeper than %d levels", maxDepth)
	}
	defer func() { p.depth-- }()

	if _, err := p.expect(tokLBracket, `"["`); err != nil {
		return nil, err
	}

	var result *Type
	switch ctor {
	case ctorList:
		elem, err := p.parseType(false)
		if err != nil {
			return nil, err
		}
		result = ListOf(elem)
	case ctorOptional:
		elem, err := p.parseType(false)
		if err != nil {
			return nil, err
		}
		result = Optional(elem)
	case ctorUnion:
		var members []*Type
		for {
			m, err := p.parseType(true)
			if err != nil {
				return nil, err
			}
			members = append(members, m)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
		result = UnionOf(members...)
		if result.Kind == KindNull {
			return nil, p.fail(t, "union has no member other than None")
		}
	}

	if _, err := p.expect(tokRBracket, `"]"`); err != nil {
		return nil, err
	}
	return result, nil
}

// ParseType resolves a type expression such as "int", "List[str]" or
// "Union[int, str]". Only the names in the closed grammar are recognised;
// the expression is never evaluated.
func ParseType(expr string) (*Type, error) {
	if len(expr) > maxExpressionLen {
		return nil, &TypeError{Expression: expr[:maxExpressionLen] + "...", Pos: maxExpressionLen, Msg: "expression too long"}
	}
	if strings.TrimSpace(expr) == "" {
		return nil, &TypeError{Expression: expr, Msg: "empty type expression"}
	}

	toks, err := lex(expr)
	if err != nil {
		return nil, err
	}

	p := &parser{expr: expr, toks: toks}
	t, err := p.parseType(false)
	if err != nil {
		return nil, err
	}

	if rest := p.peek(); rest.kind != tokEOF {
		return nil, p.fail(rest, "unexpected %s after type", rest)
	}
	return t, nil
}

// Package typeparse parses the annotation type language into interned
// types: unions, nullable types, T[] lists, array<K,V>, array shapes,
// class-string<T>, Generator<K,V,S,R> and parameterised class names.
package typeparse

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"gencheck/internal/types"
)

// Error is a syntax error at a byte offset of the normalised input.
type Error struct {
	Offset int
	Msg    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("at offset %d: %s", e.Offset, e.Msg)
}

// Scope resolves names that denote template parameters visible at the
// annotation.
type Scope interface {
	LookupParam(name string) (types.TypeID, bool)
}

// Params is a Scope over a name -> param map.
type Params map[string]types.TypeID

func (p Params) LookupParam(name string) (types.TypeID, bool) {
	id, ok := p[name]
	return id, ok
}

// Chain looks names up in each scope in order.
type Chain []Scope

func (c Chain) LookupParam(name string) (types.TypeID, bool) {
	for _, s := range c {
		if s == nil {
			continue
		}
		if id, ok := s.LookupParam(name); ok {
			return id, true
		}
	}
	return types.NoTypeID, false
}

// Parse parses src. Names not found in scope become nominal types with any
// leading namespace separator removed.
func Parse(in *types.Interner, src string, scope Scope) (types.TypeID, error) {
	src = norm.NFC.String(strings.TrimSpace(src))
	if src == "" {
		return types.NoTypeID, &Error{Offset: 0, Msg: "empty type expression"}
	}
	toks, err := tokenize(src)
	if err != nil {
		return types.NoTypeID, err
	}
	p := &parser{in: in, toks: toks, scope: scope}
	id, err := p.parseType()
	if err != nil {
		return types.NoTypeID, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return types.NoTypeID, p.errorf(tok, "unexpected %s after type", tok.kind)
	}
	return id, nil
}

// MustParse is Parse for tests and built-in tables; it panics on error.
func MustParse(in *types.Interner, src string, scope Scope) types.TypeID {
	id, err := Parse(in, src, scope)
	if err != nil {
		panic(fmt.Sprintf("typeparse: %q: %v", src, err))
	}
	return id
}

type parser struct {
	in    *types.Interner
	toks  []token
	pos   int
	scope Scope
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) peekAt(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) next() token {
	tok := p.toks[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) accept(kind tokenKind) bool {
	if p.peek().kind == kind {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expect(kind tokenKind) (token, error) {
	tok := p.peek()
	if tok.kind != kind {
		return tok, p.errorf(tok, "expected %s, found %s", kind, tok.kind)
	}
	return p.next(), nil
}

func (p *parser) errorf(tok token, format string, args ...any) error {
	return &Error{Offset: tok.off, Msg: fmt.Sprintf(format, args...)}
}

// type := postfix ('|' postfix)*
func (p *parser) parseType() (types.TypeID, error) {
	first, err := p.parsePostfix()
	if err != nil {
		return types.NoTypeID, err
	}
	members := []types.TypeID{first}
	for p.accept(tokPipe) {
		next, err := p.parsePostfix()
		if err != nil {
			return types.NoTypeID, err
		}
		members = append(members, next)
	}
	if len(members) == 1 {
		return first, nil
	}
	return p.in.Union(members...), nil
}

// postfix := primary ('[' ']')*
func (p *parser) parsePostfix() (types.TypeID, error) {
	id, err := p.parsePrimary()
	if err != nil {
		return types.NoTypeID, err
	}
	for p.peek().kind == tokLBracket {
		p.next()
		if _, err := p.expect(tokRBracket); err != nil {
			return types.NoTypeID, err
		}
		id = p.in.Array(types.NoTypeID, id)
	}
	return id, nil
}

func (p *parser) parsePrimary() (types.TypeID, error) {
	tok := p.peek()
	switch tok.kind {
	case tokLParen:
		p.next()
		id, err := p.parseType()
		if err != nil {
			return types.NoTypeID, err
		}
		if _, err := p.expect(tokRParen); err != nil {
			return types.NoTypeID, err
		}
		return id, nil
	case tokQuestion:
		p.next()
		id, err := p.parsePrimary()
		if err != nil {
			return types.NoTypeID, err
		}
		return p.in.Union(id, p.in.Builtins().Null), nil
	case tokIdent:
		p.next()
		return p.parseNamed(tok)
	}
	return types.NoTypeID, p.errorf(tok, "expected type, found %s", tok.kind)
}

func (p *parser) parseNamed(tok token) (types.TypeID, error) {
	name := strings.TrimPrefix(tok.text, `\`)
	b := p.in.Builtins()
	switch strings.ToLower(name) {
	case "mixed":
		return b.Mixed, nil
	case "int", "integer":
		return b.Int, nil
	case "string":
		return b.String, nil
	case "bool", "boolean", "true", "false":
		return b.Bool, nil
	case "float", "double":
		return b.Float, nil
	case "null":
		return b.Null, nil
	case "void":
		return b.Void, nil
	case "object":
		return b.Object, nil
	case "array-key":
		return b.ArrayKey, nil
	case "array", "non-empty-array":
		return p.parseArray(tok)
	case "list", "non-empty-list":
		args, err := p.parseArgs(tok, 1, 1)
		if err != nil {
			return types.NoTypeID, err
		}
		if args == nil {
			return p.in.Array(b.Int, types.NoTypeID), nil
		}
		return p.in.Array(b.Int, args[0]), nil
	case "class-string":
		args, err := p.parseArgs(tok, 0, 1)
		if err != nil {
			return types.NoTypeID, err
		}
		if args == nil {
			return p.in.Builtins().AnyClass, nil
		}
		return p.in.ClassRef(args[0]), nil
	case "generator":
		args, err := p.parseArgs(tok, 0, 4)
		if err != nil {
			return types.NoTypeID, err
		}
		return p.sequence(args), nil
	}
	if p.scope != nil {
		if id, ok := p.scope.LookupParam(name); ok {
			if p.peek().kind == tokLAngle {
				return types.NoTypeID, p.errorf(p.peek(), "template parameter %s cannot take type arguments", name)
			}
			return id, nil
		}
	}
	args, err := p.parseArgs(tok, 0, -1)
	if err != nil {
		return types.NoTypeID, err
	}
	return p.in.Generic(p.in.Nominal(name), args...), nil
}

// sequence maps Generator<V>, Generator<K, V>, Generator<K, V, S> and
// Generator<K, V, S, R> onto the four slots; absent slots are mixed.
func (p *parser) sequence(args []types.TypeID) types.TypeID {
	slots := make([]types.TypeID, 4)
	switch len(args) {
	case 1:
		slots[types.SeqValue] = args[0]
	default:
		copy(slots, args)
	}
	return p.in.Sequence(slots[types.SeqKey], slots[types.SeqValue], slots[types.SeqSend], slots[types.SeqReturn])
}

func (p *parser) parseArray(tok token) (types.TypeID, error) {
	if p.peek().kind == tokLBrace {
		return p.parseShape()
	}
	args, err := p.parseArgs(tok, 1, 2)
	if err != nil {
		return types.NoTypeID, err
	}
	switch len(args) {
	case 0:
		return p.in.Builtins().AnyArray, nil
	case 1:
		return p.in.Array(types.NoTypeID, args[0]), nil
	default:
		return p.in.Array(args[0], args[1]), nil
	}
}

// parseArgs parses an optional '<' args '>' list. A nil result means no list
// was present. max < 0 means unlimited.
func (p *parser) parseArgs(owner token, minArgs, maxArgs int) ([]types.TypeID, error) {
	if p.peek().kind != tokLAngle {
		return nil, nil
	}
	open := p.next()
	var args []types.TypeID
	for {
		arg, err := p.parseType()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if !p.accept(tokComma) {
			break
		}
	}
	if _, err := p.expect(tokRAngle); err != nil {
		return nil, err
	}
	if len(args) < minArgs || maxArgs >= 0 && len(args) > maxArgs {
		return nil, p.errorf(open, "%s takes %s type arguments, got %d", owner.text, arity(minArgs, maxArgs), len(args))
	}
	return args, nil
}

func arity(lo, hi int) string {
	if lo == hi {
		return strconv.Itoa(lo)
	}
	if hi < 0 {
		return "at least " + strconv.Itoa(lo)
	}
	return fmt.Sprintf("%d to %d", lo, hi)
}

// shape := '{' [field (',' field)* [',']] '}'
// field := [key ['?'] ':'] type
func (p *parser) parseShape() (types.TypeID, error) {
	if _, err := p.expect(tokLBrace); err != nil {
		return types.NoTypeID, err
	}
	var fields []types.ShapeField
	seen := make(map[string]bool)
	next := 0
	for p.peek().kind != tokRBrace {
		field := types.ShapeField{}
		if p.isShapeKey() {
			keyTok := p.next()
			field.Key = keyTok.text
			field.Optional = p.accept(tokQuestion)
			if _, err := p.expect(tokColon); err != nil {
				return types.NoTypeID, err
			}
			if n, err := strconv.Atoi(field.Key); err == nil && n >= next {
				next = n + 1
			}
		} else {
			field.Key = strconv.Itoa(next)
			next++
		}
		if seen[field.Key] {
			return types.NoTypeID, p.errorf(p.peek(), "duplicate shape key %q", field.Key)
		}
		seen[field.Key] = true
		ft, err := p.parseType()
		if err != nil {
			return types.NoTypeID, err
		}
		field.Type = ft
		fields = append(fields, field)
		if !p.accept(tokComma) {
			break
		}
	}
	if _, err := p.expect(tokRBrace); err != nil {
		return types.NoTypeID, err
	}
	return p.in.Shape(fields), nil
}

func (p *parser) isShapeKey() bool {
	switch p.peek().kind {
	case tokIdent, tokInt, tokString:
	default:
		return false
	}
	after := p.peekAt(1)
	if after.kind == tokColon {
		return true
	}
	return after.kind == tokQuestion && p.peekAt(2).kind == tokColon
}

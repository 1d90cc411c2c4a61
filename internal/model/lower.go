package model

import (
	"fmt"
	"strings"

	"fortio.org/safecast"

	"gencheck/internal/diag"
	"gencheck/internal/docblock"
	"gencheck/internal/sema"
	"gencheck/internal/source"
	"gencheck/internal/symbols"
	"gencheck/internal/typeparse"
	"gencheck/internal/types"
)

// Unit is a lowered program, ready for registration and checking.
// Declarations and instantiations keep file order.
type Unit struct {
	Decls []symbols.Declaration
	Insts []symbols.Instantiation
	Flows []sema.Flow
}

// Lower converts p into registry and checker values, interning types in in.
// Malformed type expressions and docblock tags are reported to r and the
// affected annotation is left out; lowering never stops early.
func Lower(p *Program, in *types.Interner, r diag.Reporter) *Unit {
	if r == nil {
		r = diag.NopReporter{}
	}
	l := &lowerer{
		prog:   p,
		in:     in,
		rep:    r,
		scopes: make(map[string]typeparse.Scope),
		unit:   &Unit{},
	}
	for i := range p.Declarations {
		l.decl(&p.Declarations[i])
	}
	for i := range p.Flows {
		l.unit.Flows = append(l.unit.Flows, l.flow(i, &p.Flows[i]))
	}
	return l.unit
}

type lowerer struct {
	prog *Program
	in   *types.Interner
	rep  diag.Reporter
	// scopes holds the template scope of every function, class and
	// "Class::method", for flows running inside them.
	scopes map[string]typeparse.Scope
	unit   *Unit
}

func (l *lowerer) pos(line, col int) source.Pos {
	p := source.Pos{File: l.prog.Path}
	if v, err := safecast.Conv[uint32](line); err == nil {
		p.Line = v
	}
	if v, err := safecast.Conv[uint32](col); err == nil {
		p.Col = v
	}
	return p
}

func (l *lowerer) docPos(m Mark, tag docblock.Tag) source.Pos {
	if m.DocLine == 0 {
		return l.pos(m.Line, m.Column)
	}
	return l.pos(m.DocLine+tag.Line, 0)
}

// doc parses a docblock and reports malformed tags.
func (l *lowerer) doc(text string, m Mark) docblock.Doc {
	if strings.TrimSpace(text) == "" {
		return docblock.Doc{}
	}
	doc, errs := docblock.Parse(text)
	for _, err := range errs {
		var line int
		if e, ok := err.(*docblock.Error); ok {
			line = e.Line
		}
		diag.ReportError(l.rep, diag.SynBadDocTag, l.docPos(m, docblock.Tag{Line: line}), err.Error()).Emit()
	}
	return doc
}

// typ parses an annotation; "self" and "static" name the enclosing class.
func (l *lowerer) typ(src string, scope typeparse.Scope, self string, at source.Pos) types.TypeID {
	src = strings.TrimSpace(src)
	if src == "" {
		return types.NoTypeID
	}
	if self != "" && (src == "self" || src == "static" || src == "$this") {
		return l.in.Nominal(self)
	}
	id, err := typeparse.Parse(l.in, src, scope)
	if err != nil {
		diag.ReportError(l.rep, diag.SynBadTypeExpr, at, fmt.Sprintf("invalid type %q: %v", src, err)).Emit()
		return types.NoTypeID
	}
	return id
}

// templates registers the structured template parameters of owner followed
// by docblock ones not already declared. Bounds see earlier parameters and
// outer.
func (l *lowerer) templates(owner string, specs []TemplateSpec, doc docblock.Doc, m Mark, outer typeparse.Scope) ([]symbols.TemplateParam, typeparse.Params) {
	type pending struct {
		name, bound string
		at          source.Pos
	}
	var all []pending
	seen := map[string]bool{}
	for _, s := range specs {
		all = append(all, pending{s.Name, s.Of, l.pos(s.Line, s.Column)})
		seen[s.Name] = true
	}
	for _, tag := range doc.Templates() {
		if seen[tag.Name] {
			continue
		}
		seen[tag.Name] = true
		all = append(all, pending{tag.Name, tag.Type, l.docPos(m, tag)})
	}
	own := typeparse.Params{}
	scope := typeparse.Chain{own}
	if outer != nil {
		scope = append(scope, outer)
	}
	out := make([]symbols.TemplateParam, 0, len(all))
	for i, p := range all {
		id := l.in.RegisterTypeParam(owner, p.name, i)
		own[p.name] = id
		out = append(out, symbols.TemplateParam{
			Name:  p.name,
			Type:  id,
			Bound: l.typ(p.bound, scope, "", p.at),
			Loc:   p.at,
		})
	}
	return out, own
}

func (l *lowerer) decl(d *Decl) {
	kind, _ := symbols.ParseDeclKind(d.Kind)
	name := strings.TrimPrefix(d.Name, `\`)
	at := l.pos(d.Line, d.Column)
	doc := l.doc(d.Doc, d.Mark)
	tps, own := l.templates(name, d.Templates, doc, d.Mark, nil)
	l.scopes[name] = own

	out := symbols.Declaration{Name: name, Kind: kind, TypeParams: tps, Loc: at}
	self := ""
	if kind != symbols.DeclFunction {
		self = name
	}

	rel := symbols.RelExtends
	if kind == symbols.DeclClass {
		for _, s := range d.Extends {
			out.Supertypes = append(out.Supertypes, l.supertype(name, s, symbols.RelExtends, own, at))
		}
		rel = symbols.RelImplements
		for _, s := range d.Implements {
			out.Supertypes = append(out.Supertypes, l.supertype(name, s, rel, own, at))
		}
	} else {
		for _, s := range append(append([]string(nil), d.Extends...), d.Implements...) {
			out.Supertypes = append(out.Supertypes, l.supertype(name, s, rel, own, at))
		}
	}
	for _, ref := range d.Implement {
		l.instantiation(name, ref.Type, symbols.RelImplements, own, l.pos(ref.Line, ref.Column))
	}
	for _, ref := range d.Extend {
		l.instantiation(name, ref.Type, symbols.RelExtends, own, l.pos(ref.Line, ref.Column))
	}
	for _, tag := range doc.Implements() {
		l.instantiation(name, tag.Type, symbols.RelImplements, own, l.docPos(d.Mark, tag))
	}
	for _, tag := range doc.Extends() {
		l.instantiation(name, tag.Type, symbols.RelExtends, own, l.docPos(d.Mark, tag))
	}

	if kind == symbols.DeclFunction {
		out.Signature = l.signature(name, d.Params, d.Return, d.NativeReturn, doc, d.Mark, own, "")
	}
	for _, m := range d.Methods {
		out.Members = append(out.Members, l.method(name, m, own))
	}
	for _, p := range d.Properties {
		pdoc := l.doc(p.Doc, p.Mark)
		ptype := p.Type
		if v, ok := pdoc.Var(); ok && ptype == "" {
			ptype = v.Type
		}
		pat := l.pos(p.Line, p.Column)
		out.Members = append(out.Members, symbols.Member{
			Name:   strings.TrimPrefix(p.Name, "$"),
			Kind:   symbols.MemberProperty,
			Type:   l.typ(ptype, own, self, pat),
			Native: l.typ(p.Native, nil, self, pat),
			Loc:    pat,
		})
	}
	l.unit.Decls = append(l.unit.Decls, out)
}

// supertype returns the name written in an extends or implements list. A
// written argument list also declares the instantiation.
func (l *lowerer) supertype(subject, src string, rel symbols.InstRelation, scope typeparse.Scope, at source.Pos) string {
	base, _, generic := strings.Cut(src, "<")
	base = strings.TrimPrefix(strings.TrimSpace(base), `\`)
	if generic {
		l.instantiation(subject, src, rel, scope, at)
	}
	return base
}

func (l *lowerer) instantiation(subject, src string, rel symbols.InstRelation, scope typeparse.Scope, at source.Pos) {
	id := l.typ(src, scope, "", at)
	if id == types.NoTypeID {
		return
	}
	tt := l.in.MustLookup(id)
	inst := symbols.Instantiation{Subject: subject, Relation: rel, Loc: at}
	switch tt.Kind {
	case types.KindGeneric:
		inst.Target = l.in.MustLookup(tt.Base).Name
		inst.Args = tt.Args
	case types.KindNominal:
		inst.Target = tt.Name
	default:
		diag.ReportError(l.rep, diag.SynBadTypeExpr, at, fmt.Sprintf("%s target must be a class or interface, got %s", rel, l.in.Format(id))).Emit()
		return
	}
	l.unit.Insts = append(l.unit.Insts, inst)
}

func (l *lowerer) method(class string, m MethodSpec, classScope typeparse.Params) symbols.Member {
	owner := symbols.MethodOwner(class, m.Name)
	doc := l.doc(m.Doc, m.Mark)
	tps, own := l.templates(owner, m.Templates, doc, m.Mark, classScope)
	scope := typeparse.Chain{own, classScope}
	l.scopes[owner] = scope
	return symbols.Member{
		Name:       m.Name,
		Kind:       symbols.MemberMethod,
		TypeParams: tps,
		Signature:  l.signature(owner, m.Params, m.Return, m.NativeReturn, doc, m.Mark, scope, class),
		Loc:        l.pos(m.Line, m.Column),
	}
}

// signature lowers parameters and result; docblock @param and @return fill
// annotations the structured form leaves empty.
func (l *lowerer) signature(owner string, params []ParamSpec, ret, nativeRet string, doc docblock.Doc, m Mark, scope typeparse.Scope, self string) symbols.Signature {
	var sig symbols.Signature
	names := map[string]bool{}
	for _, p := range params {
		name := strings.TrimPrefix(p.Name, "$")
		names[name] = true
		at := l.pos(p.Line, p.Column)
		annotated, variadic := p.Type, p.Variadic
		if tag, ok := doc.Param(name); ok && annotated == "" {
			annotated = tag.Type
			at = l.docPos(m, tag)
			variadic = variadic || tag.Variadic
		}
		sig.Params = append(sig.Params, symbols.Param{
			Name:     name,
			Type:     l.typ(annotated, scope, self, at),
			Native:   l.typ(p.Native, nil, self, l.pos(p.Line, p.Column)),
			Optional: p.Optional,
			Variadic: variadic,
			Loc:      l.pos(p.Line, p.Column),
		})
	}
	for _, tag := range doc.Tags {
		if tag.Kind == docblock.TagParam && !names[tag.Name] {
			diag.ReportError(l.rep, diag.SynBadDocTag, l.docPos(m, tag),
				fmt.Sprintf("@param $%s does not match any parameter of %s", tag.Name, owner)).Emit()
		}
	}
	at := l.pos(m.Line, m.Column)
	if tag, ok := doc.Return(); ok && ret == "" {
		ret, at = tag.Type, l.docPos(m, tag)
	}
	sig.Result = l.typ(ret, scope, self, at)
	sig.NativeResult = l.typ(nativeRet, nil, self, l.pos(m.Line, m.Column))
	sig.Loc = l.pos(m.Line, m.Column)
	return sig
}

func (l *lowerer) flow(i int, f *FlowSpec) sema.Flow {
	name := f.Name
	if name == "" {
		name = fmt.Sprintf("flow#%d", i+1)
	}
	within := strings.TrimPrefix(f.Within, `\`)
	scope := l.scopes[within]
	out := sema.Flow{Name: name, Within: within, Loc: l.pos(f.Line, f.Column)}
	for j := range f.Sites {
		out.Sites = append(out.Sites, l.site(&f.Sites[j], scope))
	}
	return out
}

func (l *lowerer) site(s *SiteSpec, scope typeparse.Scope) sema.Site {
	at := l.pos(s.Line, s.Column)
	out := sema.Site{Loc: at, Bind: s.Bind, Expect: s.Expect, KeyVar: s.Key, ValueVar: s.As}
	declared := s.Var
	if doc := l.doc(s.Doc, s.Mark); declared == "" {
		if v, ok := doc.Var(); ok {
			declared = v.Type
			if out.Bind == "" && s.Assign == "" {
				out.Bind = v.Name
			}
		}
	}
	out.Declared = l.typ(declared, scope, "", at)
	switch {
	case s.Call != "":
		out.Kind, out.Callee = sema.SiteCall, s.Call
	case s.New != "":
		out.Kind, out.Callee = sema.SiteNew, s.New
	case s.Method != "":
		out.Kind, out.Callee = sema.SiteMethod, s.Method
	case s.Get != "":
		out.Kind, out.Callee = sema.SiteGet, strings.TrimPrefix(s.Get, "$")
	case s.Set != "":
		out.Kind, out.Callee = sema.SiteSet, strings.TrimPrefix(s.Set, "$")
	case s.Iterate != nil:
		out.Kind, out.Receiver = sema.SiteIterate, l.operand(s.Iterate, scope)
	case s.Send != nil:
		out.Kind, out.Receiver = sema.SiteSend, l.operand(s.Send, scope)
	case s.GetReturn != nil:
		out.Kind, out.Receiver = sema.SiteGetReturn, l.operand(s.GetReturn, scope)
	case s.Assign != "":
		out.Kind, out.Bind = sema.SiteAssign, s.Assign
	case s.Return != nil:
		out.Kind, out.Value = sema.SiteReturn, l.operand(s.Return, scope)
	case s.Yield != nil:
		out.Kind, out.Value = sema.SiteYield, l.operand(s.Yield, scope)
		if s.YieldKey != nil {
			out.Key = l.operand(s.YieldKey, scope)
		}
	}
	out.Callee = strings.TrimPrefix(out.Callee, `\`)
	if s.On != nil {
		out.Receiver = l.operand(s.On, scope)
	}
	if s.Value != nil {
		out.Value = l.operand(s.Value, scope)
	}
	for i := range s.Args {
		out.Args = append(out.Args, l.operand(&s.Args[i], scope))
	}
	return out
}

func (l *lowerer) operand(op *Operand, scope typeparse.Scope) sema.Operand {
	switch {
	case op.Site != nil:
		nested := l.site(op.Site, scope)
		return sema.SiteOperand(&nested)
	case op.Var != "":
		return sema.VarOperand(op.Var)
	default:
		return sema.TypeOperand(l.typ(op.Type, scope, "", l.pos(op.Line, op.Column)))
	}
}

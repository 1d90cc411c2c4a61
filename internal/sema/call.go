package sema

import (
	"fmt"

	"gencheck/internal/diag"
	"gencheck/internal/solver"
	"gencheck/internal/symbols"
	"gencheck/internal/types"
)

// callable is a function, method or constructor prepared for one call.
// infer lists the template parameters this call may bind; keepUnbound
// leaves parameters nothing binds out of the returned substitution instead
// of erasing them to their bounds.
type callable struct {
	name        string
	params      []symbols.Param
	result      types.TypeID
	infer       []symbols.TemplateParam
	keepUnbound bool
}

func (cl callable) paramAt(i int) (symbols.Param, bool) {
	if i < len(cl.params) {
		return cl.params[i], true
	}
	if n := len(cl.params); n > 0 && cl.params[n-1].Variadic {
		return cl.params[n-1], true
	}
	return symbols.Param{}, false
}

func effectiveParams(ps []symbols.Param) []symbols.Param {
	out := make([]symbols.Param, len(ps))
	for i, p := range ps {
		out[i] = p
		out[i].Type = p.Effective()
	}
	return out
}

func (c *checker) call(s *Site) types.TypeID {
	args := c.operands(s.Args, s)
	d, ok := c.tab.Lookup(s.Callee)
	if !ok || d.Kind != symbols.DeclFunction {
		c.errorf(diag.SemaUnknownSymbol, s.Loc, "unknown function %s", s.Callee).Emit()
		return types.NoTypeID
	}
	out, _ := c.invoke(callable{
		name:   d.Name,
		params: effectiveParams(d.Signature.Params),
		result: d.Signature.EffectiveResult(),
		infer:  d.TypeParams,
	}, nil, args, s)
	return out
}

// construct types "new C(args)". With a target of class C the receiver is
// known and only the constructor's own parameters are inferred; otherwise
// C's parameters are inferred from the constructor arguments and any left
// unbound are reported and become unresolved placeholders.
func (c *checker) construct(s *Site, target types.TypeID) types.TypeID {
	args := c.operands(s.Args, s)
	d, ok := c.tab.Lookup(s.Callee)
	if !ok || !d.IsClassLike() {
		c.errorf(diag.SemaUnknownType, s.Loc, "unknown type %s", s.Callee).Emit()
		return types.NoTypeID
	}
	if s.Declared != types.NoTypeID {
		c.tab.CheckType(s.Declared, s.Loc, c.rep)
		target = s.Declared
	}
	self := c.in.Nominal(d.Name)
	ctor, hasCtor := c.tab.LookupMember(d.Name, symbols.Constructor, symbols.MemberMethod)
	cl := callable{name: "new " + d.Name, params: ctor.Params, infer: ctor.TypeParams}

	if len(d.TypeParams) == 0 {
		if hasCtor {
			c.invoke(cl, c.receiverSubst(self), args, s)
		}
		return self
	}
	if name, _, ok := c.tab.ClassOf(target); ok && name == d.Name {
		pre := c.receiverSubst(target)
		if hasCtor {
			c.invoke(cl, pre, args, s)
		}
		targs := make([]types.TypeID, len(d.TypeParams))
		for i, tp := range d.TypeParams {
			targs[i] = pre[tp.Type]
		}
		return c.in.Generic(self, targs...)
	}

	bind := c.tab.ReceiverSubst(self)
	if hasCtor {
		cl.infer = append(append([]symbols.TemplateParam(nil), d.TypeParams...), ctor.TypeParams...)
		cl.keepUnbound = true
		_, bind = c.invoke(cl, bind, args, s)
	}
	targs := make([]types.TypeID, len(d.TypeParams))
	for i, tp := range d.TypeParams {
		if v, ok := bind[tp.Type]; ok {
			targs[i] = v
			continue
		}
		c.errorf(diag.SemaUnresolvedTemplate, s.Loc, "cannot resolve template %s of %s", tp.Name, d.Name).
			WithParam(tp.Name).
			WithNote(s.Loc, fmt.Sprintf("nothing binds %s; declare the type, e.g. @var %s<...>", tp.Name, d.Name)).
			Emit()
		targs[i] = c.in.Unresolved(d.Name, tp.Name)
	}
	return c.in.Generic(self, targs...)
}

func (c *checker) method(s *Site) types.TypeID {
	recv := c.operand(s.Receiver, s, types.NoTypeID)
	args := c.operands(s.Args, s)
	m, subst, ok := c.member(recv, s.Callee, symbols.MemberMethod, s)
	if !ok {
		return types.NoTypeID
	}
	out, _ := c.invoke(callable{
		name:   m.Owner.Name + "::" + m.Name,
		params: m.Params,
		result: m.Result,
		infer:  m.TypeParams,
	}, subst, args, s)
	return out
}

func (c *checker) getProperty(s *Site) types.TypeID {
	recv := c.operand(s.Receiver, s, types.NoTypeID)
	m, subst, ok := c.member(recv, s.Callee, symbols.MemberProperty, s)
	if !ok {
		return types.NoTypeID
	}
	return c.orMixed(c.in.Substitute(m.Type, subst))
}

func (c *checker) setProperty(s *Site) {
	recv := c.operand(s.Receiver, s, types.NoTypeID)
	value := c.operand(s.Value, s, types.NoTypeID)
	m, subst, ok := c.member(recv, s.Callee, symbols.MemberProperty, s)
	if !ok {
		return
	}
	c.expect(value, c.in.Substitute(m.Type, subst), fmt.Sprintf("property %s::$%s", m.Owner.Name, m.Name), s)
}

// member resolves name on the class of recv and returns the substitution
// the receiver carries. A mixed or unknown receiver is not reported.
func (c *checker) member(recv types.TypeID, name string, kind symbols.MemberKind, s *Site) (symbols.ResolvedMember, types.Subst, bool) {
	if recv == types.NoTypeID || c.in.Kind(recv) == types.KindMixed {
		return symbols.ResolvedMember{}, nil, false
	}
	if c.in.Kind(recv) == types.KindParam {
		recv = c.in.Bound(recv)
	}
	class, _, ok := c.tab.ClassOf(recv)
	if ok {
		ok = c.tab.IsClassLike(class)
	}
	if !ok {
		c.errorf(diag.SemaUnknownSymbol, s.Loc, "cannot access %s %s on %s", kind, name, c.in.Format(recv)).Emit()
		return symbols.ResolvedMember{}, nil, false
	}
	m, found := c.tab.LookupMember(class, name, kind)
	if !found {
		if kind == symbols.MemberProperty {
			c.errorf(diag.SemaUnknownSymbol, s.Loc, "unknown property %s::$%s", class, name).Emit()
		} else {
			c.errorf(diag.SemaUnknownSymbol, s.Loc, "unknown method %s::%s", class, name).Emit()
		}
		return symbols.ResolvedMember{}, nil, false
	}
	return m, c.receiverSubst(recv), true
}

// receiverSubst is the table's receiver substitution with parameters of
// the receiver's class and ancestors that nothing binds erased to their
// bounds, as for a raw "Queue" hint.
func (c *checker) receiverSubst(recv types.TypeID) types.Subst {
	subst := c.tab.ReceiverSubst(recv)
	if subst == nil {
		subst = types.Subst{}
	}
	class, _, ok := c.tab.ClassOf(recv)
	if !ok {
		return subst
	}
	for _, anc := range c.tab.Ancestors(class) {
		d, found := c.tab.Lookup(anc)
		if !found {
			continue
		}
		for _, tp := range d.TypeParams {
			if _, bound := subst[tp.Type]; !bound {
				subst[tp.Type] = c.in.Substitute(c.in.Bound(tp.Type), subst)
			}
		}
	}
	return subst
}

// invoke checks args against cl under pre, inferring cl.infer by
// unification. Every argument is checked; bound violations of inferred
// parameters are reported in declaration order and the offending parameter
// is erased to its bound. It returns the substituted result and the final
// substitution.
func (c *checker) invoke(cl callable, pre types.Subst, args []types.TypeID, s *Site) (types.TypeID, types.Subst) {
	c.checkArity(cl, len(args), s)
	bind := pre.Clone()
	u := &unifier{c: c, inferable: make(map[types.TypeID]bool, len(cl.infer)), bind: bind}
	for _, tp := range cl.infer {
		u.inferable[tp.Type] = true
		delete(bind, tp.Type)
	}
	for i, arg := range args {
		p, ok := cl.paramAt(i)
		if !ok || arg == types.NoTypeID || p.Type == types.NoTypeID {
			continue
		}
		want := c.in.Substitute(p.Type, pre)
		what := fmt.Sprintf("argument %d of %s", i+1, cl.name)
		if c.unresolved(want, arg, what, s) {
			continue
		}
		if !u.unify(want, arg, false) {
			c.mismatch(s, what, c.in.Substitute(want, u.bind), arg)
		}
	}
	bind = u.bind
	for _, tp := range cl.infer {
		got, ok := bind[tp.Type]
		if !ok {
			continue
		}
		if solver.Satisfies(c.rel, tp.Type, got, bind) {
			continue
		}
		bound := c.in.Substitute(c.in.Bound(tp.Type), bind)
		want, have := c.in.Format(bound), c.in.Format(got)
		c.errorf(diag.SemaBoundViolation, s.Loc, "type %s does not satisfy bound %s of template %s of %s", have, want, tp.Name, cl.name).
			WithTypes(want, have).
			WithParam(tp.Name).
			Emit()
		bind[tp.Type] = bound
	}
	if !cl.keepUnbound {
		for _, tp := range cl.infer {
			if _, ok := bind[tp.Type]; !ok {
				bind[tp.Type] = c.in.Substitute(c.in.Bound(tp.Type), bind)
			}
		}
	}
	if cl.result == types.NoTypeID {
		return c.b.Mixed, bind
	}
	return c.in.Substitute(cl.result, bind), bind
}

func (c *checker) checkArity(cl callable, n int, s *Site) {
	required, limit := 0, len(cl.params)
	for _, p := range cl.params {
		if p.Variadic {
			limit = -1
			continue
		}
		if !p.Optional {
			required++
		}
	}
	if n >= required && (limit < 0 || n <= limit) {
		return
	}
	var want string
	switch {
	case limit < 0:
		want = fmt.Sprintf("at least %d", required)
	case required == limit:
		want = fmt.Sprint(required)
	default:
		want = fmt.Sprintf("%d to %d", required, limit)
	}
	c.errorf(diag.SemaArityMismatch, s.Loc, "%s expects %s arguments, got %d", cl.name, want, n).Emit()
}

// expect checks that actual is accepted where expected is required.
func (c *checker) expect(actual, expected types.TypeID, what string, s *Site) bool {
	if actual == types.NoTypeID || expected == types.NoTypeID {
		return true
	}
	if c.unresolved(expected, actual, what, s) {
		return false
	}
	if c.rel.IsSubtype(actual, expected) {
		return true
	}
	c.mismatch(s, what, expected, actual)
	return false
}

func (c *checker) mismatch(s *Site, what string, expected, actual types.TypeID) {
	want, got := c.in.Format(expected), c.in.Format(actual)
	c.errorf(diag.SemaTypeMismatch, s.Loc, "%s: expected %s, got %s", what, want, got).
		WithTypes(want, got).
		Emit()
}

// unresolved reports a use of a value whose template parameter was never
// bound. It reports whether either side carries a placeholder.
func (c *checker) unresolved(expected, actual types.TypeID, what string, s *Site) bool {
	ph, ok := c.in.FirstUnresolved(actual)
	if !ok {
		ph, ok = c.in.FirstUnresolved(expected)
	}
	if !ok {
		return false
	}
	c.errorf(diag.SemaUnresolvedTemplate, s.Loc, "cannot resolve template %s of %s", ph.Name, ph.Owner).
		WithTypes(c.in.Format(expected), c.in.Format(actual)).
		WithParam(ph.Name).
		WithNote(s.Loc, "in "+what).
		Emit()
	return true
}

// Package sema checks use sites against the declaration registry: it
// resolves template parameters from a known receiver or by unifying
// parameter types with argument types, applies the substitution and compares
// the result with what each site consumes.
package sema

import (
	"context"
	"fmt"
	"strings"

	"gencheck/internal/diag"
	"gencheck/internal/source"
	"gencheck/internal/symbols"
	"gencheck/internal/trace"
	"gencheck/internal/types"
)

// Options configure a check over one flow.
type Options struct {
	Reporter diag.Reporter
	Table    *symbols.Table
}

// Result stores what the checker learned about a flow.
type Result struct {
	// Vars holds the final type of each variable, keyed without "$".
	Vars map[string]types.TypeID
	// SiteTypes holds the type each top-level site produced, or NoTypeID.
	SiteTypes []types.TypeID
}

// Check walks flow once, in order, reporting every finding. The table must
// be frozen when flows are checked concurrently. Only cancellation of ctx
// produces an error.
func Check(ctx context.Context, flow *Flow, opts Options) (Result, error) {
	res := Result{Vars: make(map[string]types.TypeID)}
	if flow == nil || opts.Table == nil {
		return res, nil
	}
	res.SiteTypes = make([]types.TypeID, len(flow.Sites))
	rep := opts.Reporter
	if rep == nil {
		rep = diag.NopReporter{}
	}
	tab := opts.Table
	c := &checker{
		tracer: trace.FromContext(ctx),
		span:   trace.CurrentSpan(ctx),
		tab:    tab,
		in:     tab.Types,
		rel:    tab.Relation(),
		b:      tab.Types.Builtins(),
		rep:    rep,
		vars:   res.Vars,
	}
	c.enter(flow)
	for i := range flow.Sites {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		s := &flow.Sites[i]
		trace.Point(c.tracer, trace.ScopeSite, "site:"+s.Kind.String(), c.span, s.Callee)
		res.SiteTypes[i] = c.site(s, types.NoTypeID)
	}
	return res, nil
}

type checker struct {
	tracer trace.Tracer
	span   uint64
	tab    *symbols.Table
	in     *types.Interner
	rel    types.Relation
	b      types.Builtins
	rep    diag.Reporter
	vars   map[string]types.TypeID

	within    string
	returns   types.TypeID
	generator bool
}

// enter binds the parameters, $this and the expected return type of the
// declaration the flow runs inside.
func (c *checker) enter(flow *Flow) {
	if flow.Within == "" {
		return
	}
	c.within = flow.Within
	c.generator = yields(flow.Sites)
	class, method, isMethod := strings.Cut(flow.Within, "::")
	if !isMethod {
		d, ok := c.tab.Lookup(flow.Within)
		if !ok || d.Kind != symbols.DeclFunction {
			c.errorf(diag.SemaUnknownSymbol, flow.Loc, "unknown function %s", flow.Within).Emit()
			return
		}
		for _, p := range d.Signature.Params {
			c.vars[strings.TrimPrefix(p.Name, "$")] = c.orMixed(p.Effective())
		}
		c.returns = d.Signature.EffectiveResult()
		return
	}
	d, ok := c.tab.Lookup(class)
	if !ok || !d.IsClassLike() {
		c.errorf(diag.SemaUnknownType, flow.Loc, "unknown type %s", class).Emit()
		return
	}
	this := c.thisType(d)
	c.vars["this"] = this
	m, ok := c.tab.LookupMember(d.Name, method, symbols.MemberMethod)
	if !ok {
		c.errorf(diag.SemaUnknownSymbol, flow.Loc, "unknown method %s::%s", d.Name, method).Emit()
		return
	}
	subst := c.receiverSubst(this)
	for _, p := range m.Params {
		c.vars[strings.TrimPrefix(p.Name, "$")] = c.orMixed(c.in.Substitute(p.Type, subst))
	}
	c.returns = c.in.Substitute(m.Result, subst)
}

// thisType is C for plain classes and C<T1..Tn> over C's own parameters for
// generic ones.
func (c *checker) thisType(d *symbols.Declaration) types.TypeID {
	self := c.in.Nominal(d.Name)
	if len(d.TypeParams) == 0 {
		return self
	}
	return c.in.Generic(self, d.Params()...)
}

func (c *checker) orMixed(id types.TypeID) types.TypeID {
	if id == types.NoTypeID {
		return c.b.Mixed
	}
	return id
}

// site checks s and returns the type it produces. target is the declared
// type of an enclosing assignment, consulted only by constructions.
func (c *checker) site(s *Site, target types.TypeID) types.TypeID {
	var out types.TypeID
	switch s.Kind {
	case SiteCall:
		out = c.call(s)
	case SiteNew:
		out = c.construct(s, target)
	case SiteMethod:
		out = c.method(s)
	case SiteGet:
		out = c.getProperty(s)
	case SiteSet:
		c.setProperty(s)
	case SiteIterate:
		c.iterate(s)
	case SiteSend:
		out = c.send(s)
	case SiteGetReturn:
		out = c.getReturn(s)
	case SiteAssign:
		return c.assign(s)
	case SiteReturn:
		c.ret(s)
	case SiteYield:
		out = c.yield(s)
	default:
		c.errorf(diag.SemaUnknownSymbol, s.Loc, "unknown site kind %d", s.Kind).Emit()
	}
	if s.Bind != "" && out != types.NoTypeID {
		c.vars[strings.TrimPrefix(s.Bind, "$")] = out
	}
	return out
}

func (c *checker) operand(op Operand, s *Site, target types.TypeID) types.TypeID {
	switch op.Kind {
	case OperandType:
		return op.Type
	case OperandVar:
		name := strings.TrimPrefix(op.Var, "$")
		if t, ok := c.vars[name]; ok {
			return t
		}
		c.errorf(diag.SemaUnknownSymbol, s.Loc, "undefined variable $%s", name).Emit()
	case OperandSite:
		if op.Site != nil {
			return c.site(op.Site, target)
		}
	}
	return types.NoTypeID
}

func (c *checker) operands(ops []Operand, s *Site) []types.TypeID {
	out := make([]types.TypeID, len(ops))
	for i, op := range ops {
		out[i] = c.operand(op, s, types.NoTypeID)
	}
	return out
}

func (c *checker) assign(s *Site) types.TypeID {
	value := c.operand(s.Value, s, s.Declared)
	if s.Declared != types.NoTypeID {
		c.tab.CheckType(s.Declared, s.Loc, c.rep)
		value = s.Declared
	}
	if s.Bind != "" && value != types.NoTypeID {
		c.vars[strings.TrimPrefix(s.Bind, "$")] = value
	}
	return value
}

func (c *checker) ret(s *Site) {
	value := c.operand(s.Value, s, types.NoTypeID)
	if c.within == "" {
		c.errorf(diag.SemaUnknownSymbol, s.Loc, "return outside of a function or method").Emit()
		return
	}
	expected := c.returns
	if seq, ok := c.routineSequence(); ok && (c.generator || !c.isSequence(value)) {
		expected = seq.Args[types.SeqReturn]
	}
	c.expect(value, expected, "return value of "+c.within, s)
}

func (c *checker) errorf(code diag.Code, loc source.Pos, format string, args ...any) *diag.ReportBuilder {
	return diag.ReportError(c.rep, code, loc, fmt.Sprintf(format, args...))
}

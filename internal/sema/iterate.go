package sema

import (
	"strings"

	"gencheck/internal/diag"
	"gencheck/internal/types"
)

// iterate binds the key and value variables of a foreach over the receiver.
// A declared type overrides the value variable, as an inline @var does.
func (c *checker) iterate(s *Site) {
	recv := c.operand(s.Receiver, s, types.NoTypeID)
	if recv == types.NoTypeID {
		return
	}
	key, value, ok := c.elements(recv, s)
	if !ok {
		key, value = c.b.Mixed, c.b.Mixed
	}
	if s.Declared != types.NoTypeID {
		c.tab.CheckType(s.Declared, s.Loc, c.rep)
		value = s.Declared
	}
	if s.KeyVar != "" {
		c.vars[strings.TrimPrefix(s.KeyVar, "$")] = key
	}
	if s.ValueVar != "" {
		c.vars[strings.TrimPrefix(s.ValueVar, "$")] = value
	}
}

// elements returns the key and value types produced by iterating over t.
func (c *checker) elements(t types.TypeID, s *Site) (types.TypeID, types.TypeID, bool) {
	in := c.in
	tt := in.MustLookup(t)
	switch tt.Kind {
	case types.KindMixed:
		return c.b.Mixed, c.b.Mixed, true
	case types.KindArray:
		return tt.Key, tt.Elem, true
	case types.KindShape:
		if len(tt.Fields) == 0 {
			return c.b.Mixed, c.b.Mixed, true
		}
		keys := make([]types.TypeID, 0, len(tt.Fields))
		vals := make([]types.TypeID, 0, len(tt.Fields))
		for _, f := range tt.Fields {
			keys = append(keys, in.ShapeKeyType(f.Key))
			vals = append(vals, f.Type)
		}
		return in.Union(keys...), in.Union(vals...), true
	case types.KindSequence:
		return tt.Args[types.SeqKey], tt.Args[types.SeqValue], true
	case types.KindParam:
		return c.elements(in.Bound(t), s)
	case types.KindUnresolved:
		c.errorf(diag.SemaUnresolvedTemplate, s.Loc, "cannot resolve template %s of %s", tt.Name, tt.Owner).
			WithParam(tt.Name).
			WithNote(s.Loc, "in foreach over "+in.Format(t)).
			Emit()
		return types.NoTypeID, types.NoTypeID, false
	case types.KindUnion:
		var keys, vals []types.TypeID
		for _, m := range tt.Args {
			if m == c.b.Null {
				continue
			}
			k, v, ok := c.elements(m, s)
			if !ok {
				return types.NoTypeID, types.NoTypeID, false
			}
			keys, vals = append(keys, k), append(vals, v)
		}
		if len(keys) == 0 {
			break
		}
		return in.Union(keys...), in.Union(vals...), true
	case types.KindNominal, types.KindGeneric:
		if name, _, ok := c.tab.ClassOf(t); ok && c.iterableClass(name) {
			return c.b.Mixed, c.b.Mixed, true
		}
	}
	c.errorf(diag.SemaTypeMismatch, s.Loc, "cannot iterate over %s", in.Format(t)).
		WithTypes("iterable", in.Format(t)).
		Emit()
	return types.NoTypeID, types.NoTypeID, false
}

func (c *checker) iterableClass(name string) bool {
	if name == types.NameIterable {
		return true
	}
	return c.tab.IsClassLike(name) && c.tab.Extends(name, types.NameTraversable)
}

// sequenceOf returns the sequence descriptor of recv. A raw Generator is
// treated as a sequence of mixed slots.
func (c *checker) sequenceOf(recv types.TypeID, s *Site) (types.Type, bool) {
	if recv == types.NoTypeID {
		return types.Type{}, false
	}
	tt := c.in.MustLookup(recv)
	switch tt.Kind {
	case types.KindSequence:
		return tt, true
	case types.KindMixed:
		return types.Type{}, false
	case types.KindUnresolved:
		c.errorf(diag.SemaUnresolvedTemplate, s.Loc, "cannot resolve template %s of %s", tt.Name, tt.Owner).
			WithParam(tt.Name).
			Emit()
		return types.Type{}, false
	case types.KindNominal:
		if tt.Name == types.NameGenerator {
			return c.rawSequence(), true
		}
	}
	c.errorf(diag.SemaTypeMismatch, s.Loc, "%s is not a generator", c.in.Format(recv)).
		WithTypes(types.NameGenerator, c.in.Format(recv)).
		Emit()
	return types.Type{}, false
}

func (c *checker) send(s *Site) types.TypeID {
	recv := c.operand(s.Receiver, s, types.NoTypeID)
	value := c.operand(s.Value, s, types.NoTypeID)
	seq, ok := c.sequenceOf(recv, s)
	if !ok {
		return types.NoTypeID
	}
	c.expect(value, seq.Args[types.SeqSend], "value sent to "+c.in.Format(recv), s)
	return seq.Args[types.SeqValue]
}

func (c *checker) getReturn(s *Site) types.TypeID {
	recv := c.operand(s.Receiver, s, types.NoTypeID)
	seq, ok := c.sequenceOf(recv, s)
	if !ok {
		return types.NoTypeID
	}
	return seq.Args[types.SeqReturn]
}

func (c *checker) rawSequence() types.Type {
	m := c.b.Mixed
	return types.Type{Kind: types.KindSequence, Args: []types.TypeID{m, m, m, m}}
}

func (c *checker) isSequence(t types.TypeID) bool {
	if t == types.NoTypeID {
		return false
	}
	tt := c.in.MustLookup(t)
	return tt.Kind == types.KindSequence || (tt.Kind == types.KindNominal && tt.Name == types.NameGenerator)
}

// routineSequence returns the slots of the enclosing routine when it is
// declared to return a Generator.
func (c *checker) routineSequence() (types.Type, bool) {
	if c.returns == types.NoTypeID {
		return types.Type{}, false
	}
	tt := c.in.MustLookup(c.returns)
	switch {
	case tt.Kind == types.KindSequence:
		return tt, true
	case tt.Kind == types.KindNominal && tt.Name == types.NameGenerator:
		return c.rawSequence(), true
	}
	return types.Type{}, false
}

// yield checks a yielded key and value against the slots of the enclosing
// generator and produces the value sent back in.
func (c *checker) yield(s *Site) types.TypeID {
	key := c.operand(s.Key, s, types.NoTypeID)
	value := c.operand(s.Value, s, types.NoTypeID)
	if c.within == "" {
		c.errorf(diag.SemaUnknownSymbol, s.Loc, "yield outside of a function or method").Emit()
		return types.NoTypeID
	}
	seq, ok := c.routineSequence()
	if !ok {
		if c.returns == types.NoTypeID || c.returns == c.b.Mixed {
			return c.b.Mixed
		}
		if name, _, isClass := c.tab.ClassOf(c.returns); isClass && c.iterableClass(name) {
			return c.b.Mixed
		}
		c.errorf(diag.SemaTypeMismatch, s.Loc, "yield in %s, which does not return a generator", c.within).
			WithTypes(types.NameGenerator, c.in.Format(c.returns)).
			Emit()
		return types.NoTypeID
	}
	c.expect(key, seq.Args[types.SeqKey], "key yielded by "+c.within, s)
	c.expect(value, seq.Args[types.SeqValue], "value yielded by "+c.within, s)
	return seq.Args[types.SeqSend]
}

// yields reports whether any site, nested ones included, is a yield.
func yields(sites []Site) bool {
	for i := range sites {
		if siteYields(&sites[i]) {
			return true
		}
	}
	return false
}

func siteYields(s *Site) bool {
	if s.Kind == SiteYield {
		return true
	}
	ops := append([]Operand{s.Receiver, s.Value, s.Key}, s.Args...)
	for _, op := range ops {
		if op.Kind == OperandSite && op.Site != nil && siteYields(op.Site) {
			return true
		}
	}
	return false
}

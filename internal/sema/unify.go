package sema

import (
	"gencheck/internal/types"
)

// unifier binds inferable template parameters by walking a parameter type
// and an argument type in lock-step.
type unifier struct {
	c         *checker
	inferable map[types.TypeID]bool
	bind      types.Subst
}

func (u *unifier) mentionsInferable(id types.TypeID) bool {
	for _, p := range u.c.in.Params(id) {
		if u.inferable[p] {
			if _, bound := u.bind[p]; !bound {
				return true
			}
		}
	}
	return false
}

// unify reports whether got is accepted by want, binding parameters on the
// way. Under invariant every position must match exactly, as inside the
// arguments of a generic type.
func (u *unifier) unify(want, got types.TypeID, invariant bool) bool {
	if want == types.NoTypeID || got == types.NoTypeID {
		return true
	}
	in, rel := u.c.in, u.c.rel
	wt := in.MustLookup(want)
	if wt.Kind == types.KindParam && u.inferable[want] {
		return u.bindParam(want, got, invariant)
	}
	if !u.mentionsInferable(want) {
		fixed := in.Substitute(want, u.bind)
		if invariant {
			return fixed == got
		}
		return rel.IsSubtype(got, fixed)
	}
	if wt.Kind == types.KindUnion {
		return u.unifyUnion(wt.Args, got, invariant)
	}

	gt := in.MustLookup(got)
	switch gt.Kind {
	case types.KindUnion:
		if invariant {
			return false
		}
		for _, m := range gt.Args {
			if !u.unify(want, m, false) {
				return false
			}
		}
		return true
	case types.KindParam:
		if b := in.Bound(got); b != types.NoTypeID && b != got {
			return u.unify(want, b, invariant)
		}
		return false
	}

	switch wt.Kind {
	case types.KindGeneric:
		base := in.MustLookup(wt.Base)
		args, ok := u.c.tab.ArgsFor(got, base.Name)
		if !ok || len(args) != len(wt.Args) {
			return false
		}
		ok = true
		for i := range args {
			ok = u.unify(wt.Args[i], args[i], true) && ok
		}
		return ok
	case types.KindArray:
		switch gt.Kind {
		case types.KindArray:
			k := u.unify(wt.Key, gt.Key, invariant)
			return u.unify(wt.Elem, gt.Elem, invariant) && k
		case types.KindShape:
			if invariant {
				return false
			}
			ok := true
			for _, f := range gt.Fields {
				ok = u.unify(wt.Key, in.ShapeKeyType(f.Key), false) && ok
				ok = u.unify(wt.Elem, f.Type, false) && ok
			}
			return ok
		}
	case types.KindShape:
		if gt.Kind != types.KindShape {
			return false
		}
		have := make(map[string]types.ShapeField, len(gt.Fields))
		for _, f := range gt.Fields {
			have[f.Key] = f
		}
		ok := true
		for _, f := range wt.Fields {
			g, found := have[f.Key]
			if !found {
				ok = f.Optional && ok
				continue
			}
			ok = u.unify(f.Type, g.Type, invariant) && ok
		}
		return ok
	case types.KindClassRef:
		// class-string<T> given class-string<C> binds T to C.
		if gt.Kind == types.KindClassRef {
			return u.unify(wt.Elem, gt.Elem, invariant)
		}
	case types.KindSequence:
		switch gt.Kind {
		case types.KindSequence:
			ok := true
			for i := range wt.Args {
				ok = u.unify(wt.Args[i], gt.Args[i], invariant) && ok
			}
			return ok
		case types.KindNominal:
			return gt.Name == types.NameGenerator
		}
	}
	return false
}

// bindParam binds p on first occurrence. A later occurrence is checked
// against the binding and never changes it, so the verdict does not depend
// on argument order.
func (u *unifier) bindParam(p, got types.TypeID, invariant bool) bool {
	cur, ok := u.bind[p]
	if !ok {
		u.bind[p] = got
		return true
	}
	if cur == got {
		return true
	}
	if invariant {
		return false
	}
	return u.c.rel.IsSubtype(got, cur)
}

// unifyUnion matches got against a union whose members mention inferable
// parameters. Parts of got accepted by a concrete member bind nothing; the
// rest must unify with one of the templated members.
func (u *unifier) unifyUnion(members []types.TypeID, got types.TypeID, invariant bool) bool {
	in, rel := u.c.in, u.c.rel
	var fixed, templated []types.TypeID
	for _, m := range members {
		if u.mentionsInferable(m) {
			templated = append(templated, m)
		} else {
			fixed = append(fixed, in.Substitute(m, u.bind))
		}
	}
	var rest []types.TypeID
	for _, g := range in.Members(got) {
		accepted := false
		for _, f := range fixed {
			if (invariant && f == g) || (!invariant && rel.IsSubtype(g, f)) {
				accepted = true
				break
			}
		}
		if !accepted {
			rest = append(rest, g)
		}
	}
	if len(rest) == 0 {
		return true
	}
	leftover := in.Union(rest...)
	for _, m := range templated {
		snap := u.bind.Clone()
		if u.unify(m, leftover, invariant) {
			return true
		}
		u.bind = snap
	}
	return false
}

// Package solver checks template arguments against parameter bounds and
// builds the resulting substitution.
package solver

import (
	"fmt"
	"strings"

	"gencheck/internal/types"
)

// ObjectBound selects how an unbounded template parameter that names the
// target of a class-string is treated.
type ObjectBound uint8

const (
	// ObjectBoundImplicit bounds such a parameter by object.
	ObjectBoundImplicit ObjectBound = iota
	// ObjectBoundExplicit leaves it unbounded unless "of object" is written.
	ObjectBoundExplicit
)

func (p ObjectBound) String() string {
	if p == ObjectBoundExplicit {
		return "explicit"
	}
	return "implicit"
}

// ParseObjectBound accepts "implicit", "explicit" or "" (implicit).
func ParseObjectBound(s string) (ObjectBound, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "implicit":
		return ObjectBoundImplicit, nil
	case "explicit":
		return ObjectBoundExplicit, nil
	}
	return ObjectBoundImplicit, fmt.Errorf("unknown object-bound policy %q (want implicit or explicit)", s)
}

// EffectiveBound returns the bound a parameter is checked against. declared
// is the written bound (NoTypeID when absent); classRefTarget reports whether
// the parameter appears as class-string<T> in its owner's signature.
func EffectiveBound(in *types.Interner, declared types.TypeID, classRefTarget bool, policy ObjectBound) types.TypeID {
	if declared != types.NoTypeID {
		return declared
	}
	if classRefTarget && policy == ObjectBoundImplicit {
		return in.Builtins().Object
	}
	return in.Builtins().Mixed
}

// BoundViolation names the first parameter whose argument fails its bound.
type BoundViolation struct {
	Index  int
	Param  types.TypeID
	Bound  types.TypeID // after substituting earlier parameters
	Actual types.TypeID
}

// Solve zips params with args, binding each parameter and checking the
// argument against the parameter's bound with earlier bindings substituted.
// On failure no substitution is returned. Arguments that contain an
// unresolved placeholder are bound but not checked. Callers check arity;
// extra params or args are ignored.
func Solve(rel types.Relation, params, args []types.TypeID) (types.Subst, *BoundViolation) {
	in := rel.Types
	n := min(len(params), len(args))
	subst := make(types.Subst, n)
	for i := range n {
		p, arg := params[i], args[i]
		subst[p] = arg
		bound := in.Substitute(in.Bound(p), subst)
		if _, unresolved := in.FirstUnresolved(arg); unresolved {
			continue
		}
		if !rel.IsSubtype(arg, bound) {
			return nil, &BoundViolation{Index: i, Param: p, Bound: bound, Actual: arg}
		}
	}
	return subst, nil
}

// Satisfies reports whether arg meets param's bound under subst.
func Satisfies(rel types.Relation, param, arg types.TypeID, subst types.Subst) bool {
	in := rel.Types
	if _, unresolved := in.FirstUnresolved(arg); unresolved {
		return true
	}
	return rel.IsSubtype(arg, in.Substitute(in.Bound(param), subst))
}

// Erasure maps every param to its bound, resolving bounds that mention
// earlier params. It stands in for a substitution that failed to solve.
func Erasure(in *types.Interner, params []types.TypeID) types.Subst {
	subst := make(types.Subst, len(params))
	for _, p := range params {
		subst[p] = in.Substitute(in.Bound(p), subst)
	}
	return subst
}

// Unresolved maps every param without a binding in subst to its
// unresolved placeholder.
func Unresolved(in *types.Interner, owner string, params []types.TypeID, subst types.Subst) types.Subst {
	out := subst.Clone()
	for _, p := range params {
		if _, ok := out[p]; ok {
			continue
		}
		name := in.Format(p)
		if info, ok := in.TypeParamInfo(p); ok {
			name = info.Name
		}
		out[p] = in.Unresolved(owner, name)
	}
	return out
}

package symbols

import (
	"strings"

	"gencheck/internal/types"
)

// builtinClasses are class-like names every program may reference without
// declaring them, with their supertypes.
var builtinClasses = map[string][]string{
	"Generator":         {"Iterator", "Traversable"},
	"Iterator":          {"Traversable"},
	"IteratorAggregate": {"Traversable"},
	"Traversable":       nil,
	"ArrayAccess":       nil,
	"Countable":         nil,
	"Closure":           nil,
	"stdClass":          nil,
}

// IsClassLike reports whether name is a declared class or interface or a
// built-in class.
func (t *Table) IsClassLike(name string) bool {
	if d, ok := t.Lookup(name); ok {
		return d.IsClassLike()
	}
	_, ok := builtinClasses[name]
	return ok
}

// Known reports whether name can appear in a type: a builtin scalar or
// pseudo type, a built-in class or any registered declaration.
func (t *Table) Known(name string) bool {
	if types.IsBuiltinName(name) {
		return true
	}
	if _, ok := builtinClasses[name]; ok {
		return true
	}
	_, ok := t.Lookup(name)
	return ok
}

// supertypes lists the direct supertypes of name: written supertypes first,
// then instantiation targets not already listed.
func (t *Table) supertypes(name string) []string {
	var out []string
	if d, ok := t.Lookup(name); ok {
		for _, s := range d.Supertypes {
			out = appendUnique(out, strings.TrimPrefix(s, `\`))
		}
	} else {
		out = append(out, builtinClasses[name]...)
	}
	for _, idx := range t.bySubject[name] {
		out = appendUnique(out, t.insts[idx].Target)
	}
	return out
}

func appendUnique(list []string, s string) []string {
	for _, x := range list {
		if x == s {
			return list
		}
	}
	return append(list, s)
}

// Ancestors returns name followed by its transitive supertypes, depth first
// in declaration order, each once.
func (t *Table) Ancestors(name string) []string {
	name = strings.TrimPrefix(name, `\`)
	seen := map[string]bool{}
	var out []string
	var visit func(string)
	visit = func(n string) {
		if seen[n] {
			return
		}
		seen[n] = true
		out = append(out, n)
		for _, s := range t.supertypes(n) {
			visit(s)
		}
	}
	visit(name)
	return out
}

// Extends reports whether sub transitively extends or implements super.
func (t *Table) Extends(sub, super string) bool {
	if sub == super {
		return true
	}
	for _, a := range t.Ancestors(sub)[1:] {
		if a == super {
			return true
		}
	}
	return false
}

// ReceiverSubst returns the substitution a value of type recv carries for
// the template parameters of its class and of every generic ancestor: the
// arguments of a Generic receiver, then the substitutions attached to each
// ancestor by instantiation declarations, composed along the way. Parameters
// nothing binds are absent.
func (t *Table) ReceiverSubst(recv types.TypeID) types.Subst {
	name, args, ok := t.ClassOf(recv)
	if !ok {
		return nil
	}
	out := types.Subst{}
	if d, found := t.Lookup(name); found && len(args) > 0 {
		for i, p := range d.TypeParams {
			if i < len(args) {
				out[p.Type] = args[i]
			}
		}
	}
	for _, anc := range t.Ancestors(name) {
		d, found := t.Lookup(anc)
		if !found {
			continue
		}
		for k, v := range d.Subst {
			if _, bound := out[k]; bound {
				continue
			}
			out[k] = t.Types.Substitute(v, out)
		}
	}
	return out
}

// ClassOf extracts the class name and type arguments of a nominal or
// generic type.
func (t *Table) ClassOf(id types.TypeID) (string, []types.TypeID, bool) {
	tt, ok := t.Types.Lookup(id)
	if !ok {
		return "", nil, false
	}
	switch tt.Kind {
	case types.KindNominal:
		return tt.Name, nil, true
	case types.KindGeneric:
		base, ok := t.Types.Lookup(tt.Base)
		if !ok {
			return "", nil, false
		}
		return base.Name, tt.Args, true
	}
	return "", nil, false
}

// ArgsFor returns the type arguments a value of type id carries for the
// generic declaration target, following instantiation declarations.
func (t *Table) ArgsFor(id types.TypeID, target string) ([]types.TypeID, bool) {
	name, args, ok := t.ClassOf(id)
	if !ok {
		return nil, false
	}
	if name == target {
		return args, len(args) > 0
	}
	if !t.Extends(name, target) {
		return nil, false
	}
	d, ok := t.Lookup(target)
	if !ok || len(d.TypeParams) == 0 {
		return nil, false
	}
	subst := t.ReceiverSubst(id)
	out := make([]types.TypeID, len(d.TypeParams))
	for i, p := range d.TypeParams {
		v, bound := subst[p.Type]
		if !bound {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

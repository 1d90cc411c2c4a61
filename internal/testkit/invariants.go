// Package testkit holds structural checks shared by pipeline tests.
package testkit

import (
	"fmt"

	"gencheck/internal/symbols"
	"gencheck/internal/types"
)

// CheckTableInvariants runs a minimal set of invariants on a frozen table:
// 1) every declaration is reachable by name under its own ID
// 2) every template parameter is interned as a parameter of its owner at its
// position, with a finalised bound that keeps a written one
// 3) every recorded instantiation names a registered class-like target, and
// the substitution attached to a subject binds parameters only
func CheckTableInvariants(tab *symbols.Table) error {
	if tab == nil {
		return fmt.Errorf("nil table")
	}
	if !tab.Frozen() {
		return fmt.Errorf("table is not frozen")
	}
	decls := tab.Declarations()
	for i := range decls {
		d := &decls[i]
		got, ok := tab.Lookup(d.Name)
		if !ok || got.ID != d.ID {
			return fmt.Errorf("%s: lookup by name does not return declaration %d", d.Name, d.ID)
		}
		if err := checkParams(tab.Types, d.Name, d.TypeParams); err != nil {
			return err
		}
		for j := range d.Members {
			m := &d.Members[j]
			if err := checkParams(tab.Types, symbols.MethodOwner(d.Name, m.Name), m.TypeParams); err != nil {
				return err
			}
		}
		for _, inst := range tab.InstantiationsBy(d.Name) {
			if inst.Subject != d.Name {
				return fmt.Errorf("%s: instantiation indexed under subject %s", d.Name, inst.Subject)
			}
			target, ok := tab.Lookup(inst.Target)
			if !ok || !target.IsClassLike() {
				return fmt.Errorf("%s: instantiation of unknown target %s was recorded", d.Name, inst.Target)
			}
		}
		for param := range d.Subst {
			if kind := tab.Types.Kind(param); kind != types.KindParam {
				return fmt.Errorf("%s: substitution key %s is a %s", d.Name, tab.Types.Format(param), kind)
			}
		}
	}
	return nil
}

func checkParams(in *types.Interner, owner string, params []symbols.TemplateParam) error {
	for i, tp := range params {
		info, ok := in.TypeParamInfo(tp.Type)
		if !ok {
			return fmt.Errorf("%s: template %s is not interned as a parameter", owner, tp.Name)
		}
		if info.Owner != owner || info.Name != tp.Name || info.Index != i {
			return fmt.Errorf("%s: template %s interned as %s#%d of %s", owner, tp.Name, info.Name, info.Index, info.Owner)
		}
		if info.Bound == types.NoTypeID {
			return fmt.Errorf("%s: template %s has no finalised bound", owner, tp.Name)
		}
		if tp.Bound != types.NoTypeID && info.Bound != tp.Bound {
			return fmt.Errorf("%s: template %s bound %s replaced by %s", owner, tp.Name, in.Format(tp.Bound), in.Format(info.Bound))
		}
	}
	return nil
}

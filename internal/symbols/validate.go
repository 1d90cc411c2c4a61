package symbols

import (
	"fmt"

	"gencheck/internal/diag"
	"gencheck/internal/solver"
	"gencheck/internal/source"
	"gencheck/internal/types"
)

// CheckType reports unknown names, wrong type argument counts and bound
// violations inside id. It reports whether id is well formed.
func (t *Table) CheckType(id types.TypeID, loc source.Pos, r diag.Reporter) bool {
	if id == types.NoTypeID {
		return true
	}
	if !t.checkNames(id, loc, r) {
		return false
	}
	ok := true
	t.Types.Walk(id, func(_ types.TypeID, tt types.Type) bool {
		if tt.Kind != types.KindGeneric {
			return true
		}
		name, _, _ := t.ClassOf(tt.Base)
		d, found := t.Lookup(name)
		if !found {
			return true
		}
		if len(tt.Args) != len(d.TypeParams) {
			diag.ReportError(r, diag.SemaArityMismatch, loc,
				fmt.Sprintf("%s expects %d type arguments, got %d", d.Name, len(d.TypeParams), len(tt.Args))).
				Emit()
			ok = false
			return false
		}
		if _, v := solver.Solve(t.Relation(), d.Params(), tt.Args); v != nil {
			t.reportViolation(r, loc, d, v, "")
			ok = false
		}
		return true
	})
	return ok
}

func (t *Table) checkNames(id types.TypeID, loc source.Pos, r diag.Reporter) bool {
	ok := true
	for _, name := range t.Types.Nominals(id) {
		if t.Known(name) {
			continue
		}
		diag.ReportError(r, diag.SemaUnknownType, loc, fmt.Sprintf("unknown type %s", name)).
			WithTypes("", name).
			Emit()
		ok = false
	}
	return ok
}

// Validate checks every declaration once, in registration order: types
// referenced by bounds, signatures and properties must be well formed,
// written supertypes must exist, and annotated types must be compatible with
// native hints.
func (t *Table) Validate(r diag.Reporter) {
	for i := range t.decls[1:] {
		d := &t.decls[i+1]
		for _, tp := range d.TypeParams {
			t.CheckType(tp.Bound, tp.Loc.Or(d.Loc), r)
		}
		for _, s := range d.Supertypes {
			if !t.Known(s) {
				diag.ReportError(r, diag.SemaUnknownType, d.Loc, fmt.Sprintf("unknown type %s", s)).
					WithNote(d.Loc, fmt.Sprintf("supertype of %s", d.Name)).
					Emit()
			}
		}
		t.validateSignature(d.Name, d.Signature, d.Loc, r)
		for j := range d.Members {
			m := &d.Members[j]
			loc := m.Loc.Or(d.Loc)
			for _, tp := range m.TypeParams {
				t.CheckType(tp.Bound, tp.Loc.Or(loc), r)
			}
			if m.Kind == MemberProperty {
				t.validatePair(fmt.Sprintf("property %s::$%s", d.Name, m.Name), m.Type, m.Native, loc, r)
				continue
			}
			t.validateSignature(MethodOwner(d.Name, m.Name), m.Signature, loc, r)
		}
	}
}

func (t *Table) validateSignature(owner string, sig Signature, loc source.Pos, r diag.Reporter) {
	for _, p := range sig.Params {
		t.validatePair(fmt.Sprintf("parameter $%s of %s", p.Name, owner), p.Type, p.Native, p.Loc.Or(loc), r)
	}
	t.validatePair("return type of "+owner, sig.Result, sig.NativeResult, sig.Loc.Or(loc), r)
}

// validatePair checks both types of one slot, then that the annotation
// narrows the native hint.
func (t *Table) validatePair(what string, annotated, native types.TypeID, loc source.Pos, r diag.Reporter) {
	okAnn := t.CheckType(annotated, loc, r)
	okNat := t.CheckType(native, loc, r)
	if !okAnn || !okNat || annotated == types.NoTypeID || native == types.NoTypeID {
		return
	}
	if t.Relation().IsSubtype(annotated, native) {
		return
	}
	want, got := t.Types.Format(native), t.Types.Format(annotated)
	diag.ReportError(r, diag.SemaTypeMismatch, loc,
		fmt.Sprintf("annotated %s is %s, which is not compatible with native type %s", what, got, want)).
		WithTypes(want, got).
		Emit()
}

// Package symbols holds the declaration registry: functions, classes and
// interfaces with their template parameters, and the instantiation
// declarations that bind those parameters for a subject class.
package symbols

import (
	"fmt"
	"slices"
	"strings"

	"fortio.org/safecast"

	"gencheck/internal/diag"
	"gencheck/internal/solver"
	"gencheck/internal/source"
	"gencheck/internal/types"
)

// Options configures a Table.
type Options struct {
	ObjectBound solver.ObjectBound
	// Hint is an optional capacity suggestion for the declaration arena.
	Hint uint
}

// Table is the declaration registry. It is filled sequentially, then frozen
// and shared read-only by concurrent checks.
type Table struct {
	Types  *types.Interner
	policy solver.ObjectBound

	decls     []Declaration // index 0 reserved for NoDeclID
	byName    map[string]DeclID
	insts     []Instantiation
	bySubject map[string][]int
	byTarget  map[string][]int
	frozen    bool
}

// NewTable builds an empty table over in.
func NewTable(in *types.Interner, opts Options) *Table {
	capacity, err := safecast.Conv[uint32](opts.Hint)
	if err != nil {
		panic(fmt.Errorf("declaration capacity overflow: %w", err))
	}
	if capacity == 0 {
		capacity = 32
	}
	return &Table{
		Types:     in,
		policy:    opts.ObjectBound,
		decls:     make([]Declaration, 1, capacity+1),
		byName:    make(map[string]DeclID, capacity),
		bySubject: make(map[string][]int),
		byTarget:  make(map[string][]int),
	}
}

// Relation returns the subtype relation backed by this table's hierarchy.
func (t *Table) Relation() types.Relation {
	return types.Relation{Types: t.Types, Hierarchy: t}
}

// Policy reports the object-bound policy the table was built with.
func (t *Table) Policy() solver.ObjectBound { return t.policy }

// Freeze forbids further registration.
func (t *Table) Freeze() { t.frozen = true }

// Frozen reports whether Freeze was called.
func (t *Table) Frozen() bool { return t.frozen }

func (t *Table) mustBeOpen(op string) {
	if t.frozen {
		panic("symbols: " + op + " on frozen table")
	}
}

// Len reports the number of registered declarations.
func (t *Table) Len() int { return len(t.decls) - 1 }

// Declarations returns the registered declarations in registration order.
func (t *Table) Declarations() []Declaration {
	return t.decls[1:]
}

// Get returns the declaration for id or nil.
func (t *Table) Get(id DeclID) *Declaration {
	if !id.IsValid() || int(id) >= len(t.decls) {
		return nil
	}
	return &t.decls[id]
}

// Lookup returns the declaration registered under name. The pointer stays
// valid until the next Register call.
func (t *Table) Lookup(name string) (*Declaration, bool) {
	id, ok := t.byName[strings.TrimPrefix(name, `\`)]
	if !ok {
		return nil, false
	}
	return &t.decls[id], true
}

// Register adds decl. A duplicate name or template parameter is reported
// and the declaration is skipped. Bounds are finalised here: an unbounded
// parameter receives its effective bound under the table's object-bound
// policy.
func (t *Table) Register(decl Declaration, r diag.Reporter) DeclID {
	t.mustBeOpen("Register")
	if prev, ok := t.Lookup(decl.Name); ok {
		diag.ReportError(r, diag.SemaDuplicateSymbol, decl.Loc,
			fmt.Sprintf("duplicate declaration of %s", decl.Name)).
			WithNote(prev.Loc, "previous declaration is here").
			Emit()
		return NoDeclID
	}
	if !uniqueParams(decl.TypeParams, decl.Name, decl.Loc, r) {
		return NoDeclID
	}
	for i := range decl.Members {
		m := &decl.Members[i]
		if !uniqueParams(m.TypeParams, MethodOwner(decl.Name, m.Name), m.Loc.Or(decl.Loc), r) {
			return NoDeclID
		}
	}
	value, err := safecast.Conv[uint32](len(t.decls))
	if err != nil {
		panic(fmt.Errorf("declaration arena overflow: %w", err))
	}
	decl.ID = DeclID(value)
	t.finaliseBounds(&decl)
	t.decls = append(t.decls, decl)
	t.byName[decl.Name] = decl.ID
	return decl.ID
}

func uniqueParams(params []TemplateParam, owner string, loc source.Pos, r diag.Reporter) bool {
	seen := make(map[string]source.Pos, len(params))
	ok := true
	for _, tp := range params {
		if prev, dup := seen[tp.Name]; dup {
			diag.ReportError(r, diag.SemaDuplicateSymbol, tp.Loc.Or(loc),
				fmt.Sprintf("duplicate template parameter %s on %s", tp.Name, owner)).
				WithParam(tp.Name).
				WithNote(prev.Or(loc), "first declared here").
				Emit()
			ok = false
			continue
		}
		seen[tp.Name] = tp.Loc
	}
	return ok
}

// finaliseBounds stores the effective bound of every template parameter of
// decl and of its methods in the interner.
func (t *Table) finaliseBounds(decl *Declaration) {
	sigs := []types.TypeID{}
	collect := func(s Signature) {
		for _, p := range s.Params {
			sigs = append(sigs, p.Type)
		}
		sigs = append(sigs, s.Result)
	}
	collect(decl.Signature)
	for i := range decl.Members {
		collect(decl.Members[i].Signature)
		sigs = append(sigs, decl.Members[i].Type)
	}
	apply := func(params []TemplateParam, scope []types.TypeID) {
		for _, tp := range params {
			classRef := false
			for _, id := range scope {
				if slices.Contains(t.Types.ClassRefTargets(id), tp.Type) {
					classRef = true
					break
				}
			}
			t.Types.SetTypeParamBound(tp.Type, solver.EffectiveBound(t.Types, tp.Bound, classRef, t.policy))
		}
	}
	apply(decl.TypeParams, sigs)
	for i := range decl.Members {
		m := &decl.Members[i]
		scope := []types.TypeID{m.Signature.Result}
		for _, p := range m.Signature.Params {
			scope = append(scope, p.Type)
		}
		apply(m.TypeParams, scope)
	}
}

// RegisterInstantiation records inst and checks it immediately: the target
// must exist, the argument count must match its template parameters and
// every argument must satisfy its bound. On success the substitution is
// attached to the subject. It reports whether the instantiation is valid.
func (t *Table) RegisterInstantiation(inst Instantiation, r diag.Reporter) bool {
	t.mustBeOpen("RegisterInstantiation")
	inst.Subject = strings.TrimPrefix(inst.Subject, `\`)
	inst.Target = strings.TrimPrefix(inst.Target, `\`)
	subject, ok := t.Lookup(inst.Subject)
	if !ok {
		diag.ReportError(r, diag.SemaUnknownType, inst.Loc, fmt.Sprintf("unknown type %s", inst.Subject)).Emit()
		return false
	}
	target, ok := t.Lookup(inst.Target)
	if !ok || !target.IsClassLike() {
		diag.ReportError(r, diag.SemaUnknownType, inst.Loc, fmt.Sprintf("unknown type %s", inst.Target)).
			WithNote(subject.Loc, fmt.Sprintf("in %s %s of %s", inst.Relation, inst.Target, inst.Subject)).
			Emit()
		return false
	}
	idx := len(t.insts)
	t.insts = append(t.insts, inst)
	t.bySubject[inst.Subject] = append(t.bySubject[inst.Subject], idx)
	t.byTarget[inst.Target] = append(t.byTarget[inst.Target], idx)

	if len(inst.Args) != len(target.TypeParams) {
		diag.ReportError(r, diag.SemaArityMismatch, inst.Loc,
			fmt.Sprintf("%s expects %d type arguments, got %d", target.Name, len(target.TypeParams), len(inst.Args))).
			Emit()
		return false
	}
	valid := true
	for _, arg := range inst.Args {
		if !t.checkNames(arg, inst.Loc, r) {
			valid = false
		}
	}
	if !valid {
		return false
	}
	subst, violation := solver.Solve(t.Relation(), target.Params(), inst.Args)
	if violation != nil {
		t.reportViolation(r, inst.Loc, target, violation,
			fmt.Sprintf("required by %s %s %s", inst.Subject, inst.Relation, t.Types.Format(t.Types.Generic(t.Types.Nominal(target.Name), inst.Args...))))
		return false
	}
	if subject.Subst == nil {
		subject.Subst = make(types.Subst, len(subst))
	}
	for k, v := range subst {
		subject.Subst[k] = v
	}
	return true
}

func (t *Table) reportViolation(r diag.Reporter, loc source.Pos, owner *Declaration, v *solver.BoundViolation, note string) {
	name := owner.TypeParams[v.Index].Name
	bound := t.Types.Format(v.Bound)
	actual := t.Types.Format(v.Actual)
	b := diag.ReportError(r, diag.SemaBoundViolation, loc,
		fmt.Sprintf("type %s does not satisfy bound %s of template %s of %s", actual, bound, name, owner.Name)).
		WithTypes(bound, actual).
		WithParam(name)
	if note != "" {
		b = b.WithNote(loc, note)
	}
	b.Emit()
}

// InstantiationsOf returns the instantiations whose target is name, in
// registration order.
func (t *Table) InstantiationsOf(name string) []Instantiation {
	return t.pick(t.byTarget[strings.TrimPrefix(name, `\`)])
}

// InstantiationsBy returns the instantiations declared by subject.
func (t *Table) InstantiationsBy(subject string) []Instantiation {
	return t.pick(t.bySubject[strings.TrimPrefix(subject, `\`)])
}

func (t *Table) pick(idx []int) []Instantiation {
	if len(idx) == 0 {
		return nil
	}
	out := make([]Instantiation, len(idx))
	for i, n := range idx {
		out[i] = t.insts[n]
	}
	return out
}

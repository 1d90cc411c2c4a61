package types

// Hierarchy is the read-only view of the host program's class hierarchy that
// subtyping consults. The declaration registry implements it.
type Hierarchy interface {
	// IsClassLike reports whether name is a declared class or interface.
	IsClassLike(name string) bool
	// Extends reports whether sub transitively extends or implements super.
	Extends(sub, super string) bool
	// ArgsFor returns the type arguments t carries for the generic
	// declaration target, following instantiation declarations.
	ArgsFor(t TypeID, target string) ([]TypeID, bool)
}

// Relation answers subtyping questions over one interner and hierarchy.
type Relation struct {
	Types     *Interner
	Hierarchy Hierarchy
}

// Equal reports structural equality; interning makes it identity.
func (r Relation) Equal(a, b TypeID) bool {
	return a == b && a != NoTypeID
}

// IsSubtype reports whether a value of type a is accepted where b is
// required. Generic arguments are invariant. Unrelated nominals are simply
// not subtypes.
func (r Relation) IsSubtype(a, b TypeID) bool {
	if a == NoTypeID || b == NoTypeID {
		return false
	}
	in := r.Types
	if _, bad := in.FirstUnresolved(a); bad {
		return false
	}
	if _, bad := in.FirstUnresolved(b); bad {
		return false
	}
	if a == b {
		return true
	}
	ta, _ := in.Lookup(a)
	tb, _ := in.Lookup(b)

	if tb.Kind == KindMixed {
		return true
	}
	if ta.Kind == KindUnion {
		for _, m := range ta.Args {
			if !r.IsSubtype(m, b) {
				return false
			}
		}
		return true
	}
	if ta.Kind == KindMixed {
		return false
	}
	if tb.Kind == KindUnion {
		for _, m := range tb.Args {
			if m == a {
				return true
			}
		}
	}
	if ta.Kind == KindParam {
		if tb.Kind == KindParam {
			return false
		}
		return r.IsSubtype(in.Bound(a), b)
	}
	if tb.Kind == KindUnion {
		for _, m := range tb.Args {
			if r.IsSubtype(a, m) {
				return true
			}
		}
		return false
	}

	switch ta.Kind {
	case KindNominal:
		switch tb.Kind {
		case KindNominal:
			return r.nominalSubtype(ta.Name, tb.Name)
		case KindGeneric:
			return r.carriesArgs(a, tb)
		}
	case KindGeneric:
		base, _ := in.Lookup(ta.Base)
		switch tb.Kind {
		case KindNominal:
			return r.nominalSubtype(base.Name, tb.Name)
		case KindGeneric:
			if ta.Base == tb.Base {
				return argsEqual(ta.Args, tb.Args)
			}
			return r.carriesArgs(a, tb)
		}
	case KindArray:
		switch tb.Kind {
		case KindArray:
			return r.IsSubtype(ta.Key, tb.Key) && r.IsSubtype(ta.Elem, tb.Elem)
		case KindNominal:
			return tb.Name == NameIterable
		}
	case KindShape:
		switch tb.Kind {
		case KindShape:
			return r.shapeSubtype(ta, tb)
		case KindArray:
			for _, f := range ta.Fields {
				if !r.IsSubtype(r.Types.ShapeKeyType(f.Key), tb.Key) || !r.IsSubtype(f.Type, tb.Elem) {
					return false
				}
			}
			return true
		case KindNominal:
			return tb.Name == NameIterable
		}
	case KindClassRef:
		switch tb.Kind {
		case KindClassRef:
			return r.IsSubtype(ta.Elem, tb.Elem)
		case KindNominal:
			return tb.Name == NameString
		}
	case KindSequence:
		switch tb.Kind {
		case KindSequence:
			for i := range ta.Args {
				if !r.IsSubtype(ta.Args[i], tb.Args[i]) {
					return false
				}
			}
			return true
		case KindNominal:
			switch tb.Name {
			case NameGenerator, NameTraversable, NameIterable, "Iterator":
				return true
			}
		}
	}
	return false
}

func (r Relation) nominalSubtype(sub, super string) bool {
	if sub == super {
		return true
	}
	if r.Hierarchy == nil {
		return false
	}
	if super == NameObject {
		return r.Hierarchy.IsClassLike(sub)
	}
	return r.Hierarchy.Extends(sub, super)
}

// carriesArgs handles a <: Base<Args> where a is not itself an instance of
// Base: a must realise Base with exactly Args.
func (r Relation) carriesArgs(a TypeID, target Type) bool {
	if r.Hierarchy == nil {
		return false
	}
	base, ok := r.Types.Lookup(target.Base)
	if !ok {
		return false
	}
	args, ok := r.Hierarchy.ArgsFor(a, base.Name)
	if !ok {
		return false
	}
	return argsEqual(args, target.Args)
}

func (r Relation) shapeSubtype(a, b Type) bool {
	have := make(map[string]ShapeField, len(a.Fields))
	for _, f := range a.Fields {
		have[f.Key] = f
	}
	for _, want := range b.Fields {
		got, ok := have[want.Key]
		if !ok {
			if want.Optional {
				continue
			}
			return false
		}
		if got.Optional && !want.Optional {
			return false
		}
		if !r.IsSubtype(got.Type, want.Type) {
			return false
		}
	}
	return true
}

// ShapeKeyType returns int for numeric shape keys and string otherwise.
func (in *Interner) ShapeKeyType(key string) TypeID {
	if isIntKey(key) {
		return in.builtins.Int
	}
	return in.builtins.String
}

func isIntKey(key string) bool {
	if key == "" {
		return false
	}
	for i, c := range key {
		if c == '-' && i == 0 && len(key) > 1 {
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func argsEqual(a, b []TypeID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

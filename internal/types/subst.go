package types

// Subst maps template parameter TypeIDs to the types bound to them. It is
// scoped to one declaration activation and never shared between checks.
type Subst map[TypeID]TypeID

// Clone returns an independent copy.
func (s Subst) Clone() Subst {
	out := make(Subst, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Substitute replaces every parameter bound in subst inside id.
func (in *Interner) Substitute(id TypeID, subst Subst) TypeID {
	if len(subst) == 0 || id == NoTypeID {
		return id
	}
	tt, ok := in.Lookup(id)
	if !ok {
		return id
	}
	switch tt.Kind {
	case KindParam:
		if repl, ok := subst[id]; ok && repl != NoTypeID {
			return repl
		}
		return id
	case KindGeneric:
		args, changed := in.substituteAll(tt.Args, subst)
		if !changed {
			return id
		}
		return in.Generic(tt.Base, args...)
	case KindUnion:
		members, changed := in.substituteAll(tt.Args, subst)
		if !changed {
			return id
		}
		return in.Union(members...)
	case KindArray:
		key := in.Substitute(tt.Key, subst)
		elem := in.Substitute(tt.Elem, subst)
		if key == tt.Key && elem == tt.Elem {
			return id
		}
		return in.Array(key, elem)
	case KindShape:
		fields := make([]ShapeField, len(tt.Fields))
		changed := false
		for i, f := range tt.Fields {
			fields[i] = f
			fields[i].Type = in.Substitute(f.Type, subst)
			changed = changed || fields[i].Type != f.Type
		}
		if !changed {
			return id
		}
		return in.Shape(fields)
	case KindClassRef:
		elem := in.Substitute(tt.Elem, subst)
		if elem == tt.Elem {
			return id
		}
		return in.ClassRef(elem)
	case KindSequence:
		slots, changed := in.substituteAll(tt.Args, subst)
		if !changed {
			return id
		}
		return in.Sequence(slots[SeqKey], slots[SeqValue], slots[SeqSend], slots[SeqReturn])
	}
	return id
}

func (in *Interner) substituteAll(ids []TypeID, subst Subst) ([]TypeID, bool) {
	out := make([]TypeID, len(ids))
	changed := false
	for i, id := range ids {
		out[i] = in.Substitute(id, subst)
		changed = changed || out[i] != id
	}
	return out, changed
}

// Walk calls visit for id and every type nested in it, depth first. Returning
// false from visit stops descending into that node.
func (in *Interner) Walk(id TypeID, visit func(TypeID, Type) bool) {
	tt, ok := in.Lookup(id)
	if !ok || !visit(id, tt) {
		return
	}
	switch tt.Kind {
	case KindGeneric:
		in.Walk(tt.Base, visit)
		for _, a := range tt.Args {
			in.Walk(a, visit)
		}
	case KindUnion, KindSequence:
		for _, a := range tt.Args {
			in.Walk(a, visit)
		}
	case KindArray:
		in.Walk(tt.Key, visit)
		in.Walk(tt.Elem, visit)
	case KindShape:
		for _, f := range tt.Fields {
			in.Walk(f.Type, visit)
		}
	case KindClassRef:
		in.Walk(tt.Elem, visit)
	}
}

// Params lists the template parameters referenced by id, in first-seen order.
func (in *Interner) Params(id TypeID) []TypeID {
	var out []TypeID
	seen := make(map[TypeID]struct{})
	in.Walk(id, func(cur TypeID, tt Type) bool {
		if tt.Kind == KindParam {
			if _, dup := seen[cur]; !dup {
				seen[cur] = struct{}{}
				out = append(out, cur)
			}
		}
		return true
	})
	return out
}

// ContainsParam reports whether id mentions any template parameter.
func (in *Interner) ContainsParam(id TypeID) bool {
	return len(in.Params(id)) > 0
}

// FirstUnresolved returns the first unresolved placeholder inside id.
func (in *Interner) FirstUnresolved(id TypeID) (Type, bool) {
	var found Type
	ok := false
	in.Walk(id, func(_ TypeID, tt Type) bool {
		if ok {
			return false
		}
		if tt.Kind == KindUnresolved {
			found, ok = tt, true
			return false
		}
		return true
	})
	return found, ok
}

// Nominals lists every nominal name referenced by id, in first-seen order.
func (in *Interner) Nominals(id TypeID) []string {
	var out []string
	seen := make(map[string]struct{})
	in.Walk(id, func(_ TypeID, tt Type) bool {
		if tt.Kind == KindNominal {
			if _, dup := seen[tt.Name]; !dup {
				seen[tt.Name] = struct{}{}
				out = append(out, tt.Name)
			}
		}
		return true
	})
	return out
}

// ClassRefTargets lists the types used as represented types of class-string
// anywhere inside id.
func (in *Interner) ClassRefTargets(id TypeID) []TypeID {
	var out []TypeID
	in.Walk(id, func(_ TypeID, tt Type) bool {
		if tt.Kind == KindClassRef {
			out = append(out, tt.Elem)
		}
		return true
	})
	return out
}

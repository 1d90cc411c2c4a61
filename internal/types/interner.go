package types

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"fortio.org/safecast"
)

// Builtins stores TypeIDs for common types.
type Builtins struct {
	Invalid  TypeID
	Mixed    TypeID
	Int      TypeID
	String   TypeID
	Bool     TypeID
	Float    TypeID
	Null     TypeID
	Void     TypeID
	Object   TypeID
	ArrayKey TypeID // int|string
	AnyArray TypeID // array<int|string, mixed>
	AnyClass TypeID // class-string<object>
}

// TypeParamInfo stores metadata about a template parameter.
type TypeParamInfo struct {
	Name  string
	Owner string
	Index int
	Bound TypeID // NoTypeID means unbounded (mixed)
}

// Interner provides stable TypeIDs by hashing structural descriptors. It is
// safe for concurrent use: checking interns substituted types while other
// flows read.
type Interner struct {
	mu       sync.RWMutex
	types    []Type
	index    map[string]TypeID
	params   map[TypeID]*TypeParamInfo
	builtins Builtins
}

// NewInterner constructs an interner seeded with built-in types.
func NewInterner() *Interner {
	in := &Interner{
		index:  make(map[string]TypeID, 64),
		params: make(map[TypeID]*TypeParamInfo),
	}
	in.types = append(in.types, Type{Kind: KindInvalid}) // reserve 0
	b := &in.builtins
	b.Mixed = in.internLocked(Type{Kind: KindMixed})
	b.Int = in.internLocked(Type{Kind: KindNominal, Name: NameInt})
	b.String = in.internLocked(Type{Kind: KindNominal, Name: NameString})
	b.Bool = in.internLocked(Type{Kind: KindNominal, Name: NameBool})
	b.Float = in.internLocked(Type{Kind: KindNominal, Name: NameFloat})
	b.Null = in.internLocked(Type{Kind: KindNominal, Name: NameNull})
	b.Void = in.internLocked(Type{Kind: KindNominal, Name: NameVoid})
	b.Object = in.internLocked(Type{Kind: KindNominal, Name: NameObject})
	b.ArrayKey = in.internLocked(in.canonicalUnionLocked([]TypeID{b.Int, b.String}))
	b.AnyArray = in.internLocked(Type{Kind: KindArray, Key: b.ArrayKey, Elem: b.Mixed})
	b.AnyClass = in.internLocked(Type{Kind: KindClassRef, Elem: b.Object})
	return in
}

// Builtins returns TypeIDs for built-in types.
func (in *Interner) Builtins() Builtins {
	return in.builtins
}

// Lookup returns the descriptor for a TypeID.
func (in *Interner) Lookup(id TypeID) (Type, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.lookupLocked(id)
}

// MustLookup panics when id is invalid.
func (in *Interner) MustLookup(id TypeID) Type {
	tt, ok := in.Lookup(id)
	if !ok {
		panic("types: invalid TypeID")
	}
	return tt
}

// Kind returns the kind of id, KindInvalid for unknown IDs.
func (in *Interner) Kind(id TypeID) Kind {
	tt, ok := in.Lookup(id)
	if !ok {
		return KindInvalid
	}
	return tt.Kind
}

// Len returns the number of interned descriptors, including the reserved slot.
func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.types)
}

func (in *Interner) lookupLocked(id TypeID) (Type, bool) {
	if id == NoTypeID || int(id) >= len(in.types) {
		return Type{}, false
	}
	return in.types[id], true
}

// Descriptor helpers ---------------------------------------------------------

// Nominal interns a named class, interface or scalar type.
func (in *Interner) Nominal(name string) TypeID {
	if name == "mixed" {
		return in.builtins.Mixed
	}
	return in.intern(Type{Kind: KindNominal, Name: name})
}

// Generic applies the nominal base to args.
func (in *Interner) Generic(base TypeID, args ...TypeID) TypeID {
	if len(args) == 0 {
		return base
	}
	return in.intern(Type{Kind: KindGeneric, Base: base, Args: slices.Clone(args)})
}

// Array describes array<key, value>. A missing key defaults to int|string and
// a missing value to mixed.
func (in *Interner) Array(key, value TypeID) TypeID {
	if key == NoTypeID {
		key = in.builtins.ArrayKey
	}
	if value == NoTypeID {
		value = in.builtins.Mixed
	}
	return in.intern(Type{Kind: KindArray, Key: key, Elem: value})
}

// Shape describes array{...}.
func (in *Interner) Shape(fields []ShapeField) TypeID {
	return in.intern(Type{Kind: KindShape, Fields: slices.Clone(fields)})
}

// ClassRef describes class-string<of>; a missing target defaults to object.
func (in *Interner) ClassRef(of TypeID) TypeID {
	if of == NoTypeID {
		of = in.builtins.Object
	}
	return in.intern(Type{Kind: KindClassRef, Elem: of})
}

// Sequence describes a coroutine sequence; missing slots default to mixed.
func (in *Interner) Sequence(key, value, send, ret TypeID) TypeID {
	slots := []TypeID{key, value, send, ret}
	for i, s := range slots {
		if s == NoTypeID {
			slots[i] = in.builtins.Mixed
		}
	}
	return in.intern(Type{Kind: KindSequence, Args: slots})
}

// Unresolved is the placeholder for a template parameter nothing could bind.
func (in *Interner) Unresolved(owner, name string) TypeID {
	return in.intern(Type{Kind: KindUnresolved, Owner: owner, Name: name})
}

// Union builds a canonical union: nested unions are flattened, duplicates
// removed, members ordered by rendering; a single member collapses to itself
// and any mixed member collapses the union to mixed.
func (in *Interner) Union(members ...TypeID) TypeID {
	in.mu.Lock()
	defer in.mu.Unlock()
	tt := in.canonicalUnionLocked(members)
	if tt.Kind != KindUnion {
		return tt.Base
	}
	return in.internLocked(tt)
}

// Members returns the members of a union, or id itself for other kinds.
func (in *Interner) Members(id TypeID) []TypeID {
	tt, ok := in.Lookup(id)
	if !ok {
		return nil
	}
	if tt.Kind != KindUnion {
		return []TypeID{id}
	}
	return tt.Args
}

// canonicalUnionLocked returns a KindUnion descriptor, or a KindInvalid
// descriptor whose Base carries the collapsed single type.
func (in *Interner) canonicalUnionLocked(members []TypeID) Type {
	flat := make([]TypeID, 0, len(members))
	seen := make(map[TypeID]struct{}, len(members))
	var add func(id TypeID)
	add = func(id TypeID) {
		tt, ok := in.lookupLocked(id)
		if !ok {
			return
		}
		if tt.Kind == KindUnion {
			for _, m := range tt.Args {
				add(m)
			}
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		flat = append(flat, id)
	}
	for _, m := range members {
		add(m)
	}
	for _, m := range flat {
		if m == in.builtins.Mixed {
			return Type{Base: in.builtins.Mixed}
		}
	}
	switch len(flat) {
	case 0:
		return Type{Base: NoTypeID}
	case 1:
		return Type{Base: flat[0]}
	}
	keys := make(map[TypeID]string, len(flat))
	for _, m := range flat {
		keys[m] = in.formatLocked(m)
	}
	slices.SortFunc(flat, func(a, b TypeID) int {
		if c := strings.Compare(keys[a], keys[b]); c != 0 {
			return c
		}
		return int(a) - int(b)
	})
	return Type{Kind: KindUnion, Args: flat}
}

// Template parameters ------------------------------------------------------

// RegisterTypeParam interns the parameter name of owner at position index.
// Registering the same owner/name twice returns the same TypeID.
func (in *Interner) RegisterTypeParam(owner, name string, index int) TypeID {
	in.mu.Lock()
	defer in.mu.Unlock()
	id := in.internLocked(Type{Kind: KindParam, Owner: owner, Name: name})
	if _, ok := in.params[id]; !ok {
		in.params[id] = &TypeParamInfo{Name: name, Owner: owner, Index: index}
	}
	return id
}

// SetTypeParamBound records the bound of a registered parameter.
func (in *Interner) SetTypeParamBound(param, bound TypeID) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if info, ok := in.params[param]; ok {
		info.Bound = bound
	}
}

// TypeParamInfo returns metadata for the provided template parameter.
func (in *Interner) TypeParamInfo(id TypeID) (TypeParamInfo, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	info, ok := in.params[id]
	if !ok {
		return TypeParamInfo{}, false
	}
	return *info, true
}

// Bound returns the declared bound of param, mixed when unbounded or unknown.
func (in *Interner) Bound(param TypeID) TypeID {
	info, ok := in.TypeParamInfo(param)
	if !ok || info.Bound == NoTypeID {
		return in.builtins.Mixed
	}
	return info.Bound
}

// Interning ------------------------------------------------------------------

func (in *Interner) intern(t Type) TypeID {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.internLocked(t)
}

func (in *Interner) internLocked(t Type) TypeID {
	if t.Kind == KindInvalid {
		return NoTypeID
	}
	key := typeKey(t)
	if id, ok := in.index[key]; ok {
		return id
	}
	lenTypes, err := safecast.Conv[uint32](len(in.types))
	if err != nil {
		panic(fmt.Errorf("len(types) overflow: %w", err))
	}
	id := TypeID(lenTypes)
	in.types = append(in.types, t)
	in.index[key] = id
	return id
}

func typeKey(t Type) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(int(t.Kind)))
	b.WriteByte('|')
	b.WriteString(t.Name)
	b.WriteByte('|')
	b.WriteString(t.Owner)
	for _, id := range []TypeID{t.Base, t.Key, t.Elem} {
		b.WriteByte('|')
		b.WriteString(strconv.FormatUint(uint64(id), 10))
	}
	b.WriteString("|[")
	for _, id := range t.Args {
		b.WriteString(strconv.FormatUint(uint64(id), 10))
		b.WriteByte(',')
	}
	b.WriteString("]{")
	for _, f := range t.Fields {
		b.WriteString(strconv.Quote(f.Key))
		if f.Optional {
			b.WriteByte('?')
		}
		b.WriteByte(':')
		b.WriteString(strconv.FormatUint(uint64(f.Type), 10))
		b.WriteByte(',')
	}
	b.WriteByte('}')
	return b.String()
}

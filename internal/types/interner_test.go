package types

import "testing"

func TestInternerBuiltins(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	if b.Mixed == NoTypeID || b.Int == NoTypeID || b.ArrayKey == NoTypeID {
		t.Fatalf("builtins not initialized")
	}
	mixed, _ := in.Lookup(b.Mixed)
	if mixed.Kind != KindMixed {
		t.Fatalf("expected mixed kind, got %v", mixed.Kind)
	}
	if got := in.Format(b.ArrayKey); got != "int|string" {
		t.Fatalf("expected int|string, got %q", got)
	}
}

func TestInternerDeduplicatesDescriptors(t *testing.T) {
	in := NewInterner()
	person := in.Nominal("Person")
	arr1 := in.Array(in.Builtins().Int, person)
	arr2 := in.Array(in.Builtins().Int, in.Nominal("Person"))
	if arr1 != arr2 {
		t.Fatalf("array types should be deduplicated")
	}
	if in.Array(NoTypeID, person) == arr1 {
		t.Fatalf("value-only array must keep the int|string key")
	}
}

func TestUnionIsCanonical(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	u1 := in.Union(b.String, b.Int)
	u2 := in.Union(b.Int, in.Union(b.String, b.Int))
	if u1 != u2 || u1 != b.ArrayKey {
		t.Fatalf("unions should be flattened and ordered, got %q and %q", in.Format(u1), in.Format(u2))
	}
	if got := in.Union(b.Int); got != b.Int {
		t.Fatalf("single member union should collapse")
	}
	if got := in.Union(b.Int, b.Mixed); got != b.Mixed {
		t.Fatalf("union with mixed should collapse to mixed")
	}
}

func TestTypeParamsAreOwnerScoped(t *testing.T) {
	in := NewInterner()
	t1 := in.RegisterTypeParam("mirror", "T", 0)
	t2 := in.RegisterTypeParam("ValueHolder", "T", 0)
	if t1 == t2 {
		t.Fatalf("params of different owners must differ")
	}
	if again := in.RegisterTypeParam("mirror", "T", 0); again != t1 {
		t.Fatalf("re-registration must be stable")
	}
	if in.Bound(t1) != in.Builtins().Mixed {
		t.Fatalf("unbounded params default to mixed")
	}
	in.SetTypeParamBound(t1, in.Builtins().Object)
	if in.Bound(t1) != in.Builtins().Object {
		t.Fatalf("bound not recorded")
	}
}

func TestFormat(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	param := in.RegisterTypeParam("Map", "K", 0)
	holder := in.Nominal("ValueHolder")
	tests := []struct {
		id   TypeID
		want string
	}{
		{b.AnyArray, "array"},
		{in.Array(NoTypeID, in.Nominal("Person")), "array<int|string, Person>"},
		{in.Generic(holder, b.Int), "ValueHolder<int>"},
		{in.ClassRef(NoTypeID), "class-string"},
		{in.ClassRef(param), "class-string<K>"},
		{in.Sequence(b.Int, b.String, NoTypeID, NoTypeID), "Generator<int, string, mixed, mixed>"},
		{in.Shape([]ShapeField{{Key: "0", Type: b.String}, {Key: "age", Optional: true, Type: b.Int}}), "array{0: string, age?: int}"},
		{in.Generic(in.Nominal("Queue"), in.Unresolved("Queue", "T")), "Queue<?T>"},
	}
	for _, tt := range tests {
		if got := in.Format(tt.id); got != tt.want {
			t.Fatalf("Format = %q, want %q", got, tt.want)
		}
	}
}

func TestSubstitute(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	k := in.RegisterTypeParam("Map", "K", 0)
	v := in.RegisterTypeParam("Map", "V", 1)
	arr := in.Array(k, v)
	got := in.Substitute(arr, Subst{k: b.String, v: in.Nominal("Person")})
	if got != in.Array(b.String, in.Nominal("Person")) {
		t.Fatalf("unexpected substitution %q", in.Format(got))
	}
	partial := in.Substitute(in.Union(k, b.Null), Subst{v: b.Int})
	if partial != in.Union(k, b.Null) {
		t.Fatalf("unbound params must survive substitution")
	}
	if ps := in.Params(in.ClassRef(k)); len(ps) != 1 || ps[0] != k {
		t.Fatalf("expected K to be reported, got %v", ps)
	}
}

package sema

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"gencheck/internal/diag"
	"gencheck/internal/solver"
	"gencheck/internal/source"
	"gencheck/internal/symbols"
	"gencheck/internal/typeparse"
	"gencheck/internal/types"
)

type world struct {
	t   *testing.T
	in  *types.Interner
	tab *symbols.Table
	bag *diag.Bag
}

func newWorld(t *testing.T) *world {
	t.Helper()
	in := types.NewInterner()
	w := &world{t: t, in: in, tab: symbols.NewTable(in, symbols.Options{ObjectBound: solver.ObjectBoundImplicit}), bag: diag.NewBag(0)}
	w.class("Animal", symbols.DeclInterface)
	w.class("Dog", symbols.DeclClass, "Animal")
	w.class("Cat", symbols.DeclClass, "Animal")
	w.class("Car", symbols.DeclClass)
	return w
}

func (w *world) rep() diag.Reporter { return diag.BagReporter{Bag: w.bag} }

func (w *world) ty(src string, scope typeparse.Scope) types.TypeID {
	w.t.Helper()
	id, err := typeparse.Parse(w.in, src, scope)
	if err != nil {
		w.t.Fatalf("parse %q: %v", src, err)
	}
	return id
}

func (w *world) class(name string, kind symbols.DeclKind, supers ...string) {
	w.t.Helper()
	w.tab.Register(symbols.Declaration{Name: name, Kind: kind, Supertypes: supers}, w.rep())
}

// template registers "T" or "T of Bound" specs for owner.
func (w *world) template(owner string, specs ...[2]string) ([]symbols.TemplateParam, typeparse.Params) {
	scope := typeparse.Params{}
	var out []symbols.TemplateParam
	for i, s := range specs {
		id := w.in.RegisterTypeParam(owner, s[0], i)
		scope[s[0]] = id
		tp := symbols.TemplateParam{Name: s[0], Type: id}
		if s[1] != "" {
			tp.Bound = w.ty(s[1], scope)
		}
		out = append(out, tp)
	}
	return out, scope
}

func (w *world) param(name, src string, scope typeparse.Scope) symbols.Param {
	return symbols.Param{Name: name, Type: w.ty(src, scope)}
}

func (w *world) function(name string, tparams [][2]string, params [][2]string, result string) {
	w.t.Helper()
	tps, scope := w.template(name, tparams...)
	sig := symbols.Signature{}
	for _, p := range params {
		sig.Params = append(sig.Params, w.param(p[0], p[1], scope))
	}
	if result != "" {
		sig.Result = w.ty(result, scope)
	}
	if !w.tab.Register(symbols.Declaration{Name: name, Kind: symbols.DeclFunction, TypeParams: tps, Signature: sig}, w.rep()).IsValid() {
		w.t.Fatalf("register %s: %v", name, w.bag.Items())
	}
}

// holders registers ValueHolder<T> { __construct(T $value); getValue(): T }
// and Queue<T> { __construct(); add(T $item); pop(): T }.
func (w *world) holders() {
	tps, scope := w.template("ValueHolder", [2]string{"T", ""})
	w.tab.Register(symbols.Declaration{
		Name:       "ValueHolder",
		Kind:       symbols.DeclClass,
		TypeParams: tps,
		Members: []symbols.Member{
			{Name: symbols.Constructor, Signature: symbols.Signature{Params: []symbols.Param{w.param("value", "T", scope)}}},
			{Name: "getValue", Signature: symbols.Signature{Result: w.ty("T", scope)}},
		},
	}, w.rep())
	tps, scope = w.template("Queue", [2]string{"T", ""})
	w.tab.Register(symbols.Declaration{
		Name:       "Queue",
		Kind:       symbols.DeclClass,
		TypeParams: tps,
		Members: []symbols.Member{
			{Name: symbols.Constructor},
			{Name: "add", Signature: symbols.Signature{Params: []symbols.Param{w.param("item", "T", scope)}}},
			{Name: "pop", Signature: symbols.Signature{Result: w.ty("T", scope)}},
		},
	}, w.rep())
}

func (w *world) check(flow *Flow) Result {
	w.t.Helper()
	w.tab.Freeze()
	res, err := Check(context.Background(), flow, Options{Reporter: w.rep(), Table: w.tab})
	if err != nil {
		w.t.Fatalf("check: %v", err)
	}
	return res
}

func (w *world) codes() []diag.Code {
	var out []diag.Code
	for _, d := range w.bag.Items() {
		out = append(out, d.Code)
	}
	return out
}

func (w *world) wantCodes(want ...diag.Code) {
	w.t.Helper()
	if diff := cmp.Diff(want, w.codes()); diff != "" {
		w.t.Fatalf("codes mismatch (-want +got):\n%s\nall: %v", diff, w.bag.Items())
	}
}

func (w *world) wantVar(res Result, name, want string) {
	w.t.Helper()
	got, ok := res.Vars[name]
	if !ok {
		w.t.Fatalf("$%s not bound", name)
	}
	if s := w.in.Format(got); s != want {
		w.t.Fatalf("$%s: got %s, want %s", name, s, want)
	}
}

func at(line uint32) source.Pos { return source.Pos{File: "flow.php", Line: line, Col: 1} }

func TestConstructorInfersClassTemplate(t *testing.T) {
	w := newWorld(t)
	w.holders()
	dog := w.in.Nominal("Dog")
	res := w.check(&Flow{Sites: []Site{
		{Kind: SiteNew, Loc: at(1), Callee: "ValueHolder", Args: []Operand{TypeOperand(dog)}, Bind: "holder"},
		{Kind: SiteMethod, Loc: at(2), Callee: "getValue", Receiver: VarOperand("holder"), Bind: "$value"},
	}})
	w.wantCodes()
	w.wantVar(res, "holder", "ValueHolder<Dog>")
	w.wantVar(res, "value", "Dog")
}

func TestClassStringRoundTrip(t *testing.T) {
	w := newWorld(t)
	w.function("build", [][2]string{{"T", ""}}, [][2]string{{"class", "class-string<T>"}}, "T")
	res := w.check(&Flow{Sites: []Site{
		{Kind: SiteCall, Loc: at(1), Callee: "build", Args: []Operand{TypeOperand(w.in.ClassRef(w.in.Nominal("Dog")))}, Bind: "dog"},
		{Kind: SiteCall, Loc: at(2), Callee: "build", Args: []Operand{TypeOperand(w.in.Builtins().String)}},
	}})
	w.wantVar(res, "dog", "Dog")
	w.wantCodes(diag.SemaTypeMismatch)
}

func TestUnresolvedTemplateIsReportedAtEachUse(t *testing.T) {
	w := newWorld(t)
	w.holders()
	res := w.check(&Flow{Sites: []Site{
		{Kind: SiteNew, Loc: at(1), Callee: "Queue", Bind: "queue"},
		{Kind: SiteMethod, Loc: at(2), Callee: "add", Receiver: VarOperand("queue"), Args: []Operand{TypeOperand(w.in.Builtins().Int)}},
	}})
	w.wantCodes(diag.SemaUnresolvedTemplate, diag.SemaUnresolvedTemplate)
	w.wantVar(res, "queue", "Queue<?T>")
	if got := w.bag.Items()[0].Param; got != "T" {
		t.Fatalf("param: got %q, want T", got)
	}
}

func TestDeclaredTargetResolvesConstruction(t *testing.T) {
	w := newWorld(t)
	w.holders()
	queueOfInt := w.ty("Queue<int>", nil)
	res := w.check(&Flow{Sites: []Site{
		{Kind: SiteAssign, Loc: at(1), Bind: "queue", Declared: queueOfInt,
			Value: SiteOperand(&Site{Kind: SiteNew, Loc: at(1), Callee: "Queue"})},
		{Kind: SiteMethod, Loc: at(2), Callee: "add", Receiver: VarOperand("queue"), Args: []Operand{TypeOperand(w.in.Builtins().Int)}},
		{Kind: SiteMethod, Loc: at(3), Callee: "add", Receiver: VarOperand("queue"), Args: []Operand{TypeOperand(w.in.Builtins().String)}},
		{Kind: SiteMethod, Loc: at(4), Callee: "pop", Receiver: VarOperand("queue"), Bind: "head"},
	}})
	w.wantCodes(diag.SemaTypeMismatch)
	w.wantVar(res, "head", "int")
	if got := w.bag.Items()[0]; got.Expected != "int" || got.Actual != "string" || got.Primary != at(3) {
		t.Fatalf("unexpected diagnostic: %+v", got)
	}
}

func TestRepeatedParameterMustAgree(t *testing.T) {
	w := newWorld(t)
	w.function("mirror", [][2]string{{"T", ""}}, [][2]string{{"a", "T"}, {"b", "T"}}, "T")
	dog, car, animal := w.in.Nominal("Dog"), w.in.Nominal("Car"), w.in.Nominal("Animal")
	res := w.check(&Flow{Sites: []Site{
		{Kind: SiteCall, Loc: at(1), Callee: "mirror", Args: []Operand{TypeOperand(dog), TypeOperand(dog)}, Bind: "same"},
		{Kind: SiteCall, Loc: at(2), Callee: "mirror", Args: []Operand{TypeOperand(dog), TypeOperand(animal)}, Bind: "wide"},
		{Kind: SiteCall, Loc: at(3), Callee: "mirror", Args: []Operand{TypeOperand(dog), TypeOperand(car)}},
	}})
	w.wantVar(res, "same", "Dog")
	w.wantVar(res, "wide", "Dog")
	w.wantCodes(diag.SemaTypeMismatch, diag.SemaTypeMismatch)
	items := w.bag.Items()
	if items[0].Expected != "Dog" || items[0].Actual != "Animal" || items[0].Primary != at(2) {
		t.Fatalf("unexpected diagnostic: %+v", items[0])
	}
	if items[1].Expected != "Dog" || items[1].Actual != "Car" {
		t.Fatalf("unexpected diagnostic: %+v", items[1])
	}
}

func TestRepeatedParameterDoesNotWidenPastInvariantUse(t *testing.T) {
	w := newWorld(t)
	tps, _ := w.template("Box", [2]string{"T", ""})
	w.tab.Register(symbols.Declaration{Name: "Box", Kind: symbols.DeclClass, TypeParams: tps}, w.rep())
	w.function("put", [][2]string{{"T", ""}}, [][2]string{{"a", "T"}, {"box", "Box<T>"}, {"c", "T"}}, "Box<T>")
	dog, animal := w.in.Nominal("Dog"), w.in.Nominal("Animal")
	boxOfDog := w.ty("Box<Dog>", nil)
	res := w.check(&Flow{Sites: []Site{
		{Kind: SiteCall, Loc: at(1), Callee: "put", Args: []Operand{TypeOperand(dog), TypeOperand(boxOfDog), TypeOperand(animal)}, Bind: "first"},
		{Kind: SiteCall, Loc: at(2), Callee: "put", Args: []Operand{TypeOperand(animal), TypeOperand(boxOfDog), TypeOperand(dog)}, Bind: "second"},
	}})
	w.wantCodes(diag.SemaTypeMismatch, diag.SemaTypeMismatch)
	w.wantVar(res, "first", "Box<Dog>")
	w.wantVar(res, "second", "Box<Animal>")
	items := w.bag.Items()
	if items[0].Message != "argument 3 of put: expected Dog, got Animal" {
		t.Fatalf("first call: %+v", items[0])
	}
	if items[1].Message != "argument 2 of put: expected Box<Animal>, got Box<Dog>" {
		t.Fatalf("second call: %+v", items[1])
	}
}

func TestBoundViolationErasesToBound(t *testing.T) {
	w := newWorld(t)
	w.function("feed", [][2]string{{"T", "Animal"}}, [][2]string{{"animal", "T"}}, "T")
	res := w.check(&Flow{Sites: []Site{
		{Kind: SiteCall, Loc: at(1), Callee: "feed", Args: []Operand{TypeOperand(w.in.Nominal("Car"))}, Bind: "fed"},
		{Kind: SiteCall, Loc: at(2), Callee: "feed"},
		{Kind: SiteCall, Loc: at(3), Callee: "starve"},
	}})
	w.wantCodes(diag.SemaBoundViolation, diag.SemaArityMismatch, diag.SemaUnknownSymbol)
	w.wantVar(res, "fed", "Animal")
	if got := w.bag.Items()[0]; got.Param != "T" || got.Expected != "Animal" || got.Actual != "Car" {
		t.Fatalf("unexpected diagnostic: %+v", got)
	}
}

func TestArrayKeysAndShapes(t *testing.T) {
	w := newWorld(t)
	w.function("first", [][2]string{{"V", ""}}, [][2]string{{"items", "array<int, V>"}}, "V")
	w.function("name", [][2]string{{"V", ""}}, [][2]string{{"row", "array{name: V, age?: int}"}}, "V")
	res := w.check(&Flow{Sites: []Site{
		{Kind: SiteCall, Loc: at(1), Callee: "first", Args: []Operand{TypeOperand(w.ty("list<Dog>", nil))}, Bind: "dog"},
		{Kind: SiteCall, Loc: at(2), Callee: "first", Args: []Operand{TypeOperand(w.ty("array<string, Dog>", nil))}},
		{Kind: SiteCall, Loc: at(3), Callee: "name", Args: []Operand{TypeOperand(w.ty("array{name: string}", nil))}, Bind: "n"},
		{Kind: SiteCall, Loc: at(4), Callee: "name", Args: []Operand{TypeOperand(w.ty("array{age: int}", nil))}},
	}})
	w.wantVar(res, "dog", "Dog")
	w.wantVar(res, "n", "string")
	w.wantCodes(diag.SemaTypeMismatch, diag.SemaTypeMismatch)
}

func TestReceiverKnownFromInstantiation(t *testing.T) {
	w := newWorld(t)
	tps, scope := w.template("AnimalGame", [2]string{"T", "Animal"})
	w.tab.Register(symbols.Declaration{
		Name:       "AnimalGame",
		Kind:       symbols.DeclInterface,
		TypeParams: tps,
		Members:    []symbols.Member{{Name: "play", Signature: symbols.Signature{Params: []symbols.Param{w.param("animal", "T", scope)}}}},
	}, w.rep())
	w.tab.Register(symbols.Declaration{
		Name:       "DogGame",
		Kind:       symbols.DeclClass,
		Supertypes: []string{"AnimalGame"},
		Members:    []symbols.Member{{Name: "play", Signature: symbols.Signature{Params: []symbols.Param{{Name: "animal"}}}}},
	}, w.rep())
	w.tab.RegisterInstantiation(symbols.Instantiation{Subject: "DogGame", Target: "AnimalGame", Args: []types.TypeID{w.in.Nominal("Dog")}}, w.rep())
	game := w.in.Nominal("DogGame")
	w.check(&Flow{Sites: []Site{
		{Kind: SiteMethod, Loc: at(1), Callee: "play", Receiver: TypeOperand(game), Args: []Operand{TypeOperand(w.in.Nominal("Dog"))}},
		{Kind: SiteMethod, Loc: at(2), Callee: "play", Receiver: TypeOperand(game), Args: []Operand{TypeOperand(w.in.Nominal("Cat"))}},
		{Kind: SiteMethod, Loc: at(3), Callee: "jump", Receiver: TypeOperand(game)},
	}})
	w.wantCodes(diag.SemaTypeMismatch, diag.SemaUnknownSymbol)
	if got := w.bag.Items()[0]; got.Expected != "Dog" || got.Actual != "Cat" {
		t.Fatalf("unexpected diagnostic: %+v", got)
	}
}

func TestFlowWithinGenericMethod(t *testing.T) {
	w := newWorld(t)
	tps, scope := w.template("Box", [2]string{"T", ""})
	w.tab.Register(symbols.Declaration{
		Name:       "Box",
		Kind:       symbols.DeclClass,
		TypeParams: tps,
		Members: []symbols.Member{
			{Name: "value", Kind: symbols.MemberProperty, Type: w.ty("T", scope)},
			{Name: "get", Signature: symbols.Signature{Result: w.ty("T", scope)}},
			{Name: "set", Signature: symbols.Signature{Params: []symbols.Param{w.param("value", "T", scope)}, Result: w.in.Builtins().Void}},
		},
	}, w.rep())
	res := w.check(&Flow{Within: "Box::set", Sites: []Site{
		{Kind: SiteSet, Loc: at(1), Callee: "value", Receiver: VarOperand("this"), Value: VarOperand("value")},
		{Kind: SiteSet, Loc: at(2), Callee: "value", Receiver: VarOperand("this"), Value: TypeOperand(w.in.Builtins().Int)},
		{Kind: SiteReturn, Loc: at(3), Value: TypeOperand(w.in.Builtins().Int)},
	}})
	w.wantVar(res, "this", "Box<T>")
	w.wantVar(res, "value", "T")
	w.wantCodes(diag.SemaTypeMismatch, diag.SemaTypeMismatch)
}

func TestIterationAndGenerators(t *testing.T) {
	w := newWorld(t)
	in := w.in
	gen := w.ty("Generator<int, Dog, string, bool>", nil)
	res := w.check(&Flow{Sites: []Site{
		{Kind: SiteIterate, Loc: at(1), Receiver: TypeOperand(w.ty("array<string, Dog>", nil)), KeyVar: "k", ValueVar: "v"},
		{Kind: SiteIterate, Loc: at(2), Receiver: TypeOperand(w.ty("array{a: int, 0: string}", nil)), KeyVar: "sk", ValueVar: "sv"},
		{Kind: SiteIterate, Loc: at(3), Receiver: TypeOperand(gen), KeyVar: "gk", ValueVar: "gv"},
		{Kind: SiteSend, Loc: at(4), Receiver: TypeOperand(gen), Value: TypeOperand(in.Builtins().String), Bind: "next"},
		{Kind: SiteSend, Loc: at(5), Receiver: TypeOperand(gen), Value: TypeOperand(in.Builtins().Int)},
		{Kind: SiteGetReturn, Loc: at(6), Receiver: TypeOperand(gen), Bind: "ret"},
		{Kind: SiteIterate, Loc: at(7), Receiver: TypeOperand(in.Builtins().Int), ValueVar: "bad"},
	}})
	w.wantVar(res, "k", "string")
	w.wantVar(res, "v", "Dog")
	w.wantVar(res, "sk", "int|string")
	w.wantVar(res, "sv", "int|string")
	w.wantVar(res, "gk", "int")
	w.wantVar(res, "gv", "Dog")
	w.wantVar(res, "next", "Dog")
	w.wantVar(res, "ret", "bool")
	w.wantVar(res, "bad", "mixed")
	w.wantCodes(diag.SemaTypeMismatch, diag.SemaTypeMismatch)
}

func TestGeneratorBodyUsesSlots(t *testing.T) {
	w := newWorld(t)
	b := w.in.Builtins()
	w.function("foo", nil, nil, "Generator<int, string, bool, Dog>")
	res := w.check(&Flow{Within: "foo", Sites: []Site{
		{Kind: SiteYield, Loc: at(1), Key: TypeOperand(b.Int), Value: TypeOperand(b.String), Bind: "sent"},
		{Kind: SiteYield, Loc: at(2), Key: TypeOperand(b.String), Value: TypeOperand(b.String)},
		{Kind: SiteYield, Loc: at(3), Value: TypeOperand(w.in.Nominal("Dog"))},
		{Kind: SiteReturn, Loc: at(4), Value: TypeOperand(w.in.Nominal("Dog"))},
		{Kind: SiteReturn, Loc: at(5), Value: TypeOperand(w.in.Nominal("Cat"))},
	}})
	w.wantVar(res, "sent", "bool")
	w.wantCodes(diag.SemaTypeMismatch, diag.SemaTypeMismatch, diag.SemaTypeMismatch)
	want := []string{
		"key yielded by foo: expected int, got string",
		"value yielded by foo: expected string, got Dog",
		"return value of foo: expected Dog, got Cat",
	}
	for i, d := range w.bag.Items() {
		if d.Message != want[i] {
			t.Fatalf("diagnostic %d: got %q, want %q", i, d.Message, want[i])
		}
	}
}

func TestGeneratorReturnWithoutYieldDelegates(t *testing.T) {
	w := newWorld(t)
	w.function("foo", nil, nil, "Generator<int, string, bool, Dog>")
	w.check(&Flow{Within: "foo", Sites: []Site{
		{Kind: SiteReturn, Loc: at(1), Value: TypeOperand(w.ty("Generator<int, string, bool, Dog>", nil))},
		{Kind: SiteReturn, Loc: at(2), Value: TypeOperand(w.in.Nominal("Dog"))},
	}})
	w.wantCodes()
}

func TestYieldOutsideGenerator(t *testing.T) {
	w := newWorld(t)
	w.function("plain", nil, nil, "int")
	w.check(&Flow{Within: "plain", Sites: []Site{
		{Kind: SiteYield, Loc: at(1), Value: TypeOperand(w.in.Builtins().Int)},
	}})
	w.check(&Flow{Sites: []Site{
		{Kind: SiteYield, Loc: at(2), Value: TypeOperand(w.in.Builtins().Int)},
	}})
	w.wantCodes(diag.SemaTypeMismatch, diag.SemaUnknownSymbol)
}

func TestUndefinedVariable(t *testing.T) {
	w := newWorld(t)
	w.check(&Flow{Sites: []Site{{Kind: SiteMethod, Loc: at(1), Callee: "x", Receiver: VarOperand("nope")}}})
	w.wantCodes(diag.SemaUnknownSymbol)
}

func TestCheckHonoursCancellation(t *testing.T) {
	w := newWorld(t)
	w.tab.Freeze()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Check(ctx, &Flow{Sites: []Site{{Kind: SiteCall, Callee: "x"}}}, Options{Table: w.tab})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

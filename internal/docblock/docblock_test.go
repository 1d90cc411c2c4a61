package docblock

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseClassAndMethodTags(t *testing.T) {
	doc, errs := Parse(`/**
 * Plays with animals.
 *
 * @template T of Animal
 * @template-covariant U
 * @psalm-template K as array-key
 * @implements AnimalGame<Dog>
 * @extends Base<array<int, string>, T>
 * @param T $animal the animal
 * @param array{name: string, age?: int} $row
 * @param int | string ...$ids
 * @return ?T
 * @see Something
 */`)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	want := []Tag{
		{Kind: TagTemplate, Line: 3, Name: "T", Type: "Animal"},
		{Kind: TagTemplate, Line: 4, Name: "U", Covariant: true},
		{Kind: TagTemplate, Line: 5, Name: "K", Type: "array-key"},
		{Kind: TagImplements, Line: 6, Type: "AnimalGame<Dog>"},
		{Kind: TagExtends, Line: 7, Type: "Base<array<int, string>, T>"},
		{Kind: TagParam, Line: 8, Name: "animal", Type: "T"},
		{Kind: TagParam, Line: 9, Name: "row", Type: "array{name: string, age?: int}"},
		{Kind: TagParam, Line: 10, Name: "ids", Type: "int|string", Variadic: true},
		{Kind: TagReturn, Line: 11, Type: "?T"},
	}
	if diff := cmp.Diff(want, doc.Tags); diff != "" {
		t.Fatalf("tags mismatch (-want +got):\n%s", diff)
	}
	if p, ok := doc.Param("$row"); !ok || p.Line != 9 {
		t.Fatalf("Param($row) = %+v, %v", p, ok)
	}
	if len(doc.Templates()) != 3 || len(doc.Implements()) != 1 || len(doc.Extends()) != 1 {
		t.Fatalf("unexpected grouping: %+v", doc)
	}
}

func TestParseInlineVar(t *testing.T) {
	doc, errs := Parse("/** @var Queue<int> $queue */")
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	v, ok := doc.Var()
	if !ok || v.Type != "Queue<int>" || v.Name != "queue" {
		t.Fatalf("Var() = %+v, %v", v, ok)
	}
	if _, ok := doc.Return(); ok {
		t.Fatalf("no @return expected")
	}
}

func TestParseReportsMalformedTags(t *testing.T) {
	_, errs := Parse(`/**
 * @param $animal
 * @return array<int, string
 * @template 1T
 * @template T of
 * @var
 * @param T $ok
 */`)
	var lines []int
	for _, err := range errs {
		var e *Error
		if !errors.As(err, &e) {
			t.Fatalf("expected *Error, got %T", err)
		}
		lines = append(lines, e.Line)
	}
	if diff := cmp.Diff([]int{1, 2, 3, 4, 5}, lines); diff != "" {
		t.Fatalf("error lines mismatch (-want +got):\n%s", diff)
	}
}

package types

import "fmt"

// TypeID uniquely identifies a type inside the interner.
type TypeID uint32

// NoTypeID marks the absence of a type.
const NoTypeID TypeID = 0

// Kind enumerates all supported kinds of types.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindMixed
	KindNominal
	KindGeneric
	KindParam
	KindUnion
	KindArray
	KindShape
	KindClassRef
	KindSequence
	KindUnresolved
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindMixed:
		return "mixed"
	case KindNominal:
		return "nominal"
	case KindGeneric:
		return "generic"
	case KindParam:
		return "param"
	case KindUnion:
		return "union"
	case KindArray:
		return "array"
	case KindShape:
		return "shape"
	case KindClassRef:
		return "class-string"
	case KindSequence:
		return "sequence"
	case KindUnresolved:
		return "unresolved"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Sequence slot indexes inside Type.Args of a KindSequence descriptor.
const (
	SeqKey = iota
	SeqValue
	SeqSend
	SeqReturn
	seqSlots
)

// ShapeField is one entry of an array shape.
type ShapeField struct {
	Key      string
	Optional bool
	Type     TypeID
}

// Type is an immutable structural descriptor. Slices are shared with the
// interner and must not be modified.
type Type struct {
	Kind   Kind
	Name   string       // nominal name; param / unresolved param name
	Owner  string       // declaring symbol for params and unresolved params
	Base   TypeID       // generic base (a nominal)
	Key    TypeID       // array key
	Elem   TypeID       // array value, class-string target
	Args   []TypeID     // generic arguments, union members, sequence slots
	Fields []ShapeField // shape entries in declaration order
}

// Well-known nominal names.
const (
	NameInt         = "int"
	NameString      = "string"
	NameBool        = "bool"
	NameFloat       = "float"
	NameNull        = "null"
	NameVoid        = "void"
	NameObject      = "object"
	NameGenerator   = "Generator"
	NameTraversable = "Traversable"
	NameIterable    = "iterable"
)

// IsBuiltinName reports whether name is a scalar or pseudo type that needs no
// declaration.
func IsBuiltinName(name string) bool {
	switch name {
	case NameInt, NameString, NameBool, NameFloat, NameNull, NameVoid, NameObject,
		NameGenerator, NameTraversable, NameIterable, "mixed", "array":
		return true
	}
	return false
}

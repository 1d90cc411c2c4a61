package symbols

import (
	"gencheck/internal/source"
	"gencheck/internal/types"
)

// DeclID identifies a declaration in the table arena.
type DeclID uint32

// NoDeclID marks the absence of a declaration.
const NoDeclID DeclID = 0

// IsValid reports whether id refers to a registered declaration.
func (id DeclID) IsValid() bool { return id != NoDeclID }

// DeclKind classifies a declaration.
type DeclKind uint8

const (
	DeclInvalid DeclKind = iota
	DeclFunction
	DeclClass
	DeclInterface
)

func (k DeclKind) String() string {
	switch k {
	case DeclFunction:
		return "function"
	case DeclClass:
		return "class"
	case DeclInterface:
		return "interface"
	default:
		return "invalid"
	}
}

// ParseDeclKind maps "function", "class" and "interface" to a kind.
func ParseDeclKind(s string) (DeclKind, bool) {
	switch s {
	case "function", "func":
		return DeclFunction, true
	case "class":
		return DeclClass, true
	case "interface":
		return DeclInterface, true
	}
	return DeclInvalid, false
}

// TemplateParam is one template parameter. Type is the interned KindParam
// type; Bound is the written bound or NoTypeID.
type TemplateParam struct {
	Name  string
	Type  types.TypeID
	Bound types.TypeID
	Loc   source.Pos
}

// Param is a function or method parameter.
type Param struct {
	Name     string
	Type     types.TypeID // annotated; NoTypeID when absent
	Native   types.TypeID // native hint; NoTypeID when absent
	Optional bool
	Variadic bool
	Loc      source.Pos
}

// Effective returns the annotated type, else the native hint, else NoTypeID.
func (p Param) Effective() types.TypeID {
	if p.Type != types.NoTypeID {
		return p.Type
	}
	return p.Native
}

// Signature describes parameters and result of a callable.
type Signature struct {
	Params       []Param
	Result       types.TypeID
	NativeResult types.TypeID
	Loc          source.Pos
}

// EffectiveResult returns the annotated result, else the native one.
func (s Signature) EffectiveResult() types.TypeID {
	if s.Result != types.NoTypeID {
		return s.Result
	}
	return s.NativeResult
}

// MemberKind distinguishes methods from properties.
type MemberKind uint8

const (
	MemberMethod MemberKind = iota
	MemberProperty
)

func (k MemberKind) String() string {
	if k == MemberProperty {
		return "property"
	}
	return "method"
}

// Constructor is the member name used for constructors.
const Constructor = "__construct"

// Member is a method or property of a class-like declaration.
type Member struct {
	Name       string
	Kind       MemberKind
	TypeParams []TemplateParam
	Signature  Signature
	Type       types.TypeID // property annotation
	Native     types.TypeID // property native hint
	Loc        source.Pos
}

// EffectiveType returns the property's annotated type, else its native hint.
func (m *Member) EffectiveType() types.TypeID {
	if m.Type != types.NoTypeID {
		return m.Type
	}
	return m.Native
}

// Declaration is a function, class or interface with its template
// parameters. Subst is attached by successful instantiation registration and
// binds the template parameters of the subject's generic ancestors.
type Declaration struct {
	ID         DeclID
	Name       string
	Kind       DeclKind
	TypeParams []TemplateParam
	Supertypes []string
	Signature  Signature
	Members    []Member
	Loc        source.Pos
	Subst      types.Subst
}

// IsClassLike reports whether the declaration is a class or interface.
func (d *Declaration) IsClassLike() bool {
	return d.Kind == DeclClass || d.Kind == DeclInterface
}

// Params returns the template parameter types in order.
func (d *Declaration) Params() []types.TypeID {
	out := make([]types.TypeID, len(d.TypeParams))
	for i, tp := range d.TypeParams {
		out[i] = tp.Type
	}
	return out
}

// Member returns the member of the given kind declared directly on d.
// Properties and methods live in separate namespaces.
func (d *Declaration) Member(name string, kind MemberKind) *Member {
	for i := range d.Members {
		if d.Members[i].Name == name && d.Members[i].Kind == kind {
			return &d.Members[i]
		}
	}
	return nil
}

// InstRelation records how an instantiation was declared.
type InstRelation uint8

const (
	RelImplements InstRelation = iota
	RelExtends
)

func (r InstRelation) String() string {
	if r == RelExtends {
		return "extends"
	}
	return "implements"
}

// Instantiation is a fixed parameterisation of Target declared by Subject,
// e.g. "DogGame implements AnimalGame<Dog>".
type Instantiation struct {
	Subject  string
	Target   string
	Args     []types.TypeID
	Relation InstRelation
	Loc      source.Pos
}

// MethodOwner names the template owner of a method's own parameters.
func MethodOwner(class, method string) string {
	return class + "::" + method
}

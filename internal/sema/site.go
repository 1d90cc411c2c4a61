package sema

import (
	"gencheck/internal/diag"
	"gencheck/internal/source"
	"gencheck/internal/types"
)

// SiteKind classifies a use site.
type SiteKind uint8

const (
	SiteInvalid   SiteKind = iota
	SiteCall               // f(args)
	SiteNew                // new C(args)
	SiteMethod             // $recv->m(args)
	SiteGet                // $recv->prop
	SiteSet                // $recv->prop = value
	SiteIterate            // foreach ($recv as $key => $value)
	SiteSend               // $recv->send(value)
	SiteGetReturn          // $recv->getReturn()
	SiteAssign             // $bind = value, optionally under @var
	SiteReturn             // return value
	SiteYield              // $bind = yield key => value
)

var siteKindNames = [...]string{
	SiteInvalid:   "invalid",
	SiteCall:      "call",
	SiteNew:       "new",
	SiteMethod:    "method",
	SiteGet:       "get",
	SiteSet:       "set",
	SiteIterate:   "iterate",
	SiteSend:      "send",
	SiteGetReturn: "getReturn",
	SiteAssign:    "assign",
	SiteReturn:    "return",
	SiteYield:     "yield",
}

func (k SiteKind) String() string {
	if int(k) < len(siteKindNames) {
		return siteKindNames[k]
	}
	return "invalid"
}

// ParseSiteKind maps a site kind name to its value.
func ParseSiteKind(s string) (SiteKind, bool) {
	for k, name := range siteKindNames {
		if k != int(SiteInvalid) && name == s {
			return SiteKind(k), true
		}
	}
	return SiteInvalid, false
}

// OperandKind classifies an operand.
type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandType             // a value of a known type
	OperandVar              // a variable of the flow
	OperandSite             // the result of a nested site
)

// Operand is an argument, receiver or assigned value.
type Operand struct {
	Kind OperandKind
	Type types.TypeID
	Var  string
	Site *Site
}

func TypeOperand(id types.TypeID) Operand { return Operand{Kind: OperandType, Type: id} }
func VarOperand(name string) Operand      { return Operand{Kind: OperandVar, Var: name} }
func SiteOperand(s *Site) Operand         { return Operand{Kind: OperandSite, Site: s} }

// Site is one use site. Which fields apply depends on Kind: Callee names the
// function, class or member; Receiver is the object, iterable or sequence;
// Value is what an assign, set, send, return or yield consumes. Key is the
// key of a yield.
type Site struct {
	Kind     SiteKind
	Loc      source.Pos
	Callee   string
	Receiver Operand
	Args     []Operand
	Value    Operand
	Key      Operand
	Bind     string
	Declared types.TypeID
	KeyVar   string
	ValueVar string
	// Expect lists the codes a fixture expects at this site; the checker
	// ignores it.
	Expect []diag.Code
}

// Flow is an ordered list of sites sharing one variable environment. Within
// names the enclosing function or "Class::method" whose parameters, $this and
// return type are in scope.
type Flow struct {
	Name   string
	Within string
	Loc    source.Pos
	Sites  []Site
}

package diag

import (
	"fmt"
	"strings"
)

type Code uint16

const (
	UnknownCode Code = 0

	// type expression & docblock syntax
	SynInfoTypeExpr Code = 2200
	SynBadTypeExpr  Code = 2201
	SynBadDocTag    Code = 2202

	// semantic
	SemaInfo               Code = 3000
	SemaBoundViolation     Code = 3001
	SemaTypeMismatch       Code = 3002
	SemaUnresolvedTemplate Code = 3003
	SemaArityMismatch      Code = 3004
	SemaUnknownType        Code = 3005
	SemaUnknownSymbol      Code = 3006
	SemaDuplicateSymbol    Code = 3007

	// I/O
	IOLoadFileError Code = 4001

	// project / config
	ProjInvalidConfig Code = 5001
)

var codeDescription = map[Code]string{
	UnknownCode:            "Unknown error",
	SynInfoTypeExpr:        "Type expression information",
	SynBadTypeExpr:         "Malformed type expression",
	SynBadDocTag:           "Malformed docblock tag",
	SemaInfo:               "Semantic information",
	SemaBoundViolation:     "Template bound violation",
	SemaTypeMismatch:       "Type mismatch",
	SemaUnresolvedTemplate: "Unresolved template parameter",
	SemaArityMismatch:      "Argument count mismatch",
	SemaUnknownType:        "Unknown type",
	SemaUnknownSymbol:      "Unknown symbol",
	SemaDuplicateSymbol:    "Duplicate declaration",
	IOLoadFileError:        "I/O load file error",
	ProjInvalidConfig:      "Invalid project configuration",
}

// kindNames are the stable, spelled-out kinds used by fixtures and JSON output.
var kindNames = map[Code]string{
	SynBadTypeExpr:         "bad-type",
	SynBadDocTag:           "bad-doc-tag",
	SemaBoundViolation:     "bound-violation",
	SemaTypeMismatch:       "type-mismatch",
	SemaUnresolvedTemplate: "unresolved-template",
	SemaArityMismatch:      "arity-mismatch",
	SemaUnknownType:        "unknown-type",
	SemaUnknownSymbol:      "unknown-symbol",
	SemaDuplicateSymbol:    "duplicate-symbol",
	IOLoadFileError:        "io-error",
	ProjInvalidConfig:      "config-error",
}

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("SYN%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("SEM%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("IO%04d", ic)
	case ic >= 5000 && ic < 6000:
		return fmt.Sprintf("PRJ%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[Code(0)]
	}
	return desc
}

// Kind returns the kebab-case kind name, e.g. "type-mismatch".
func (c Code) Kind() string {
	if name, ok := kindNames[c]; ok {
		return name
	}
	return "unknown"
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}

// ParseCode accepts either a kind name ("type-mismatch") or an ID ("SEM3002").
func ParseCode(s string) (Code, bool) {
	s = strings.TrimSpace(s)
	for code, name := range kindNames {
		if strings.EqualFold(name, s) || strings.EqualFold(code.ID(), s) {
			return code, true
		}
	}
	return UnknownCode, false
}

package diag

import "gencheck/internal/source"

type Note struct {
	Pos source.Pos
	Msg string
}

// Diagnostic is one finding. Expected, Actual and Param carry the rendered
// types and template parameter name the finding is about; any of them may be
// empty.
type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Primary  source.Pos
	Expected string
	Actual   string
	Param    string
	Notes    []Note
}

func New(sev Severity, code Code, primary source.Pos, msg string) Diagnostic {
	return Diagnostic{
		Severity: sev,
		Code:     code,
		Primary:  primary,
		Message:  msg,
	}
}

func NewError(code Code, primary source.Pos, msg string) Diagnostic {
	return New(SevError, code, primary, msg)
}

func (d Diagnostic) WithNote(pos source.Pos, msg string) Diagnostic {
	d.Notes = append(d.Notes, Note{Pos: pos, Msg: msg})
	return d
}

// WithTypes records the expected and actual types.
func (d Diagnostic) WithTypes(expected, actual string) Diagnostic {
	d.Expected = expected
	d.Actual = actual
	return d
}

func (d Diagnostic) WithParam(name string) Diagnostic {
	d.Param = name
	return d
}

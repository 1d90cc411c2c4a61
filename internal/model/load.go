package model

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"gencheck/internal/symbols"
)

// ValidationError aggregates structural problems of a model file.
type ValidationError struct {
	Path   string
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return fmt.Sprintf("model %s: invalid", e.Path)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "model %s is invalid:", e.Path)
	for _, issue := range e.Issues {
		b.WriteString("\n- ")
		b.WriteString(issue)
	}
	return b.String()
}

// Load reads and decodes the model file at path.
func Load(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("model: read %s: %w", path, err)
	}
	return Decode(path, data)
}

// Decode decodes a model file's contents. Unknown fields are rejected.
func Decode(path string, data []byte) (*Program, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var prog Program
	if err := dec.Decode(&prog); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("model: %s is empty", path)
		}
		return nil, fmt.Errorf("model: parse %s: %w", path, err)
	}
	prog.Path = path
	if err := prog.validate(); err != nil {
		return nil, err
	}
	return &prog, nil
}

func (p *Program) validate() error {
	errs := ValidationError{Path: p.Path}
	issue := func(line int, format string, args ...any) {
		errs.Issues = append(errs.Issues, fmt.Sprintf("line %d: ", line)+fmt.Sprintf(format, args...))
	}
	for _, d := range p.Declarations {
		if d.Name == "" {
			issue(d.Line, "declaration without a name")
		}
		kind, ok := symbols.ParseDeclKind(d.Kind)
		if !ok {
			issue(d.Line, "declaration %s has unsupported kind %q", d.Name, d.Kind)
			continue
		}
		if kind == symbols.DeclFunction && (len(d.Methods) > 0 || len(d.Properties) > 0) {
			issue(d.Line, "function %s cannot have members", d.Name)
		}
		if kind != symbols.DeclFunction && (len(d.Params) > 0 || d.Return != "" || d.NativeReturn != "") {
			issue(d.Line, "%s %s has a signature; declare a method instead", d.Kind, d.Name)
		}
		for _, m := range d.Methods {
			if m.Name == "" {
				issue(m.Line, "method of %s without a name", d.Name)
			}
		}
		for _, pr := range d.Properties {
			if pr.Name == "" {
				issue(pr.Line, "property of %s without a name", d.Name)
			}
		}
	}
	for _, f := range p.Flows {
		for i := range f.Sites {
			validateSite(&f.Sites[i], issue)
		}
	}
	if len(errs.Issues) > 0 {
		return &errs
	}
	return nil
}

func validateSite(s *SiteSpec, issue func(int, string, ...any)) {
	kinds := s.Kinds()
	switch len(kinds) {
	case 0:
		issue(s.Line, "site has no kind; use one of call, new, method, get, set, iterate, send, get-return, assign, return, yield")
	case 1:
	default:
		issue(s.Line, "site has several kinds: %s", strings.Join(kinds, ", "))
	}
	if (s.Method != "" || s.Get != "" || s.Set != "") && s.On == nil {
		issue(s.Line, "%s site needs a receiver (on)", kinds[0])
	}
	if (s.Set != "" || s.Send != nil || s.Assign != "") && s.Value == nil {
		issue(s.Line, "%s site needs a value", kinds[0])
	}
	operands := append([]Operand(nil), s.Args...)
	if s.YieldKey != nil && s.Yield == nil {
		issue(s.Line, "yield-key needs a yield site")
	}
	for _, op := range []*Operand{s.Iterate, s.Send, s.GetReturn, s.Return, s.Yield, s.YieldKey, s.On, s.Value} {
		if op != nil {
			operands = append(operands, *op)
		}
	}
	for _, op := range operands {
		if op.Site != nil {
			validateSite(op.Site, issue)
		}
	}
}

// Package model is the YAML front end: a resolved program of declarations
// and flows of use sites, decoded with gopkg.in/yaml.v3 and lowered into
// registry declarations and sema flows.
package model

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"gencheck/internal/diag"
)

// Program is one decoded model file.
type Program struct {
	Path         string     `yaml:"-"`
	Declarations []Decl     `yaml:"declarations"`
	Flows        []FlowSpec `yaml:"flows"`
}

// Decl is a function, class or interface. Templates, Implement and Extend
// mirror the structured attribute form; Doc carries the docblock form and
// fills whatever the structured fields leave out.
type Decl struct {
	Name       string         `yaml:"name"`
	Kind       string         `yaml:"kind"`
	Doc        string         `yaml:"doc"`
	Templates  []TemplateSpec `yaml:"templates"`
	Extends    []string       `yaml:"extends"`
	Implements []string       `yaml:"implements"`
	Implement  []TypeRef      `yaml:"implement"`
	Extend     []TypeRef      `yaml:"extend"`

	// Function signature.
	Params       []ParamSpec `yaml:"params"`
	Return       string      `yaml:"return"`
	NativeReturn string      `yaml:"native-return"`

	Methods    []MethodSpec   `yaml:"methods"`
	Properties []PropertySpec `yaml:"properties"`

	Expect Codes `yaml:"expect"`
	Mark   `yaml:"-"`
}

// TemplateSpec is Template{name, of}.
type TemplateSpec struct {
	Name   string `yaml:"name"`
	Of     string `yaml:"of"`
	Expect Codes  `yaml:"expect"`
	Mark   `yaml:"-"`
}

// TypeRef is Type{type}, Implement{type} or Extend{type}.
type TypeRef struct {
	Type   string `yaml:"type"`
	Expect Codes  `yaml:"expect"`
	Mark   `yaml:"-"`
}

// ParamSpec is one parameter. Type is the annotation, Native the native
// hint.
type ParamSpec struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Native   string `yaml:"native"`
	Optional bool   `yaml:"optional"`
	Variadic bool   `yaml:"variadic"`
	Expect   Codes  `yaml:"expect"`
	Mark     `yaml:"-"`
}

// MethodSpec is a method; the constructor is named __construct.
type MethodSpec struct {
	Name         string         `yaml:"name"`
	Doc          string         `yaml:"doc"`
	Templates    []TemplateSpec `yaml:"templates"`
	Params       []ParamSpec    `yaml:"params"`
	Return       string         `yaml:"return"`
	NativeReturn string         `yaml:"native-return"`
	Expect       Codes          `yaml:"expect"`
	Mark         `yaml:"-"`
}

// PropertySpec is a property with an annotated and a native type.
type PropertySpec struct {
	Name   string `yaml:"name"`
	Doc    string `yaml:"doc"`
	Type   string `yaml:"type"`
	Native string `yaml:"native"`
	Expect Codes  `yaml:"expect"`
	Mark   `yaml:"-"`
}

// FlowSpec is an ordered list of sites sharing variables, optionally
// running inside a function or "Class::method".
type FlowSpec struct {
	Name   string     `yaml:"name"`
	Within string     `yaml:"within"`
	Sites  []SiteSpec `yaml:"sites"`
	Mark   `yaml:"-"`
}

// SiteSpec is one use site. Exactly one of the kind keys is set: call, new,
// method, get, set name the callee; iterate, send, get-return name the
// receiver; assign names the bound variable; return and yield hold the value.
type SiteSpec struct {
	Call      string   `yaml:"call"`
	New       string   `yaml:"new"`
	Method    string   `yaml:"method"`
	Get       string   `yaml:"get"`
	Set       string   `yaml:"set"`
	Iterate   *Operand `yaml:"iterate"`
	Send      *Operand `yaml:"send"`
	GetReturn *Operand `yaml:"get-return"`
	Assign    string   `yaml:"assign"`
	Return    *Operand `yaml:"return"`
	Yield     *Operand `yaml:"yield"`

	On    *Operand  `yaml:"on"`
	Args  []Operand `yaml:"args"`
	Value *Operand  `yaml:"value"`
	// YieldKey is the key of a yield site.
	YieldKey *Operand `yaml:"yield-key"`
	Bind     string   `yaml:"bind"`
	// Var is the declared type, as an inline @var; Doc may carry it instead.
	Var    string `yaml:"var"`
	Doc    string `yaml:"doc"`
	Key    string `yaml:"key"`
	As     string `yaml:"as"`
	Expect Codes  `yaml:"expect"`

	Mark `yaml:"-"`
}

// Kinds lists the kind keys set on s.
func (s *SiteSpec) Kinds() []string {
	var out []string
	add := func(set bool, name string) {
		if set {
			out = append(out, name)
		}
	}
	add(s.Call != "", "call")
	add(s.New != "", "new")
	add(s.Method != "", "method")
	add(s.Get != "", "get")
	add(s.Set != "", "set")
	add(s.Iterate != nil, "iterate")
	add(s.Send != nil, "send")
	add(s.GetReturn != nil, "get-return")
	add(s.Assign != "", "assign")
	add(s.Return != nil, "return")
	add(s.Yield != nil, "yield")
	return out
}

// Operand is a literal type, a variable or a nested site. Scalars starting
// with "$" are variables and other scalars are types; a mapping holds
// {type: ...}, {var: ...} or a nested site.
type Operand struct {
	Type string
	Var  string
	Site *SiteSpec
	Mark
}

// Codes is a list of expected diagnostic codes, by ID or kind name.
type Codes []diag.Code

// Mark is the position of a node in its file, filled during decoding.
type Mark struct {
	Line   int
	Column int
	// DocLine is the line of the first docblock line, when Doc is set.
	DocLine int
}

func (m *Mark) mark(n *yaml.Node) {
	m.Line, m.Column = n.Line, n.Column
	if n.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value != "doc" {
			continue
		}
		v := n.Content[i+1]
		m.DocLine = v.Line
		if v.Style&(yaml.LiteralStyle|yaml.FoldedStyle) != 0 {
			m.DocLine++
		}
	}
}

func (d *Decl) UnmarshalYAML(n *yaml.Node) error {
	type plain Decl
	if err := decodeStrict(n, (*plain)(d)); err != nil {
		return err
	}
	d.mark(n)
	return nil
}

func (t *TemplateSpec) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		// "T" or "T of Bound"
		name, bound, _ := strings.Cut(n.Value, " of ")
		t.Name, t.Of = strings.TrimSpace(name), strings.TrimSpace(bound)
		t.mark(n)
		return nil
	}
	type plain TemplateSpec
	if err := decodeStrict(n, (*plain)(t)); err != nil {
		return err
	}
	t.mark(n)
	return nil
}

func (r *TypeRef) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		r.Type = n.Value
		r.mark(n)
		return nil
	}
	type plain TypeRef
	if err := decodeStrict(n, (*plain)(r)); err != nil {
		return err
	}
	r.mark(n)
	return nil
}

func (p *ParamSpec) UnmarshalYAML(n *yaml.Node) error {
	type plain ParamSpec
	if err := decodeStrict(n, (*plain)(p)); err != nil {
		return err
	}
	p.mark(n)
	return nil
}

func (m *MethodSpec) UnmarshalYAML(n *yaml.Node) error {
	type plain MethodSpec
	if err := decodeStrict(n, (*plain)(m)); err != nil {
		return err
	}
	m.mark(n)
	return nil
}

func (p *PropertySpec) UnmarshalYAML(n *yaml.Node) error {
	type plain PropertySpec
	if err := decodeStrict(n, (*plain)(p)); err != nil {
		return err
	}
	p.mark(n)
	return nil
}

func (f *FlowSpec) UnmarshalYAML(n *yaml.Node) error {
	type plain FlowSpec
	if err := decodeStrict(n, (*plain)(f)); err != nil {
		return err
	}
	f.mark(n)
	return nil
}

func (s *SiteSpec) UnmarshalYAML(n *yaml.Node) error {
	type plain SiteSpec
	if err := decodeStrict(n, (*plain)(s)); err != nil {
		return err
	}
	s.mark(n)
	return nil
}

func (o *Operand) UnmarshalYAML(n *yaml.Node) error {
	o.mark(n)
	switch n.Kind {
	case yaml.ScalarNode:
		if strings.HasPrefix(n.Value, "$") {
			o.Var = n.Value
		} else {
			o.Type = n.Value
		}
		return nil
	case yaml.MappingNode:
		var ref struct {
			Type string `yaml:"type"`
			Var  string `yaml:"var"`
		}
		if len(n.Content) == 2 {
			switch n.Content[0].Value {
			case "type", "var":
				if err := n.Decode(&ref); err != nil {
					return err
				}
				o.Type, o.Var = ref.Type, ref.Var
				return nil
			}
		}
		o.Site = new(SiteSpec)
		return decodeStrict(n, o.Site)
	}
	return fmt.Errorf("line %d: operand must be a scalar or a mapping", n.Line)
}

func (c *Codes) UnmarshalYAML(n *yaml.Node) error {
	var raw []string
	if n.Kind == yaml.ScalarNode {
		raw = []string{n.Value}
	} else if err := n.Decode(&raw); err != nil {
		return err
	}
	for _, s := range raw {
		code, ok := diag.ParseCode(s)
		if !ok {
			return fmt.Errorf("line %d: unknown diagnostic code %q", n.Line, s)
		}
		*c = append(*c, code)
	}
	return nil
}

var knownFields sync.Map // reflect.Type -> map[string]bool

// decodeStrict decodes n into v, rejecting mapping keys v has no field for.
// Decoders called from UnmarshalYAML do not inherit KnownFields.
func decodeStrict(n *yaml.Node, v any) error {
	if n.Kind == yaml.MappingNode {
		t := reflect.TypeOf(v).Elem()
		known := fieldsOf(t)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			if !known[k.Value] {
				return fmt.Errorf("line %d: field %s not found in %s", k.Line, k.Value, strings.TrimSuffix(t.Name(), "Spec"))
			}
		}
	}
	return n.Decode(v)
}

func fieldsOf(t reflect.Type) map[string]bool {
	if cached, ok := knownFields.Load(t); ok {
		return cached.(map[string]bool)
	}
	names := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		switch {
		case name == "-" || !f.IsExported():
		case name == "":
			names[strings.ToLower(f.Name)] = true
		default:
			names[name] = true
		}
	}
	knownFields.Store(t, names)
	return names
}

// Package docblock extracts annotation tags from doc comments:
// @template, @param, @return, @var, @implements and @extends. Type text is
// returned verbatim; typeparse turns it into types.
package docblock

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TagKind identifies a recognised tag.
type TagKind uint8

const (
	TagTemplate TagKind = iota + 1
	TagParam
	TagReturn
	TagVar
	TagImplements
	TagExtends
)

func (k TagKind) String() string {
	switch k {
	case TagTemplate:
		return "@template"
	case TagParam:
		return "@param"
	case TagReturn:
		return "@return"
	case TagVar:
		return "@var"
	case TagImplements:
		return "@implements"
	case TagExtends:
		return "@extends"
	default:
		return fmt.Sprintf("TagKind(%d)", k)
	}
}

// tagNames maps tag spellings, after any tool prefix, to kinds.
var tagNames = map[string]TagKind{
	"template":            TagTemplate,
	"template-covariant":  TagTemplate,
	"param":               TagParam,
	"return":              TagReturn,
	"var":                 TagVar,
	"implements":          TagImplements,
	"template-implements": TagImplements,
	"extends":             TagExtends,
	"template-extends":    TagExtends,
}

// Tag is one recognised tag. Line is 0-based within the comment.
type Tag struct {
	Kind TagKind
	Line int
	// Name is the template name, or the variable of @param and @var
	// without "$".
	Name string
	// Type is the type text; for @template it is the bound, possibly empty.
	Type      string
	Variadic  bool
	Covariant bool
}

// Doc is a parsed doc comment.
type Doc struct {
	Tags []Tag
}

// Error is a malformed tag.
type Error struct {
	Line int
	Tag  string
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("line %d: %s: %s", e.Line+1, e.Tag, e.Msg)
}

// Parse scans text, with or without the comment delimiters. Unknown tags and
// prose are ignored; malformed known tags are returned as *Error values and
// parsing continues.
func Parse(text string) (Doc, []error) {
	var (
		doc  Doc
		errs []error
	)
	for i, raw := range strings.Split(text, "\n") {
		line := docLineContent(raw)
		if !strings.HasPrefix(line, "@") {
			continue
		}
		word, rest := cutSpace(line[1:])
		name := stripToolPrefix(word)
		kind, ok := tagNames[name]
		if !ok {
			continue
		}
		tag, err := parseTag(kind, name, rest)
		if err != nil {
			errs = append(errs, &Error{Line: i, Tag: "@" + word, Msg: err.Error()})
			continue
		}
		tag.Line = i
		doc.Tags = append(doc.Tags, tag)
	}
	return doc, errs
}

func parseTag(kind TagKind, name, rest string) (Tag, error) {
	tag := Tag{Kind: kind}
	switch kind {
	case TagTemplate:
		tag.Covariant = name == "template-covariant"
		tag.Name, rest = cutSpace(rest)
		if !isIdent(tag.Name) {
			return tag, fmt.Errorf("expected a template name, found %q", tag.Name)
		}
		kw, after := cutSpace(rest)
		if kw != "of" && kw != "as" {
			return tag, nil
		}
		bound, _, err := readType(after)
		if err != nil {
			return tag, err
		}
		if bound == "" {
			return tag, fmt.Errorf("missing bound after %q", kw)
		}
		tag.Type = bound
	case TagParam:
		typ, after, err := readType(rest)
		if err != nil {
			return tag, err
		}
		if strings.HasPrefix(typ, "$") || strings.HasPrefix(typ, "...$") {
			return tag, fmt.Errorf("missing type for %s", typ)
		}
		v, _ := cutSpace(after)
		if strings.HasPrefix(v, "...") {
			tag.Variadic = true
			v = v[3:]
		}
		if !strings.HasPrefix(v, "$") || !isIdent(v[1:]) {
			return tag, fmt.Errorf("expected a parameter name, found %q", v)
		}
		tag.Type, tag.Name = typ, v[1:]
	case TagVar:
		typ, after, err := readType(rest)
		if err != nil {
			return tag, err
		}
		if typ == "" || strings.HasPrefix(typ, "$") {
			return tag, fmt.Errorf("missing type")
		}
		tag.Type = typ
		if v, _ := cutSpace(after); strings.HasPrefix(v, "$") && isIdent(v[1:]) {
			tag.Name = v[1:]
		}
	case TagReturn, TagImplements, TagExtends:
		typ, _, err := readType(rest)
		if err != nil {
			return tag, err
		}
		if typ == "" {
			return tag, fmt.Errorf("missing type")
		}
		tag.Type = typ
	}
	return tag, nil
}

// readType takes the type text at the start of s: brackets must balance,
// and whitespace ends the type only outside brackets and away from "|".
func readType(s string) (typ, rest string, err error) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	var stack []byte
	i := 0
	for i < len(s) {
		c := s[i]
		switch c {
		case '<', '{', '(':
			stack = append(stack, c)
		case '>', '}', ')':
			if len(stack) == 0 || stack[len(stack)-1] != opener(c) {
				return "", "", fmt.Errorf("unbalanced %q in %q", c, s)
			}
			stack = stack[:len(stack)-1]
		case ' ', '\t':
			if len(stack) > 0 {
				break
			}
			j := i
			for j < len(s) && (s[j] == ' ' || s[j] == '\t') {
				j++
			}
			joined := j < len(s) && s[j] == '|'
			joined = joined || (i > 0 && s[i-1] == '|')
			if !joined {
				return compact(s[:i]), s[i:], nil
			}
			i = j
			continue
		}
		i++
	}
	if len(stack) > 0 {
		return "", "", fmt.Errorf("unclosed %q in %q", stack[len(stack)-1], s)
	}
	return compact(s), "", nil
}

func opener(c byte) byte {
	switch c {
	case '>':
		return '<'
	case '}':
		return '{'
	}
	return '('
}

// compact drops whitespace around "|" so "int | string" reads as one type.
func compact(s string) string {
	if !strings.Contains(s, "|") {
		return s
	}
	parts := strings.Split(s, "|")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return strings.Join(parts, "|")
}

// docLineContent strips comment delimiters, the leading "*" and spaces.
func docLineContent(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "/**")
	line = strings.TrimSuffix(line, "*/")
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "*")
	return strings.TrimSpace(line)
}

func stripToolPrefix(word string) string {
	for _, p := range []string{"psalm-", "phpstan-"} {
		if strings.HasPrefix(word, p) {
			return word[len(p):]
		}
	}
	return word
}

func cutSpace(s string) (string, string) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	end := strings.IndexFunc(s, unicode.IsSpace)
	if end < 0 {
		return s, ""
	}
	return s[:end], s[end:]
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, w := 0, 0; i < len(s); i += w {
		r, size := utf8.DecodeRuneInString(s[i:])
		w = size
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}

// Templates returns the @template tags in order.
func (d Doc) Templates() []Tag { return d.all(TagTemplate) }

// Implements returns the @implements tags in order.
func (d Doc) Implements() []Tag { return d.all(TagImplements) }

// Extends returns the @extends tags in order.
func (d Doc) Extends() []Tag { return d.all(TagExtends) }

// Param returns the @param tag for name, given with or without "$".
func (d Doc) Param(name string) (Tag, bool) {
	name = strings.TrimPrefix(name, "$")
	for _, t := range d.Tags {
		if t.Kind == TagParam && t.Name == name {
			return t, true
		}
	}
	return Tag{}, false
}

// Return returns the first @return tag.
func (d Doc) Return() (Tag, bool) { return d.first(TagReturn) }

// Var returns the first @var tag.
func (d Doc) Var() (Tag, bool) { return d.first(TagVar) }

func (d Doc) first(kind TagKind) (Tag, bool) {
	for _, t := range d.Tags {
		if t.Kind == kind {
			return t, true
		}
	}
	return Tag{}, false
}

func (d Doc) all(kind TagKind) []Tag {
	var out []Tag
	for _, t := range d.Tags {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

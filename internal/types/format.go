package types

import (
	"strconv"
	"strings"
)

// Format renders id the way annotations spell it: "array<int, Person>",
// "class-string<T>", "Generator<int, string, bool, Person>", "int|string".
// Unresolved parameters render as "?T".
func (in *Interner) Format(id TypeID) string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.formatLocked(id)
}

// FormatList renders ids separated by ", ".
func (in *Interner) FormatList(ids []TypeID) string {
	in.mu.RLock()
	defer in.mu.RUnlock()
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = in.formatLocked(id)
	}
	return strings.Join(parts, ", ")
}

func (in *Interner) formatLocked(id TypeID) string {
	tt, ok := in.lookupLocked(id)
	if !ok {
		return "<invalid>"
	}
	switch tt.Kind {
	case KindMixed:
		return "mixed"
	case KindNominal, KindParam:
		return tt.Name
	case KindUnresolved:
		return "?" + tt.Name
	case KindGeneric:
		return in.formatLocked(tt.Base) + "<" + in.joinLocked(tt.Args) + ">"
	case KindUnion:
		parts := make([]string, len(tt.Args))
		for i, m := range tt.Args {
			parts[i] = in.formatLocked(m)
		}
		return strings.Join(parts, "|")
	case KindArray:
		if id == in.builtins.AnyArray {
			return "array"
		}
		return "array<" + in.formatLocked(tt.Key) + ", " + in.formatLocked(tt.Elem) + ">"
	case KindShape:
		var b strings.Builder
		b.WriteString("array{")
		for i, f := range tt.Fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(formatShapeKey(f.Key))
			if f.Optional {
				b.WriteByte('?')
			}
			b.WriteString(": ")
			b.WriteString(in.formatLocked(f.Type))
		}
		b.WriteByte('}')
		return b.String()
	case KindClassRef:
		if tt.Elem == in.builtins.Object {
			return "class-string"
		}
		return "class-string<" + in.formatLocked(tt.Elem) + ">"
	case KindSequence:
		return NameGenerator + "<" + in.joinLocked(tt.Args) + ">"
	}
	return "<invalid>"
}

func (in *Interner) joinLocked(ids []TypeID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = in.formatLocked(id)
	}
	return strings.Join(parts, ", ")
}

func formatShapeKey(key string) string {
	for _, r := range key {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return strconv.Quote(key)
		}
	}
	return key
}

package source

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Pos is the opaque location token a front end attaches to a declaration,
// instantiation or use site. The engine never interprets it beyond ordering
// and rendering.
type Pos struct {
	File string
	Line uint32 // 1-based, 0 when unknown
	Col  uint32 // 1-based, 0 when unknown
}

// NoPos marks the absence of a location.
var NoPos = Pos{}

// IsZero reports whether p carries no location at all.
func (p Pos) IsZero() bool {
	return p.File == "" && p.Line == 0 && p.Col == 0
}

func (p Pos) String() string {
	switch {
	case p.IsZero():
		return "-"
	case p.Line == 0:
		return p.File
	case p.Col == 0:
		return fmt.Sprintf("%s:%d", p.File, p.Line)
	default:
		return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Col)
	}
}

// Less orders positions by file, line, then column.
func (p Pos) Less(other Pos) bool {
	if p.File != other.File {
		return p.File < other.File
	}
	if p.Line != other.Line {
		return p.Line < other.Line
	}
	return p.Col < other.Col
}

// Or returns p unless it is zero, in which case fallback is returned.
func (p Pos) Or(fallback Pos) Pos {
	if p.IsZero() {
		return fallback
	}
	return p
}

// ParsePos accepts "file", "file:line" and "file:line:col".
func ParsePos(s string) (Pos, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return NoPos, nil
	}
	parts := strings.Split(s, ":")
	// Windows drive letters ("C:\x.php:3") keep their first colon.
	if len(parts) > 1 && len(parts[0]) == 1 && strings.HasPrefix(parts[1], `\`) {
		parts = append([]string{parts[0] + ":" + parts[1]}, parts[2:]...)
	}
	pos := Pos{File: NormalizePath(parts[0])}
	if len(parts) > 3 {
		return NoPos, fmt.Errorf("invalid position %q", s)
	}
	if len(parts) >= 2 {
		line, err := strconv.ParseUint(parts[1], 10, 32)
		if err != nil {
			return NoPos, fmt.Errorf("invalid line in position %q: %w", s, err)
		}
		pos.Line = uint32(line)
	}
	if len(parts) == 3 {
		col, err := strconv.ParseUint(parts[2], 10, 32)
		if err != nil {
			return NoPos, fmt.Errorf("invalid column in position %q: %w", s, err)
		}
		pos.Col = uint32(col)
	}
	return pos, nil
}

// NormalizePath converts separators to slashes and drops leading "./".
func NormalizePath(path string) string {
	p := filepath.ToSlash(path)
	for strings.HasPrefix(p, "./") {
		p = strings.TrimPrefix(p, "./")
	}
	return p
}

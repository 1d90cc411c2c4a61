package typeparse

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokIdent
	tokInt
	tokString
	tokLAngle
	tokRAngle
	tokLBrace
	tokRBrace
	tokLBracket
	tokRBracket
	tokLParen
	tokRParen
	tokComma
	tokPipe
	tokColon
	tokQuestion
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of input"
	case tokIdent:
		return "name"
	case tokInt:
		return "integer"
	case tokString:
		return "string"
	case tokLAngle:
		return "'<'"
	case tokRAngle:
		return "'>'"
	case tokLBrace:
		return "'{'"
	case tokRBrace:
		return "'}'"
	case tokLBracket:
		return "'['"
	case tokRBracket:
		return "']'"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokComma:
		return "','"
	case tokPipe:
		return "'|'"
	case tokColon:
		return "':'"
	case tokQuestion:
		return "'?'"
	}
	return fmt.Sprintf("token(%d)", k)
}

type token struct {
	kind tokenKind
	text string
	off  int
}

var punct = map[rune]tokenKind{
	'<': tokLAngle,
	'>': tokRAngle,
	'{': tokLBrace,
	'}': tokRBrace,
	'[': tokLBracket,
	']': tokRBracket,
	'(': tokLParen,
	')': tokRParen,
	',': tokComma,
	'|': tokPipe,
	':': tokColon,
	'?': tokQuestion,
}

// tokenize splits src into tokens. Names may contain namespace separators and
// inner hyphens ("class-string", "array-key", "Entities\Person").
func tokenize(src string) ([]token, error) {
	var out []token
	i := 0
	for i < len(src) {
		r, size := utf8.DecodeRuneInString(src[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
		case punct[r] != tokEOF:
			out = append(out, token{kind: punct[r], text: string(r), off: i})
			i += size
		case r == '\'' || r == '"':
			end := i + 1
			for end < len(src) && rune(src[end]) != r {
				end++
			}
			if end >= len(src) {
				return nil, &Error{Offset: i, Msg: "unterminated string"}
			}
			out = append(out, token{kind: tokString, text: src[i+1 : end], off: i})
			i = end + 1
		case r >= '0' && r <= '9' || r == '-' && i+1 < len(src) && src[i+1] >= '0' && src[i+1] <= '9':
			end := i + 1
			for end < len(src) && src[end] >= '0' && src[end] <= '9' {
				end++
			}
			out = append(out, token{kind: tokInt, text: src[i:end], off: i})
			i = end
		case isNameStart(r):
			end := i
			for end < len(src) {
				c, n := utf8.DecodeRuneInString(src[end:])
				if isNameChar(c) {
					end += n
					continue
				}
				if c == '-' && end+1 < len(src) {
					next, _ := utf8.DecodeRuneInString(src[end+1:])
					if unicode.IsLetter(next) {
						end += n
						continue
					}
				}
				break
			}
			out = append(out, token{kind: tokIdent, text: src[i:end], off: i})
			i = end
		default:
			return nil, &Error{Offset: i, Msg: fmt.Sprintf("unexpected character %q", r)}
		}
	}
	out = append(out, token{kind: tokEOF, off: len(src)})
	return out, nil
}

func isNameStart(r rune) bool {
	return r == '_' || r == '\\' || unicode.IsLetter(r)
}

func isNameChar(r rune) bool {
	return r == '_' || r == '\\' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

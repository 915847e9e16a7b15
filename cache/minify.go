package cache

import (
	"errors"
	"strings"
)

// ErrUnterminated is returned when a literal or block comment runs past the end of input.
var ErrUnterminated = errors.New("unterminated literal or comment")

type tokenKind int

const (
	tokenWord tokenKind = iota
	tokenPunct
	tokenLiteral
)

type token struct {
	kind tokenKind
	text string
	// spaced is true when whitespace or a comment separated this token from the previous one.
	spaced bool
}

// Minify reduces Rust source to a canonical token stream. Comments are
// dropped, literals are kept verbatim, and a single space is kept between
// two tokens only when they were separated in the input and gluing them
// would lex differently. Cosmetic edits therefore produce identical output.
func Minify(src string) (string, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.Grow(len(src))
	for i, tok := range tokens {
		if i > 0 && tok.spaced && needsSpace(tokens[i-1], tok) {
			b.WriteByte(' ')
		}
		b.WriteString(tok.text)
	}
	return b.String(), nil
}

// joinable lists punctuation pairs that lex as one operator when adjacent.
var joinable = map[string]bool{
	"::": true, "->": true, "=>": true, "<-": true, "==": true, "!=": true,
	"<=": true, ">=": true, "&&": true, "||": true, "<<": true, ">>": true,
	"+=": true, "-=": true, "*=": true, "/=": true, "%=": true, "^=": true,
	"&=": true, "|=": true, "..": true, ".=": true, "//": true, "/*": true,
	"*/": true,
}

func needsSpace(prev, next token) bool {
	switch {
	case prev.kind == tokenPunct && next.kind == tokenPunct:
		return joinable[prev.text+next.text]
	case prev.kind == tokenPunct || next.kind == tokenPunct:
		// "1 .0" is not "1.0"; "r #x" is not "r#x".
		return prev.kind == tokenWord && (next.text == "." || next.text == "#")
	default:
		return true
	}
}

//nolint:gocyclo // single-pass lexer
func tokenize(src string) ([]token, error) {
	var tokens []token
	spaced := false
	i := 0
	n := len(src)
	emit := func(kind tokenKind, start, end int) {
		tokens = append(tokens, token{kind: kind, text: src[start:end], spaced: spaced})
		spaced = false
	}

	for i < n {
		c := src[i]
		switch {
		case isSpace(c):
			spaced = true
			i++
		case c == '/' && i+1 < n && src[i+1] == '/':
			for i < n && src[i] != '\n' {
				i++
			}
			spaced = true
		case c == '/' && i+1 < n && src[i+1] == '*':
			end, err := skipBlockComment(src, i)
			if err != nil {
				return nil, err
			}
			i = end
			spaced = true
		case c == '"':
			end, err := scanQuoted(src, i, '"')
			if err != nil {
				return nil, err
			}
			emit(tokenLiteral, i, end)
			i = end
		case c == '\'':
			if end, ok := scanChar(src, i); ok {
				emit(tokenLiteral, i, end)
				i = end
				continue
			}
			// lifetime or label
			end := i + 1
			for end < n && isWordByte(src[end]) {
				end++
			}
			emit(tokenWord, i, end)
			i = end
		case isWordByte(c):
			end := i
			for end < n && isWordByte(src[end]) {
				end++
			}
			word := src[i:end]
			if lit, ok, err := scanPrefixedLiteral(src, end, word); err != nil {
				return nil, err
			} else if ok {
				emit(tokenLiteral, i, lit)
				i = lit
				continue
			}
			if word == "r" && end+1 < n && src[end] == '#' && isWordByte(src[end+1]) {
				// raw identifier r#ident
				end++
				for end < n && isWordByte(src[end]) {
					end++
				}
			}
			emit(tokenWord, i, end)
			i = end
		default:
			emit(tokenPunct, i, i+1)
			i++
		}
	}
	return tokens, nil
}

// scanPrefixedLiteral handles b"..", b'..', c"..", r"..", r#".."#, br".." and cr"..".
// wordEnd is the end of the identifier-like prefix.
func scanPrefixedLiteral(src string, wordEnd int, word string) (int, bool, error) {
	n := len(src)
	if wordEnd >= n {
		return 0, false, nil
	}
	next := src[wordEnd]
	switch word {
	case "b", "c":
		if next == '"' {
			end, err := scanQuoted(src, wordEnd, '"')
			return end, err == nil, err
		}
		if word == "b" && next == '\'' {
			if end, ok := scanChar(src, wordEnd); ok {
				return end, true, nil
			}
		}
	case "r", "br", "cr":
		if next == '"' || (next == '#' && rawStringFollows(src, wordEnd)) {
			end, err := scanRawString(src, wordEnd)
			return end, err == nil, err
		}
	}
	return 0, false, nil
}

func rawStringFollows(src string, i int) bool {
	for i < len(src) && src[i] == '#' {
		i++
	}
	return i < len(src) && src[i] == '"'
}

// scanRawString scans from the first '#' or '"' after the r prefix.
func scanRawString(src string, i int) (int, error) {
	hashes := 0
	for i < len(src) && src[i] == '#' {
		hashes++
		i++
	}
	i++ // opening quote
	closing := "\"" + strings.Repeat("#", hashes)
	idx := strings.Index(src[i:], closing)
	if idx < 0 {
		return 0, ErrUnterminated
	}
	return i + idx + len(closing), nil
}

// scanQuoted scans an escaped string starting at the opening quote.
func scanQuoted(src string, i int, quote byte) (int, error) {
	i++
	for i < len(src) {
		switch src[i] {
		case '\\':
			i += 2
		case quote:
			return i + 1, nil
		default:
			i++
		}
	}
	return 0, ErrUnterminated
}

// scanChar recognises a character literal starting at a single quote. It reports
// false for lifetimes and labels.
func scanChar(src string, i int) (int, bool) {
	n := len(src)
	if i+1 >= n {
		return 0, false
	}
	if src[i+1] == '\\' {
		end, err := scanQuoted(src, i, '\'')
		if err != nil {
			return 0, false
		}
		return end, true
	}
	// one code point followed by a closing quote
	j := i + 2
	for j < n && src[j]&0xC0 == 0x80 {
		j++
	}
	if j < n && src[j] == '\'' {
		return j + 1, true
	}
	return 0, false
}

func skipBlockComment(src string, i int) (int, error) {
	depth := 0
	n := len(src)
	for i < n {
		switch {
		case i+1 < n && src[i] == '/' && src[i+1] == '*':
			depth++
			i += 2
		case i+1 < n && src[i] == '*' && src[i+1] == '/':
			depth--
			i += 2
			if depth == 0 {
				return i, nil
			}
		default:
			i++
		}
	}
	return 0, ErrUnterminated
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

// isWordByte treats every non-ASCII byte as part of an identifier.
func isWordByte(c byte) bool {
	return c == '_' || c >= 0x80 ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

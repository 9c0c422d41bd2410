package compiler

import (
	"fmt"
	"strconv"
	"unicode"
)

// punctuators lists the multi-character symbols, longest first, so the
// scanner can take the longest match.
var punctuators = []string{
	"...", "<<=", ">>=",
	"::", "==", "!=", "<=", ">=", "&&", "||", "++", "--",
	"+=", "-=", "*=", "/=", "&=", "|=", "^=", "<<", ">>",
}

const singlePunctuators = "{}()[];,.=+-*/%!<>&|^"

// Lexer scans one preprocessed line into atoms.
type Lexer struct {
	src []rune
	pos int // index of the next rune to consume
}

func newLexer(src string) *Lexer {
	return &Lexer{src: []rune(src)}
}

func (l *Lexer) peek() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peek2() rune {
	if l.pos+1 >= len(l.src) {
		return 0
	}
	return l.src[l.pos+1]
}

func (l *Lexer) advance() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	r := l.src[l.pos]
	l.pos++
	return r
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.src) && unicode.IsSpace(l.peek()) {
		l.advance()
	}
}

func (l *Lexer) scanIdent() string {
	start := l.pos
	for l.pos < len(l.src) {
		r := l.peek()
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			break
		}
		l.advance()
	}
	return string(l.src[start:l.pos])
}

// scanNumber collects a decimal, hexadecimal or floating point literal.
func (l *Lexer) scanNumber() string {
	start := l.pos
	if l.peek() == '0' && (l.peek2() == 'x' || l.peek2() == 'X') {
		l.advance()
		l.advance()
		for l.pos < len(l.src) {
			r := l.peek()
			if unicode.IsDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F') {
				l.advance()
			} else {
				break
			}
		}
		return string(l.src[start:l.pos])
	}
	for l.pos < len(l.src) && unicode.IsDigit(l.peek()) {
		l.advance()
	}
	if l.peek() == '.' && unicode.IsDigit(l.peek2()) {
		l.advance()
		for l.pos < len(l.src) && unicode.IsDigit(l.peek()) {
			l.advance()
		}
	}
	return string(l.src[start:l.pos])
}

func unescape(r rune) (rune, bool) {
	switch r {
	case 'n':
		return '\n', true
	case 'r':
		return '\r', true
	case 't':
		return '\t', true
	case '0':
		return 0, true
	case '\\', '\'', '"', '[':
		return r, true
	}
	return 0, false
}

// scanChar turns a character literal into the decimal text of its code.
func (l *Lexer) scanChar() (string, error) {
	l.advance()
	r := l.peek()
	if r == '\'' {
		return "", fmt.Errorf("empty character literal")
	}
	val := r
	if r == '\\' {
		l.advance()
		var ok bool
		if val, ok = unescape(l.peek()); !ok {
			return "", fmt.Errorf("unknown escape sequence \\%c", l.peek())
		}
	}
	l.advance()
	if l.peek() != '\'' {
		return "", fmt.Errorf("unterminated character literal")
	}
	l.advance()
	return strconv.Itoa(int(val)), nil
}

// scanString returns the literal including its quotes and escapes.
func (l *Lexer) scanString() (string, error) {
	start := l.pos
	l.advance()
	for l.pos < len(l.src) {
		r := l.advance()
		if r == '"' {
			return string(l.src[start:l.pos]), nil
		}
		if r == '\\' {
			if _, ok := unescape(l.peek()); !ok {
				return "", fmt.Errorf("unknown escape sequence \\%c", l.peek())
			}
			l.advance()
		}
	}
	return "", fmt.Errorf("unterminated string literal")
}

// next returns the next atom, or "" at end of line.
func (l *Lexer) next() (string, error) {
	l.skipWhitespace()
	if l.pos >= len(l.src) {
		return "", nil
	}
	ch := l.peek()
	switch {
	case unicode.IsLetter(ch) || ch == '_':
		return l.scanIdent(), nil
	case unicode.IsDigit(ch):
		return l.scanNumber(), nil
	case ch == '"':
		return l.scanString()
	case ch == '\'':
		return l.scanChar()
	}
	rest := string(l.src[l.pos:min(l.pos+3, len(l.src))])
	for _, p := range punctuators {
		if len(rest) >= len(p) && rest[:len(p)] == p {
			l.pos += len(p)
			return p, nil
		}
	}
	for _, p := range singlePunctuators {
		if ch == p {
			l.advance()
			return string(ch), nil
		}
	}
	l.advance()
	return "", fmt.Errorf("unexpected character %q", ch)
}

// Tokenize interns every atom of lines into ns and returns the token stream.
// A line number marker precedes the atoms of each line; markers for lines
// without atoms collapse into the next one. The stream always ends with
// EndOfStream.
func Tokenize(ns *Namespace, lines []SourceLine, results *Results) []TokenID {
	stream := make([]TokenID, 0, len(lines)*4)
	for _, sl := range lines {
		if n := len(stream); n > 0 && ns.Get(stream[n-1]).Kind == KindLineNumber {
			m := ns.Get(stream[n-1])
			m.Line, m.Unit = sl.Line, sl.Unit
		} else {
			stream = append(stream, ns.newLineMarker(sl.Unit, sl.Line))
		}

		l := newLexer(sl.Text)
		for {
			atom, err := l.next()
			if err != nil {
				if results != nil {
					m := newError(UnexpectedToken, "%v", err)
					m.Line, m.Unit = sl.Line, sl.Unit
					results.Add(m)
				}
				if l.pos >= len(l.src) {
					break
				}
				continue
			}
			if atom == "" {
				break
			}
			stream = append(stream, ns.Intern(atom))
		}
	}
	return append(stream, EndOfStream)
}

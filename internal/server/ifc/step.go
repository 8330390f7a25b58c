// Package ifc reads IFC models in the ISO 10303-21 exchange structure
// (STEP physical files) and converts their instances to RDF.
package ifc

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/systemshift/drumbeat/internal/rdf"
)

// ValueKind tells which field of a Value is set.
type ValueKind int

const (
	ValueNull ValueKind = iota
	ValueDerived
	ValueInteger
	ValueReal
	ValueString
	ValueEnum
	ValueRef
	ValueList
	ValueTyped
	ValueBinary
)

// Value is one parameter of an instance.
type Value struct {
	Kind  ValueKind
	Int   int64
	Real  float64
	Text  string // string, enum, binary and typed name
	Ref   int
	Items []Value // list items, or the single wrapped value of a typed parameter
}

// Instance is one "#id = ENTITY(...)" line of the DATA section.
type Instance struct {
	ID     int
	Entity string
	Params []Value
	Line   int
}

// File is a parsed exchange structure.
type File struct {
	Schema    []string
	Instances []*Instance
}

func syntaxErr(line int, format string, args ...any) error {
	return &rdf.SyntaxError{Format: "IFC", Line: line, Msg: fmt.Sprintf(format, args...)}
}

type lexer struct {
	r    *bufio.Reader
	line int
	peek []rune
}

func (l *lexer) next() (rune, error) {
	if n := len(l.peek); n > 0 {
		c := l.peek[n-1]
		l.peek = l.peek[:n-1]
		return c, nil
	}
	c, _, err := l.r.ReadRune()
	if err != nil {
		return 0, err
	}
	if c == '\n' {
		l.line++
	}
	return c, nil
}

func (l *lexer) back(c rune) { l.peek = append(l.peek, c) }

// skip consumes whitespace and /* */ comments.
func (l *lexer) skip() error {
	for {
		c, err := l.next()
		if err != nil {
			return err
		}
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			continue
		case c == '/':
			d, err := l.next()
			if err != nil || d != '*' {
				if err == nil {
					l.back(d)
				}
				l.back(c)
				return nil
			}
			var prev rune
			for {
				e, err := l.next()
				if err != nil {
					return syntaxErr(l.line, "unterminated comment")
				}
				if prev == '*' && e == '/' {
					break
				}
				prev = e
			}
		default:
			l.back(c)
			return nil
		}
	}
}

func (l *lexer) expect(want rune) error {
	if err := l.skip(); err != nil {
		return syntaxErr(l.line, "expected %q, got end of input", want)
	}
	c, _ := l.next()
	if c != want {
		return syntaxErr(l.line, "expected %q, got %q", want, c)
	}
	return nil
}

func isKeywordRune(c rune) bool {
	return c == '_' || c == '-' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}

func (l *lexer) keyword() (string, error) {
	if err := l.skip(); err != nil {
		return "", err
	}
	var b strings.Builder
	for {
		c, err := l.next()
		if err != nil {
			break
		}
		if !isKeywordRune(c) {
			l.back(c)
			break
		}
		b.WriteRune(c)
	}
	if b.Len() == 0 {
		c, _ := l.next()
		return "", syntaxErr(l.line, "expected keyword, got %q", c)
	}
	return strings.ToUpper(b.String()), nil
}

// Parse reads an exchange structure.
func Parse(r io.Reader) (*File, error) {
	l := &lexer{r: bufio.NewReader(r), line: 1}
	magic, err := l.keyword()
	if err != nil || magic != "ISO-10303-21" {
		return nil, syntaxErr(l.line, "missing ISO-10303-21 header")
	}
	if err := l.expect(';'); err != nil {
		return nil, err
	}

	f := &File{}
	for {
		section, err := l.keyword()
		if err != nil {
			return nil, syntaxErr(l.line, "missing END-ISO-10303-21")
		}
		if err := l.expect(';'); err != nil {
			return nil, err
		}
		switch section {
		case "HEADER":
			if err := l.header(f); err != nil {
				return nil, err
			}
		case "DATA":
			if err := l.data(f); err != nil {
				return nil, err
			}
		case "END-ISO-10303-21":
			return f, nil
		default:
			return nil, syntaxErr(l.line, "unexpected section %s", section)
		}
	}
}

func (l *lexer) header(f *File) error {
	for {
		name, err := l.keyword()
		if err != nil {
			return syntaxErr(l.line, "unterminated HEADER section")
		}
		if name == "ENDSEC" {
			return l.expect(';')
		}
		params, err := l.paramList()
		if err != nil {
			return err
		}
		if err := l.expect(';'); err != nil {
			return err
		}
		if name == "FILE_SCHEMA" && len(params) == 1 && params[0].Kind == ValueList {
			for _, v := range params[0].Items {
				if v.Kind == ValueString {
					f.Schema = append(f.Schema, v.Text)
				}
			}
		}
	}
}

func (l *lexer) data(f *File) error {
	// A DATA section may name its schema in parentheses.
	if err := l.skip(); err != nil {
		return syntaxErr(l.line, "unterminated DATA section")
	}
	for {
		if err := l.skip(); err != nil {
			return syntaxErr(l.line, "unterminated DATA section")
		}
		c, _ := l.next()
		if c != '#' {
			l.back(c)
			kw, err := l.keyword()
			if err != nil || kw != "ENDSEC" {
				return syntaxErr(l.line, "expected instance or ENDSEC")
			}
			return l.expect(';')
		}
		line := l.line
		id, err := l.integer()
		if err != nil {
			return err
		}
		if err := l.expect('='); err != nil {
			return err
		}
		entity, err := l.keyword()
		if err != nil {
			return syntaxErr(l.line, "expected entity name after #%d", id)
		}
		params, err := l.paramList()
		if err != nil {
			return err
		}
		if err := l.expect(';'); err != nil {
			return err
		}
		f.Instances = append(f.Instances, &Instance{ID: id, Entity: entity, Params: params, Line: line})
	}
}

func (l *lexer) integer() (int, error) {
	var b strings.Builder
	for {
		c, err := l.next()
		if err != nil {
			break
		}
		if c < '0' || c > '9' {
			l.back(c)
			break
		}
		b.WriteRune(c)
	}
	n, err := strconv.Atoi(b.String())
	if err != nil {
		return 0, syntaxErr(l.line, "invalid instance name")
	}
	return n, nil
}

func (l *lexer) paramList() ([]Value, error) {
	if err := l.expect('('); err != nil {
		return nil, err
	}
	var out []Value
	if err := l.skip(); err != nil {
		return nil, syntaxErr(l.line, "unterminated parameter list")
	}
	if c, _ := l.next(); c == ')' {
		return out, nil
	} else {
		l.back(c)
	}
	for {
		v, err := l.value()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		if err := l.skip(); err != nil {
			return nil, syntaxErr(l.line, "unterminated parameter list")
		}
		c, _ := l.next()
		switch c {
		case ',':
			continue
		case ')':
			return out, nil
		default:
			return nil, syntaxErr(l.line, "expected ',' or ')', got %q", c)
		}
	}
}

func (l *lexer) value() (Value, error) {
	if err := l.skip(); err != nil {
		return Value{}, syntaxErr(l.line, "unexpected end of input")
	}
	c, _ := l.next()
	switch {
	case c == '$':
		return Value{Kind: ValueNull}, nil
	case c == '*':
		return Value{Kind: ValueDerived}, nil
	case c == '#':
		n, err := l.integer()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: ValueRef, Ref: n}, nil
	case c == '\'':
		s, err := l.str()
		return Value{Kind: ValueString, Text: s}, err
	case c == '"':
		s, err := l.until('"')
		return Value{Kind: ValueBinary, Text: s}, err
	case c == '.':
		s, err := l.until('.')
		return Value{Kind: ValueEnum, Text: strings.ToUpper(s)}, err
	case c == '(':
		l.back(c)
		items, err := l.paramList()
		return Value{Kind: ValueList, Items: items}, err
	case c == '+' || c == '-' || (c >= '0' && c <= '9'):
		l.back(c)
		return l.number()
	case (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z'):
		l.back(c)
		name, err := l.keyword()
		if err != nil {
			return Value{}, err
		}
		items, err := l.paramList()
		if err != nil {
			return Value{}, err
		}
		if len(items) != 1 {
			return Value{}, syntaxErr(l.line, "typed parameter %s must wrap one value", name)
		}
		return Value{Kind: ValueTyped, Text: name, Items: items}, nil
	}
	return Value{}, syntaxErr(l.line, "unexpected %q", c)
}

func (l *lexer) until(end rune) (string, error) {
	var b strings.Builder
	for {
		c, err := l.next()
		if err != nil {
			return "", syntaxErr(l.line, "unterminated token")
		}
		if c == end {
			return b.String(), nil
		}
		b.WriteRune(c)
	}
}

// str reads a quoted string body, undoing '' and the \X\, \X2\ and \S\
// encodings.
func (l *lexer) str() (string, error) {
	var raw strings.Builder
	for {
		c, err := l.next()
		if err != nil {
			return "", syntaxErr(l.line, "unterminated string")
		}
		if c == '\'' {
			d, err := l.next()
			if err == nil && d == '\'' {
				raw.WriteRune('\'')
				continue
			}
			if err == nil {
				l.back(d)
			}
			break
		}
		raw.WriteRune(c)
	}
	s, err := decodeString(raw.String())
	if err != nil {
		return "", syntaxErr(l.line, "%v", err)
	}
	return s, nil
}

func decodeString(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); {
		switch {
		case strings.HasPrefix(s[i:], `\X2\`):
			end := strings.Index(s[i+4:], `\X0\`)
			if end < 0 || end%4 != 0 {
				return "", fmt.Errorf("bad \\X2\\ escape")
			}
			hex := s[i+4 : i+4+end]
			units := make([]uint16, 0, len(hex)/4)
			for j := 0; j < len(hex); j += 4 {
				u, err := strconv.ParseUint(hex[j:j+4], 16, 16)
				if err != nil {
					return "", fmt.Errorf("bad \\X2\\ escape")
				}
				units = append(units, uint16(u))
			}
			b.WriteString(string(utf16.Decode(units)))
			i += 4 + end + 4
		case strings.HasPrefix(s[i:], `\X\`) && i+5 <= len(s):
			u, err := strconv.ParseUint(s[i+3:i+5], 16, 8)
			if err != nil {
				return "", fmt.Errorf("bad \\X\\ escape")
			}
			b.WriteRune(rune(u))
			i += 5
		case strings.HasPrefix(s[i:], `\S\`) && i+4 <= len(s):
			b.WriteRune(rune(s[i+3]) + 128)
			i += 4
		case strings.HasPrefix(s[i:], `\\`):
			b.WriteByte('\\')
			i += 2
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return b.String(), nil
}

func (l *lexer) number() (Value, error) {
	var b strings.Builder
	real := false
	for {
		c, err := l.next()
		if err != nil {
			break
		}
		switch {
		case c >= '0' && c <= '9', c == '+', c == '-':
		case c == '.' || c == 'E' || c == 'e':
			real = true
		default:
			l.back(c)
			goto done
		}
		b.WriteRune(c)
	}
done:
	text := b.String()
	if !real {
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return Value{}, syntaxErr(l.line, "invalid integer %q", text)
		}
		return Value{Kind: ValueInteger, Int: n, Text: text}, nil
	}
	// STEP allows "1." and "1.E5"; Go needs a digit after the point.
	norm := strings.Replace(strings.ToUpper(text), ".E", ".0E", 1)
	if strings.HasSuffix(norm, ".") {
		norm += "0"
	}
	f, err := strconv.ParseFloat(norm, 64)
	if err != nil {
		return Value{}, syntaxErr(l.line, "invalid real %q", text)
	}
	return Value{Kind: ValueReal, Real: f, Text: text}, nil
}

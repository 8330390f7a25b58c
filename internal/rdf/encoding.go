package rdf

import (
	"fmt"
	"strings"
)

// EncodeTerm renders a term in N-Triples syntax. The result is the
// canonical storage key for the term.
func EncodeTerm(t Term) string {
	switch v := t.(type) {
	case IRI:
		return "<" + escapeIRI(v.Value) + ">"
	case BlankNode:
		return "_:" + v.ID
	case Literal:
		s := `"` + escapeLiteral(v.Lexical) + `"`
		switch {
		case v.Lang != "":
			return s + "@" + v.Lang
		case v.Datatype.Value != "" && v.Datatype != XSDString:
			return s + "^^<" + escapeIRI(v.Datatype.Value) + ">"
		}
		return s
	case nil:
		return ""
	default:
		return t.String()
	}
}

// ParseTerm decodes a single term in N-Triples syntax.
func ParseTerm(s string) (Term, error) {
	triples, err := readTriples(strings.NewReader("<urn:x:s> <urn:x:p> "+s+" .\n"), FormatNTriples, "")
	if err != nil {
		return nil, fmt.Errorf("parsing term %q: %w", s, err)
	}
	if len(triples) != 1 {
		return nil, fmt.Errorf("parsing term %q: expected one term", s)
	}
	return triples[0].O, nil
}

// SortKey orders terms by kind and then by value: blank nodes before
// IRIs before literals, IRIs by their text, literals by lexical form,
// then datatype, then language tag.
func SortKey(t Term) string {
	switch v := t.(type) {
	case BlankNode:
		return "0" + v.ID
	case IRI:
		return "1" + v.Value
	case Literal:
		return "2" + v.Lexical + "\x01" + v.Datatype.Value + "\x01" + v.Lang
	}
	return ""
}

func escapeLiteral(s string) string {
	if !strings.ContainsAny(s, "\\\"\n\r\t\b\f") && !hasControl(s) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\u%04X`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

func escapeIRI(s string) string {
	if !strings.ContainsAny(s, "<>\"{}|^`\\ ") && !hasControl(s) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		if r <= 0x20 || strings.ContainsRune("<>\"{}|^`\\", r) {
			fmt.Fprintf(&b, `\u%04X`, r)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func hasControl(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] == 0x7f {
			return true
		}
	}
	return false
}

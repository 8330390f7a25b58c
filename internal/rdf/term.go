// Package rdf holds the RDF term model and graph fragments, and adapts
// the rdf-go readers and writers to them.
package rdf

import "strings"

// TermKind distinguishes the three RDF term types.
type TermKind int

const (
	KindIRI TermKind = iota
	KindBlank
	KindLiteral
)

func (k TermKind) String() string {
	switch k {
	case KindIRI:
		return "iri"
	case KindBlank:
		return "blank"
	case KindLiteral:
		return "literal"
	default:
		return "unknown"
	}
}

// Term is an RDF term: an IRI, a blank node or a literal.
type Term interface {
	Kind() TermKind
	String() string
}

// IRI is an absolute resource identifier.
type IRI struct {
	Value string
}

func (i IRI) Kind() TermKind  { return KindIRI }
func (i IRI) String() string { return i.Value }

// BlankNode is a node without a global name. IDs are scoped to a document.
type BlankNode struct {
	ID string
}

func (b BlankNode) Kind() TermKind  { return KindBlank }
func (b BlankNode) String() string { return "_:" + b.ID }

// Literal is a lexical value with an optional datatype or language tag.
// An empty Datatype means xsd:string.
type Literal struct {
	Lexical  string
	Datatype IRI
	Lang     string
}

func (l Literal) Kind() TermKind  { return KindLiteral }
func (l Literal) String() string { return l.Lexical }

// DatatypeIRI returns the effective datatype of the literal.
func (l Literal) DatatypeIRI() IRI {
	switch {
	case l.Lang != "":
		return RDFLangString
	case l.Datatype.Value == "":
		return XSDString
	default:
		return l.Datatype
	}
}

// NewIRI returns an IRI term.
func NewIRI(value string) IRI {
	return IRI{Value: value}
}

// NewLiteral returns a plain string literal.
func NewLiteral(lexical string) Literal {
	return Literal{Lexical: lexical}
}

// NewTypedLiteral returns a literal with the given datatype. xsd:string
// is folded into the plain form so both spellings compare equal.
func NewTypedLiteral(lexical string, datatype IRI) Literal {
	if datatype == XSDString {
		datatype = IRI{}
	}
	return Literal{Lexical: lexical, Datatype: datatype}
}

// NewLangLiteral returns a language tagged literal.
func NewLangLiteral(lexical, lang string) Literal {
	return Literal{Lexical: lexical, Lang: strings.ToLower(lang)}
}

// Triple is a single subject, predicate, object statement.
type Triple struct {
	S Term
	P IRI
	O Term
}

// NewTriple builds a triple.
func NewTriple(s Term, p IRI, o Term) Triple {
	return Triple{S: s, P: p, O: o}
}

// Key returns the canonical N-Triples form of the triple without the
// terminating dot. Two triples are equal iff their keys are equal.
func (t Triple) Key() string {
	var b strings.Builder
	b.WriteString(EncodeTerm(t.S))
	b.WriteByte(' ')
	b.WriteString(EncodeTerm(t.P))
	b.WriteByte(' ')
	b.WriteString(EncodeTerm(t.O))
	return b.String()
}

func (t Triple) String() string {
	return t.Key() + " ."
}

// IsResource reports whether the term can stand in subject position.
func IsResource(t Term) bool {
	if t == nil {
		return false
	}
	k := t.Kind()
	return k == KindIRI || k == KindBlank
}

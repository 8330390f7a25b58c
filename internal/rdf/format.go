package rdf

import (
	"fmt"
	"io"
	"strings"
)

// Format identifies an RDF serialization.
type Format int

const (
	FormatTurtle Format = iota
	FormatNTriples
	FormatNQuads
	FormatRDFXML
	FormatJSONLD
)

func (f Format) String() string {
	switch f {
	case FormatTurtle:
		return "Turtle"
	case FormatNTriples:
		return "N-Triples"
	case FormatNQuads:
		return "N-Quads"
	case FormatRDFXML:
		return "RDF/XML"
	case FormatJSONLD:
		return "JSON-LD"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// MediaType returns the canonical media type of the format.
func (f Format) MediaType() string {
	switch f {
	case FormatNTriples:
		return "application/n-triples"
	case FormatNQuads:
		return "application/n-quads"
	case FormatRDFXML:
		return "application/rdf+xml"
	case FormatJSONLD:
		return "application/ld+json"
	default:
		return "text/turtle"
	}
}

var extensionFormats = map[string]Format{
	"":         FormatTurtle,
	"ttl":      FormatTurtle,
	"turtle":   FormatTurtle,
	"n3":       FormatTurtle,
	"nt":       FormatNTriples,
	"ntriples": FormatNTriples,
	"nq":       FormatNQuads,
	"nquads":   FormatNQuads,
	"rdf":      FormatRDFXML,
	"owl":      FormatRDFXML,
	"xml":      FormatRDFXML,
	"rdfxml":   FormatRDFXML,
	"jsonld":   FormatJSONLD,
	"json":     FormatJSONLD,
}

// FormatForExtension maps a file extension or format name such as ".ttl"
// to a format. Matching ignores case and leading dots.
func FormatForExtension(ext string) (Format, bool) {
	f, ok := extensionFormats[strings.ToLower(strings.TrimLeft(strings.TrimSpace(ext), "."))]
	return f, ok
}

// Decode parses r in the given format. Relative IRIs resolve against
// base. Statements of N-Quads input lose their graph label.
func Decode(r io.Reader, f Format, base string) (*Graph, error) {
	if f == FormatJSONLD {
		return ParseJSONLD(r, base)
	}
	triples, err := readTriples(r, f, base)
	if err != nil {
		return nil, err
	}
	return NewGraph(triples...), nil
}

// Encode writes triples in the given format.
func Encode(w io.Writer, triples []Triple, f Format, opts WriteOptions) error {
	switch f {
	case FormatJSONLD:
		return WriteJSONLD(w, triples, opts)
	case FormatTurtle:
		return writeTurtle(w, triples, opts)
	}
	return writeTriples(w, triples, f)
}

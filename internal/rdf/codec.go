package rdf

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"

	rdfgo "github.com/geoknoesis/rdf-go/rdf"
)

// SyntaxError reports a parse failure in uploaded RDF.
type SyntaxError struct {
	Format string
	Line   int
	Msg    string
	Err    error
}

func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s syntax error at line %d: %s", e.Format, e.Line, e.Msg)
	}
	return fmt.Sprintf("%s syntax error: %s", e.Format, e.Msg)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// WriteOptions controls how a graph is serialized.
type WriteOptions struct {
	// Prefixes available for compaction. Only the ones used are declared.
	Prefixes Prefixes
	// Base IRI declared by formats that support one.
	Base string
}

var libFormats = map[Format]rdfgo.Format{
	FormatTurtle:   rdfgo.FormatTurtle,
	FormatNTriples: rdfgo.FormatNTriples,
	FormatNQuads:   rdfgo.FormatNQuads,
	FormatRDFXML:   rdfgo.FormatRDFXML,
}

// ParseNTriples reads N-Triples.
func ParseNTriples(r io.Reader) ([]Triple, error) {
	return readTriples(r, FormatNTriples, "")
}

// WriteNTriples writes one statement per line.
func WriteNTriples(w io.Writer, triples []Triple) error {
	return writeTriples(w, triples, FormatNTriples)
}

// readTriples decodes r with the library reader. Relative IRIs left by
// the document are resolved against base when one is given. Graph labels
// of quad formats are dropped.
func readTriples(r io.Reader, f Format, base string) ([]Triple, error) {
	lf, ok := libFormats[f]
	if !ok {
		return nil, fmt.Errorf("unsupported format %v", f)
	}
	var resolver *url.URL
	if base != "" {
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid base %q: %w", base, err)
		}
		resolver = u
	}

	src := &trackingReader{r: r}
	rd, err := rdfgo.NewReader(src, lf)
	if err != nil {
		return nil, decodeError(f, src, err)
	}
	defer rd.Close()

	var out []Triple
	for {
		st, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, decodeError(f, src, err)
		}
		t, err := fromStatement(st, resolver)
		if err != nil {
			return nil, &SyntaxError{Format: f.String(), Msg: err.Error(), Err: err}
		}
		out = append(out, t)
	}
}

// decodeError keeps failures of the underlying reader apart from syntax
// errors in the document.
func decodeError(f Format, src *trackingReader, err error) error {
	if src.err != nil {
		return fmt.Errorf("reading %s: %w", f, src.err)
	}
	se := &SyntaxError{Format: f.String(), Msg: err.Error(), Err: err}
	var pe *rdfgo.ParseError
	if errors.As(err, &pe) {
		se.Line = pe.Line
		if pe.Err != nil {
			se.Msg = pe.Err.Error()
		}
	}
	return se
}

func writeTriples(w io.Writer, triples []Triple, f Format) error {
	lf, ok := libFormats[f]
	if !ok {
		return fmt.Errorf("unsupported format %v", f)
	}
	wr, err := rdfgo.NewWriter(w, lf)
	if err != nil {
		return fmt.Errorf("opening %s writer: %w", f, err)
	}
	for _, t := range triples {
		st := rdfgo.Triple{S: toLib(t.S), P: rdfgo.IRI{Value: t.P.Value}, O: toLib(t.O)}.ToStatement()
		if err := wr.Write(st); err != nil {
			wr.Close()
			return fmt.Errorf("writing %s: %w", f, err)
		}
	}
	return wr.Close()
}

// writeTurtle declares the base and the used prefixes ahead of the
// library's statement lines.
func writeTurtle(w io.Writer, triples []Triple, opts WriteOptions) error {
	bw := bufio.NewWriter(w)
	used := opts.Prefixes.Used(triples)
	if opts.Base != "" {
		fmt.Fprintf(bw, "@base <%s> .\n", escapeIRI(opts.Base))
	}
	for _, label := range used.Labels() {
		fmt.Fprintf(bw, "@prefix %s: <%s> .\n", label, escapeIRI(used[label]))
	}
	if opts.Base != "" || len(used) > 0 {
		bw.WriteString("\n")
	}
	if err := writeTriples(bw, triples, FormatTurtle); err != nil {
		return err
	}
	return bw.Flush()
}

func toLib(t Term) rdfgo.Term {
	switch v := t.(type) {
	case IRI:
		return rdfgo.IRI{Value: v.Value}
	case BlankNode:
		return rdfgo.BlankNode{ID: v.ID}
	case Literal:
		if v.Lang != "" {
			return rdfgo.Literal{Lexical: v.Lexical, Lang: v.Lang}
		}
		return rdfgo.Literal{Lexical: v.Lexical, Datatype: rdfgo.IRI{Value: v.Datatype.Value}}
	}
	return nil
}

func fromStatement(st rdfgo.Statement, base *url.URL) (Triple, error) {
	lt := st.AsTriple()
	s, err := fromLib(lt.S, base)
	if err != nil {
		return Triple{}, err
	}
	if !IsResource(s) {
		return Triple{}, fmt.Errorf("literal in subject position")
	}
	o, err := fromLib(lt.O, base)
	if err != nil {
		return Triple{}, err
	}
	return Triple{S: s, P: resolve(IRI{Value: lt.P.Value}, base), O: o}, nil
}

func fromLib(t rdfgo.Term, base *url.URL) (Term, error) {
	switch v := t.(type) {
	case rdfgo.IRI:
		return resolve(IRI{Value: v.Value}, base), nil
	case rdfgo.BlankNode:
		return BlankNode{ID: v.ID}, nil
	case rdfgo.Literal:
		if v.Lang != "" {
			return NewLangLiteral(v.Lexical, v.Lang), nil
		}
		return NewTypedLiteral(v.Lexical, IRI{Value: v.Datatype.Value}), nil
	case nil:
		return nil, fmt.Errorf("missing term")
	}
	return nil, fmt.Errorf("unsupported term %s", t.String())
}

func resolve(iri IRI, base *url.URL) IRI {
	if base == nil {
		return iri
	}
	ref, err := url.Parse(iri.Value)
	if err != nil || ref.Scheme != "" {
		return iri
	}
	return IRI{Value: base.ResolveReference(ref).String()}
}

// trackingReader remembers the first read failure other than io.EOF.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && t.err == nil {
		t.err = err
	}
	return n, err
}

package rdf

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/piprate/json-gold/ld"
)

// WriteJSONLD serializes triples as compacted JSON-LD. The context holds
// the used prefixes; the base IRI is never applied.
func WriteJSONLD(w io.Writer, triples []Triple, opts WriteOptions) error {
	var nq strings.Builder
	if err := WriteNTriples(&nq, triples); err != nil {
		return err
	}

	proc := ld.NewJsonLdProcessor()
	fromOpts := ld.NewJsonLdOptions("")
	fromOpts.Format = "application/n-quads"
	doc, err := proc.FromRDF(nq.String(), fromOpts)
	if err != nil {
		return fmt.Errorf("building json-ld: %w", err)
	}

	context := map[string]any{}
	for label, ns := range opts.Prefixes.Used(triples) {
		context[label] = ns
	}
	compactOpts := ld.NewJsonLdOptions("")
	compactOpts.DocumentLoader = offlineLoader{}
	compacted, err := proc.Compact(doc, map[string]any{"@context": context}, compactOpts)
	if err != nil {
		return fmt.Errorf("compacting json-ld: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(compacted)
}

// ParseJSONLD expands a JSON-LD document to triples. Triples in named
// graphs are merged into the default graph. Remote contexts are refused.
func ParseJSONLD(r io.Reader, base string) (*Graph, error) {
	var doc any
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, &SyntaxError{Format: "JSON-LD", Msg: err.Error()}
	}

	proc := ld.NewJsonLdProcessor()
	opts := ld.NewJsonLdOptions(base)
	opts.DocumentLoader = offlineLoader{}
	out, err := proc.ToRDF(doc, opts)
	if err != nil {
		return nil, &SyntaxError{Format: "JSON-LD", Msg: err.Error()}
	}
	dataset, ok := out.(*ld.RDFDataset)
	if !ok {
		return nil, fmt.Errorf("json-ld: unexpected ToRDF result %T", out)
	}
	serialized, err := (&ld.NQuadRDFSerializer{}).Serialize(dataset)
	if err != nil {
		return nil, fmt.Errorf("json-ld: serializing quads: %w", err)
	}
	nquads, ok := serialized.(string)
	if !ok {
		return nil, fmt.Errorf("json-ld: unexpected N-Quads result %T", serialized)
	}
	triples, err := readTriples(strings.NewReader(nquads), FormatNQuads, "")
	if err != nil {
		return nil, err
	}
	return NewGraph(triples...), nil
}

// offlineLoader rejects every remote document so that parsing never
// reaches the network.
type offlineLoader struct{}

func (offlineLoader) LoadDocument(u string) (*ld.RemoteDocument, error) {
	return nil, ld.NewJsonLdError(ld.LoadingDocumentFailed, "remote contexts are disabled: "+u)
}

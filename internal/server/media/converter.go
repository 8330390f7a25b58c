// Package media serializes graph fragments for the media type a client
// accepts.
package media

import (
	"bytes"
	"strings"

	"github.com/systemshift/drumbeat/internal/rdf"
	apperrors "github.com/systemshift/drumbeat/internal/server/errors"
)

// Media types served, in the order they are considered.
const (
	JSON     = "application/json"
	JSONLD   = "application/ld+json"
	Text     = "text/plain"
	Turtle   = "text/turtle"
	RDFXML   = "application/rdf+xml"
	XML      = "application/xml"
	HTML     = "text/html"
	Wildcard = "*/*"
)

// Supported lists every acceptable media type.
var Supported = []string{JSON, JSONLD, Text, Turtle, RDFXML, XML, HTML, Wildcard}

type format int

const (
	formatJSONLD format = iota
	formatTurtle
	formatRDFXML
	formatHTML
)

var formats = map[string]format{
	JSON:     formatJSONLD,
	JSONLD:   formatJSONLD,
	Text:     formatTurtle,
	Turtle:   formatTurtle,
	RDFXML:   formatRDFXML,
	XML:      formatRDFXML,
	HTML:     formatHTML,
	Wildcard: formatHTML,
}

// contentTypes is the concrete type written for each format.
var contentTypes = map[format]string{
	formatJSONLD: JSONLD,
	formatTurtle: Turtle,
	formatRDFXML: RDFXML,
	formatHTML:   HTML,
}

// Response is a serialized fragment.
type Response struct {
	Body []byte
	// MediaType is the accepted entry that selected the format.
	MediaType string
	// ContentType is the header value to send.
	ContentType string
}

// Converter turns fragments into responses.
type Converter struct {
	defaultBase string
	prefixes    rdf.Prefixes
}

// NewConverter returns a converter that falls back to defaultBase and
// declares the standard prefixes.
func NewConverter(defaultBase string) *Converter {
	return &Converter{defaultBase: defaultBase, prefixes: rdf.StandardPrefixes()}
}

// Negotiate returns the first accepted entry that is supported.
func (c *Converter) Negotiate(accepted []string) (string, error) {
	for _, a := range accepted {
		a = strings.ToLower(strings.TrimSpace(a))
		if _, ok := formats[a]; ok {
			return a, nil
		}
	}
	return "", apperrors.UnsupportedMediaType(strings.Join(accepted, ", "), append([]string(nil), Supported...))
}

// Convert serializes frag for the first supported entry of accepted. An
// empty base selects the default base; JSON-LD never uses a base.
func (c *Converter) Convert(frag *rdf.Graph, accepted []string, base string) (*Response, error) {
	chosen, err := c.Negotiate(accepted)
	if err != nil {
		return nil, err
	}
	if frag == nil {
		frag = rdf.NewGraph()
	}
	f := formats[chosen]
	if base == "" {
		base = c.defaultBase
	}
	prefixes := c.prefixes.With(frag.Prefixes())
	triples := frag.Sorted()

	var buf bytes.Buffer
	switch f {
	case formatJSONLD:
		err = rdf.Encode(&buf, triples, rdf.FormatJSONLD, rdf.WriteOptions{Prefixes: prefixes})
	case formatTurtle:
		err = rdf.Encode(&buf, triples, rdf.FormatTurtle, rdf.WriteOptions{Prefixes: prefixes, Base: base})
	case formatRDFXML:
		err = rdf.Encode(&buf, triples, rdf.FormatRDFXML, rdf.WriteOptions{Prefixes: prefixes, Base: base})
	case formatHTML:
		err = writeHTML(&buf, triples, prefixes, base)
	}
	if err != nil {
		return nil, apperrors.Internal(err, "serializing response as %s", chosen)
	}
	return &Response{
		Body:        buf.Bytes(),
		MediaType:   chosen,
		ContentType: contentTypes[f] + "; charset=utf-8",
	}, nil
}

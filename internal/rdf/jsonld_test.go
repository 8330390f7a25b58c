package rdf

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSONLD(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSONLD(&buf, collectionTriples(), WriteOptions{Prefixes: StandardPrefixes(), Base: testBase}))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	ctx, ok := doc["@context"].(map[string]any)
	require.True(t, ok, "compacted output carries a context: %s", buf.String())
	assert.Equal(t, LBDHONamespace, ctx["lbdho"])
	assert.Equal(t, testBase+"collections/c1", doc["@id"])
	assert.Equal(t, "lbdho:Collection", doc["@type"])
	assert.Equal(t, "My Collection", doc["lbdho:name"])
}

func TestJSONLDRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	triples := collectionTriples()
	require.NoError(t, WriteJSONLD(&buf, triples, WriteOptions{Prefixes: StandardPrefixes()}))

	g, err := ParseJSONLD(&buf, "")
	require.NoError(t, err)
	assert.Equal(t, len(triples), g.Len())
	for _, tr := range triples {
		assert.True(t, g.Has(tr), "missing %s", tr)
	}
}

func TestParseJSONLD(t *testing.T) {
	doc := `{
  "@context": {"ex": "http://example.org/"},
  "@id": "ex:wall",
  "@type": "ex:Wall",
  "ex:height": {"@value": "2.5", "@type": "http://www.w3.org/2001/XMLSchema#decimal"}
}`
	g, err := ParseJSONLD(strings.NewReader(doc), "")
	require.NoError(t, err)
	wall := NewIRI("http://example.org/wall")
	assert.True(t, g.Has(NewTriple(wall, RDFType, NewIRI("http://example.org/Wall"))))
	assert.True(t, g.Has(NewTriple(wall, NewIRI("http://example.org/height"), NewTypedLiteral("2.5", XSDDecimal))))
}

func TestParseJSONLDRejectsRemoteContext(t *testing.T) {
	_, err := ParseJSONLD(strings.NewReader(`{"@context": "http://example.org/context.jsonld", "@id": "x"}`), "")
	var se *SyntaxError
	assert.ErrorAs(t, err, &se)

	_, err = ParseJSONLD(strings.NewReader(`{not json`), "")
	assert.ErrorAs(t, err, &se)
}

package rdf

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBase = "http://example.org/drumbeat/"

func collectionTriples() []Triple {
	c := NewIRI(testBase + "collections/c1")
	return []Triple{
		NewTriple(c, RDFType, LBDHOCollection),
		NewTriple(c, LBDHOName, NewLiteral("My Collection")),
	}
}

func TestEncodeTerm(t *testing.T) {
	tests := []struct {
		term Term
		want string
	}{
		{NewIRI("http://example.org/a"), "<http://example.org/a>"},
		{BlankNode{ID: "b1"}, "_:b1"},
		{NewLiteral("plain"), `"plain"`},
		{NewTypedLiteral("plain", XSDString), `"plain"`},
		{NewTypedLiteral("5", XSDInteger), `"5"^^<http://www.w3.org/2001/XMLSchema#integer>`},
		{NewLangLiteral("hei", "FI"), `"hei"@fi`},
		{NewLiteral("a\"b\\c\nd"), `"a\"b\\c\nd"`},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, EncodeTerm(tt.term))
			back, err := ParseTerm(tt.want)
			require.NoError(t, err)
			assert.Equal(t, tt.term, back)
		})
	}
}

func TestParseTermRejectsTrailingInput(t *testing.T) {
	_, err := ParseTerm(`<http://a> trailing`)
	assert.Error(t, err)
}

func TestSortKeyOrdersByValue(t *testing.T) {
	base := "http://example.org/collections/"
	ids := []Term{NewIRI(base + "c1"), NewIRI(base + "c/x"), NewIRI(base + "c")}
	g := NewGraph()
	for _, id := range ids {
		g.Add(NewTriple(id, RDFType, LBDHOCollection))
	}
	var got []string
	for _, tr := range g.Sorted() {
		got = append(got, tr.S.String())
	}
	assert.Equal(t, []string{base + "c", base + "c/x", base + "c1"}, got)

	assert.Negative(t, CompareTerms(BlankNode{ID: "z"}, NewIRI("http://a")))
	assert.Negative(t, CompareTerms(NewIRI("http://z"), NewLiteral("a")))
	assert.Negative(t, CompareTerms(NewLiteral("c"), NewLiteral("c1")))
	assert.Negative(t, CompareTerms(NewLiteral("5"), NewTypedLiteral("5", XSDInteger)))
	assert.Negative(t, CompareTerms(NewLangLiteral("x", "en"), NewLangLiteral("x", "fi")))
	assert.Zero(t, CompareTerms(NewLiteral("x"), NewTypedLiteral("x", XSDString)))
}

func TestNTriplesRoundTrip(t *testing.T) {
	triples := []Triple{
		NewTriple(NewIRI("http://example.org/s"), NewIRI("http://example.org/p"), NewLiteral("o")),
		NewTriple(BlankNode{ID: "x"}, RDFType, NewIRI("http://example.org/C")),
	}
	var buf bytes.Buffer
	require.NoError(t, WriteNTriples(&buf, triples))
	assert.Equal(t,
		"<http://example.org/s> <http://example.org/p> \"o\" .\n"+
			"_:x <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://example.org/C> .\n",
		buf.String())

	back, err := ParseNTriples(&buf)
	require.NoError(t, err)
	assert.Equal(t, triples, back)
}

func TestDecodeNQuadsDropsGraphLabel(t *testing.T) {
	doc := "<http://a> <http://b> \"c\" <http://g> .\n<http://a> <http://b> <http://d> .\n"
	g, err := Decode(strings.NewReader(doc), FormatNQuads, "")
	require.NoError(t, err)
	require.Equal(t, 2, g.Len())
	assert.True(t, g.Has(NewTriple(NewIRI("http://a"), NewIRI("http://b"), NewLiteral("c"))))
}

func TestParseNTriplesErrors(t *testing.T) {
	tests := map[string]string{
		"literal subject":   `"s" <http://p> <http://o> .`,
		"literal predicate": `<http://s> "p" <http://o> .`,
		"unterminated":      `<http://s> <http://p> "o .`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseNTriples(strings.NewReader(doc + "\n"))
			var se *SyntaxError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, "N-Triples", se.Format)
		})
	}
}

func TestDecodeKeepsReaderFailures(t *testing.T) {
	boom := errors.New("boom")
	_, err := Decode(iotest.ErrReader(boom), FormatTurtle, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var se *SyntaxError
	assert.False(t, errors.As(err, &se))
}

func TestTurtleRoundTrip(t *testing.T) {
	c := NewIRI(testBase + "collections/c1")
	triples := append(collectionTriples(),
		NewTriple(c, RDFSLabel, NewLangLiteral("kokoelma", "fi")),
		NewTriple(c, NewIRI("http://other.example/p"), NewTypedLiteral("42", XSDInteger)),
		NewTriple(c, RDFSLabel, NewLiteral("line\nbreak \"quoted\"")),
	)
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, triples, FormatTurtle, WriteOptions{Prefixes: StandardPrefixes(), Base: testBase}))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "@base <"+testBase+"> .\n"))
	assert.Contains(t, out, "@prefix lbdho: <"+LBDHONamespace+"> .\n")
	assert.NotContains(t, out, "@prefix owl:")

	g, err := Decode(&buf, FormatTurtle, "")
	require.NoError(t, err)
	assert.Equal(t, len(triples), g.Len())
	for _, tr := range triples {
		assert.True(t, g.Has(tr), "missing %s", tr)
	}
}

func TestDecodeTurtle(t *testing.T) {
	doc := `
# comment
@prefix ex: <http://example.org/> .

ex:wall a ex:Wall, ex:Element ;
    ex:count 3 ;
    ex:label "single" , "seinä"@FI ;
    ex:rel <relative/x> .
`
	g, err := Decode(strings.NewReader(doc), FormatTurtle, "http://example.org/base/")
	require.NoError(t, err)

	wall := NewIRI("http://example.org/wall")
	ex := func(s string) IRI { return NewIRI("http://example.org/" + s) }
	expect := []Triple{
		NewTriple(wall, RDFType, ex("Wall")),
		NewTriple(wall, RDFType, ex("Element")),
		NewTriple(wall, ex("count"), NewTypedLiteral("3", XSDInteger)),
		NewTriple(wall, ex("label"), NewLiteral("single")),
		NewTriple(wall, ex("label"), NewLangLiteral("seinä", "fi")),
		NewTriple(wall, ex("rel"), NewIRI("http://example.org/base/relative/x")),
	}
	assert.Equal(t, len(expect), g.Len())
	for _, tr := range expect {
		assert.True(t, g.Has(tr), "missing %s", tr)
	}
}

func TestDecodeTurtleErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"undeclared prefix", "ex:a ex:b ex:c .\n"},
		{"unterminated string", "<http://a> <http://b> \"oops .\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.doc), FormatTurtle, "")
			var se *SyntaxError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, "Turtle", se.Format)
		})
	}
}

func TestRDFXMLRoundTrip(t *testing.T) {
	triples := append(collectionTriples(),
		NewTriple(NewIRI(testBase+"collections/c1"), NewIRI("http://other.example/vocab#size"), NewTypedLiteral("3", XSDInteger)),
	)
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, triples, FormatRDFXML, WriteOptions{Prefixes: StandardPrefixes(), Base: testBase}))
	assert.Contains(t, buf.String(), "rdf:RDF")

	g, err := Decode(&buf, FormatRDFXML, "")
	require.NoError(t, err)
	assert.Equal(t, len(triples), g.Len())
	for _, tr := range triples {
		assert.True(t, g.Has(tr), "missing %s", tr)
	}
}

func TestDecodeRDFXML(t *testing.T) {
	doc := `<?xml version="1.0"?>
<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"
         xmlns:ex="http://example.org/"
         xml:base="http://example.org/base/">
  <rdf:Description rdf:about="wall1">
    <rdf:type rdf:resource="http://example.org/Wall"/>
    <ex:height rdf:datatype="http://www.w3.org/2001/XMLSchema#decimal">2.5</ex:height>
    <ex:note xml:lang="en">tall</ex:note>
  </rdf:Description>
</rdf:RDF>`
	g, err := Decode(strings.NewReader(doc), FormatRDFXML, "")
	require.NoError(t, err)

	wall := NewIRI("http://example.org/base/wall1")
	for _, tr := range []Triple{
		NewTriple(wall, RDFType, NewIRI("http://example.org/Wall")),
		NewTriple(wall, NewIRI("http://example.org/height"), NewTypedLiteral("2.5", XSDDecimal)),
		NewTriple(wall, NewIRI("http://example.org/note"), NewLangLiteral("tall", "en")),
	} {
		assert.True(t, g.Has(tr), "missing %s", tr)
	}
	assert.Equal(t, 3, g.Len())
}

func TestDecodeRDFXMLError(t *testing.T) {
	_, err := Decode(strings.NewReader(`<rdf:RDF`), FormatRDFXML, "")
	var se *SyntaxError
	assert.ErrorAs(t, err, &se)
}

package ifc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/drumbeat/internal/rdf"
)

const objectBase = "http://example.org/objects/c1/ds1/"

const sample = `ISO-10303-21;
HEADER;
FILE_DESCRIPTION(('ViewDefinition [CoordinationView]'),'2;1');
FILE_NAME('wall.ifc','2016-01-01T00:00:00',(''),(''),'','','');
FILE_SCHEMA(('IFC2X3'));
ENDSEC;
DATA;
/* owner history omitted */
#1=IFCCARTESIANPOINT((0.,1.5,-2.E-1));
#2=IFCWALL('2O2Fr$t4X7Zf8NOew3FLOH',$,'Wall \X2\00E4\X0\ ''A''',*,.T.,#1,.ELEMENT.,IFCLABEL('Ext'),42);
ENDSEC;
END-ISO-10303-21;
`

func TestParse(t *testing.T) {
	f, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	assert.Equal(t, []string{"IFC2X3"}, f.Schema)
	require.Len(t, f.Instances, 2)

	wall := f.Instances[1]
	assert.Equal(t, 2, wall.ID)
	assert.Equal(t, "IFCWALL", wall.Entity)
	assert.Equal(t, 10, wall.Line)
	require.Len(t, wall.Params, 9)
	assert.Equal(t, ValueNull, wall.Params[1].Kind)
	assert.Equal(t, "Wall ä 'A'", wall.Params[2].Text)
	assert.Equal(t, ValueDerived, wall.Params[3].Kind)
	assert.Equal(t, Value{Kind: ValueEnum, Text: "T"}, wall.Params[4])
	assert.Equal(t, Value{Kind: ValueRef, Ref: 1}, wall.Params[5])
	assert.Equal(t, ValueTyped, wall.Params[7].Kind)
	assert.Equal(t, int64(42), wall.Params[8].Int)

	point := f.Instances[0].Params[0]
	require.Equal(t, ValueList, point.Kind)
	assert.InDelta(t, 1.5, point.Items[1].Real, 1e-9)
	assert.InDelta(t, -0.2, point.Items[2].Real, 1e-9)
}

func TestConvert(t *testing.T) {
	g, err := Convert(strings.NewReader(sample), objectBase)
	require.NoError(t, err)

	wall := rdf.NewIRI(objectBase + "2O2Fr$t4X7Zf8NOew3FLOH")
	point := rdf.NewIRI(objectBase + "LINE_1")
	ifc := func(local string) rdf.IRI { return rdf.NewIRI(rdf.IFCNamespace + local) }

	expected := []rdf.Triple{
		rdf.NewTriple(wall, rdf.RDFType, ifc("IFCWALL")),
		rdf.NewTriple(wall, ifc("attribute_1"), rdf.NewLiteral("2O2Fr$t4X7Zf8NOew3FLOH")),
		rdf.NewTriple(wall, ifc("attribute_3"), rdf.NewLiteral("Wall ä 'A'")),
		rdf.NewTriple(wall, ifc("attribute_5"), rdf.NewTypedLiteral("true", rdf.XSDBoolean)),
		rdf.NewTriple(wall, ifc("attribute_6"), point),
		rdf.NewTriple(wall, ifc("attribute_7"), ifc("ELEMENT")),
		rdf.NewTriple(wall, ifc("attribute_8"), rdf.NewTypedLiteral("Ext", ifc("IFCLABEL"))),
		rdf.NewTriple(wall, ifc("attribute_9"), rdf.NewTypedLiteral("42", rdf.XSDInteger)),
		rdf.NewTriple(point, rdf.RDFType, ifc("IFCCARTESIANPOINT")),
	}
	for _, tr := range expected {
		assert.True(t, g.Has(tr), "missing %s", tr)
	}
	assert.Len(t, g.Match(wall, rdf.IRI{}), 8)

	// The coordinate list is a three element rdf:first/rdf:rest chain.
	heads := g.Match(point, ifc("attribute_1"))
	require.Len(t, heads, 1)
	node := heads[0].O
	var items int
	for node != rdf.Term(rdf.RDFNil) {
		first := g.Match(node, rdf.RDFFirst)
		require.Len(t, first, 1)
		rest := g.Match(node, rdf.RDFRest)
		require.Len(t, rest, 1)
		items++
		node = rest[0].O
	}
	assert.Equal(t, 3, items)
	assert.Equal(t, "ifc", labelFor(g, rdf.IFCNamespace))
}

func labelFor(g *rdf.Graph, ns string) string {
	for label, v := range g.Prefixes() {
		if v == ns {
			return label
		}
	}
	return ""
}

func TestConvertErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"missing magic", "HEADER;ENDSEC;"},
		{"unterminated data", "ISO-10303-21;\nDATA;\n#1=IFCWALL($);\n"},
		{"bad parameter", "ISO-10303-21;\nDATA;\n#1=IFCWALL(%);\nENDSEC;\nEND-ISO-10303-21;"},
		{"dangling reference", "ISO-10303-21;\nDATA;\n#1=IFCWALL(#9);\nENDSEC;\nEND-ISO-10303-21;"},
		{"duplicate instance", "ISO-10303-21;\nDATA;\n#1=IFCWALL($);\n#1=IFCDOOR($);\nENDSEC;\nEND-ISO-10303-21;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Convert(strings.NewReader(tt.input), objectBase)
			var se *rdf.SyntaxError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, "IFC", se.Format)
		})
	}
}

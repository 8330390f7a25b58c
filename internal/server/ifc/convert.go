package ifc

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/systemshift/drumbeat/internal/rdf"
)

// globalIDAlphabet is the 64 character set of compressed IFC GUIDs.
const globalIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz_$"

func isGlobalID(s string) bool {
	if len(s) != 22 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !strings.ContainsRune(globalIDAlphabet, rune(s[i])) {
			return false
		}
	}
	return true
}

// Converter maps parsed instances to triples under an object base URI.
type Converter struct {
	objectBase string
	uris       map[int]rdf.IRI
	graph      *rdf.Graph
}

// Convert parses r and returns its instances as RDF. Rooted instances
// (those whose first attribute is a GlobalId) are named by that id,
// all others by LINE_<n>.
func Convert(r io.Reader, objectBase string) (*rdf.Graph, error) {
	f, err := Parse(r)
	if err != nil {
		return nil, err
	}
	return ConvertFile(f, objectBase)
}

// ConvertFile converts an already parsed file.
func ConvertFile(f *File, objectBase string) (*rdf.Graph, error) {
	c := &Converter{
		objectBase: objectBase,
		uris:       make(map[int]rdf.IRI, len(f.Instances)),
		graph:      rdf.NewGraph(),
	}
	c.graph.SetPrefix("ifc", rdf.IFCNamespace)

	for _, inst := range f.Instances {
		if _, dup := c.uris[inst.ID]; dup {
			return nil, syntaxErr(inst.Line, "duplicate instance #%d", inst.ID)
		}
		c.uris[inst.ID] = c.instanceURI(inst)
	}
	for _, inst := range f.Instances {
		if err := c.instance(inst); err != nil {
			return nil, err
		}
	}
	return c.graph, nil
}

func (c *Converter) instanceURI(inst *Instance) rdf.IRI {
	if len(inst.Params) > 0 && inst.Params[0].Kind == ValueString && isGlobalID(inst.Params[0].Text) {
		return rdf.NewIRI(c.objectBase + url.PathEscape(inst.Params[0].Text))
	}
	return rdf.NewIRI(c.objectBase + "LINE_" + strconv.Itoa(inst.ID))
}

func attributeIRI(i int) rdf.IRI {
	return rdf.NewIRI(rdf.IFCNamespace + "attribute_" + strconv.Itoa(i))
}

func (c *Converter) instance(inst *Instance) error {
	subject := c.uris[inst.ID]
	c.graph.Add(rdf.NewTriple(subject, rdf.RDFType, rdf.NewIRI(rdf.IFCNamespace+inst.Entity)))
	for i, v := range inst.Params {
		label := fmt.Sprintf("l%d_a%d", inst.ID, i+1)
		obj, err := c.term(v, inst, label)
		if err != nil {
			return err
		}
		if obj == nil {
			continue
		}
		c.graph.Add(rdf.NewTriple(subject, attributeIRI(i+1), obj))
	}
	return nil
}

// term converts one value; nil means the value produces no triple.
// label seeds deterministic blank node ids for lists.
func (c *Converter) term(v Value, inst *Instance, label string) (rdf.Term, error) {
	switch v.Kind {
	case ValueNull, ValueDerived:
		return nil, nil
	case ValueInteger:
		return rdf.NewTypedLiteral(strconv.FormatInt(v.Int, 10), rdf.XSDInteger), nil
	case ValueReal:
		return rdf.NewTypedLiteral(strconv.FormatFloat(v.Real, 'E', -1, 64), rdf.XSDDouble), nil
	case ValueString:
		return rdf.NewLiteral(v.Text), nil
	case ValueBinary:
		return rdf.NewTypedLiteral(v.Text, rdf.NewIRI(rdf.IFCNamespace+"BINARY")), nil
	case ValueEnum:
		switch v.Text {
		case "T":
			return rdf.NewTypedLiteral("true", rdf.XSDBoolean), nil
		case "F":
			return rdf.NewTypedLiteral("false", rdf.XSDBoolean), nil
		case "U":
			return nil, nil
		}
		return rdf.NewIRI(rdf.IFCNamespace + v.Text), nil
	case ValueRef:
		uri, ok := c.uris[v.Ref]
		if !ok {
			return nil, syntaxErr(inst.Line, "#%d references undefined instance #%d", inst.ID, v.Ref)
		}
		return uri, nil
	case ValueTyped:
		inner, err := c.term(v.Items[0], inst, label)
		if err != nil || inner == nil {
			return inner, err
		}
		lit, ok := inner.(rdf.Literal)
		if !ok {
			return inner, nil
		}
		return rdf.NewTypedLiteral(lit.Lexical, rdf.NewIRI(rdf.IFCNamespace+v.Text)), nil
	case ValueList:
		return c.list(v.Items, inst, label)
	}
	return nil, syntaxErr(inst.Line, "unsupported value in #%d", inst.ID)
}

// list writes an rdf:first/rdf:rest chain and returns its head.
func (c *Converter) list(items []Value, inst *Instance, label string) (rdf.Term, error) {
	if len(items) == 0 {
		return rdf.RDFNil, nil
	}
	head := rdf.BlankNode{ID: label + "_0"}
	node := head
	for i, item := range items {
		obj, err := c.term(item, inst, fmt.Sprintf("%s_%d", label, i))
		if err != nil {
			return nil, err
		}
		if obj == nil {
			obj = rdf.RDFNil
		}
		c.graph.Add(rdf.NewTriple(node, rdf.RDFFirst, obj))
		var rest rdf.Term = rdf.RDFNil
		next := rdf.BlankNode{ID: fmt.Sprintf("%s_%d", label, i+1)}
		if i < len(items)-1 {
			rest = next
		}
		c.graph.Add(rdf.NewTriple(node, rdf.RDFRest, rest))
		node = next
	}
	return head, nil
}

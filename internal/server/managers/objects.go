package managers

import (
	"context"
	"net/url"
	"strings"

	"github.com/systemshift/drumbeat/internal/rdf"
	apperrors "github.com/systemshift/drumbeat/internal/server/errors"
	"github.com/systemshift/drumbeat/internal/server/graph"
)

// ObjectOptions narrows the triples returned for one object.
type ObjectOptions struct {
	// ExcludeProperties keeps only rdf:type triples.
	ExcludeProperties bool
	// ExpandBlankObjects adds the triples of blank node objects, recursively.
	ExpandBlankObjects bool
	// FilterProperties keeps only these predicates.
	FilterProperties []rdf.IRI
	// FilterObjectTypes keeps only triples whose object has one of these types.
	FilterObjectTypes []rdf.IRI
}

// ParseIRIList reads a comma separated list of absolute IRIs, <IRI>s or
// prefixed names.
func ParseIRIList(s string, prefixes rdf.Prefixes) ([]rdf.IRI, error) {
	var out []rdf.IRI
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if strings.HasPrefix(item, "<") && strings.HasSuffix(item, ">") {
			item = item[1 : len(item)-1]
		} else if expanded, ok := prefixes.Expand(item); ok {
			item = expanded
		}
		u, err := url.Parse(item)
		if err != nil || !u.IsAbs() {
			return nil, apperrors.BadRequest("not an IRI or known prefixed name: %q", item)
		}
		out = append(out, rdf.NewIRI(item))
	}
	return out, nil
}

// DataSetObjectManager reads the objects of a data set's content graph.
type DataSetObjectManager struct {
	base     *Base
	dataSets *DataSetManager
}

func NewDataSetObjectManager(b *Base, dataSets *DataSetManager) *DataSetObjectManager {
	return &DataSetObjectManager{base: b, dataSets: dataSets}
}

func (m *DataSetObjectManager) URI(c, ds, obj string) string {
	return m.base.Naming.ObjectURI(c, ds, obj)
}

func (m *DataSetObjectManager) content(ctx context.Context, c, ds, set string) (string, error) {
	ok, err := m.dataSets.CheckExists(ctx, c, ds, set)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperrors.NotFound("data set not found: %s", joinIDs([]string{c, ds, set}))
	}
	return m.dataSets.ContentGraph(c, ds, set), nil
}

// GetAll lists the typed resources of the data set.
func (m *DataSetObjectManager) GetAll(ctx context.Context, c, ds, set string) (*rdf.Graph, error) {
	g, err := m.content(ctx, c, ds, set)
	if err != nil {
		return nil, err
	}
	return m.base.fragment(ctx, g, objectListQuery.MustBind(nil))
}

// GetByID returns the triples about one object.
func (m *DataSetObjectManager) GetByID(ctx context.Context, c, ds, set, obj string, opts ObjectOptions) (*rdf.Graph, error) {
	g, err := m.content(ctx, c, ds, set)
	if err != nil {
		return nil, err
	}
	subject := rdf.NewIRI(m.URI(c, ds, obj))

	var q graph.Query
	if len(opts.FilterObjectTypes) > 0 && !opts.ExcludeProperties {
		q = objectTypedValuesQuery.MustBind(graph.Params{"uri": subject}).
			WithFilter("otype", iriTerms(opts.FilterObjectTypes)...)
	} else {
		q = describeQuery.MustBind(graph.Params{"uri": subject})
	}
	switch {
	case opts.ExcludeProperties:
		q = q.WithFilter("p", rdf.RDFType)
	case len(opts.FilterProperties) > 0:
		q = q.WithFilter("p", iriTerms(opts.FilterProperties)...)
	}

	frag, err := m.base.fragment(ctx, g, q)
	if err != nil {
		return nil, err
	}
	if frag.Len() == 0 {
		ok, err := graph.Exists(ctx, m.base.Store, g, describeQuery.MustBind(graph.Params{"uri": subject}))
		if err != nil {
			return nil, apperrors.Internal(err, "existence check failed")
		}
		if !ok {
			return nil, apperrors.NotFound("object not found: %s", obj)
		}
		return frag, nil
	}
	if opts.ExpandBlankObjects {
		if err := m.expandBlanks(ctx, g, frag); err != nil {
			return nil, err
		}
	}
	return frag, nil
}

// expandBlanks adds the description of every blank node reachable from
// the fragment's objects. Each node is described once.
func (m *DataSetObjectManager) expandBlanks(ctx context.Context, g string, frag *rdf.Graph) error {
	seen := map[string]bool{}
	var queue []rdf.BlankNode
	enqueue := func(triples []rdf.Triple) {
		for _, t := range triples {
			if b, ok := t.O.(rdf.BlankNode); ok && !seen[b.ID] {
				seen[b.ID] = true
				queue = append(queue, b)
			}
		}
	}
	enqueue(frag.Triples())
	for len(queue) > 0 {
		b := queue[0]
		queue = queue[1:]
		part, err := m.base.fragment(ctx, g, describeQuery.MustBind(graph.Params{"uri": b}))
		if err != nil {
			return err
		}
		frag.Merge(part)
		enqueue(part.Triples())
	}
	return nil
}

// GetType returns the rdf:type triples of one object.
func (m *DataSetObjectManager) GetType(ctx context.Context, c, ds, set, obj string) (*rdf.Graph, error) {
	g, err := m.content(ctx, c, ds, set)
	if err != nil {
		return nil, err
	}
	frag, err := m.base.fragment(ctx, g, objectTypeQuery.MustBind(graph.Params{"uri": rdf.NewIRI(m.URI(c, ds, obj))}))
	if err != nil {
		return nil, err
	}
	if frag.Len() == 0 {
		return nil, apperrors.NotFound("type of object not found: %s", obj)
	}
	return frag, nil
}

func iriTerms(iris []rdf.IRI) []rdf.Term {
	out := make([]rdf.Term, len(iris))
	for i, v := range iris {
		out[i] = v
	}
	return out
}

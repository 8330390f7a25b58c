package graph

import (
	"fmt"

	"github.com/systemshift/drumbeat/internal/rdf"
)

// Column names a result must bind to be read back as triples.
const (
	ColSubject   = "subject"
	ColPredicate = "predicate"
	ColObject    = "object"
)

// ResultToGraph builds a fragment from a result with subject, predicate
// and object columns, one triple per row in row order.
func ResultToGraph(res *Result) (*rdf.Graph, error) {
	g := rdf.NewGraph()
	if res == nil || len(res.Rows) == 0 {
		return g, nil
	}
	for _, col := range []string{ColSubject, ColPredicate, ColObject} {
		if !hasColumn(res.Vars, col) {
			return nil, fmt.Errorf("result has no %q column", col)
		}
	}
	for i, row := range res.Rows {
		s, p, o := row[ColSubject], row[ColPredicate], row[ColObject]
		if s == nil || p == nil || o == nil {
			return nil, fmt.Errorf("row %d: unbound column", i)
		}
		if !rdf.IsResource(s) {
			return nil, fmt.Errorf("row %d: subject %s is not a resource", i, rdf.EncodeTerm(s))
		}
		pred, ok := p.(rdf.IRI)
		if !ok {
			return nil, fmt.Errorf("row %d: predicate %s is not an IRI", i, rdf.EncodeTerm(p))
		}
		g.Add(rdf.NewTriple(s, pred, o))
	}
	return g, nil
}

func hasColumn(vars []string, name string) bool {
	for _, v := range vars {
		if v == name {
			return true
		}
	}
	return false
}

// Package graph is the triple store adapter. Every backend holds named
// graphs of RDF triples and evaluates bound query templates against them.
package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/systemshift/drumbeat/internal/rdf"
)

// Store is a quad store addressed by graph name.
type Store interface {
	// Select evaluates q against one graph.
	Select(ctx context.Context, graph string, q Query) (*Result, error)

	// Insert adds triples. Duplicates are ignored.
	Insert(ctx context.Context, graph string, triples []rdf.Triple) error

	// InsertUnless adds triples only if guard matches nothing, as one
	// atomic step. It reports whether the triples were inserted.
	InsertUnless(ctx context.Context, graph string, guard Query, triples []rdf.Triple) (bool, error)

	// Delete removes the triples matched by the single pattern of q.
	Delete(ctx context.Context, graph string, q Query) error

	CreateGraph(ctx context.Context, graph string) error
	DropGraph(ctx context.Context, graph string) error
	ClearGraph(ctx context.Context, graph string) error

	// ReplaceGraph swaps the content of a graph for triples as one atomic
	// step. Readers see either the old or the new content.
	ReplaceGraph(ctx context.Context, graph string, triples []rdf.Triple) error

	// Size returns the number of triples in a graph.
	Size(ctx context.Context, graph string) (int, error)

	Close(ctx context.Context) error
}

// ErrBadDelete is returned when a delete query is not a single pattern.
var ErrBadDelete = errors.New("delete query must have exactly one pattern")

// Exists reports whether q has at least one solution. The rewritten query
// projects a constant and tests for a row.
func Exists(ctx context.Context, s Store, graph string, q Query) (bool, error) {
	res, err := s.Select(ctx, graph, existsQuery(q))
	if err != nil {
		return false, fmt.Errorf("checking %s: %w", q.Name, err)
	}
	return res.Len() > 0, nil
}

func deletePattern(q Query) (Pattern, error) {
	if len(q.Where) != 1 {
		return Pattern{}, ErrBadDelete
	}
	if err := q.Validate(); err != nil {
		return Pattern{}, err
	}
	return q.Where[0], nil
}

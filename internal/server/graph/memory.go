package graph

import (
	"context"
	"sync"

	"github.com/systemshift/drumbeat/internal/rdf"
)

// MemoryStore keeps every graph in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	graphs map[string]*memGraph
}

type memTriple struct {
	s, p, o string
	t       rdf.Triple
}

type memGraph struct {
	triples map[string]memTriple
}

// NewMemory returns an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{graphs: make(map[string]*memGraph)}
}

func (m *MemoryStore) graph(name string, create bool) *memGraph {
	g, ok := m.graphs[name]
	if !ok && create {
		g = &memGraph{triples: make(map[string]memTriple)}
		m.graphs[name] = g
	}
	return g
}

// Select implements Store.
func (m *MemoryStore) Select(ctx context.Context, graph string, q Query) (*Result, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.selectLocked(graph, q), nil
}

func (m *MemoryStore) selectLocked(graph string, q Query) *Result {
	res := &Result{Vars: q.Columns()}
	g := m.graph(graph, false)
	if g == nil {
		return res
	}
	solutions := evalPatterns(g, q.Where, []solution{{}})
	solutions = applyFilters(solutions, q.Filters)
	for _, sol := range solutions {
		row := Binding{}
		for _, pr := range q.Project {
			if pr.Slot.Var != "" {
				row[pr.As] = sol[pr.Slot.Var].term
			} else {
				row[pr.As] = pr.Slot.Term
			}
		}
		res.Rows = append(res.Rows, row)
	}
	sortRows(res.Rows, q.OrderBy)
	if q.Limit > 0 && len(res.Rows) > q.Limit {
		res.Rows = res.Rows[:q.Limit]
	}
	return res
}

type boundTerm struct {
	key  string
	term rdf.Term
}

type solution map[string]boundTerm

func evalPatterns(g *memGraph, patterns []Pattern, in []solution) []solution {
	out := in
	for _, p := range patterns {
		var next []solution
		for _, sol := range out {
			for _, t := range g.triples {
				if ext, ok := matchTriple(p, t, sol); ok {
					next = append(next, ext)
				}
			}
		}
		out = next
		if len(out) == 0 {
			return nil
		}
	}
	return out
}

func matchTriple(p Pattern, t memTriple, sol solution) (solution, bool) {
	ext := sol
	copied := false
	try := func(s Slot, key string, term rdf.Term) bool {
		if s.Var == "" {
			return rdf.EncodeTerm(s.Term) == key
		}
		if b, ok := ext[s.Var]; ok {
			return b.key == key
		}
		if !copied {
			ext = make(solution, len(sol)+3)
			for k, v := range sol {
				ext[k] = v
			}
			copied = true
		}
		ext[s.Var] = boundTerm{key: key, term: term}
		return true
	}
	if !try(p.S, t.s, t.t.S) || !try(p.P, t.p, t.t.P) || !try(p.O, t.o, t.t.O) {
		return nil, false
	}
	return ext, true
}

func applyFilters(in []solution, filters []Filter) []solution {
	if len(filters) == 0 {
		return in
	}
	out := in[:0:0]
	for _, sol := range in {
		keep := true
		for _, f := range filters {
			b, ok := sol[f.Var]
			if !ok || !termIn(b.key, f.In) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, sol)
		}
	}
	return out
}

func termIn(key string, terms []rdf.Term) bool {
	for _, t := range terms {
		if rdf.EncodeTerm(t) == key {
			return true
		}
	}
	return false
}

// Insert implements Store.
func (m *MemoryStore) Insert(ctx context.Context, graph string, triples []rdf.Triple) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertLocked(graph, triples)
	return nil
}

func (m *MemoryStore) insertLocked(graph string, triples []rdf.Triple) {
	g := m.graph(graph, true)
	for _, t := range triples {
		mt := newMemTriple(t)
		g.triples[mt.key()] = mt
	}
}

func newMemTriple(t rdf.Triple) memTriple {
	return memTriple{s: rdf.EncodeTerm(t.S), p: rdf.EncodeTerm(t.P), o: rdf.EncodeTerm(t.O), t: t}
}

func (mt memTriple) key() string { return mt.s + " " + mt.p + " " + mt.o }

// InsertUnless implements Store.
func (m *MemoryStore) InsertUnless(ctx context.Context, graph string, guard Query, triples []rdf.Triple) (bool, error) {
	if err := guard.Validate(); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.selectLocked(graph, existsQuery(guard)).Len() > 0 {
		return false, nil
	}
	m.insertLocked(graph, triples)
	return true, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(ctx context.Context, graph string, q Query) error {
	p, err := deletePattern(q)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.graph(graph, false)
	if g == nil {
		return nil
	}
	for key, t := range g.triples {
		sol, ok := matchTriple(p, t, solution{})
		if !ok || len(applyFilters([]solution{sol}, q.Filters)) == 0 {
			continue
		}
		delete(g.triples, key)
	}
	return nil
}

// CreateGraph implements Store.
func (m *MemoryStore) CreateGraph(ctx context.Context, graph string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.graph(graph, true)
	return nil
}

// DropGraph implements Store.
func (m *MemoryStore) DropGraph(ctx context.Context, graph string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.graphs, graph)
	return nil
}

// ClearGraph implements Store.
func (m *MemoryStore) ClearGraph(ctx context.Context, graph string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g := m.graph(graph, false); g != nil {
		g.triples = make(map[string]memTriple)
	}
	return nil
}

// ReplaceGraph implements Store. The new content is built aside and
// swapped in under the write lock.
func (m *MemoryStore) ReplaceGraph(ctx context.Context, graph string, triples []rdf.Triple) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fresh := &memGraph{triples: make(map[string]memTriple, len(triples))}
	for _, t := range triples {
		mt := newMemTriple(t)
		fresh.triples[mt.key()] = mt
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.graphs[graph] = fresh
	return nil
}

// Size implements Store.
func (m *MemoryStore) Size(ctx context.Context, graph string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if g := m.graph(graph, false); g != nil {
		return len(g.triples), nil
	}
	return 0, nil
}

// Close implements Store.
func (m *MemoryStore) Close(ctx context.Context) error { return nil }

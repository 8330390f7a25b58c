package rdf

import (
	"sort"
	"strings"
)

// Graph is a set of triples that remembers insertion order. Adding a
// triple that is already present is a no-op.
type Graph struct {
	triples  []Triple
	index    map[Triple]int
	prefixes Prefixes
}

// NewGraph returns an empty graph, optionally seeded with triples.
func NewGraph(triples ...Triple) *Graph {
	g := &Graph{index: make(map[Triple]int), prefixes: Prefixes{}}
	g.Add(triples...)
	return g
}

// Add inserts triples and returns how many were new.
func (g *Graph) Add(triples ...Triple) int {
	added := 0
	for _, t := range triples {
		if _, ok := g.index[t]; ok {
			continue
		}
		g.index[t] = len(g.triples)
		g.triples = append(g.triples, t)
		added++
	}
	return added
}

// Has reports whether t is in the graph.
func (g *Graph) Has(t Triple) bool {
	_, ok := g.index[t]
	return ok
}

// Remove deletes t and reports whether it was present.
func (g *Graph) Remove(t Triple) bool {
	i, ok := g.index[t]
	if !ok {
		return false
	}
	g.triples = append(g.triples[:i], g.triples[i+1:]...)
	delete(g.index, t)
	for j := i; j < len(g.triples); j++ {
		g.index[g.triples[j]] = j
	}
	return true
}

// Len returns the number of triples.
func (g *Graph) Len() int { return len(g.triples) }

// Clear drops every triple but keeps prefix declarations.
func (g *Graph) Clear() {
	g.triples = nil
	g.index = make(map[Triple]int)
}

// Triples returns a copy of the triples in insertion order.
func (g *Graph) Triples() []Triple {
	out := make([]Triple, len(g.triples))
	copy(out, g.triples)
	return out
}

// Sorted returns the triples ordered by subject, predicate and object.
func (g *Graph) Sorted() []Triple {
	out := g.Triples()
	sort.SliceStable(out, func(i, j int) bool {
		return CompareTriples(out[i], out[j]) < 0
	})
	return out
}

// Merge adds every triple and prefix of other and returns the count of
// new triples.
func (g *Graph) Merge(other *Graph) int {
	if other == nil {
		return 0
	}
	for p, ns := range other.prefixes {
		if _, ok := g.prefixes[p]; !ok {
			g.prefixes[p] = ns
		}
	}
	return g.Add(other.triples...)
}

// Clone returns an independent copy.
func (g *Graph) Clone() *Graph {
	c := NewGraph(g.triples...)
	c.prefixes = g.prefixes.Clone()
	return c
}

// Match returns the triples with the given subject (nil matches any) and
// predicate (zero IRI matches any).
func (g *Graph) Match(s Term, p IRI) []Triple {
	var out []Triple
	for _, t := range g.triples {
		if s != nil && t.S != s {
			continue
		}
		if p.Value != "" && t.P != p {
			continue
		}
		out = append(out, t)
	}
	return out
}

// SetPrefix declares a namespace prefix for serialization.
func (g *Graph) SetPrefix(prefix, namespace string) {
	g.prefixes[prefix] = namespace
}

// Prefixes returns the prefixes declared on the graph.
func (g *Graph) Prefixes() Prefixes {
	return g.prefixes.Clone()
}

// CompareTerms orders terms by SortKey.
func CompareTerms(a, b Term) int {
	return strings.Compare(SortKey(a), SortKey(b))
}

// CompareTriples orders triples by subject, then predicate, then object.
func CompareTriples(a, b Triple) int {
	if c := CompareTerms(a.S, b.S); c != 0 {
		return c
	}
	if c := CompareTerms(a.P, b.P); c != 0 {
		return c
	}
	return CompareTerms(a.O, b.O)
}

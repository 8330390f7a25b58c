package graph

import (
	"github.com/systemshift/drumbeat/internal/rdf"
)

// column addresses one term position of one pattern in a relational plan.
type column struct {
	pattern int
	field   string // "s", "p" or "o"
}

type constraint struct {
	col   column
	value string
}

type planFilter struct {
	col    column
	values []string
}

type planOutput struct {
	as       string
	col      *column
	constant rdf.Term
}

// plan is a backend-neutral relational form of a basic graph pattern:
// one row source per pattern, equality constraints for constants and join
// conditions for repeated variables. SQL and Cypher render from it.
type plan struct {
	patterns    int
	constraints []constraint
	joins       [][2]column
	filters     []planFilter
	outputs     []planOutput
	orderBy     []string
	limit       int
}

func compile(q Query) (*plan, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	pl := &plan{patterns: len(q.Where), orderBy: q.OrderBy, limit: q.Limit}
	first := map[string]column{}
	for i, p := range q.Where {
		for _, pos := range []struct {
			field string
			slot  Slot
		}{{"s", p.S}, {"p", p.P}, {"o", p.O}} {
			col := column{pattern: i, field: pos.field}
			if pos.slot.Var == "" {
				pl.constraints = append(pl.constraints, constraint{col: col, value: rdf.EncodeTerm(pos.slot.Term)})
				continue
			}
			if prev, ok := first[pos.slot.Var]; ok {
				pl.joins = append(pl.joins, [2]column{col, prev})
				continue
			}
			first[pos.slot.Var] = col
		}
	}
	for _, f := range q.Filters {
		pf := planFilter{col: first[f.Var]}
		for _, t := range f.In {
			pf.values = append(pf.values, rdf.EncodeTerm(t))
		}
		pl.filters = append(pl.filters, pf)
	}
	for _, pr := range q.Project {
		out := planOutput{as: pr.As}
		if pr.Slot.Var != "" {
			col := first[pr.Slot.Var]
			out.col = &col
		} else {
			out.constant = pr.Slot.Term
		}
		pl.outputs = append(pl.outputs, out)
	}
	return pl, nil
}

// columnOutputs returns the outputs read from the store, in order.
func (pl *plan) columnOutputs() []planOutput {
	var out []planOutput
	for _, o := range pl.outputs {
		if o.col != nil {
			out = append(out, o)
		}
	}
	return out
}

// decodeRow turns encoded column values into a binding, filling in
// projected constants.
func (pl *plan) decodeRow(values []string) (Binding, error) {
	row := Binding{}
	i := 0
	for _, o := range pl.outputs {
		if o.col == nil {
			row[o.as] = o.constant
			continue
		}
		t, err := rdf.ParseTerm(values[i])
		if err != nil {
			return nil, err
		}
		row[o.as] = t
		i++
	}
	return row, nil
}

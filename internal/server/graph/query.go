package graph

import (
	"fmt"
	"sort"

	"github.com/systemshift/drumbeat/internal/rdf"
)

// Slot is one position of a triple pattern: a variable, a named parameter
// that is bound before execution, or a constant term.
type Slot struct {
	Var   string
	Param string
	Term  rdf.Term
}

// Var returns a variable slot.
func Var(name string) Slot { return Slot{Var: name} }

// Param returns a parameter slot.
func Param(name string) Slot { return Slot{Param: name} }

// Const returns a constant slot.
func Const(t rdf.Term) Slot { return Slot{Term: t} }

func (s Slot) String() string {
	switch {
	case s.Var != "":
		return "?" + s.Var
	case s.Param != "":
		return "$" + s.Param
	case s.Term != nil:
		return rdf.EncodeTerm(s.Term)
	}
	return "(empty)"
}

// Pattern is a triple pattern.
type Pattern struct {
	S, P, O Slot
}

// Projection names one output column. The slot is either a variable of the
// WHERE clause or a constant.
type Projection struct {
	As   string
	Slot Slot
}

// Filter restricts a variable to a fixed set of terms.
type Filter struct {
	Var string
	In  []rdf.Term
}

// Params binds parameter names to terms.
type Params map[string]rdf.Term

// Template is a query with named parameters. Templates are declared once
// and bound per request, so caller input only reaches a store as terms.
type Template struct {
	Name    string
	Project []Projection
	Where   []Pattern
	Filters []Filter
	OrderBy []string
	Limit   int
}

// Query is a template with every parameter bound.
type Query struct {
	Name    string
	Project []Projection
	Where   []Pattern
	Filters []Filter
	OrderBy []string
	Limit   int
}

// Bind substitutes params into the template. Unbound parameters are an
// error.
func (t Template) Bind(params Params) (Query, error) {
	bind := func(s Slot) (Slot, error) {
		if s.Param == "" {
			return s, nil
		}
		v, ok := params[s.Param]
		if !ok || v == nil {
			return Slot{}, fmt.Errorf("query %s: parameter %q is not bound", t.Name, s.Param)
		}
		return Const(v), nil
	}

	q := Query{
		Name:    t.Name,
		OrderBy: append([]string(nil), t.OrderBy...),
		Limit:   t.Limit,
	}
	for _, p := range t.Where {
		var bp Pattern
		var err error
		if bp.S, err = bind(p.S); err != nil {
			return Query{}, err
		}
		if bp.P, err = bind(p.P); err != nil {
			return Query{}, err
		}
		if bp.O, err = bind(p.O); err != nil {
			return Query{}, err
		}
		q.Where = append(q.Where, bp)
	}
	for _, pr := range t.Project {
		s, err := bind(pr.Slot)
		if err != nil {
			return Query{}, err
		}
		q.Project = append(q.Project, Projection{As: pr.As, Slot: s})
	}
	for _, f := range t.Filters {
		q.Filters = append(q.Filters, Filter{Var: f.Var, In: append([]rdf.Term(nil), f.In...)})
	}
	if err := q.Validate(); err != nil {
		return Query{}, err
	}
	return q, nil
}

// MustBind is Bind for templates whose parameters are known to be present.
func (t Template) MustBind(params Params) Query {
	q, err := t.Bind(params)
	if err != nil {
		panic(err)
	}
	return q
}

// WithFilter returns a copy of q with an additional IN filter.
func (q Query) WithFilter(v string, terms ...rdf.Term) Query {
	out := q
	out.Filters = append(append([]Filter(nil), q.Filters...), Filter{Var: v, In: terms})
	return out
}

// Vars returns the variables used in the WHERE clause in first-seen order.
func (q Query) Vars() []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range q.Where {
		for _, s := range []Slot{p.S, p.P, p.O} {
			if s.Var != "" && !seen[s.Var] {
				seen[s.Var] = true
				out = append(out, s.Var)
			}
		}
	}
	return out
}

// Columns returns the projected column names.
func (q Query) Columns() []string {
	out := make([]string, len(q.Project))
	for i, p := range q.Project {
		out[i] = p.As
	}
	return out
}

// Validate checks that the query is executable by every backend.
func (q Query) Validate() error {
	if len(q.Where) == 0 {
		return fmt.Errorf("query %s: empty WHERE clause", q.Name)
	}
	vars := map[string]bool{}
	for _, v := range q.Vars() {
		vars[v] = true
	}
	for _, p := range q.Where {
		for _, s := range []Slot{p.S, p.P, p.O} {
			if s.Param != "" {
				return fmt.Errorf("query %s: parameter %q is not bound", q.Name, s.Param)
			}
			if s.Var == "" && s.Term == nil {
				return fmt.Errorf("query %s: empty pattern slot", q.Name)
			}
		}
		if p.P.Term != nil && p.P.Term.Kind() != rdf.KindIRI {
			return fmt.Errorf("query %s: predicate must be an IRI", q.Name)
		}
	}
	cols := map[string]bool{}
	for _, pr := range q.Project {
		if pr.As == "" {
			return fmt.Errorf("query %s: projection without a name", q.Name)
		}
		if cols[pr.As] {
			return fmt.Errorf("query %s: duplicate column %q", q.Name, pr.As)
		}
		cols[pr.As] = true
		if pr.Slot.Var != "" && !vars[pr.Slot.Var] {
			return fmt.Errorf("query %s: projected variable %q is not used in WHERE", q.Name, pr.Slot.Var)
		}
		if pr.Slot.Var == "" && pr.Slot.Term == nil {
			return fmt.Errorf("query %s: column %q has no value", q.Name, pr.As)
		}
	}
	for _, f := range q.Filters {
		if !vars[f.Var] {
			return fmt.Errorf("query %s: filter on unknown variable %q", q.Name, f.Var)
		}
	}
	for _, o := range q.OrderBy {
		if !cols[o] {
			return fmt.Errorf("query %s: order by unknown column %q", q.Name, o)
		}
	}
	return nil
}

// Binding is one result row keyed by column name.
type Binding map[string]rdf.Term

// Result is the tabular output of a select.
type Result struct {
	Vars []string
	Rows []Binding
}

// Len returns the number of rows.
func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// sortRows orders rows by the given columns using rdf.CompareTerms.
func sortRows(rows []Binding, orderBy []string) {
	if len(orderBy) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, col := range orderBy {
			if c := rdf.CompareTerms(rows[i][col], rows[j][col]); c != 0 {
				return c < 0
			}
		}
		return false
	})
}

// existsQuery rewrites q into a one-row query projecting a constant.
func existsQuery(q Query) Query {
	ask := q
	ask.Name = q.Name + ".exists"
	ask.Project = []Projection{{As: "exists", Slot: Const(rdf.NewTypedLiteral("1", rdf.XSDInteger))}}
	ask.OrderBy = nil
	ask.Limit = 1
	return ask
}

package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/systemshift/drumbeat/internal/rdf"
)

// Neo4jConfig holds Neo4j connection configuration
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

// Neo4jStore keeps one :Triple node per statement.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4j connects to Neo4j and ensures the triple uniqueness constraint.
func NewNeo4j(ctx context.Context, cfg Neo4jConfig) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	// Verify connectivity
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("connecting to neo4j: %w", err)
	}

	database := cfg.Database
	if database == "" {
		database = "neo4j"
	}
	s := &Neo4jStore{driver: driver, database: database}
	if err := s.ensureSchema(ctx); err != nil {
		driver.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Neo4jStore) session(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
}

func (s *Neo4jStore) ensureSchema(ctx context.Context) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	for _, stmt := range []string{
		`CREATE CONSTRAINT triple_key IF NOT EXISTS FOR (t:Triple) REQUIRE (t.g, t.s, t.p, t.o) IS UNIQUE`,
		`CREATE CONSTRAINT graph_name IF NOT EXISTS FOR (n:Graph) REQUIRE n.name IS UNIQUE`,
		`CREATE INDEX triple_graph_p IF NOT EXISTS FOR (t:Triple) ON (t.g, t.p)`,
	} {
		if _, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			_, err := tx.Run(ctx, stmt, nil)
			return nil, err
		}); err != nil {
			return fmt.Errorf("creating neo4j schema: %w", err)
		}
	}
	return nil
}

// Close closes the Neo4j connection
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// cypherMatch renders the MATCH and WHERE clauses of a plan.
func cypherMatch(pl *plan, graph string) (string, map[string]any) {
	params := map[string]any{"g": graph}
	ref := func(c column) string { return fmt.Sprintf("t%d.%s", c.pattern, c.field) }

	var nodes, where []string
	for i := 0; i < pl.patterns; i++ {
		nodes = append(nodes, fmt.Sprintf("(t%d:Triple {g: $g})", i))
	}
	for i, c := range pl.constraints {
		name := fmt.Sprintf("k%d", i)
		where = append(where, ref(c.col)+" = $"+name)
		params[name] = c.value
	}
	for _, j := range pl.joins {
		where = append(where, ref(j[0])+" = "+ref(j[1]))
	}
	for i, f := range pl.filters {
		name := fmt.Sprintf("f%d", i)
		where = append(where, ref(f.col)+" IN $"+name)
		params[name] = f.values
	}

	var b strings.Builder
	b.WriteString("MATCH " + strings.Join(nodes, ", "))
	if len(where) > 0 {
		b.WriteString("\nWHERE " + strings.Join(where, " AND "))
	}
	return b.String(), params
}

func cypherSelect(pl *plan, graph string) (string, map[string]any) {
	match, params := cypherMatch(pl, graph)

	var cols []string
	for i, o := range pl.columnOutputs() {
		cols = append(cols, fmt.Sprintf("t%d.%s AS c%d", o.col.pattern, o.col.field, i))
	}
	if len(cols) == 0 {
		cols = []string{"1 AS one"}
	}

	var b strings.Builder
	b.WriteString(match)
	b.WriteString("\nRETURN " + strings.Join(cols, ", "))
	var order []string
	for _, name := range pl.orderBy {
		for _, o := range pl.columnOutputs() {
			if o.as == name {
				order = append(order, fmt.Sprintf("t%d.%s_sort", o.col.pattern, o.col.field))
			}
		}
	}
	if len(order) > 0 {
		b.WriteString("\nORDER BY " + strings.Join(order, ", "))
	}
	if pl.limit > 0 {
		fmt.Fprintf(&b, "\nLIMIT %d", pl.limit)
	}
	return b.String(), params
}

func (s *Neo4jStore) selectTx(ctx context.Context, tx neo4j.ManagedTransaction, graph string, q Query) (*Result, error) {
	pl, err := compile(q)
	if err != nil {
		return nil, err
	}
	query, params := cypherSelect(pl, graph)
	result, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}

	res := &Result{Vars: q.Columns()}
	outputs := pl.columnOutputs()
	for result.Next(ctx) {
		record := result.Record()
		values := make([]string, len(outputs))
		for i := range outputs {
			v, _ := record.Get(fmt.Sprintf("c%d", i))
			str, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("unexpected %T in column c%d", v, i)
			}
			values[i] = str
		}
		row, err := pl.decodeRow(values)
		if err != nil {
			return nil, err
		}
		res.Rows = append(res.Rows, row)
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	sortRows(res.Rows, q.OrderBy)
	return res, nil
}

// Select implements Store.
func (s *Neo4jStore) Select(ctx context.Context, graph string, q Query) (*Result, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return s.selectTx(ctx, tx, graph, q)
	})
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", q.Name, err)
	}
	return out.(*Result), nil
}

func tripleRows(triples []rdf.Triple) []map[string]any {
	rows := make([]map[string]any, 0, len(triples))
	for _, t := range triples {
		rows = append(rows, map[string]any{
			"s":      rdf.EncodeTerm(t.S),
			"p":      rdf.EncodeTerm(t.P),
			"o":      rdf.EncodeTerm(t.O),
			"s_sort": rdf.SortKey(t.S),
			"p_sort": rdf.SortKey(t.P),
			"o_sort": rdf.SortKey(t.O),
		})
	}
	return rows
}

const cypherInsert = `
MERGE (:Graph {name: $g})
WITH $rows AS rows
UNWIND rows AS r
MERGE (t:Triple {g: $g, s: r.s, p: r.p, o: r.o})
ON CREATE SET t.s_sort = r.s_sort, t.p_sort = r.p_sort, t.o_sort = r.o_sort
`

func insertTx(ctx context.Context, tx neo4j.ManagedTransaction, graph string, triples []rdf.Triple) error {
	_, err := tx.Run(ctx, cypherInsert, map[string]any{"g": graph, "rows": tripleRows(triples)})
	return err
}

// Insert implements Store.
func (s *Neo4jStore) Insert(ctx context.Context, graph string, triples []rdf.Triple) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, insertTx(ctx, tx, graph, triples)
	})
	if err != nil {
		return fmt.Errorf("inserting triples: %w", err)
	}
	return nil
}

// InsertUnless implements Store. The guard and the insert run in one
// write transaction; the graph node is locked first so concurrent
// writers on the same graph serialize.
func (s *Neo4jStore) InsertUnless(ctx context.Context, graph string, guard Query, triples []rdf.Triple) (bool, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `MERGE (n:Graph {name: $g}) SET n._lock = coalesce(n._lock, 0) + 1`, map[string]any{"g": graph}); err != nil {
			return false, err
		}
		res, err := s.selectTx(ctx, tx, graph, existsQuery(guard))
		if err != nil {
			return false, err
		}
		if res.Len() > 0 {
			return false, nil
		}
		return true, insertTx(ctx, tx, graph, triples)
	})
	if err != nil {
		return false, fmt.Errorf("conditional insert: %w", err)
	}
	return out.(bool), nil
}

// Delete implements Store.
func (s *Neo4jStore) Delete(ctx context.Context, graph string, q Query) error {
	if _, err := deletePattern(q); err != nil {
		return err
	}
	pl, err := compile(q)
	if err != nil {
		return err
	}
	match, params := cypherMatch(pl, graph)

	session := s.session(ctx)
	defer session.Close(ctx)
	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, match+"\nDELETE t0", params)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("deleting %s: %w", q.Name, err)
	}
	return nil
}

func (s *Neo4jStore) write(ctx context.Context, query string, params map[string]any) error {
	session := s.session(ctx)
	defer session.Close(ctx)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, query, params)
		return nil, err
	})
	return err
}

// CreateGraph implements Store.
func (s *Neo4jStore) CreateGraph(ctx context.Context, graph string) error {
	if err := s.write(ctx, `MERGE (:Graph {name: $g})`, map[string]any{"g": graph}); err != nil {
		return fmt.Errorf("creating graph: %w", err)
	}
	return nil
}

// DropGraph implements Store.
func (s *Neo4jStore) DropGraph(ctx context.Context, graph string) error {
	if err := s.ClearGraph(ctx, graph); err != nil {
		return err
	}
	if err := s.write(ctx, `MATCH (n:Graph {name: $g}) DELETE n`, map[string]any{"g": graph}); err != nil {
		return fmt.Errorf("dropping graph: %w", err)
	}
	return nil
}

// ClearGraph implements Store.
func (s *Neo4jStore) ClearGraph(ctx context.Context, graph string) error {
	if err := s.write(ctx, `MATCH (t:Triple {g: $g}) DELETE t`, map[string]any{"g": graph}); err != nil {
		return fmt.Errorf("clearing graph: %w", err)
	}
	return nil
}

// ReplaceGraph implements Store. The delete and the insert run in one
// write transaction.
func (s *Neo4jStore) ReplaceGraph(ctx context.Context, graph string, triples []rdf.Triple) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `MATCH (t:Triple {g: $g}) DELETE t`, map[string]any{"g": graph}); err != nil {
			return nil, err
		}
		return nil, insertTx(ctx, tx, graph, triples)
	})
	if err != nil {
		return fmt.Errorf("replacing graph: %w", err)
	}
	return nil
}

// Size implements Store.
func (s *Neo4jStore) Size(ctx context.Context, graph string) (int, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `MATCH (t:Triple {g: $g}) RETURN count(t) AS n`, map[string]any{"g": graph})
		if err != nil {
			return nil, err
		}
		if !result.Next(ctx) {
			return int64(0), result.Err()
		}
		n, _ := result.Record().Get("n")
		return n, nil
	})
	if err != nil {
		return 0, fmt.Errorf("counting triples: %w", err)
	}
	n, _ := out.(int64)
	return int(n), nil
}

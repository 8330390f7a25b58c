package graph

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/systemshift/drumbeat/internal/rdf"
)

// SQLiteStore implements Store on a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (and if needed creates) the database at dbPath.
func NewSQLite(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// One connection: pragmas stick and writers never contend.
	db.SetMaxOpenConns(1)

	// Verify connectivity
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to sqlite: %w", err)
	}

	for _, pragma := range allPragmas() {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	for _, stmt := range allSchemaStatements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	if err := migrateSortColumns(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// migrateSortColumns adds missing sort columns and fills them in.
func migrateSortColumns(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `PRAGMA table_info(triples)`)
	if err != nil {
		return fmt.Errorf("reading triples schema: %w", err)
	}
	have := map[string]bool{}
	for rows.Next() {
		var (
			cid          int
			name, typ    string
			notNull, pk  int
			defaultValue sql.NullString
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultValue, &pk); err != nil {
			rows.Close()
			return fmt.Errorf("reading triples schema: %w", err)
		}
		have[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading triples schema: %w", err)
	}

	added := false
	for _, col := range sortColumns {
		if have[col] {
			continue
		}
		if _, err := db.ExecContext(ctx, `ALTER TABLE triples ADD COLUMN `+col+` TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("adding column %s: %w", col, err)
		}
		added = true
	}
	if !added {
		return nil
	}
	return backfillSortColumns(ctx, db)
}

func backfillSortColumns(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `SELECT id, s, p, o FROM triples`)
	if err != nil {
		return fmt.Errorf("reading triples: %w", err)
	}
	type pending struct {
		id   int64
		keys [3]string
	}
	var todo []pending
	for rows.Next() {
		var (
			id   int64
			vals [3]string
		)
		if err := rows.Scan(&id, &vals[0], &vals[1], &vals[2]); err != nil {
			rows.Close()
			return fmt.Errorf("reading triples: %w", err)
		}
		p := pending{id: id}
		for i, v := range vals {
			t, err := rdf.ParseTerm(v)
			if err != nil {
				rows.Close()
				return fmt.Errorf("decoding stored term: %w", err)
			}
			p.keys[i] = rdf.SortKey(t)
		}
		todo = append(todo, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading triples: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()
	for _, p := range todo {
		if _, err := tx.ExecContext(ctx,
			`UPDATE triples SET s_sort = ?, p_sort = ?, o_sort = ? WHERE id = ?`,
			p.keys[0], p.keys[1], p.keys[2], p.id); err != nil {
			return fmt.Errorf("filling sort keys: %w", err)
		}
	}
	return tx.Commit()
}

// Close closes the SQLite connection
func (s *SQLiteStore) Close(ctx context.Context) error {
	return s.db.Close()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Select implements Store.
func (s *SQLiteStore) Select(ctx context.Context, graph string, q Query) (*Result, error) {
	return s.selectWith(ctx, s.db, graph, q)
}

func (s *SQLiteStore) selectWith(ctx context.Context, db queryer, graph string, q Query) (*Result, error) {
	pl, err := compile(q)
	if err != nil {
		return nil, err
	}
	query, args := sqlSelect(pl, graph)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", q.Name, err)
	}
	defer rows.Close()

	res := &Result{Vars: q.Columns()}
	n := len(pl.columnOutputs())
	for rows.Next() {
		values := make([]string, n)
		dest := make([]any, n)
		for i := range values {
			dest[i] = &values[i]
		}
		if n == 0 {
			var one int
			dest = []any{&one}
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", q.Name, err)
		}
		row, err := pl.decodeRow(values)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", q.Name, err)
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", q.Name, err)
	}
	sortRows(res.Rows, q.OrderBy)
	return res, nil
}

// sqlSelect renders a plan as a self-join over the triples table.
func sqlSelect(pl *plan, graph string) (string, []any) {
	var args []any
	ref := func(c column) string { return fmt.Sprintf("t%d.%s", c.pattern, c.field) }

	var cols []string
	for i, o := range pl.columnOutputs() {
		cols = append(cols, fmt.Sprintf("%s AS c%d", ref(*o.col), i))
	}
	if len(cols) == 0 {
		cols = []string{"1"}
	}

	var from, where []string
	for i := 0; i < pl.patterns; i++ {
		from = append(from, fmt.Sprintf("triples t%d", i))
		where = append(where, fmt.Sprintf("t%d.graph = ?", i))
		args = append(args, graph)
	}
	for _, c := range pl.constraints {
		where = append(where, ref(c.col)+" = ?")
		args = append(args, c.value)
	}
	for _, j := range pl.joins {
		where = append(where, ref(j[0])+" = "+ref(j[1]))
	}
	for _, f := range pl.filters {
		if len(f.values) == 0 {
			where = append(where, "0")
			continue
		}
		where = append(where, ref(f.col)+" IN ("+strings.TrimSuffix(strings.Repeat("?, ", len(f.values)), ", ")+")")
		for _, v := range f.values {
			args = append(args, v)
		}
	}

	var b strings.Builder
	b.WriteString("SELECT " + strings.Join(cols, ", "))
	b.WriteString(" FROM " + strings.Join(from, ", "))
	b.WriteString(" WHERE " + strings.Join(where, " AND "))

	var order []string
	for _, name := range pl.orderBy {
		for _, o := range pl.columnOutputs() {
			if o.as == name {
				order = append(order, ref(*o.col)+"_sort")
			}
		}
	}
	if len(order) > 0 {
		b.WriteString(" ORDER BY " + strings.Join(order, ", "))
	}
	if pl.limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", pl.limit)
	}
	return b.String(), args
}

// sqlDeleteWhere renders the WHERE clause of a single-pattern delete.
func sqlDeleteWhere(pl *plan, graph string) (string, []any) {
	ref := func(c column) string { return c.field }
	where := []string{"graph = ?"}
	args := []any{graph}
	for _, c := range pl.constraints {
		where = append(where, ref(c.col)+" = ?")
		args = append(args, c.value)
	}
	for _, j := range pl.joins {
		where = append(where, ref(j[0])+" = "+ref(j[1]))
	}
	for _, f := range pl.filters {
		if len(f.values) == 0 {
			where = append(where, "0")
			continue
		}
		where = append(where, ref(f.col)+" IN ("+strings.TrimSuffix(strings.Repeat("?, ", len(f.values)), ", ")+")")
		for _, v := range f.values {
			args = append(args, v)
		}
	}
	return strings.Join(where, " AND "), args
}

// Insert implements Store.
func (s *SQLiteStore) Insert(ctx context.Context, graph string, triples []rdf.Triple) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertTriples(ctx, tx, graph, triples); err != nil {
		return err
	}
	return tx.Commit()
}

func insertTriples(ctx context.Context, db execer, graph string, triples []rdf.Triple) error {
	if _, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO graphs (name, created_at) VALUES (?, ?)`,
		graph, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("registering graph: %w", err)
	}
	for _, t := range triples {
		if _, err := db.ExecContext(ctx,
			`INSERT OR IGNORE INTO triples (graph, s, p, o, s_sort, p_sort, o_sort) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			graph, rdf.EncodeTerm(t.S), rdf.EncodeTerm(t.P), rdf.EncodeTerm(t.O),
			rdf.SortKey(t.S), rdf.SortKey(t.P), rdf.SortKey(t.O)); err != nil {
			return fmt.Errorf("inserting triple: %w", err)
		}
	}
	return nil
}

// InsertUnless implements Store. The guard check and the insert share one
// transaction on the single connection.
func (s *SQLiteStore) InsertUnless(ctx context.Context, graph string, guard Query, triples []rdf.Triple) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := s.selectWith(ctx, tx, graph, existsQuery(guard))
	if err != nil {
		return false, err
	}
	if res.Len() > 0 {
		return false, nil
	}
	if err := insertTriples(ctx, tx, graph, triples); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing insert: %w", err)
	}
	return true, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, graph string, q Query) error {
	if _, err := deletePattern(q); err != nil {
		return err
	}
	pl, err := compile(q)
	if err != nil {
		return err
	}
	where, args := sqlDeleteWhere(pl, graph)
	if _, err := s.db.ExecContext(ctx, "DELETE FROM triples WHERE "+where, args...); err != nil {
		return fmt.Errorf("deleting %s: %w", q.Name, err)
	}
	return nil
}

// CreateGraph implements Store.
func (s *SQLiteStore) CreateGraph(ctx context.Context, graph string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO graphs (name, created_at) VALUES (?, ?)`,
		graph, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("creating graph: %w", err)
	}
	return nil
}

// DropGraph implements Store.
func (s *SQLiteStore) DropGraph(ctx context.Context, graph string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM triples WHERE graph = ?`, graph); err != nil {
		return fmt.Errorf("dropping graph triples: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM graphs WHERE name = ?`, graph); err != nil {
		return fmt.Errorf("dropping graph: %w", err)
	}
	return tx.Commit()
}

// ClearGraph implements Store.
func (s *SQLiteStore) ClearGraph(ctx context.Context, graph string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM triples WHERE graph = ?`, graph); err != nil {
		return fmt.Errorf("clearing graph: %w", err)
	}
	return nil
}

// ReplaceGraph implements Store. The clear and the insert share one
// transaction.
func (s *SQLiteStore) ReplaceGraph(ctx context.Context, graph string, triples []rdf.Triple) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM triples WHERE graph = ?`, graph); err != nil {
		return fmt.Errorf("clearing graph: %w", err)
	}
	if err := insertTriples(ctx, tx, graph, triples); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing replace: %w", err)
	}
	return nil
}

// Size implements Store.
func (s *SQLiteStore) Size(ctx context.Context, graph string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM triples WHERE graph = ?`, graph).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting triples: %w", err)
	}
	return n, nil
}

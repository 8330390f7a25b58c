package graph

// SQLite schema DDL constants. Terms are stored in their N-Triples form;
// the *_sort columns hold rdf.SortKey of the same term.

const schemaGraphs = `
CREATE TABLE IF NOT EXISTS graphs (
    name TEXT PRIMARY KEY,
    created_at DATETIME NOT NULL
)`

const schemaTriples = `
CREATE TABLE IF NOT EXISTS triples (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    graph TEXT NOT NULL,
    s TEXT NOT NULL,
    p TEXT NOT NULL,
    o TEXT NOT NULL,
    s_sort TEXT NOT NULL DEFAULT '',
    p_sort TEXT NOT NULL DEFAULT '',
    o_sort TEXT NOT NULL DEFAULT '',
    UNIQUE(graph, s, p, o)
)`

// Index definitions
const indexTriplesGraphP = `CREATE INDEX IF NOT EXISTS idx_triples_graph_p ON triples(graph, p)`
const indexTriplesGraphO = `CREATE INDEX IF NOT EXISTS idx_triples_graph_o ON triples(graph, o)`

// sortColumns were added after the first schema; older files get them
// through migrateSortColumns.
var sortColumns = []string{"s_sort", "p_sort", "o_sort"}

// SQLite pragmas
const pragmaWAL = `PRAGMA journal_mode=WAL`
const pragmaBusyTimeout = `PRAGMA busy_timeout=5000`
const pragmaSynchronous = `PRAGMA synchronous=NORMAL`

// allSchemaStatements returns all schema DDL in order
func allSchemaStatements() []string {
	return []string{
		schemaGraphs,
		schemaTriples,
		indexTriplesGraphP,
		indexTriplesGraphO,
	}
}

// allPragmas returns all pragma statements
func allPragmas() []string {
	return []string{
		pragmaWAL,
		pragmaBusyTimeout,
		pragmaSynchronous,
	}
}

package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/systemshift/drumbeat/internal/rdf"
)

// SPARQLConfig points the store at a SPARQL 1.1 protocol endpoint.
type SPARQLConfig struct {
	QueryEndpoint  string
	UpdateEndpoint string
	Username       string
	Password       string
	Timeout        time.Duration

	// Breaker settings. Zero values use the defaults below.
	MaxFailures uint32
	OpenTimeout time.Duration
	HalfOpenMax uint32
}

// SPARQLStore talks to a remote triple store over HTTP. Calls are not
// retried; repeated failures open the circuit breaker and fail fast.
type SPARQLStore struct {
	cfg     SPARQLConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// ErrEndpointUnavailable wraps calls rejected by the open breaker.
var ErrEndpointUnavailable = errors.New("sparql endpoint unavailable")

// NewSPARQL returns a store for the configured endpoint.
func NewSPARQL(cfg SPARQLConfig, logger *zap.Logger) (*SPARQLStore, error) {
	if cfg.QueryEndpoint == "" {
		return nil, fmt.Errorf("sparql query endpoint is required")
	}
	if cfg.UpdateEndpoint == "" {
		cfg.UpdateEndpoint = cfg.QueryEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax == 0 {
		cfg.HalfOpenMax = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &SPARQLStore{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "sparql",
		MaxRequests: cfg.HalfOpenMax,
		Interval:    time.Minute,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return s, nil
}

// Close implements Store.
func (s *SPARQLStore) Close(ctx context.Context) error {
	s.client.CloseIdleConnections()
	return nil
}

// endpointError is a non-2xx answer from the endpoint.
type endpointError struct {
	Status int
	Body   string
}

func (e *endpointError) Error() string {
	return fmt.Sprintf("sparql endpoint returned %d: %s", e.Status, e.Body)
}

func (s *SPARQLStore) post(ctx context.Context, endpoint, field, text, accept string) ([]byte, error) {
	out, err := s.breaker.Execute(func() (interface{}, error) {
		form := url.Values{field: {text}}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if accept != "" {
			req.Header.Set("Accept", accept)
		}
		if s.cfg.Username != "" {
			req.SetBasicAuth(s.cfg.Username, s.cfg.Password)
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			snippet := string(body)
			if len(snippet) > 512 {
				snippet = snippet[:512]
			}
			return nil, &endpointError{Status: resp.StatusCode, Body: snippet}
		}
		return body, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrEndpointUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

func (s *SPARQLStore) query(ctx context.Context, text string) (*sparqlResults, error) {
	body, err := s.post(ctx, s.cfg.QueryEndpoint, "query", text, "application/sparql-results+json")
	if err != nil {
		return nil, err
	}
	var res sparqlResults
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decoding sparql results: %w", err)
	}
	return &res, nil
}

func (s *SPARQLStore) update(ctx context.Context, text string) error {
	_, err := s.post(ctx, s.cfg.UpdateEndpoint, "update", text, "")
	return err
}

// Select implements Store.
func (s *SPARQLStore) Select(ctx context.Context, graph string, q Query) (*Result, error) {
	text, err := RenderSelect(graph, q)
	if err != nil {
		return nil, err
	}
	raw, err := s.query(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", q.Name, err)
	}

	res := &Result{Vars: q.Columns()}
	for _, b := range raw.Results.Bindings {
		row := Binding{}
		for _, pr := range q.Project {
			v, ok := b[pr.As]
			if !ok {
				continue
			}
			t, err := v.term()
			if err != nil {
				return nil, fmt.Errorf("decoding %s: %w", q.Name, err)
			}
			row[pr.As] = t
		}
		res.Rows = append(res.Rows, row)
	}
	sortRows(res.Rows, q.OrderBy)
	return res, nil
}

// Insert implements Store.
func (s *SPARQLStore) Insert(ctx context.Context, graph string, triples []rdf.Triple) error {
	if len(triples) == 0 {
		return s.CreateGraph(ctx, graph)
	}
	if err := s.update(ctx, "INSERT DATA { GRAPH "+sparqlTerm(rdf.NewIRI(graph))+" {\n"+sparqlTriples(triples)+"} }"); err != nil {
		return fmt.Errorf("inserting triples: %w", err)
	}
	return nil
}

// InsertUnless implements Store. The update is conditional on the guard
// and carries a token triple unique to this call. The call inserted the
// triples only if its token is in the graph afterwards; the token is then
// removed again.
func (s *SPARQLStore) InsertUnless(ctx context.Context, graph string, guard Query, triples []rdf.Triple) (bool, error) {
	exists, err := Exists(ctx, s, graph, guard)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	where, err := renderGroup(guard)
	if err != nil {
		return false, err
	}
	token := rdf.NewTriple(rdf.NewIRI(graph), rdf.LBDHOCreateToken, rdf.NewLiteral(uuid.NewString()))
	g := sparqlTerm(rdf.NewIRI(graph))
	text := "INSERT { GRAPH " + g + " {\n" + sparqlTriples(append(triples[:len(triples):len(triples)], token)) + "} }\n" +
		"WHERE { FILTER NOT EXISTS { GRAPH " + g + " {\n" + where + "} } }"
	if err := s.update(ctx, text); err != nil {
		return false, fmt.Errorf("conditional insert: %w", err)
	}

	won, err := Exists(ctx, s, graph, tokenQuery(token))
	if err != nil {
		return false, fmt.Errorf("checking conditional insert: %w", err)
	}
	if !won {
		s.logger.Debug("conditional insert lost", zap.String("graph", graph), zap.String("guard", guard.Name))
		return false, nil
	}
	if err := s.update(ctx, "DELETE DATA { GRAPH "+g+" {\n"+sparqlTriples([]rdf.Triple{token})+"} }"); err != nil {
		s.logger.Warn("removing create token", zap.String("graph", graph), zap.Error(err))
	}
	return true, nil
}

func tokenQuery(token rdf.Triple) Query {
	return Query{
		Name:  "sparql.createToken",
		Where: []Pattern{{S: Const(token.S), P: Const(token.P), O: Const(token.O)}},
	}
}

// Delete implements Store.
func (s *SPARQLStore) Delete(ctx context.Context, graph string, q Query) error {
	p, err := deletePattern(q)
	if err != nil {
		return err
	}
	where, err := renderGroup(q)
	if err != nil {
		return err
	}
	g := sparqlTerm(rdf.NewIRI(graph))
	text := "DELETE { GRAPH " + g + " { " + renderPattern(p) + " } }\n" +
		"WHERE { GRAPH " + g + " {\n" + where + "} }"
	if err := s.update(ctx, text); err != nil {
		return fmt.Errorf("deleting %s: %w", q.Name, err)
	}
	return nil
}

// CreateGraph implements Store.
func (s *SPARQLStore) CreateGraph(ctx context.Context, graph string) error {
	return s.update(ctx, "CREATE SILENT GRAPH "+sparqlTerm(rdf.NewIRI(graph)))
}

// DropGraph implements Store.
func (s *SPARQLStore) DropGraph(ctx context.Context, graph string) error {
	return s.update(ctx, "DROP SILENT GRAPH "+sparqlTerm(rdf.NewIRI(graph)))
}

// ClearGraph implements Store.
func (s *SPARQLStore) ClearGraph(ctx context.Context, graph string) error {
	return s.update(ctx, "CLEAR SILENT GRAPH "+sparqlTerm(rdf.NewIRI(graph)))
}

// ReplaceGraph implements Store. The clear and the insert travel in one
// update request, which the endpoint executes as a unit.
func (s *SPARQLStore) ReplaceGraph(ctx context.Context, graph string, triples []rdf.Triple) error {
	g := sparqlTerm(rdf.NewIRI(graph))
	text := "CLEAR SILENT GRAPH " + g
	if len(triples) > 0 {
		text += " ;\nINSERT DATA { GRAPH " + g + " {\n" + sparqlTriples(triples) + "} }"
	}
	if err := s.update(ctx, text); err != nil {
		return fmt.Errorf("replacing graph: %w", err)
	}
	return nil
}

// Size implements Store.
func (s *SPARQLStore) Size(ctx context.Context, graph string) (int, error) {
	raw, err := s.query(ctx, "SELECT (COUNT(*) AS ?n) WHERE { GRAPH "+sparqlTerm(rdf.NewIRI(graph))+" { ?s ?p ?o } }")
	if err != nil {
		return 0, fmt.Errorf("counting triples: %w", err)
	}
	if len(raw.Results.Bindings) == 0 {
		return 0, nil
	}
	n, err := strconv.Atoi(raw.Results.Bindings[0]["n"].Value)
	if err != nil {
		return 0, fmt.Errorf("counting triples: %w", err)
	}
	return n, nil
}

// RenderSelect renders q as a SPARQL SELECT over one named graph.
func RenderSelect(graph string, q Query) (string, error) {
	if err := q.Validate(); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("SELECT")
	for _, pr := range q.Project {
		switch {
		case pr.Slot.Var == pr.As:
			b.WriteString(" ?" + pr.As)
		case pr.Slot.Var != "":
			b.WriteString(" (?" + pr.Slot.Var + " AS ?" + pr.As + ")")
		default:
			b.WriteString(" (" + sparqlTerm(pr.Slot.Term) + " AS ?" + pr.As + ")")
		}
	}
	where, err := renderGroup(q)
	if err != nil {
		return "", err
	}
	b.WriteString("\nWHERE { GRAPH " + sparqlTerm(rdf.NewIRI(graph)) + " {\n" + where + "} }")
	if len(q.OrderBy) > 0 {
		b.WriteString("\nORDER BY")
		for _, o := range q.OrderBy {
			b.WriteString(" ?" + o)
		}
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, "\nLIMIT %d", q.Limit)
	}
	return b.String(), nil
}

func renderGroup(q Query) (string, error) {
	var b strings.Builder
	for _, p := range q.Where {
		b.WriteString("  " + renderPattern(p) + " .\n")
	}
	for _, f := range q.Filters {
		if len(f.In) == 0 {
			b.WriteString("  FILTER(false)\n")
			continue
		}
		terms := make([]string, len(f.In))
		for i, t := range f.In {
			terms[i] = sparqlTerm(t)
		}
		b.WriteString("  FILTER(?" + f.Var + " IN (" + strings.Join(terms, ", ") + "))\n")
	}
	return b.String(), nil
}

func renderPattern(p Pattern) string {
	return renderSlot(p.S) + " " + renderSlot(p.P) + " " + renderSlot(p.O)
}

func renderSlot(s Slot) string {
	if s.Var != "" {
		return "?" + s.Var
	}
	return sparqlTerm(s.Term)
}

// sparqlTerm writes a constant. Blank nodes use the <_:label> form so a
// label read from a result can be matched again.
func sparqlTerm(t rdf.Term) string {
	if b, ok := t.(rdf.BlankNode); ok {
		return "<_:" + b.ID + ">"
	}
	return rdf.EncodeTerm(t)
}

func sparqlTriples(triples []rdf.Triple) string {
	var b strings.Builder
	for _, t := range triples {
		b.WriteString("  " + t.Key() + " .\n")
	}
	return b.String()
}

type sparqlResults struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []map[string]sparqlValue `json:"bindings"`
	} `json:"results"`
}

type sparqlValue struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype,omitempty"`
	Lang     string `json:"xml:lang,omitempty"`
}

func (v sparqlValue) term() (rdf.Term, error) {
	switch v.Type {
	case "uri":
		return rdf.NewIRI(v.Value), nil
	case "bnode":
		return rdf.BlankNode{ID: v.Value}, nil
	case "literal", "typed-literal":
		switch {
		case v.Lang != "":
			return rdf.NewLangLiteral(v.Value, v.Lang), nil
		case v.Datatype != "":
			return rdf.NewTypedLiteral(v.Value, rdf.NewIRI(v.Datatype)), nil
		}
		return rdf.NewLiteral(v.Value), nil
	}
	return nil, fmt.Errorf("unknown binding type %q", v.Type)
}

// Package links batches cross data source link triples and commits them
// to a remote link set in one upload.
package links

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/systemshift/drumbeat/internal/rdf"
	apperrors "github.com/systemshift/drumbeat/internal/server/errors"
)

// Form fields of the uploadContent call.
const (
	PathUploadContent = "uploadContent"
	ParamDataType     = "dataType"
	ParamDataFormat   = "dataFormat"
	ParamClearBefore  = "clearBefore"
	ParamNotifyRemote = "notifyRemote"
	ParamContent      = "content"

	DataTypeRDF = "RDF"
	// DataFormat is the exchange format of committed batches.
	DataFormat = ".nt"
)

// ErrCommitted is returned by mutations after a successful commit.
var ErrCommitted = errors.New("link set already committed")

// State of a manager.
type State int

const (
	StateOpen State = iota
	StateCommitted
)

func (s State) String() string {
	if s == StateCommitted {
		return "Committed"
	}
	return "Open"
}

// URIFormatter maps a data source URI and an object id to an object URI.
type URIFormatter func(dataSourceURI, objectID string) string

// ObjectURI is the default formatter: .../datasources/c/ds and id become
// .../objects/c/ds/id.
func ObjectURI(dataSourceURI, objectID string) string {
	base := strings.TrimSuffix(dataSourceURI, "/")
	if i := strings.LastIndex(base, "/datasources/"); i >= 0 {
		base = base[:i] + "/objects/" + base[i+len("/datasources/"):]
	}
	return base + "/" + url.PathEscape(objectID)
}

// Pair is one from/to object id mapping.
type Pair struct {
	From, To string
}

// Option configures a Manager.
type Option func(*Manager)

func WithHTTPClient(c *http.Client) Option { return func(m *Manager) { m.client = c } }

func WithFromFormatter(f URIFormatter) Option { return func(m *Manager) { m.formatFrom = f } }

func WithToFormatter(f URIFormatter) Option { return func(m *Manager) { m.formatTo = f } }

func WithClearBefore(v bool) Option { return func(m *Manager) { m.clearBefore = v } }

func WithNotifyRemote(v bool) Option { return func(m *Manager) { m.notifyRemote = v } }

func WithLogger(l *zap.Logger) Option { return func(m *Manager) { m.logger = l } }

// Manager owns one pending batch. All methods are safe for concurrent use.
type Manager struct {
	linkSetURI string
	fromURI    string
	toURI      string

	formatFrom   URIFormatter
	formatTo     URIFormatter
	clearBefore  bool
	notifyRemote bool
	client       *http.Client
	logger       *zap.Logger

	mu      sync.Mutex
	pending *rdf.Graph
	state   State
}

// New returns an open manager for the link set. Batches clear the remote
// link set and notify its subscribers unless configured otherwise.
func New(linkSetURI, fromDataSourceURI, toDataSourceURI string, opts ...Option) *Manager {
	m := &Manager{
		linkSetURI:   linkSetURI,
		fromURI:      fromDataSourceURI,
		toURI:        toDataSourceURI,
		formatFrom:   ObjectURI,
		formatTo:     ObjectURI,
		clearBefore:  true,
		notifyRemote: true,
		pending:      rdf.NewGraph(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.client == nil {
		m.client = &http.Client{Timeout: 60 * time.Second}
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	return m
}

func (m *Manager) LinkSetURI() string        { return m.linkSetURI }
func (m *Manager) FromDataSourceURI() string { return m.fromURI }
func (m *Manager) ToDataSourceURI() string   { return m.toURI }

func (m *Manager) ClearBefore() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clearBefore
}

func (m *Manager) SetClearBefore(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearBefore = v
}

func (m *Manager) NotifyRemote() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notifyRemote
}

func (m *Manager) SetNotifyRemote(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifyRemote = v
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Pending returns a copy of the pending batch.
func (m *Manager) Pending() *rdf.Graph {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending.Clone()
}

// AddLink adds fromID predicate toID for every toID.
func (m *Manager) AddLink(predicate, fromID string, toIDs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateCommitted {
		return ErrCommitted
	}
	m.addLocked(predicate, fromID, toIDs...)
	return nil
}

// AddLinks adds one link per pair.
func (m *Manager) AddLinks(predicate string, pairs []Pair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateCommitted {
		return ErrCommitted
	}
	for _, p := range pairs {
		m.addLocked(predicate, p.From, p.To)
	}
	return nil
}

func (m *Manager) addLocked(predicate, fromID string, toIDs ...string) {
	from := rdf.NewIRI(m.formatFrom(m.fromURI, fromID))
	p := rdf.NewIRI(predicate)
	for _, to := range toIDs {
		m.pending.Add(rdf.NewTriple(from, p, rdf.NewIRI(m.formatTo(m.toURI, to))))
	}
}

// Commit sends the pending batch in one POST to the link set's
// uploadContent endpoint. The batch is kept afterwards; call Rollback to
// discard it. A non-2xx answer is a RemoteCommitFailed error carrying the
// status and body. There is no retry.
func (m *Manager) Commit(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateCommitted {
		return ErrCommitted
	}

	var content bytes.Buffer
	if err := rdf.WriteNTriples(&content, m.pending.Sorted()); err != nil {
		return apperrors.Internal(err, "serializing link batch")
	}
	form := url.Values{}
	form.Set(ParamDataType, DataTypeRDF)
	form.Set(ParamDataFormat, DataFormat)
	form.Set(ParamClearBefore, strconv.FormatBool(m.clearBefore))
	form.Set(ParamNotifyRemote, strconv.FormatBool(m.notifyRemote))
	form.Set(ParamContent, content.String())

	endpoint := strings.TrimSuffix(m.linkSetURI, "/") + "/" + PathUploadContent
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return apperrors.Internal(err, "building commit request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return apperrors.Internal(err, "posting link batch to %s", endpoint)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		m.logger.Warn("link commit rejected",
			zap.String("linkSet", m.linkSetURI),
			zap.Int("status", resp.StatusCode))
		return apperrors.RemoteCommitFailed(resp.StatusCode, string(body))
	}

	m.state = StateCommitted
	m.logger.Info("link batch committed",
		zap.String("linkSet", m.linkSetURI),
		zap.Int("links", m.pending.Len()))
	return nil
}

// Rollback discards the pending batch. It never fails and does not
// change the state.
func (m *Manager) Rollback() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending.Clear()
}

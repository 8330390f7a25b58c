package links

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/drumbeat/internal/rdf"
	apperrors "github.com/systemshift/drumbeat/internal/server/errors"
)

const (
	base       = "http://example.org/drumbeat/"
	fromSource = base + "datasources/c1/arch"
	toSource   = base + "datasources/c1/struct"
	sameAs     = "http://www.w3.org/2002/07/owl#sameAs"
)

type endpoint struct {
	server *httptest.Server
	mu     sync.Mutex
	forms  []url.Values
	paths  []string
	status int
	body   string
}

func newEndpoint(t *testing.T, status int, body string) *endpoint {
	t.Helper()
	e := &endpoint{status: status, body: body}
	e.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		e.mu.Lock()
		e.forms = append(e.forms, r.PostForm)
		e.paths = append(e.paths, r.URL.Path)
		e.mu.Unlock()
		w.WriteHeader(e.status)
		_, _ = w.Write([]byte(e.body))
	}))
	t.Cleanup(e.server.Close)
	return e
}

func TestObjectURI(t *testing.T) {
	assert.Equal(t, base+"objects/c1/arch/w1", ObjectURI(fromSource, "w1"))
	assert.Equal(t, base+"objects/c1/arch/a%20b", ObjectURI(fromSource+"/", "a b"))
	assert.Equal(t, "http://other.org/x/w1", ObjectURI("http://other.org/x", "w1"))
}

func TestAddLinkSetSemantics(t *testing.T) {
	m := New(base+"datasets/c1/links/set1", fromSource, toSource)
	require.NoError(t, m.AddLink(sameAs, "w1", "b1"))
	require.NoError(t, m.AddLink(sameAs, "w1", "b1"))
	require.Equal(t, 1, m.Pending().Len())

	assert.True(t, m.Pending().Has(rdf.NewTriple(
		rdf.NewIRI(base+"objects/c1/arch/w1"),
		rdf.NewIRI(sameAs),
		rdf.NewIRI(base+"objects/c1/struct/b1"),
	)))

	require.NoError(t, m.AddLinks(sameAs, []Pair{{"w1", "b1"}, {"w2", "b2"}}))
	require.NoError(t, m.AddLink(sameAs, "w3", "b3", "b4"))
	assert.Equal(t, 4, m.Pending().Len())
}

func TestRollback(t *testing.T) {
	m := New(base+"datasets/c1/links/set1", fromSource, toSource)
	require.NoError(t, m.AddLink(sameAs, "w1", "b1"))
	m.Rollback()
	assert.Zero(t, m.Pending().Len())
	assert.Equal(t, StateOpen, m.State())
	m.Rollback()
	assert.Zero(t, m.Pending().Len())
}

func TestCustomFormatters(t *testing.T) {
	m := New("http://x/linkset", "ignored", "ignored",
		WithFromFormatter(func(_, id string) string { return "urn:from:" + id }),
		WithToFormatter(func(_, id string) string { return "urn:to:" + id }))
	require.NoError(t, m.AddLink(sameAs, "a", "b"))
	tr := m.Pending().Triples()[0]
	assert.Equal(t, "urn:from:a", tr.S.String())
	assert.Equal(t, "urn:to:b", tr.O.String())
}

func TestCommit(t *testing.T) {
	e := newEndpoint(t, http.StatusOK, `{"newSize":2}`)
	m := New(e.server.URL+"/datasets/c1/links/set1", fromSource, toSource, WithHTTPClient(e.server.Client()))
	require.NoError(t, m.AddLinks(sameAs, []Pair{{"w2", "b2"}, {"w1", "b1"}}))

	require.NoError(t, m.Commit(context.Background()))
	require.Len(t, e.forms, 1)
	assert.Equal(t, "/datasets/c1/links/set1/uploadContent", e.paths[0])

	form := e.forms[0]
	assert.Equal(t, "RDF", form.Get(ParamDataType))
	assert.Equal(t, ".nt", form.Get(ParamDataFormat))
	assert.Equal(t, "true", form.Get(ParamClearBefore))
	assert.Equal(t, "true", form.Get(ParamNotifyRemote))

	triples, err := rdf.ParseNTriples(strings.NewReader(form.Get(ParamContent)))
	require.NoError(t, err)
	assert.ElementsMatch(t, m.Pending().Triples(), triples)

	// The batch survives a successful commit and the manager is done.
	assert.Equal(t, 2, m.Pending().Len())
	assert.Equal(t, StateCommitted, m.State())
	assert.ErrorIs(t, m.AddLink(sameAs, "w3", "b3"), ErrCommitted)
	assert.ErrorIs(t, m.Commit(context.Background()), ErrCommitted)
	assert.Len(t, e.forms, 1)

	m.Rollback()
	assert.Zero(t, m.Pending().Len())
}

func TestCommitFlags(t *testing.T) {
	e := newEndpoint(t, http.StatusNoContent, "")
	m := New(e.server.URL+"/ls/", fromSource, toSource,
		WithHTTPClient(e.server.Client()), WithClearBefore(false))
	m.SetNotifyRemote(false)
	require.NoError(t, m.Commit(context.Background()))

	assert.Equal(t, "/ls/uploadContent", e.paths[0])
	assert.Equal(t, "false", e.forms[0].Get(ParamClearBefore))
	assert.Equal(t, "false", e.forms[0].Get(ParamNotifyRemote))
	assert.Empty(t, e.forms[0].Get(ParamContent))
}

func TestCommitFailureKeepsBatch(t *testing.T) {
	e := newEndpoint(t, http.StatusInternalServerError, "store unavailable")
	m := New(e.server.URL+"/ls", fromSource, toSource, WithHTTPClient(e.server.Client()))
	require.NoError(t, m.AddLink(sameAs, "w1", "b1"))
	before := m.Pending().Sorted()

	err := m.Commit(context.Background())
	require.Error(t, err)
	appErr := apperrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.KindRemoteCommitFailed, appErr.Kind)
	assert.Equal(t, http.StatusInternalServerError, appErr.Details["status"])
	assert.Equal(t, "store unavailable", appErr.Details["body"])

	assert.Equal(t, before, m.Pending().Sorted())
	assert.Equal(t, StateOpen, m.State())
	assert.Len(t, e.forms, 1, "no retry")
}

func TestConcurrentAdds(t *testing.T) {
	m := New("http://x/ls", fromSource, toSource)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = m.AddLink(sameAs, "w", string(rune('a'+i)))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, m.Pending().Len())
}

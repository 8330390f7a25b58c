package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/systemshift/drumbeat/internal/server/errors"
	"github.com/systemshift/drumbeat/internal/server/graph"
	"github.com/systemshift/drumbeat/internal/server/ingest"
	"github.com/systemshift/drumbeat/internal/server/managers"
	"github.com/systemshift/drumbeat/internal/server/media"
	"github.com/systemshift/drumbeat/internal/server/subscriptions"
)

const testBase = "http://example.org/drumbeat/"

const wallTurtle = `@prefix ifc: <http://drumbeat.cs.hut.fi/owl/ifc#> .
<w1> a ifc:IfcWall ;
    ifc:name "Wall" .
<w2> a ifc:IfcDoor .
`

func setupRouter(t *testing.T, subMgr *subscriptions.Manager) chi.Router {
	t.Helper()
	store := graph.NewMemory()
	b := managers.NewBase(store, managers.NewNaming(testBase), "", nil)
	sets := managers.NewDataSetManager(b)

	var opts []ingest.Option
	if subMgr != nil {
		opts = append(opts, ingest.WithEvents(subMgr))
	}
	s := New(Deps{
		Collections:   managers.NewCollectionManager(b),
		DataSources:   managers.NewDataSourceManager(b),
		DataSets:      sets,
		Objects:       managers.NewDataSetObjectManager(b, sets),
		Uploads:       ingest.NewService(store, sets, ingest.Config{}, opts...),
		Converter:     media.NewConverter(testBase),
		Subscriptions: subMgr,
	})
	return s.Routes()
}

func do(t *testing.T, h http.Handler, method, target string, form url.Values, accept string) *httptest.ResponseRecorder {
	t.Helper()
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

// seedDataSet creates c1/ds1/set1.
func seedDataSet(t *testing.T, h http.Handler) {
	t.Helper()
	for _, p := range []string{"/collections/c1", "/datasources/c1/ds1", "/datasets/c1/ds1/set1"} {
		w := do(t, h, http.MethodPost, p, url.Values{}, media.Turtle)
		require.Equal(t, http.StatusCreated, w.Code, "POST %s: %s", p, w.Body.String())
	}
}

func TestHealthCheck(t *testing.T) {
	h := setupRouter(t, nil)
	w := do(t, h, http.MethodGet, "/health", nil, "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestCollectionLifecycle(t *testing.T) {
	h := setupRouter(t, nil)

	w := do(t, h, http.MethodPost, "/collections/c1", url.Values{"name": {"My Collection"}}, media.Turtle)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), media.Turtle)
	assert.Contains(t, w.Body.String(), `"My Collection"`)

	w = do(t, h, http.MethodGet, "/collections/c1", nil, media.JSONLD)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), media.JSONLD)
	assert.Contains(t, w.Body.String(), "My Collection")

	w = do(t, h, http.MethodGet, "/collections", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), media.HTML)

	w = do(t, h, http.MethodPost, "/collections/c1", url.Values{}, "")
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, apperrors.KindAlreadyExists, decodeError(t, w).Kind)

	w = do(t, h, http.MethodDelete, "/collections/c1", nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, http.MethodDelete, "/collections/c1", nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperrors.KindNotFound, decodeError(t, w).Kind)

	w = do(t, h, http.MethodGet, "/collections/c1", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteWithChildren(t *testing.T) {
	h := setupRouter(t, nil)
	seedDataSet(t, h)

	w := do(t, h, http.MethodDelete, "/collections/c1", nil, "")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apperrors.KindHasChildren, decodeError(t, w).Kind)

	w = do(t, h, http.MethodDelete, "/datasources/c1/ds1", nil, "")
	assert.Equal(t, apperrors.KindHasChildren, decodeError(t, w).Kind)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/datasets/c1/ds1/set1", nil, "").Code)
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/datasources/c1/ds1", nil, "").Code)
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/collections/c1", nil, "").Code)
}

func TestCreateRequiresParent(t *testing.T) {
	h := setupRouter(t, nil)
	w := do(t, h, http.MethodPost, "/datasources/missing/ds1", url.Values{}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateRejectsBadID(t *testing.T) {
	h := setupRouter(t, nil)
	w := do(t, h, http.MethodPost, "/collections/-c1", url.Values{}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, apperrors.KindBadRequest, resp.Kind)
	assert.Contains(t, resp.Message, "collectionId")
}

func TestUnsupportedMediaType(t *testing.T) {
	h := setupRouter(t, nil)
	w := do(t, h, http.MethodGet, "/collections", nil, "image/png")

	require.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, apperrors.KindUnsupportedMediaType, resp.Kind)
	assert.Equal(t, media.Supported, resp.Supported)
}

func TestCreateWithUnsupportedAcceptPersistsNothing(t *testing.T) {
	h := setupRouter(t, nil)

	for _, p := range []string{"/collections/c1", "/datasources/c1/ds1", "/datasets/c1/ds1/set1"} {
		w := do(t, h, http.MethodPost, p, url.Values{"name": {"x"}}, "image/png")
		require.Equal(t, http.StatusUnsupportedMediaType, w.Code, "POST %s", p)
		assert.Equal(t, apperrors.KindUnsupportedMediaType, decodeError(t, w).Kind)

		w = do(t, h, http.MethodGet, p, nil, media.Turtle)
		assert.Equal(t, http.StatusNotFound, w.Code, "GET %s after refused create", p)

		w = do(t, h, http.MethodPost, p, url.Values{"name": {"x"}}, media.Turtle)
		require.Equal(t, http.StatusCreated, w.Code, "retry POST %s: %s", p, w.Body.String())
	}
}

func TestUploadContentAndObjects(t *testing.T) {
	h := setupRouter(t, nil)
	seedDataSet(t, h)

	w := do(t, h, http.MethodPost, "/datasets/c1/ds1/set1/uploadContent", url.Values{
		"dataType":   {"rdf"},
		"dataFormat": {"ttl"},
		"content":    {wallTurtle},
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var res ingest.Result
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	assert.Equal(t, "c1_ds1_set1", res.DataSetName)
	assert.Equal(t, 0, res.OldSize)
	assert.Equal(t, 3, res.NewSize)

	w = do(t, h, http.MethodGet, "/dsobjects/c1/ds1/set1", nil, media.Turtle)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "IfcDoor")

	w = do(t, h, http.MethodGet, "/dsobjects/c1/ds1/set1/w1", nil, media.Turtle)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"Wall"`)

	w = do(t, h, http.MethodGet, "/dsobjects/c1/ds1/set1/w1?excludeProperties=true", nil, media.Turtle)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), `"Wall"`)
	assert.Contains(t, w.Body.String(), "IfcWall")

	w = do(t, h, http.MethodGet, "/dsobjects/c1/ds1/set1/w1?filterProperties=ifc:name", nil, media.Turtle)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"Wall"`)
	assert.NotContains(t, w.Body.String(), "IfcWall")

	w = do(t, h, http.MethodGet, "/dsobjects/c1/ds1/set1/w1/type", nil, media.Turtle)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "IfcWall")

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/dsobjects/c1/ds1/set1/nope", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest,
		do(t, h, http.MethodGet, "/dsobjects/c1/ds1/set1/w1?filterProperties=nope:x", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest,
		do(t, h, http.MethodGet, "/dsobjects/c1/ds1/set1/w1?excludeProperties=maybe", nil, "").Code)

	// Merge keeps what is there, clearBefore replaces it.
	w = do(t, h, http.MethodPost, "/datasets/c1/ds1/set1/uploadContent", url.Values{
		"dataType":    {"RDF"},
		"content":     {`<w3> a <http://drumbeat.cs.hut.fi/owl/ifc#IfcSlab> .`},
		"clearBefore": {"true"},
	}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	assert.Equal(t, 3, res.OldSize)
	assert.Equal(t, 1, res.NewSize)
}

func TestUploadErrors(t *testing.T) {
	h := setupRouter(t, nil)
	seedDataSet(t, h)

	tests := []struct {
		name   string
		path   string
		form   url.Values
		status int
	}{
		{"missing data type", "uploadContent", url.Values{"content": {wallTurtle}}, http.StatusBadRequest},
		{"csv is reserved", "uploadContent", url.Values{"dataType": {"CSV"}}, http.StatusBadRequest},
		{"unknown data type", "uploadContent", url.Values{"dataType": {"XLS"}}, http.StatusBadRequest},
		{"bad flag", "uploadContent", url.Values{"dataType": {"RDF"}, "clearBefore": {"yes please"}}, http.StatusBadRequest},
		{"syntax error", "uploadContent", url.Values{"dataType": {"RDF"}, "content": {"<a> <b> ."}}, http.StatusBadRequest},
		{"relative url", "uploadUrl", url.Values{"dataType": {"RDF"}, "url": {"/model.ttl"}}, http.StatusBadRequest},
		{"missing file path", "uploadServerFile", url.Values{"dataType": {"RDF"}}, http.StatusBadRequest},
		{"missing server file", "uploadServerFile", url.Values{"dataType": {"RDF"}, "filePath": {"/nonexistent/model.ttl"}}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/datasets/c1/ds1/set1/"+tt.path, tt.form, "")
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	w := do(t, h, http.MethodPost, "/datasets/c1/ds1/missing/uploadContent", url.Values{"dataType": {"RDF"}}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadClientFile(t *testing.T) {
	h := setupRouter(t, nil)
	seedDataSet(t, h)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("dataType", "RDF"))
	part, err := mw.CreateFormFile("file", "model.ttl")
	require.NoError(t, err)
	_, err = part.Write([]byte(wallTurtle))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/datasets/c1/ds1/set1/uploadClientFile", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res ingest.Result
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	assert.Equal(t, "ttl", res.DataFormat)
	assert.Equal(t, 3, res.NewSize)

	w = do(t, h, http.MethodPost, "/datasets/c1/ds1/set1/uploadClientFile", url.Values{"dataType": {"RDF"}}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubscriptionsUnavailable(t *testing.T) {
	h := setupRouter(t, nil)
	w := do(t, h, http.MethodGet, "/api/subscriptions", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSubscriptionEndpointsAndEvents(t *testing.T) {
	received := make(chan subscriptions.Notification, 10)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var n subscriptions.Notification
		if err := json.NewDecoder(r.Body).Decode(&n); err == nil {
			received <- n
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()

	subMgr := subscriptions.NewManager(
		subscriptions.NewStoreRepository(graph.NewMemory(), testBase+"metadata", testBase), nil, nil)
	require.NoError(t, subMgr.Start(context.Background()))
	defer subMgr.Stop()
	h := setupRouter(t, subMgr)

	body, err := json.Marshal(subscriptions.CreateSubscriptionRequest{
		Name:    "new collections",
		Webhook: hook.URL,
		Pattern: subscriptions.SubscriptionPattern{EventTypes: []string{subscriptions.EventCollectionCreated}},
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/subscriptions", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created subscriptions.SubscriptionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	id := created.Subscription.ID
	require.NotEmpty(t, id)

	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/collections/c9", url.Values{}, "").Code)
	select {
	case n := <-received:
		assert.Equal(t, id, n.SubscriptionID)
		assert.Equal(t, subscriptions.EventCollectionCreated, n.Event.Type)
		assert.Equal(t, testBase+"collections/c9", n.Event.Resource)
		assert.Equal(t, "Collection", n.Event.ResourceType)
	case <-time.After(5 * time.Second):
		t.Fatal("no notification delivered")
	}

	w = do(t, h, http.MethodGet, "/api/subscriptions", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list subscriptions.ListSubscriptionsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	assert.Equal(t, 1, list.Count)

	req = httptest.NewRequest(http.MethodPatch, "/api/subscriptions/"+id, strings.NewReader(`{"enabled":false}`))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated subscriptions.SubscriptionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&updated))
	assert.False(t, updated.Subscription.Enabled)

	req = httptest.NewRequest(http.MethodPost, "/api/subscriptions", strings.NewReader(`{"name":"x"}`))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/api/subscriptions/"+id, nil, "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/subscriptions/"+id, nil, "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/api/subscriptions/"+id, nil, "").Code)
}

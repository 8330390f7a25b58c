// Package api maps the DRUMBEAT resource paths onto the entity managers,
// the upload pipeline and the subscription manager.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/systemshift/drumbeat/internal/server/ingest"
	"github.com/systemshift/drumbeat/internal/server/managers"
	"github.com/systemshift/drumbeat/internal/server/media"
	"github.com/systemshift/drumbeat/internal/server/subscriptions"
)

// Deps holds the HTTP server dependencies
type Deps struct {
	Collections *managers.CollectionManager
	DataSources *managers.DataSourceManager
	DataSets    *managers.DataSetManager
	Objects     *managers.DataSetObjectManager
	Uploads     *ingest.Service
	Converter   *media.Converter
	// Subscriptions is optional; without it the /api/subscriptions
	// routes answer 503 and no events are emitted.
	Subscriptions *subscriptions.Manager
	Logger        *zap.Logger
}

// Server serves the DRUMBEAT REST resources.
type Server struct {
	collections *managers.CollectionManager
	dataSources *managers.DataSourceManager
	dataSets    *managers.DataSetManager
	objects     *managers.DataSetObjectManager
	uploads     *ingest.Service
	converter   *media.Converter
	subMgr      *subscriptions.Manager
	logger      *zap.Logger
}

// New creates a new API server
func New(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		collections: d.Collections,
		dataSources: d.DataSources,
		dataSets:    d.DataSets,
		objects:     d.Objects,
		uploads:     d.Uploads,
		converter:   d.Converter,
		subMgr:      d.Subscriptions,
		logger:      logger,
	}
}

// Routes returns a router with every resource registered. Middleware is
// installed on the router itself so it can see the matched route.
func (s *Server) Routes(middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middlewares...)

	r.Get("/health", s.HealthCheck)

	r.Route("/collections", func(r chi.Router) {
		r.Get("/", s.ListCollections)
		r.Get("/{collectionId}", s.GetCollection)
		r.Post("/{collectionId}", s.CreateCollection)
		r.Delete("/{collectionId}", s.DeleteCollection)
	})

	r.Route("/datasources/{collectionId}", func(r chi.Router) {
		r.Get("/", s.ListDataSources)
		r.Get("/{dataSourceId}", s.GetDataSource)
		r.Post("/{dataSourceId}", s.CreateDataSource)
		r.Delete("/{dataSourceId}", s.DeleteDataSource)
	})

	r.Route("/datasets/{collectionId}/{dataSourceId}", func(r chi.Router) {
		r.Get("/", s.ListDataSets)
		r.Route("/{dataSetId}", func(r chi.Router) {
			r.Get("/", s.GetDataSet)
			r.Post("/", s.CreateDataSet)
			r.Delete("/", s.DeleteDataSet)
			r.Post("/uploadServerFile", s.UploadServerFile)
			r.Post("/uploadUrl", s.UploadURL)
			r.Post("/uploadContent", s.UploadContent)
			r.Post("/uploadClientFile", s.UploadClientFile)
		})
	})

	r.Route("/dsobjects/{collectionId}/{dataSourceId}/{dataSetId}", func(r chi.Router) {
		r.Get("/", s.ListObjects)
		r.Get("/{objectId}", s.GetObject)
		r.Get("/{objectId}/type", s.GetObjectType)
	})

	r.Route("/api/subscriptions", func(r chi.Router) {
		r.Post("/", s.CreateSubscription)
		r.Get("/", s.ListSubscriptions)
		r.Get("/{id}", s.GetSubscription)
		r.Patch("/{id}", s.UpdateSubscription)
		r.Delete("/{id}", s.DeleteSubscription)
	})

	return r
}

// HealthCheck handles GET /health
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

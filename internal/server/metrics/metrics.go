// Package metrics exposes Prometheus metrics for the HTTP surface, the
// triple store and the upload pipeline.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/systemshift/drumbeat/internal/rdf"
	"github.com/systemshift/drumbeat/internal/server/graph"
	"github.com/systemshift/drumbeat/internal/server/ingest"
)

// Collector holds all Prometheus metrics for the server
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	StoreOperations *prometheus.CounterVec
	StoreDuration   *prometheus.HistogramVec

	Uploads         *prometheus.CounterVec
	UploadedTriples prometheus.Counter
}

// NewCollector creates a collector with its own registry.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		StoreOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_operations_total",
				Help:      "Total number of triple store operations",
			},
			[]string{"operation", "status"},
		),
		StoreDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_operation_duration_seconds",
				Help:      "Triple store operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		Uploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploads_total",
				Help:      "Total number of completed data set uploads",
			},
			[]string{"data_type"},
		),
		UploadedTriples: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploaded_triples_total",
				Help:      "Net triples added to data sets by uploads",
			},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.StoreOperations,
		c.StoreDuration,
		c.Uploads,
		c.UploadedTriples,
	)
	return c
}

// Registry returns the Prometheus registry for this collector
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry in the exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency. The route label is the
// matched chi pattern so path parameters do not explode cardinality.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		c.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// ObserveUpload counts a finished upload. Uploads that shrink a data set
// add nothing to the triple counter.
func (c *Collector) ObserveUpload(res ingest.Result) {
	c.Uploads.WithLabelValues(res.DataType).Inc()
	if grown := res.NewSize - res.OldSize; grown > 0 {
		c.UploadedTriples.Add(float64(grown))
	}
}

// InstrumentStore wraps s so that every call is counted and timed.
func (c *Collector) InstrumentStore(s graph.Store) graph.Store {
	return &store{inner: s, c: c}
}

type store struct {
	inner graph.Store
	c     *Collector
}

func (s *store) observe(op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	s.c.StoreOperations.WithLabelValues(op, status).Inc()
	s.c.StoreDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (s *store) Select(ctx context.Context, g string, q graph.Query) (*graph.Result, error) {
	start := time.Now()
	res, err := s.inner.Select(ctx, g, q)
	s.observe("select", start, err)
	return res, err
}

func (s *store) Insert(ctx context.Context, g string, triples []rdf.Triple) error {
	start := time.Now()
	err := s.inner.Insert(ctx, g, triples)
	s.observe("insert", start, err)
	return err
}

func (s *store) InsertUnless(ctx context.Context, g string, guard graph.Query, triples []rdf.Triple) (bool, error) {
	start := time.Now()
	ok, err := s.inner.InsertUnless(ctx, g, guard, triples)
	s.observe("insert_unless", start, err)
	return ok, err
}

func (s *store) Delete(ctx context.Context, g string, q graph.Query) error {
	start := time.Now()
	err := s.inner.Delete(ctx, g, q)
	s.observe("delete", start, err)
	return err
}

func (s *store) CreateGraph(ctx context.Context, g string) error {
	start := time.Now()
	err := s.inner.CreateGraph(ctx, g)
	s.observe("create_graph", start, err)
	return err
}

func (s *store) DropGraph(ctx context.Context, g string) error {
	start := time.Now()
	err := s.inner.DropGraph(ctx, g)
	s.observe("drop_graph", start, err)
	return err
}

func (s *store) ClearGraph(ctx context.Context, g string) error {
	start := time.Now()
	err := s.inner.ClearGraph(ctx, g)
	s.observe("clear_graph", start, err)
	return err
}

func (s *store) ReplaceGraph(ctx context.Context, g string, triples []rdf.Triple) error {
	start := time.Now()
	err := s.inner.ReplaceGraph(ctx, g, triples)
	s.observe("replace_graph", start, err)
	return err
}

func (s *store) Size(ctx context.Context, g string) (int, error) {
	start := time.Now()
	n, err := s.inner.Size(ctx, g)
	s.observe("size", start, err)
	return n, err
}

func (s *store) Close(ctx context.Context) error {
	return s.inner.Close(ctx)
}

// Package tracing wires OpenTelemetry spans around HTTP requests and
// triple store calls.
package tracing

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/systemshift/drumbeat/internal/rdf"
	"github.com/systemshift/drumbeat/internal/server/graph"
)

// TracerProvider wraps OpenTelemetry tracer provider
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing exports spans over OTLP/gRPC to endpoint and installs the
// provider and the W3C trace context propagator globally.
func InitTracing(ctx context.Context, serviceName, endpoint string, insecure bool) (*TracerProvider, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := NewTracerProvider(serviceName, sdktrace.WithBatcher(exporter), sdktrace.WithResource(res))
	otel.SetTracerProvider(tp.provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp, nil
}

// NewTracerProvider builds a provider from SDK options without touching
// the globals.
func NewTracerProvider(serviceName string, opts ...sdktrace.TracerProviderOption) *TracerProvider {
	provider := sdktrace.NewTracerProvider(opts...)
	return &TracerProvider{provider: provider, tracer: provider.Tracer(serviceName)}
}

func (tp *TracerProvider) Tracer() trace.Tracer { return tp.tracer }

// Shutdown flushes pending spans.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	return tp.provider.Shutdown(ctx)
}

// Middleware starts a server span per request. The span is renamed to
// the matched route once routing is done.
func Middleware(tracer trace.Tracer) func(http.Handler) http.Handler {
	propagator := otel.GetTextMapPropagator()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.target", r.URL.Path),
					attribute.String("http.request_id", middleware.GetReqID(r.Context())),
				),
			)
			defer span.End()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			if rc := chi.RouteContext(r.Context()); rc != nil {
				if route := rc.RoutePattern(); route != "" {
					span.SetName(r.Method + " " + route)
					span.SetAttributes(attribute.String("http.route", route))
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			span.SetAttributes(attribute.Int("http.status_code", status))
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			}
		})
	}
}

// TraceStore wraps a store so that every call gets a client span.
func TraceStore(s graph.Store, tracer trace.Tracer) graph.Store {
	return &tracedStore{inner: s, tracer: tracer}
}

type tracedStore struct {
	inner  graph.Store
	tracer trace.Tracer
}

func (t *tracedStore) start(ctx context.Context, op, g string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("graph.name", g))
	return t.tracer.Start(ctx, "store."+op, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (t *tracedStore) Select(ctx context.Context, g string, q graph.Query) (*graph.Result, error) {
	ctx, span := t.start(ctx, "Select", g, attribute.String("query.name", q.Name))
	res, err := t.inner.Select(ctx, g, q)
	if err == nil {
		span.SetAttributes(attribute.Int("result.rows", res.Len()))
	}
	finish(span, err)
	return res, err
}

func (t *tracedStore) Insert(ctx context.Context, g string, triples []rdf.Triple) error {
	ctx, span := t.start(ctx, "Insert", g, attribute.Int("triples", len(triples)))
	err := t.inner.Insert(ctx, g, triples)
	finish(span, err)
	return err
}

func (t *tracedStore) InsertUnless(ctx context.Context, g string, guard graph.Query, triples []rdf.Triple) (bool, error) {
	ctx, span := t.start(ctx, "InsertUnless", g,
		attribute.String("query.name", guard.Name), attribute.Int("triples", len(triples)))
	ok, err := t.inner.InsertUnless(ctx, g, guard, triples)
	span.SetAttributes(attribute.Bool("inserted", ok))
	finish(span, err)
	return ok, err
}

func (t *tracedStore) Delete(ctx context.Context, g string, q graph.Query) error {
	ctx, span := t.start(ctx, "Delete", g, attribute.String("query.name", q.Name))
	err := t.inner.Delete(ctx, g, q)
	finish(span, err)
	return err
}

func (t *tracedStore) CreateGraph(ctx context.Context, g string) error {
	ctx, span := t.start(ctx, "CreateGraph", g)
	err := t.inner.CreateGraph(ctx, g)
	finish(span, err)
	return err
}

func (t *tracedStore) DropGraph(ctx context.Context, g string) error {
	ctx, span := t.start(ctx, "DropGraph", g)
	err := t.inner.DropGraph(ctx, g)
	finish(span, err)
	return err
}

func (t *tracedStore) ClearGraph(ctx context.Context, g string) error {
	ctx, span := t.start(ctx, "ClearGraph", g)
	err := t.inner.ClearGraph(ctx, g)
	finish(span, err)
	return err
}

func (t *tracedStore) ReplaceGraph(ctx context.Context, g string, triples []rdf.Triple) error {
	ctx, span := t.start(ctx, "ReplaceGraph", g, attribute.Int("triples", len(triples)))
	err := t.inner.ReplaceGraph(ctx, g, triples)
	finish(span, err)
	return err
}

func (t *tracedStore) Size(ctx context.Context, g string) (int, error) {
	ctx, span := t.start(ctx, "Size", g)
	n, err := t.inner.Size(ctx, g)
	finish(span, err)
	return n, err
}

func (t *tracedStore) Close(ctx context.Context) error {
	return t.inner.Close(ctx)
}

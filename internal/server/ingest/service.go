// Package ingest loads uploaded IFC and RDF documents into data set
// content graphs.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/systemshift/drumbeat/internal/rdf"
	apperrors "github.com/systemshift/drumbeat/internal/server/errors"
	"github.com/systemshift/drumbeat/internal/server/graph"
	"github.com/systemshift/drumbeat/internal/server/ifc"
	"github.com/systemshift/drumbeat/internal/server/managers"
	"github.com/systemshift/drumbeat/internal/server/subscriptions"
)

// Data types accepted by uploads.
const (
	DataTypeIFC = "IFC"
	DataTypeRDF = "RDF"
	DataTypeCSV = "CSV"
)

// Request names the target data set and how to read the upload.
type Request struct {
	Collection   string
	DataSource   string
	DataSet      string
	DataType     string
	DataFormat   string
	ClearBefore  bool
	NotifyRemote bool
}

// Result reports what an upload did to the content graph.
type Result struct {
	DataSetName string `json:"dataSetName"`
	DataType    string `json:"dataType"`
	DataFormat  string `json:"dataFormat"`
	OldSize     int    `json:"oldSize"`
	NewSize     int    `json:"newSize"`
}

// Config controls where uploads come from and whether they are kept.
type Config struct {
	// Dir receives a copy of every upload when Save is set.
	Dir  string
	Save bool
	// ServerFileRoot, when set, is the only directory server files may
	// be read from.
	ServerFileRoot string
	FetchTimeout   time.Duration
	// MaxBytes caps the size of one upload; zero means no limit.
	MaxBytes int64
}

// EventSink receives upload notifications.
type EventSink interface {
	EmitEvent(subscriptions.Event)
}

// Option configures a Service.
type Option func(*Service)

// WithHTTPClient sets the client used by URL uploads.
func WithHTTPClient(c *http.Client) Option { return func(s *Service) { s.client = c } }

// WithEvents sets where notifyRemote uploads are announced.
func WithEvents(e EventSink) Option { return func(s *Service) { s.events = e } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.logger = l } }

// WithObserver registers a callback run after every successful upload.
func WithObserver(fn func(Result)) Option { return func(s *Service) { s.observe = fn } }

// Service runs uploads against one store.
type Service struct {
	store    graph.Store
	dataSets *managers.DataSetManager
	cfg      Config
	client   *http.Client
	events   EventSink
	logger   *zap.Logger
	observe  func(Result)
}

// NewService returns an upload service writing through store.
func NewService(store graph.Store, dataSets *managers.DataSetManager, cfg Config, opts ...Option) *Service {
	s := &Service{store: store, dataSets: dataSets, cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		timeout := cfg.FetchTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		s.client = &http.Client{Timeout: timeout}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// UploadContent loads an inline document.
func (s *Service) UploadContent(ctx context.Context, req Request, content string) (*Result, error) {
	s.logger.Info("upload content", s.fields(req, zap.Int("bytes", len(content)))...)
	return s.upload(ctx, req, io.NopCloser(strings.NewReader(content)))
}

// UploadURL fetches and loads a remote document. Fetch failures are
// NotFound.
func (s *Service) UploadURL(ctx context.Context, req Request, url string) (*Result, error) {
	s.logger.Info("upload url", s.fields(req, zap.String("url", url))...)
	body, err := s.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return s.upload(ctx, req, body)
}

// UploadServerFile loads a file from the server's file system.
func (s *Service) UploadServerFile(ctx context.Context, req Request, path string) (*Result, error) {
	s.logger.Info("upload server file", s.fields(req, zap.String("path", path))...)
	resolved, err := s.resolveServerFile(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.NotFound("server file not found: %s", path)
		}
		return nil, apperrors.Internal(err, "opening server file %s", path)
	}
	return s.upload(ctx, req, f)
}

// UploadReader loads a client supplied stream and closes it.
func (s *Service) UploadReader(ctx context.Context, req Request, r io.ReadCloser, filename string) (*Result, error) {
	s.logger.Info("upload client file", s.fields(req, zap.String("file", filename))...)
	return s.upload(ctx, req, r)
}

func (s *Service) fields(req Request, extra ...zap.Field) []zap.Field {
	return append([]zap.Field{
		zap.String("dataSet", s.dataSets.Name(req.Collection, req.DataSource, req.DataSet)),
		zap.String("dataType", req.DataType),
		zap.String("dataFormat", req.DataFormat),
	}, extra...)
}

func (s *Service) fetch(ctx context.Context, url string) (io.ReadCloser, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperrors.BadRequest("invalid url %q", url).WithCause(err)
	}
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, apperrors.NotFound("fetching %s failed", url).WithCause(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, apperrors.NotFound("fetching %s answered %d", url, resp.StatusCode)
	}
	return resp.Body, nil
}

func (s *Service) resolveServerFile(path string) (string, error) {
	if s.cfg.ServerFileRoot == "" {
		return path, nil
	}
	root, err := filepath.Abs(s.cfg.ServerFileRoot)
	if err != nil {
		return "", apperrors.Internal(err, "resolving server file root")
	}
	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}
	target = filepath.Clean(target)
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperrors.BadRequest("file path %s is outside the server file root", path)
	}
	return target, nil
}

type parsed struct {
	dataType string
	format   rdf.Format
	ext      string
}

func parseKind(req Request) (parsed, error) {
	dt := strings.ToUpper(strings.TrimSpace(req.DataType))
	ext := strings.ToLower(strings.TrimLeft(strings.TrimSpace(req.DataFormat), "."))
	switch dt {
	case DataTypeRDF:
		f, ok := rdf.FormatForExtension(ext)
		if !ok {
			return parsed{}, apperrors.BadRequest("unknown RDF data format %q", req.DataFormat)
		}
		if ext == "" {
			ext = "ttl"
		}
		return parsed{dataType: dt, format: f, ext: ext}, nil
	case DataTypeIFC:
		if ext == "" {
			ext = "ifc"
		}
		return parsed{dataType: dt, ext: ext}, nil
	case DataTypeCSV:
		return parsed{}, apperrors.BadRequest("data type CSV is not supported")
	case "":
		return parsed{}, apperrors.BadRequest("dataType is required")
	}
	return parsed{}, apperrors.BadRequest("unknown data type=%s", req.DataType)
}

// upload owns in and closes it on every path.
func (s *Service) upload(ctx context.Context, req Request, in io.ReadCloser) (res *Result, err error) {
	defer func() {
		if cerr := in.Close(); cerr != nil {
			s.logger.Warn("closing upload input", zap.Error(cerr))
		}
	}()
	defer func() {
		if err != nil && apperrors.KindOf(err) == apperrors.KindInternal {
			s.logger.Error("upload failed", s.fields(req, zap.Error(err))...)
		}
	}()

	kind, err := parseKind(req)
	if err != nil {
		return nil, err
	}
	c, ds, set := req.Collection, req.DataSource, req.DataSet
	exists, err := s.dataSets.CheckExists(ctx, c, ds, set)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.NotFound("data set %s/%s/%s not found", c, ds, set)
	}

	name := s.dataSets.Name(c, ds, set)
	var r io.Reader = in
	if s.cfg.MaxBytes > 0 {
		r = &limitedReader{r: in, remaining: s.cfg.MaxBytes, limit: s.cfg.MaxBytes}
	}
	if s.cfg.Save {
		saved, err := s.save(r, kind, name)
		if err != nil {
			return nil, err
		}
		defer saved.Close()
		r = saved
	}

	triples, err := s.decode(r, kind, c, ds)
	if err != nil {
		return nil, err
	}
	triples = relabelBlankNodes(triples, "u"+uuid.New().String()[:8]+"_")

	result, err := s.write(ctx, req, triples)
	if err != nil {
		return nil, err
	}
	result.DataSetName = name
	result.DataType = kind.dataType
	result.DataFormat = kind.ext

	s.logger.Info("upload complete", s.fields(req,
		zap.Int("oldSize", result.OldSize),
		zap.Int("newSize", result.NewSize),
		zap.Bool("clearBefore", req.ClearBefore))...)
	if s.observe != nil {
		s.observe(*result)
	}
	if req.NotifyRemote && s.events != nil {
		s.events.EmitEvent(subscriptions.Event{
			Type:         subscriptions.EventDataSetUploaded,
			Resource:     s.dataSets.URI(c, ds, set),
			ResourceType: "DataSet",
			Meta: map[string]interface{}{
				"dataSetName": name,
				"dataType":    result.DataType,
				"dataFormat":  result.DataFormat,
				"oldSize":     result.OldSize,
				"newSize":     result.NewSize,
				"clearBefore": req.ClearBefore,
			},
		})
	}
	return result, nil
}

// write stores the parsed triples under the content lock. The data set
// is checked again while the lock is held, since a delete may have run
// while the upload was parsed.
func (s *Service) write(ctx context.Context, req Request, triples []rdf.Triple) (*Result, error) {
	c, ds, set := req.Collection, req.DataSource, req.DataSet
	defer s.dataSets.LockContent(c, ds, set)()

	exists, err := s.dataSets.CheckExists(ctx, c, ds, set)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.NotFound("data set %s/%s/%s not found", c, ds, set)
	}

	content := s.dataSets.ContentGraph(c, ds, set)
	res := &Result{}
	if res.OldSize, err = s.store.Size(ctx, content); err != nil {
		return nil, apperrors.Internal(err, "sizing content graph")
	}
	switch {
	case req.ClearBefore:
		if err := s.store.ReplaceGraph(ctx, content, triples); err != nil {
			return nil, apperrors.Internal(err, "replacing content graph")
		}
	case len(triples) > 0:
		if err := s.store.Insert(ctx, content, triples); err != nil {
			return nil, apperrors.Internal(err, "writing content graph")
		}
	}
	if res.NewSize, err = s.store.Size(ctx, content); err != nil {
		return nil, apperrors.Internal(err, "sizing content graph")
	}
	return res, nil
}

func (s *Service) decode(r io.Reader, kind parsed, c, ds string) ([]rdf.Triple, error) {
	base := s.dataSets.ObjectBase(c, ds)
	var (
		g   *rdf.Graph
		err error
	)
	switch kind.dataType {
	case DataTypeIFC:
		g, err = ifc.Convert(r, base)
	default:
		g, err = rdf.Decode(r, kind.format, base)
	}
	if err != nil {
		var se *rdf.SyntaxError
		var te *tooLargeError
		switch {
		case errors.As(err, &te):
			return nil, apperrors.BadRequest("%s", te.Error())
		case errors.As(err, &se):
			return nil, apperrors.BadRequest("invalid %s data: %s", kind.dataType, se.Error()).WithCause(err)
		}
		return nil, apperrors.Internal(err, "reading %s upload", kind.dataType)
	}
	return g.Triples(), nil
}

// save copies the upload to <dir>/<dataType>/<name>.<format> and reopens
// the copy for parsing.
func (s *Service) save(r io.Reader, kind parsed, name string) (*os.File, error) {
	dir := filepath.Join(s.cfg.Dir, kind.dataType)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.Internal(err, "creating upload directory")
	}
	path := filepath.Join(dir, name+"."+kind.ext)
	out, err := os.Create(path)
	if err != nil {
		return nil, apperrors.Internal(err, "creating upload file")
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		var te *tooLargeError
		if errors.As(err, &te) {
			return nil, apperrors.BadRequest("%s", te.Error())
		}
		return nil, apperrors.Internal(err, "saving upload")
	}
	if err := out.Close(); err != nil {
		return nil, apperrors.Internal(err, "saving upload")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Internal(err, "reopening saved upload")
	}
	s.logger.Debug("upload saved", zap.String("path", path))
	return f, nil
}

// relabelBlankNodes scopes blank node labels to one upload so merges
// never join unrelated nodes.
func relabelBlankNodes(triples []rdf.Triple, scope string) []rdf.Triple {
	relabel := func(t rdf.Term) rdf.Term {
		if b, ok := t.(rdf.BlankNode); ok {
			return rdf.BlankNode{ID: scope + b.ID}
		}
		return t
	}
	out := make([]rdf.Triple, len(triples))
	for i, t := range triples {
		out[i] = rdf.Triple{S: relabel(t.S), P: t.P, O: relabel(t.O)}
	}
	return out
}

type tooLargeError struct{ limit int64 }

func (e *tooLargeError) Error() string {
	return fmt.Sprintf("upload exceeds the limit of %d bytes", e.limit)
}

// limitedReader fails instead of truncating when the limit is passed.
type limitedReader struct {
	r         io.Reader
	remaining int64
	limit     int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, &tooLargeError{limit: l.limit}
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, &tooLargeError{limit: l.limit}
	}
	return n, err
}

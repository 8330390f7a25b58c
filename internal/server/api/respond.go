package api

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/systemshift/drumbeat/internal/rdf"
	apperrors "github.com/systemshift/drumbeat/internal/server/errors"
	"github.com/systemshift/drumbeat/internal/server/media"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Kind      apperrors.Kind `json:"kind"`
	Message   string         `json:"message"`
	Supported []string       `json:"supported,omitempty"`
}

// negotiate fails the request with 415 when no accepted format can be
// written. Handlers that change state call it before doing so.
func (s *Server) negotiate(w http.ResponseWriter, r *http.Request) bool {
	if _, err := s.converter.Negotiate(media.ParseAccept(r.Header.Get("Accept"))); err != nil {
		s.writeError(w, r, err)
		return false
	}
	return true
}

// writeFragment serializes frag in the first acceptable format.
func (s *Server) writeFragment(w http.ResponseWriter, r *http.Request, status int, frag *rdf.Graph) {
	resp, err := s.converter.Convert(frag, media.ParseAccept(r.Header.Get("Accept")), "")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", resp.ContentType)
	w.Header().Set("Vary", "Accept")
	w.WriteHeader(status)
	_, _ = w.Write(resp.Body)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := apperrors.As(err)
	if e == nil {
		e = apperrors.Internal(err, "unexpected error")
	}
	status := apperrors.Status(e.Kind)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("kind", string(e.Kind)),
			zap.String("requestID", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}

	body := errorResponse{Kind: e.Kind, Message: e.Message}
	if supported, ok := e.Details["supported"].([]string); ok {
		body.Supported = supported
	}
	writeJSON(w, status, body)
}

// pathParam returns the decoded value of a route parameter.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

// formBool reads an optional boolean form value.
func formBool(r *http.Request, name string) (bool, error) {
	v := r.FormValue(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, apperrors.BadRequest("%s must be true or false, got %q", name, v)
	}
	return b, nil
}

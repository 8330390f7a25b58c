package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/systemshift/drumbeat/internal/server/errors"
	"github.com/systemshift/drumbeat/internal/server/subscriptions"
)

func (s *Server) requireSubscriptions(w http.ResponseWriter) bool {
	if s.subMgr == nil {
		http.Error(w, "subscription manager not initialized", http.StatusServiceUnavailable)
		return false
	}
	return true
}

// CreateSubscription handles POST /api/subscriptions
func (s *Server) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	if !s.requireSubscriptions(w) {
		return
	}

	var req subscriptions.CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apperrors.BadRequest("invalid JSON body: %v", err))
		return
	}

	sub, err := s.subMgr.Register(r.Context(), &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, subscriptions.SubscriptionResponse{Subscription: sub})
}

// ListSubscriptions handles GET /api/subscriptions
func (s *Server) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	if !s.requireSubscriptions(w) {
		return
	}

	subs := s.subMgr.List()
	writeJSON(w, http.StatusOK, subscriptions.ListSubscriptionsResponse{
		Subscriptions: subs,
		Count:         len(subs),
	})
}

// GetSubscription handles GET /api/subscriptions/{id}
func (s *Server) GetSubscription(w http.ResponseWriter, r *http.Request) {
	if !s.requireSubscriptions(w) {
		return
	}

	sub, err := s.subMgr.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptions.SubscriptionResponse{Subscription: sub})
}

// UpdateSubscription handles PATCH /api/subscriptions/{id}
func (s *Server) UpdateSubscription(w http.ResponseWriter, r *http.Request) {
	if !s.requireSubscriptions(w) {
		return
	}

	var req subscriptions.UpdateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apperrors.BadRequest("invalid JSON body: %v", err))
		return
	}

	sub, err := s.subMgr.Update(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptions.SubscriptionResponse{Subscription: sub})
}

// DeleteSubscription handles DELETE /api/subscriptions/{id}
func (s *Server) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	if !s.requireSubscriptions(w) {
		return
	}

	if err := s.subMgr.Unregister(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

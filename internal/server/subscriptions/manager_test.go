package subscriptions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/systemshift/drumbeat/internal/server/errors"
	"github.com/systemshift/drumbeat/internal/server/graph"
)

const (
	testBase  = "http://example.org/drumbeat/"
	testGraph = testBase + "metadata"
)

type webhook struct {
	server   *httptest.Server
	received chan Notification
	headers  chan http.Header
}

func newWebhook(t *testing.T, status int) *webhook {
	t.Helper()
	w := &webhook{received: make(chan Notification, 10), headers: make(chan http.Header, 10)}
	w.server = httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		var n Notification
		if err := json.NewDecoder(r.Body).Decode(&n); err == nil {
			w.received <- n
			w.headers <- r.Header.Clone()
		}
		rw.WriteHeader(status)
	}))
	t.Cleanup(w.server.Close)
	return w
}

func newManager(t *testing.T, store graph.Store) *Manager {
	t.Helper()
	m := NewManager(NewStoreRepository(store, testGraph, testBase), nil, nil)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(m.Stop)
	return m
}

func TestRegisterValidates(t *testing.T) {
	m := newManager(t, graph.NewMemory())

	tests := []struct {
		name string
		req  CreateSubscriptionRequest
	}{
		{"missing name", CreateSubscriptionRequest{Webhook: "http://example.org/hook"}},
		{"missing webhook", CreateSubscriptionRequest{Name: "x"}},
		{"relative webhook", CreateSubscriptionRequest{Name: "x", Webhook: "/hook"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Register(context.Background(), &tt.req)
			assert.True(t, apperrors.Is(err, apperrors.KindBadRequest), "got %v", err)
		})
	}
}

func TestLifecyclePersists(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemory()
	m := newManager(t, store)

	sub, err := m.Register(ctx, &CreateSubscriptionRequest{
		Name:    "uploads",
		Webhook: "http://example.org/hook",
		Pattern: SubscriptionPattern{EventTypes: []string{EventDataSetUploaded}},
	})
	require.NoError(t, err)
	assert.True(t, sub.Enabled)

	disabled := false
	name := "renamed"
	updated, err := m.Update(ctx, sub.ID, &UpdateSubscriptionRequest{Name: &name, Enabled: &disabled})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.False(t, updated.Enabled)

	// A second manager over the same store sees the stored state.
	other := newManager(t, store)
	loaded, err := other.Get(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", loaded.Name)
	assert.False(t, loaded.Enabled)
	assert.Equal(t, []string{EventDataSetUploaded}, loaded.Pattern.EventTypes)
	assert.WithinDuration(t, sub.Created, loaded.Created, time.Millisecond)

	require.NoError(t, m.Unregister(ctx, sub.ID))
	_, err = m.Get(sub.ID)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
	assert.True(t, apperrors.Is(m.Unregister(ctx, sub.ID), apperrors.KindNotFound))

	size, err := store.Size(ctx, testGraph)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestMatchingEventIsDelivered(t *testing.T) {
	hook := newWebhook(t, http.StatusNoContent)
	m := newManager(t, graph.NewMemory())

	sub, err := m.Register(context.Background(), &CreateSubscriptionRequest{
		Name:    "c1 uploads",
		Webhook: hook.server.URL,
		Pattern: SubscriptionPattern{
			EventTypes:     []string{EventDataSetUploaded},
			ResourcePrefix: testBase + "datasets/c1/",
		},
	})
	require.NoError(t, err)

	m.EmitEvent(Event{Type: EventDataSetCreated, Resource: testBase + "datasets/c1/ds1/set1"})
	m.EmitEvent(Event{Type: EventDataSetUploaded, Resource: testBase + "datasets/c2/ds1/set1"})
	m.EmitEvent(Event{
		Type:     EventDataSetUploaded,
		Resource: testBase + "datasets/c1/ds1/set1",
		Meta:     map[string]interface{}{"newSize": 12},
	})

	select {
	case n := <-hook.received:
		assert.Equal(t, sub.ID, n.SubscriptionID)
		assert.Equal(t, testBase+"datasets/c1/ds1/set1", n.Event.Resource)
		assert.NotEmpty(t, n.Event.ID)
		h := <-hook.headers
		assert.Equal(t, EventDataSetUploaded, h.Get("X-Drumbeat-Event"))
	case <-time.After(5 * time.Second):
		t.Fatal("notification not delivered")
	}

	m.Stop()
	assert.Empty(t, hook.received, "only the matching event is delivered")
	got, err := m.Get(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.FireCount)
	assert.NotNil(t, got.LastFired)
}

func TestFailedWebhookIsNotRetried(t *testing.T) {
	hook := newWebhook(t, http.StatusInternalServerError)
	m := newManager(t, graph.NewMemory())

	_, err := m.Register(context.Background(), &CreateSubscriptionRequest{Name: "all", Webhook: hook.server.URL})
	require.NoError(t, err)

	m.EmitEvent(Event{Type: EventCollectionCreated, Resource: testBase + "collections/c1"})
	m.Stop()
	assert.Len(t, hook.received, 1)
}

func TestEmitAfterStopIsDropped(t *testing.T) {
	m := newManager(t, graph.NewMemory())
	m.Stop()
	assert.NotPanics(t, func() { m.EmitEvent(Event{Type: EventCollectionCreated}) })
}

func TestMatcher(t *testing.T) {
	event := Event{
		Type:         EventDataSetUploaded,
		Resource:     testBase + "datasets/c1/ds1/set1",
		ResourceType: "DataSet",
		Meta:         map[string]interface{}{"dataType": "RDF", "newSize": 12},
	}
	tests := []struct {
		name    string
		pattern SubscriptionPattern
		want    bool
	}{
		{"empty pattern", SubscriptionPattern{}, true},
		{"event type", SubscriptionPattern{EventTypes: []string{"dataset.uploaded"}}, true},
		{"other event type", SubscriptionPattern{EventTypes: []string{EventDataSetDeleted}}, false},
		{"resource type folds case", SubscriptionPattern{ResourceTypes: []string{"dataset"}}, true},
		{"prefix", SubscriptionPattern{ResourcePrefix: testBase + "datasets/c2/"}, false},
		{"meta string", SubscriptionPattern{MetaMatch: map[string]interface{}{"dataType": "rdf"}}, true},
		{"meta number", SubscriptionPattern{MetaMatch: map[string]interface{}{"newSize": 12.0}}, true},
		{"meta missing", SubscriptionPattern{MetaMatch: map[string]interface{}{"oldSize": 0}}, false},
	}
	m := NewMatcher()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Match(event, tt.pattern))
		})
	}
}

// Package subscriptions fans entity and upload events out to webhook
// subscribers.
package subscriptions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/systemshift/drumbeat/internal/server/errors"
	"github.com/systemshift/drumbeat/internal/server/validation"
)

// EventEmitter is a function that receives events
type EventEmitter func(Event)

// Manager handles subscription lifecycle and event processing
type Manager struct {
	repo          Repository
	subscriptions map[string]*Subscription
	eventChan     chan Event
	notifier      *Notifier
	matcher       *Matcher
	logger        *zap.Logger
	timeout       time.Duration
	mu            sync.RWMutex
	sendMu        sync.RWMutex
	stopped       bool
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewManager creates a new subscription manager
func NewManager(repo Repository, notifier *Notifier, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NewNotifier(nil, logger)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		repo:          repo,
		subscriptions: make(map[string]*Subscription),
		eventChan:     make(chan Event, 1000), // Buffered to avoid blocking writers
		notifier:      notifier,
		matcher:       NewMatcher(),
		logger:        logger,
		timeout:       10 * time.Second,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Start loads stored subscriptions and begins processing events
func (m *Manager) Start(ctx context.Context) error {
	if err := m.loadSubscriptions(ctx); err != nil {
		m.logger.Warn("failed to load subscriptions", zap.Error(err))
	}

	m.wg.Add(1)
	go m.processEvents()

	m.logger.Info("subscription manager started", zap.Int("subscriptions", len(m.subscriptions)))
	return nil
}

// Stop drains queued events, waits for deliveries in flight and shuts
// down. Events emitted afterwards are dropped.
func (m *Manager) Stop() {
	m.sendMu.Lock()
	if m.stopped {
		m.sendMu.Unlock()
		return
	}
	m.stopped = true
	close(m.eventChan)
	m.sendMu.Unlock()

	m.wg.Wait()
	m.cancel()
	m.logger.Info("subscription manager stopped")
}

// EmitEvent queues an event without blocking
func (m *Manager) EmitEvent(event Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	m.sendMu.RLock()
	defer m.sendMu.RUnlock()
	if m.stopped {
		return
	}
	// Drop events if the channel is full
	select {
	case m.eventChan <- event:
	default:
		m.logger.Warn("event channel full, dropping event", zap.String("event", event.ID), zap.String("type", event.Type))
	}
}

// GetEmitter returns a function that can be used to emit events
func (m *Manager) GetEmitter() EventEmitter {
	return m.EmitEvent
}

// Register adds a new subscription
func (m *Manager) Register(ctx context.Context, req *CreateSubscriptionRequest) (*Subscription, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sub := &Subscription{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		Pattern:     req.Pattern,
		Webhook:     req.Webhook,
		Enabled:     true,
		Created:     now,
		Modified:    now,
	}

	if err := m.repo.CreateSubscription(ctx, sub); err != nil {
		return nil, apperrors.Internal(err, "failed to persist subscription")
	}

	m.mu.Lock()
	m.subscriptions[sub.ID] = sub
	m.mu.Unlock()

	m.logger.Info("registered subscription", zap.String("id", sub.ID), zap.String("name", sub.Name))
	return sub.clone(), nil
}

// Unregister removes a subscription
func (m *Manager) Unregister(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.subscriptions[id]; !exists {
		return apperrors.NotFound("subscription not found: %s", id)
	}

	if err := m.repo.DeleteSubscription(ctx, id); err != nil {
		return apperrors.Internal(err, "failed to delete subscription")
	}

	delete(m.subscriptions, id)

	m.logger.Info("unregistered subscription", zap.String("id", id))
	return nil
}

// Update modifies an existing subscription
func (m *Manager) Update(ctx context.Context, id string, req *UpdateSubscriptionRequest) (*Subscription, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.subscriptions[id]
	if !exists {
		return nil, apperrors.NotFound("subscription not found: %s", id)
	}

	sub := current.clone()
	if req.Name != nil {
		sub.Name = *req.Name
	}
	if req.Description != nil {
		sub.Description = *req.Description
	}
	if req.Pattern != nil {
		sub.Pattern = *req.Pattern
	}
	if req.Webhook != nil {
		sub.Webhook = *req.Webhook
	}
	if req.Enabled != nil {
		sub.Enabled = *req.Enabled
	}
	sub.Modified = time.Now().UTC()

	if err := m.repo.UpdateSubscription(ctx, sub); err != nil {
		return nil, apperrors.Internal(err, "failed to update subscription")
	}
	m.subscriptions[id] = sub

	return sub.clone(), nil
}

// Get returns a subscription by ID
func (m *Manager) Get(id string) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sub, exists := m.subscriptions[id]
	if !exists {
		return nil, apperrors.NotFound("subscription not found: %s", id)
	}
	return sub.clone(), nil
}

// List returns all subscriptions ordered by creation time
func (m *Manager) List() []*Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		result = append(result, sub.clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Created.Equal(result[j].Created) {
			return result[i].Created.Before(result[j].Created)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// processEvents is the main event processing loop
func (m *Manager) processEvents() {
	defer m.wg.Done()

	for event := range m.eventChan {
		m.handleEvent(event)
	}
}

// handleEvent processes a single event against all subscriptions
func (m *Manager) handleEvent(event Event) {
	m.mu.RLock()
	subs := make([]*Subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		if sub.Enabled {
			subs = append(subs, sub.clone())
		}
	}
	m.mu.RUnlock()

	for _, sub := range subs {
		m.wg.Add(1)
		go m.evaluateSubscription(event, sub)
	}
}

// evaluateSubscription fires a notification when the event matches
func (m *Manager) evaluateSubscription(event Event, sub *Subscription) {
	defer m.wg.Done()

	if !m.matcher.Match(event, sub.Pattern) {
		return
	}

	ctx, cancel := context.WithTimeout(m.ctx, m.timeout)
	defer cancel()

	now := time.Now().UTC()
	notification := Notification{
		SubscriptionID:   sub.ID,
		SubscriptionName: sub.Name,
		Event:            event,
		MatchedAt:        now,
	}

	m.mu.Lock()
	if s, exists := m.subscriptions[sub.ID]; exists {
		s.LastFired = &now
		s.FireCount++
	}
	m.mu.Unlock()

	if err := m.notifier.SendWebhook(ctx, sub.Webhook, notification); err != nil {
		m.logger.Warn("subscription notification failed",
			zap.String("subscription", sub.ID),
			zap.String("event", event.Type),
			zap.Error(err))
		return
	}
	m.logger.Debug("subscription fired", zap.String("subscription", sub.ID), zap.String("event", event.Type))
}

// loadSubscriptions loads all subscriptions from storage into memory
func (m *Manager) loadSubscriptions(ctx context.Context) error {
	subs, err := m.repo.LoadSubscriptions(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sub := range subs {
		m.subscriptions[sub.ID] = sub
	}

	return nil
}

func (s *Subscription) clone() *Subscription {
	c := *s
	if s.LastFired != nil {
		t := *s.LastFired
		c.LastFired = &t
	}
	return &c
}

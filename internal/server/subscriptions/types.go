package subscriptions

import (
	"time"
)

// Event represents a change to an entity or a data set's content
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"` // collection.created, dataset.uploaded, ...
	Timestamp time.Time `json:"timestamp"`

	// Resource is the URI of the entity the event is about.
	Resource     string `json:"resource"`
	ResourceType string `json:"resource_type,omitempty"` // Collection, DataSource, DataSet

	// Context
	Meta map[string]interface{} `json:"meta,omitempty"`
}

// Event type constants
const (
	EventCollectionCreated = "collection.created"
	EventCollectionDeleted = "collection.deleted"
	EventDataSourceCreated = "datasource.created"
	EventDataSourceDeleted = "datasource.deleted"
	EventDataSetCreated    = "dataset.created"
	EventDataSetDeleted    = "dataset.deleted"
	EventDataSetUploaded   = "dataset.uploaded"
)

// SubscriptionPattern defines what events a subscription matches
type SubscriptionPattern struct {
	EventTypes     []string               `json:"event_types,omitempty"`     // Match specific event types
	ResourceTypes  []string               `json:"resource_types,omitempty"`  // Match entity classes
	ResourcePrefix string                 `json:"resource_prefix,omitempty"` // Match resources under a URI
	MetaMatch      map[string]interface{} `json:"meta_match,omitempty"`      // Match metadata fields
}

// Subscription is a standing request to be told about matching events
type Subscription struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// What to match
	Pattern SubscriptionPattern `json:"pattern"`

	// URL to POST notifications
	Webhook string `json:"webhook"`

	// State
	Enabled   bool       `json:"enabled"`
	Created   time.Time  `json:"created"`
	Modified  time.Time  `json:"modified"`
	LastFired *time.Time `json:"last_fired,omitempty"`
	FireCount int        `json:"fire_count"`
}

// Notification is sent when a subscription pattern matches
type Notification struct {
	SubscriptionID   string    `json:"subscription_id"`
	SubscriptionName string    `json:"subscription_name"`
	Event            Event     `json:"event"`
	MatchedAt        time.Time `json:"matched_at"`
}

// CreateSubscriptionRequest is the API request to create a subscription
type CreateSubscriptionRequest struct {
	Name        string              `json:"name" validate:"required,max=200"`
	Description string              `json:"description,omitempty" validate:"max=2000"`
	Pattern     SubscriptionPattern `json:"pattern"`
	Webhook     string              `json:"webhook" validate:"required,url"`
}

// UpdateSubscriptionRequest is the API request to update a subscription
type UpdateSubscriptionRequest struct {
	Name        *string              `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string              `json:"description,omitempty" validate:"omitempty,max=2000"`
	Pattern     *SubscriptionPattern `json:"pattern,omitempty"`
	Webhook     *string              `json:"webhook,omitempty" validate:"omitempty,url"`
	Enabled     *bool                `json:"enabled,omitempty"`
}

// SubscriptionResponse is the API response for subscription operations
type SubscriptionResponse struct {
	Subscription *Subscription `json:"subscription,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// ListSubscriptionsResponse is the API response for listing subscriptions
type ListSubscriptionsResponse struct {
	Subscriptions []*Subscription `json:"subscriptions"`
	Count         int             `json:"count"`
}

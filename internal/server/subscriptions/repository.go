package subscriptions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/systemshift/drumbeat/internal/rdf"
	"github.com/systemshift/drumbeat/internal/server/graph"
)

// Subscription properties in the metadata graph.
var (
	propMeta     = rdf.NewIRI(rdf.LBDHONamespace + "subscriptionMeta")
	propCreated  = rdf.NewIRI(rdf.LBDHONamespace + "created")
	propModified = rdf.NewIRI(rdf.LBDHONamespace + "modified")
)

var (
	loadQuery = graph.Template{
		Name: "subscription.load",
		Project: []graph.Projection{
			{As: "uri", Slot: graph.Var("uri")},
			{As: "meta", Slot: graph.Var("meta")},
			{As: "created", Slot: graph.Var("created")},
			{As: "modified", Slot: graph.Var("modified")},
		},
		Where: []graph.Pattern{
			{S: graph.Var("uri"), P: graph.Const(rdf.RDFType), O: graph.Const(rdf.LBDHOSubscription)},
			{S: graph.Var("uri"), P: graph.Const(propMeta), O: graph.Var("meta")},
			{S: graph.Var("uri"), P: graph.Const(propCreated), O: graph.Var("created")},
			{S: graph.Var("uri"), P: graph.Const(propModified), O: graph.Var("modified")},
		},
		OrderBy: []string{"uri"},
	}

	deleteQuery = graph.Template{
		Name: "subscription.delete",
		Where: []graph.Pattern{
			{S: graph.Param("uri"), P: graph.Var("p"), O: graph.Var("o")},
		},
	}
)

// Repository persists subscriptions
type Repository interface {
	CreateSubscription(ctx context.Context, sub *Subscription) error
	UpdateSubscription(ctx context.Context, sub *Subscription) error
	DeleteSubscription(ctx context.Context, id string) error
	LoadSubscriptions(ctx context.Context) ([]*Subscription, error)
}

// StoreRepository keeps subscriptions as lbdho:Subscription resources in
// the metadata graph.
type StoreRepository struct {
	store  graph.Store
	graph  string
	prefix string
	mu     sync.Mutex
}

// NewStoreRepository stores subscriptions in graph g with URIs
// base + "subscriptions/" + id.
func NewStoreRepository(store graph.Store, g, base string) *StoreRepository {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return &StoreRepository{store: store, graph: g, prefix: base + "subscriptions/"}
}

func (r *StoreRepository) uri(id string) rdf.IRI {
	return rdf.NewIRI(r.prefix + id)
}

func (r *StoreRepository) triples(sub *Subscription) ([]rdf.Triple, error) {
	meta, err := json.Marshal(subscriptionToMeta(sub))
	if err != nil {
		return nil, err
	}
	s := r.uri(sub.ID)
	return []rdf.Triple{
		rdf.NewTriple(s, rdf.RDFType, rdf.LBDHOSubscription),
		rdf.NewTriple(s, rdf.LBDHOName, rdf.NewLiteral(sub.Name)),
		rdf.NewTriple(s, propMeta, rdf.NewLiteral(string(meta))),
		rdf.NewTriple(s, propCreated, rdf.NewTypedLiteral(sub.Created.UTC().Format(time.RFC3339Nano), rdf.XSDDateTime)),
		rdf.NewTriple(s, propModified, rdf.NewTypedLiteral(sub.Modified.UTC().Format(time.RFC3339Nano), rdf.XSDDateTime)),
	}, nil
}

func (r *StoreRepository) CreateSubscription(ctx context.Context, sub *Subscription) error {
	triples, err := r.triples(sub)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Insert(ctx, r.graph, triples)
}

// UpdateSubscription replaces every stored triple of the subscription.
func (r *StoreRepository) UpdateSubscription(ctx context.Context, sub *Subscription) error {
	triples, err := r.triples(sub)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.Delete(ctx, r.graph, deleteQuery.MustBind(graph.Params{"uri": r.uri(sub.ID)})); err != nil {
		return err
	}
	return r.store.Insert(ctx, r.graph, triples)
}

func (r *StoreRepository) DeleteSubscription(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Delete(ctx, r.graph, deleteQuery.MustBind(graph.Params{"uri": r.uri(id)}))
}

func (r *StoreRepository) LoadSubscriptions(ctx context.Context) ([]*Subscription, error) {
	res, err := r.store.Select(ctx, r.graph, loadQuery.MustBind(nil))
	if err != nil {
		return nil, err
	}
	subs := make([]*Subscription, 0, res.Len())
	for _, row := range res.Rows {
		id := strings.TrimPrefix(row["uri"].String(), r.prefix)
		var meta map[string]interface{}
		if err := json.Unmarshal([]byte(row["meta"].String()), &meta); err != nil {
			return nil, fmt.Errorf("subscription %s: decoding stored state: %w", id, err)
		}
		created, _ := time.Parse(time.RFC3339Nano, row["created"].String())
		modified, _ := time.Parse(time.RFC3339Nano, row["modified"].String())
		sub, err := metaToSubscription(id, meta, created, modified)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// subscriptionToMeta converts a subscription to a map for storage
func subscriptionToMeta(sub *Subscription) map[string]interface{} {
	patternJSON, _ := json.Marshal(sub.Pattern)
	meta := map[string]interface{}{
		"name":        sub.Name,
		"description": sub.Description,
		"pattern":     string(patternJSON),
		"webhook":     sub.Webhook,
		"enabled":     sub.Enabled,
		"fire_count":  sub.FireCount,
	}
	if sub.LastFired != nil {
		meta["last_fired"] = sub.LastFired.Format(time.RFC3339)
	}
	return meta
}

// metaToSubscription converts storage metadata back to a subscription
func metaToSubscription(id string, meta map[string]interface{}, created, modified time.Time) (*Subscription, error) {
	sub := &Subscription{
		ID:       id,
		Created:  created,
		Modified: modified,
	}

	if v, ok := meta["name"].(string); ok {
		sub.Name = v
	}
	if v, ok := meta["description"].(string); ok {
		sub.Description = v
	}
	if v, ok := meta["webhook"].(string); ok {
		sub.Webhook = v
	}
	if v, ok := meta["enabled"].(bool); ok {
		sub.Enabled = v
	}
	if v, ok := meta["fire_count"].(float64); ok {
		sub.FireCount = int(v)
	}
	if v, ok := meta["last_fired"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			sub.LastFired = &t
		}
	}
	if v, ok := meta["pattern"].(string); ok {
		var pattern SubscriptionPattern
		if err := json.Unmarshal([]byte(v), &pattern); err != nil {
			return nil, fmt.Errorf("subscription %s: decoding pattern: %w", id, err)
		}
		sub.Pattern = pattern
	}

	return sub, nil
}

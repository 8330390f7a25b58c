// Package managers translates entity operations into parameterized
// queries against the metadata graph.
package managers

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/systemshift/drumbeat/internal/rdf"
	apperrors "github.com/systemshift/drumbeat/internal/server/errors"
	"github.com/systemshift/drumbeat/internal/server/graph"
)

// Attributes maps lbdho property local names to literal values.
type Attributes map[string]string

// Named returns the attributes of an entity with only a name.
func Named(name string) Attributes {
	if name == "" {
		return Attributes{}
	}
	return Attributes{"name": name}
}

func (a Attributes) triples(subject rdf.IRI) []rdf.Triple {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]rdf.Triple, 0, len(keys))
	for _, k := range keys {
		out = append(out, rdf.NewTriple(subject, rdf.NewIRI(rdf.LBDHONamespace+k), rdf.NewLiteral(a[k])))
	}
	return out
}

// level describes one entity type of the collection hierarchy.
type level struct {
	label string
	class rdf.IRI

	// uri names the entity from its full id path.
	uri func(n Naming, ids []string) string

	// Edges to the parent level; zero at the top.
	parent   *level
	upEdge   rdf.IRI // child -> parent
	downEdge rdf.IRI // parent -> child

	// Class of dependents counted by hasChildren; zero for leaves.
	child *level
}

var (
	collectionLevel = &level{
		label: "collection",
		class: rdf.LBDHOCollection,
		uri:   func(n Naming, ids []string) string { return n.CollectionURI(ids[0]) },
	}
	dataSourceLevel = &level{
		label:    "data source",
		class:    rdf.LBDHODataSource,
		uri:      func(n Naming, ids []string) string { return n.DataSourceURI(ids[0], ids[1]) },
		parent:   collectionLevel,
		upEdge:   rdf.LBDHOInCollection,
		downEdge: rdf.LBDHOHasDataSource,
	}
	dataSetLevel = &level{
		label:    "data set",
		class:    rdf.LBDHODataSet,
		uri:      func(n Naming, ids []string) string { return n.DataSetURI(ids[0], ids[1], ids[2]) },
		parent:   dataSourceLevel,
		upEdge:   rdf.LBDHOInDataSource,
		downEdge: rdf.LBDHOHasDataSet,
	}
)

func init() {
	collectionLevel.child = dataSourceLevel
	dataSourceLevel.child = dataSetLevel
}

// Base holds what every manager shares: the store, the naming scheme,
// the metadata graph name and the per-entity locks.
type Base struct {
	Store    graph.Store
	Naming   Naming
	Metadata string
	Locks    *graph.KeyedMutex
	Logger   *zap.Logger
}

// NewBase returns a Base with its own lock table. An empty metadata
// graph name selects the naming default.
func NewBase(store graph.Store, naming Naming, metadata string, logger *zap.Logger) *Base {
	if metadata == "" {
		metadata = naming.MetadataGraph()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Base{
		Store:    store,
		Naming:   naming,
		Metadata: metadata,
		Locks:    graph.NewKeyedMutex(),
		Logger:   logger,
	}
}

// fragment runs q on g and converts the rows to a graph carrying the
// standard prefixes.
func (b *Base) fragment(ctx context.Context, g string, q graph.Query) (*rdf.Graph, error) {
	res, err := b.Store.Select(ctx, g, q)
	if err != nil {
		return nil, apperrors.Internal(err, "query %s failed", q.Name)
	}
	frag, err := graph.ResultToGraph(res)
	if err != nil {
		return nil, apperrors.Internal(err, "query %s returned malformed rows", q.Name)
	}
	for label, ns := range rdf.StandardPrefixes() {
		frag.SetPrefix(label, ns)
	}
	return frag, nil
}

func (b *Base) exists(ctx context.Context, uri string, class rdf.IRI) (bool, error) {
	q := existsQuery.MustBind(graph.Params{"uri": rdf.NewIRI(uri), "class": class})
	ok, err := graph.Exists(ctx, b.Store, b.Metadata, q)
	if err != nil {
		return false, apperrors.Internal(err, "existence check failed")
	}
	return ok, nil
}

// entities implements the shared operations for one level.
type entities struct {
	*Base
	lv *level
}

func (e entities) uri(ids []string) string { return e.lv.uri(e.Naming, ids) }

func (e entities) parentURI(ids []string) string {
	return e.lv.parent.uri(e.Naming, ids[:len(ids)-1])
}

func (e entities) checkParent(ctx context.Context, ids []string) error {
	if e.lv.parent == nil {
		return nil
	}
	ok, err := e.exists(ctx, e.parentURI(ids), e.lv.parent.class)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NotFound("%s not found: %s", e.lv.parent.label, joinIDs(ids[:len(ids)-1]))
	}
	return nil
}

// getAll lists the entities under parentIDs.
func (e entities) getAll(ctx context.Context, parentIDs []string) (*rdf.Graph, error) {
	if e.lv.parent == nil {
		return e.fragment(ctx, e.Metadata, listQuery.MustBind(graph.Params{"class": e.lv.class}))
	}
	ids := append(append([]string(nil), parentIDs...), "")
	if err := e.checkParent(ctx, ids); err != nil {
		return nil, err
	}
	q := listChildrenQuery.MustBind(graph.Params{
		"parent": rdf.NewIRI(e.parentURI(ids)),
		"edge":   e.lv.downEdge,
		"class":  e.lv.class,
	})
	return e.fragment(ctx, e.Metadata, q)
}

func (e entities) getByID(ctx context.Context, ids []string) (*rdf.Graph, error) {
	frag, err := e.fragment(ctx, e.Metadata, describeQuery.MustBind(graph.Params{"uri": rdf.NewIRI(e.uri(ids))}))
	if err != nil {
		return nil, err
	}
	if frag.Len() == 0 {
		return nil, apperrors.NotFound("%s not found: %s", e.lv.label, joinIDs(ids))
	}
	return frag, nil
}

func (e entities) checkExists(ctx context.Context, ids []string) (bool, error) {
	return e.exists(ctx, e.uri(ids), e.lv.class)
}

func (e entities) checkHasChildren(ctx context.Context, ids []string) (bool, error) {
	if e.lv.child == nil {
		return false, nil
	}
	q := hasChildrenQuery.MustBind(graph.Params{
		"uri":   rdf.NewIRI(e.uri(ids)),
		"edge":  e.lv.child.downEdge,
		"class": e.lv.child.class,
	})
	ok, err := graph.Exists(ctx, e.Store, e.Metadata, q)
	if err != nil {
		return false, apperrors.Internal(err, "child check failed")
	}
	return ok, nil
}

// create inserts the entity unless it already exists. The parent lock is
// taken before the entity lock so a concurrent delete of the parent
// cannot interleave. When after fails the inserted triples are removed
// again.
func (e entities) create(ctx context.Context, ids []string, attrs Attributes, after func(context.Context) error) (*rdf.Graph, error) {
	uri := e.uri(ids)
	if e.lv.parent != nil {
		defer e.Locks.Lock(e.parentURI(ids))()
	}
	defer e.Locks.Lock(uri)()

	if err := e.checkParent(ctx, ids); err != nil {
		return nil, err
	}

	subject := rdf.NewIRI(uri)
	triples := []rdf.Triple{rdf.NewTriple(subject, rdf.RDFType, e.lv.class)}
	triples = append(triples, attrs.triples(subject)...)
	if e.lv.parent != nil {
		parent := rdf.NewIRI(e.parentURI(ids))
		triples = append(triples,
			rdf.NewTriple(subject, e.lv.upEdge, parent),
			rdf.NewTriple(parent, e.lv.downEdge, subject),
		)
	}

	guard := existsQuery.MustBind(graph.Params{"uri": subject, "class": e.lv.class})
	inserted, err := e.Store.InsertUnless(ctx, e.Metadata, guard, triples)
	if err != nil {
		return nil, apperrors.Internal(err, "creating %s %s", e.lv.label, joinIDs(ids))
	}
	if !inserted {
		return nil, apperrors.AlreadyExists("%s already exists: %s", e.lv.label, joinIDs(ids))
	}
	if after != nil {
		if err := after(ctx); err != nil {
			if rerr := e.unregister(ctx, ids); rerr != nil {
				e.Logger.Error("rolling back entity", zap.String("uri", uri), zap.Error(rerr))
			}
			return nil, err
		}
	}
	e.Logger.Info("entity created", zap.String("kind", e.lv.label), zap.String("uri", uri))
	return e.getByID(ctx, ids)
}

// delete unregisters the entity once it has no dependents.
func (e entities) delete(ctx context.Context, ids []string, after func(context.Context) error) error {
	uri := e.uri(ids)
	defer e.Locks.Lock(uri)()

	ok, err := e.checkExists(ctx, ids)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NotFound("%s not found: %s", e.lv.label, joinIDs(ids))
	}
	hasChildren, err := e.checkHasChildren(ctx, ids)
	if err != nil {
		return err
	}
	if hasChildren {
		return apperrors.HasChildren("%s %s has dependent %ss", e.lv.label, joinIDs(ids), e.lv.child.label)
	}

	if err := e.unregister(ctx, ids); err != nil {
		return err
	}
	if after != nil {
		if err := after(ctx); err != nil {
			return err
		}
	}
	e.Logger.Info("entity deleted", zap.String("kind", e.lv.label), zap.String("uri", uri))
	return nil
}

// unregister removes the entity's own triples and the parent's edge to it.
func (e entities) unregister(ctx context.Context, ids []string) error {
	subject := rdf.NewIRI(e.uri(ids))
	if err := e.Store.Delete(ctx, e.Metadata, deleteSubjectQuery.MustBind(graph.Params{"uri": subject})); err != nil {
		return apperrors.Internal(err, "deleting %s %s", e.lv.label, joinIDs(ids))
	}
	if e.lv.parent != nil {
		q := deleteEdgeQuery.MustBind(graph.Params{
			"parent": rdf.NewIRI(e.parentURI(ids)),
			"edge":   e.lv.downEdge,
			"uri":    subject,
		})
		if err := e.Store.Delete(ctx, e.Metadata, q); err != nil {
			return apperrors.Internal(err, "unlinking %s %s", e.lv.label, joinIDs(ids))
		}
	}
	return nil
}

func joinIDs(ids []string) string {
	return strings.Join(ids, "/")
}

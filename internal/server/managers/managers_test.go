package managers

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/drumbeat/internal/rdf"
	apperrors "github.com/systemshift/drumbeat/internal/server/errors"
	"github.com/systemshift/drumbeat/internal/server/graph"
)

const testBase = "http://example.org/drumbeat/"

type fixture struct {
	store       *graph.MemoryStore
	base        *Base
	collections *CollectionManager
	dataSources *DataSourceManager
	dataSets    *DataSetManager
	objects     *DataSetObjectManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := graph.NewMemory()
	b := NewBase(store, NewNaming(testBase), "", nil)
	sets := NewDataSetManager(b)
	return &fixture{
		store:       store,
		base:        b,
		collections: NewCollectionManager(b),
		dataSources: NewDataSourceManager(b),
		dataSets:    sets,
		objects:     NewDataSetObjectManager(b, sets),
	}
}

func TestNaming(t *testing.T) {
	n := NewNaming("http://example.org/drumbeat")
	assert.Equal(t, "http://example.org/drumbeat/collections/c1", n.CollectionURI("c1"))
	assert.Equal(t, "http://example.org/drumbeat/datasources/c1/ds1", n.DataSourceURI("c1", "ds1"))
	assert.Equal(t, "http://example.org/drumbeat/datasets/c1/ds1/s1", n.DataSetURI("c1", "ds1", "s1"))
	assert.Equal(t, "http://example.org/drumbeat/objects/c1/ds1/o%201", n.ObjectURI("c1", "ds1", "o 1"))
	assert.Equal(t, "c1_ds1_s1", n.DataSetName("c1", "ds1", "s1"))
	assert.Equal(t, "http://example.org/drumbeat/metadata", n.MetadataGraph())
}

func TestCreateThenGetByID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.collections.Create(ctx, "c1", Named("My Collection"))
	require.NoError(t, err)

	got, err := f.collections.GetByID(ctx, "c1")
	require.NoError(t, err)

	uri := rdf.NewIRI(testBase + "collections/c1")
	want := []rdf.Triple{
		rdf.NewTriple(uri, rdf.LBDHOName, rdf.NewLiteral("My Collection")),
		rdf.NewTriple(uri, rdf.RDFType, rdf.LBDHOCollection),
	}
	assert.ElementsMatch(t, want, got.Triples())
	assert.Equal(t, got.Triples(), created.Triples())

	ok, err := f.collections.CheckExists(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCreateDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.collections.Create(ctx, "c1", nil)
	require.NoError(t, err)
	_, err = f.collections.Create(ctx, "c1", Named("again"))
	assert.Equal(t, apperrors.KindAlreadyExists, apperrors.KindOf(err))
}

func TestConcurrentCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]error, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.collections.Create(ctx, "c1", Named("racer"))
		}(i)
	}
	wg.Wait()

	created, conflicts := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			created++
		case apperrors.Is(err, apperrors.KindAlreadyExists):
			conflicts++
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 9, conflicts)
}

func TestDeleteRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.collections.Delete(ctx, "missing")
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	_, err = f.collections.Create(ctx, "c1", nil)
	require.NoError(t, err)
	_, err = f.dataSources.Create(ctx, "c1", "ds1", Named("Source"))
	require.NoError(t, err)

	hasChildren, err := f.collections.CheckHasChildren(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, hasChildren)

	err = f.collections.Delete(ctx, "c1")
	assert.Equal(t, apperrors.KindHasChildren, apperrors.KindOf(err))

	require.NoError(t, f.dataSources.Delete(ctx, "c1", "ds1"))
	ok, err := f.dataSources.CheckExists(ctx, "c1", "ds1")
	require.NoError(t, err)
	assert.False(t, ok)

	// The containment edge went with the data source.
	got, err := f.collections.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, got.Match(nil, rdf.LBDHOHasDataSource))

	require.NoError(t, f.collections.Delete(ctx, "c1"))
	_, err = f.collections.GetByID(ctx, "c1")
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestCreateUnderMissingParent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.dataSources.Create(ctx, "nope", "ds1", nil)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	_, err = f.dataSets.Create(ctx, "nope", "ds1", "s1", nil)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestGetAllOrdering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	empty, err := f.collections.GetAll(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.Len())

	for _, id := range []string{"c3", "c1", "c2"} {
		_, err := f.collections.Create(ctx, id, Named(id))
		require.NoError(t, err)
	}
	all, err := f.collections.GetAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, all.Len())
	for i, id := range []string{"c1", "c2", "c3"} {
		assert.Equal(t, rdf.NewIRI(testBase+"collections/"+id), all.Triples()[i].S)
		assert.Equal(t, rdf.LBDHOCollection, all.Triples()[i].O)
	}

	_, err = f.dataSources.GetAll(ctx, "missing")
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	none, err := f.dataSources.GetAll(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, none.Len())

	_, err = f.dataSources.Create(ctx, "c1", "b", nil)
	require.NoError(t, err)
	_, err = f.dataSources.Create(ctx, "c1", "a", nil)
	require.NoError(t, err)
	_, err = f.dataSources.Create(ctx, "c2", "z", nil)
	require.NoError(t, err)

	sources, err := f.dataSources.GetAll(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, 2, sources.Len())
	assert.Equal(t, rdf.NewIRI(testBase+"datasources/c1/a"), sources.Triples()[0].S)
	assert.Equal(t, rdf.NewIRI(testBase+"datasources/c1/b"), sources.Triples()[1].S)

	desc, err := f.dataSources.GetByID(ctx, "c1", "a")
	require.NoError(t, err)
	triples := desc.Triples()
	for i := 1; i < len(triples); i++ {
		assert.Negative(t, rdf.CompareTriples(triples[i-1], triples[i]))
	}
}

func TestDataSetContentGraphLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.collections.Create(ctx, "c1", nil)
	require.NoError(t, err)
	_, err = f.dataSources.Create(ctx, "c1", "ds1", nil)
	require.NoError(t, err)
	_, err = f.dataSets.Create(ctx, "c1", "ds1", "s1", Named("Set"))
	require.NoError(t, err)

	content := f.dataSets.ContentGraph("c1", "ds1", "s1")
	require.NoError(t, f.store.Insert(ctx, content, []rdf.Triple{
		rdf.NewTriple(rdf.NewIRI(testBase+"objects/c1/ds1/o1"), rdf.RDFType, rdf.NewIRI(rdf.IFCNamespace+"IFCWALL")),
	}))

	err = f.dataSources.Delete(ctx, "c1", "ds1")
	assert.Equal(t, apperrors.KindHasChildren, apperrors.KindOf(err))

	hasChildren, err := f.dataSets.CheckHasChildren(ctx, "c1", "ds1", "s1")
	require.NoError(t, err)
	assert.False(t, hasChildren)

	require.NoError(t, f.dataSets.Delete(ctx, "c1", "ds1", "s1"))
	n, err := f.store.Size(ctx, content)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, f.dataSources.Delete(ctx, "c1", "ds1"))
}

// failingGraphs fails every CreateGraph call.
type failingGraphs struct {
	graph.Store
}

func (failingGraphs) CreateGraph(context.Context, string) error {
	return errors.New("disk full")
}

func TestDataSetCreateRollsBackWhenContentGraphFails(t *testing.T) {
	store := graph.NewMemory()
	b := NewBase(failingGraphs{Store: store}, NewNaming(testBase), "", nil)
	collections, sources, sets := NewCollectionManager(b), NewDataSourceManager(b), NewDataSetManager(b)
	ctx := context.Background()

	_, err := collections.Create(ctx, "c1", nil)
	require.NoError(t, err)
	_, err = sources.Create(ctx, "c1", "ds1", nil)
	require.NoError(t, err)
	before, err := store.Size(ctx, b.Metadata)
	require.NoError(t, err)

	_, err = sets.Create(ctx, "c1", "ds1", "s1", Named("Set"))
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInternal, apperrors.KindOf(err))

	ok, err := sets.CheckExists(ctx, "c1", "ds1", "s1")
	require.NoError(t, err)
	assert.False(t, ok)
	hasChildren, err := sources.CheckHasChildren(ctx, "c1", "ds1")
	require.NoError(t, err)
	assert.False(t, hasChildren)
	after, err := store.Size(ctx, b.Metadata)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// The rolled back id is free again once the store recovers.
	sets = NewDataSetManager(&Base{Store: store, Naming: b.Naming, Metadata: b.Metadata, Locks: b.Locks, Logger: b.Logger})
	_, err = sets.Create(ctx, "c1", "ds1", "s1", Named("Set"))
	require.NoError(t, err)
}

func seedObjects(t *testing.T, f *fixture) (rdf.IRI, rdf.IRI) {
	t.Helper()
	ctx := context.Background()
	_, err := f.collections.Create(ctx, "c1", nil)
	require.NoError(t, err)
	_, err = f.dataSources.Create(ctx, "c1", "ds1", nil)
	require.NoError(t, err)
	_, err = f.dataSets.Create(ctx, "c1", "ds1", "s1", nil)
	require.NoError(t, err)

	wall := rdf.NewIRI(f.objects.URI("c1", "ds1", "wall"))
	door := rdf.NewIRI(f.objects.URI("c1", "ds1", "door"))
	ifcWall := rdf.NewIRI(rdf.IFCNamespace + "IFCWALL")
	ifcDoor := rdf.NewIRI(rdf.IFCNamespace + "IFCDOOR")
	name := rdf.NewIRI(rdf.IFCNamespace + "name")
	hosts := rdf.NewIRI(rdf.IFCNamespace + "hosts")
	placement := rdf.NewIRI(rdf.IFCNamespace + "placement")
	b1, b2 := rdf.BlankNode{ID: "p1"}, rdf.BlankNode{ID: "p2"}
	next := rdf.NewIRI(rdf.IFCNamespace + "next")

	require.NoError(t, f.store.Insert(ctx, f.dataSets.ContentGraph("c1", "ds1", "s1"), []rdf.Triple{
		rdf.NewTriple(wall, rdf.RDFType, ifcWall),
		rdf.NewTriple(wall, name, rdf.NewLiteral("Wall 1")),
		rdf.NewTriple(wall, hosts, door),
		rdf.NewTriple(wall, placement, b1),
		rdf.NewTriple(b1, next, b2),
		rdf.NewTriple(b2, next, b1),
		rdf.NewTriple(door, rdf.RDFType, ifcDoor),
	}))
	return wall, door
}

func TestObjects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wall, door := seedObjects(t, f)

	all, err := f.objects.GetAll(ctx, "c1", "ds1", "s1")
	require.NoError(t, err)
	require.Equal(t, 2, all.Len())
	assert.Equal(t, door, all.Triples()[0].S)

	_, err = f.objects.GetAll(ctx, "c1", "ds1", "missing")
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	full, err := f.objects.GetByID(ctx, "c1", "ds1", "s1", "wall", ObjectOptions{})
	require.NoError(t, err)
	assert.Equal(t, 4, full.Len())

	typesOnly, err := f.objects.GetByID(ctx, "c1", "ds1", "s1", "wall", ObjectOptions{ExcludeProperties: true})
	require.NoError(t, err)
	require.Equal(t, 1, typesOnly.Len())
	assert.Equal(t, rdf.RDFType, typesOnly.Triples()[0].P)

	props, err := ParseIRIList("ifc:name, <"+rdf.RDFNamespace+"type>", rdf.StandardPrefixes())
	require.NoError(t, err)
	filtered, err := f.objects.GetByID(ctx, "c1", "ds1", "s1", "wall", ObjectOptions{FilterProperties: props})
	require.NoError(t, err)
	assert.Equal(t, 2, filtered.Len())

	byType, err := f.objects.GetByID(ctx, "c1", "ds1", "s1", "wall", ObjectOptions{
		FilterObjectTypes: []rdf.IRI{rdf.NewIRI(rdf.IFCNamespace + "IFCDOOR")},
	})
	require.NoError(t, err)
	require.Equal(t, 1, byType.Len())
	assert.Equal(t, door, byType.Triples()[0].O)

	expanded, err := f.objects.GetByID(ctx, "c1", "ds1", "s1", "wall", ObjectOptions{ExpandBlankObjects: true})
	require.NoError(t, err)
	assert.Equal(t, 6, expanded.Len())

	none, err := f.objects.GetByID(ctx, "c1", "ds1", "s1", "door", ObjectOptions{FilterProperties: []rdf.IRI{rdf.RDFSLabel}})
	require.NoError(t, err)
	assert.Zero(t, none.Len())

	_, err = f.objects.GetByID(ctx, "c1", "ds1", "s1", "window", ObjectOptions{})
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	types, err := f.objects.GetType(ctx, "c1", "ds1", "s1", "wall")
	require.NoError(t, err)
	require.Equal(t, 1, types.Len())
	assert.Equal(t, wall, types.Triples()[0].S)

	_, err = f.objects.GetType(ctx, "c1", "ds1", "s1", "window")
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestParseIRIList(t *testing.T) {
	got, err := ParseIRIList(" lbdho:name ,, http://example.org/p ", rdf.StandardPrefixes())
	require.NoError(t, err)
	assert.Equal(t, []rdf.IRI{rdf.LBDHOName, rdf.NewIRI("http://example.org/p")}, got)

	_, err = ParseIRIList("unknown:thing", rdf.StandardPrefixes())
	assert.NoError(t, err, "a scheme-like name is a valid absolute IRI")

	_, err = ParseIRIList("relative", rdf.StandardPrefixes())
	assert.Equal(t, apperrors.KindBadRequest, apperrors.KindOf(err))
}

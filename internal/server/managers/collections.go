package managers

import (
	"context"

	"go.uber.org/zap"

	"github.com/systemshift/drumbeat/internal/rdf"
	apperrors "github.com/systemshift/drumbeat/internal/server/errors"
)

// CollectionManager manages lbdho:Collection entities.
type CollectionManager struct {
	e entities
}

func NewCollectionManager(b *Base) *CollectionManager {
	return &CollectionManager{e: entities{Base: b, lv: collectionLevel}}
}

func (m *CollectionManager) URI(c string) string { return m.e.Naming.CollectionURI(c) }

func (m *CollectionManager) GetAll(ctx context.Context) (*rdf.Graph, error) {
	return m.e.getAll(ctx, nil)
}

func (m *CollectionManager) GetByID(ctx context.Context, c string) (*rdf.Graph, error) {
	return m.e.getByID(ctx, []string{c})
}

func (m *CollectionManager) Create(ctx context.Context, c string, attrs Attributes) (*rdf.Graph, error) {
	return m.e.create(ctx, []string{c}, attrs, nil)
}

func (m *CollectionManager) Delete(ctx context.Context, c string) error {
	return m.e.delete(ctx, []string{c}, nil)
}

func (m *CollectionManager) CheckExists(ctx context.Context, c string) (bool, error) {
	return m.e.checkExists(ctx, []string{c})
}

func (m *CollectionManager) CheckHasChildren(ctx context.Context, c string) (bool, error) {
	return m.e.checkHasChildren(ctx, []string{c})
}

// DataSourceManager manages lbdho:DataSource entities of a collection.
type DataSourceManager struct {
	e entities
}

func NewDataSourceManager(b *Base) *DataSourceManager {
	return &DataSourceManager{e: entities{Base: b, lv: dataSourceLevel}}
}

func (m *DataSourceManager) URI(c, ds string) string { return m.e.Naming.DataSourceURI(c, ds) }

func (m *DataSourceManager) GetAll(ctx context.Context, c string) (*rdf.Graph, error) {
	return m.e.getAll(ctx, []string{c})
}

func (m *DataSourceManager) GetByID(ctx context.Context, c, ds string) (*rdf.Graph, error) {
	return m.e.getByID(ctx, []string{c, ds})
}

func (m *DataSourceManager) Create(ctx context.Context, c, ds string, attrs Attributes) (*rdf.Graph, error) {
	return m.e.create(ctx, []string{c, ds}, attrs, nil)
}

func (m *DataSourceManager) Delete(ctx context.Context, c, ds string) error {
	return m.e.delete(ctx, []string{c, ds}, nil)
}

func (m *DataSourceManager) CheckExists(ctx context.Context, c, ds string) (bool, error) {
	return m.e.checkExists(ctx, []string{c, ds})
}

func (m *DataSourceManager) CheckHasChildren(ctx context.Context, c, ds string) (bool, error) {
	return m.e.checkHasChildren(ctx, []string{c, ds})
}

// DataSetManager manages lbdho:DataSet entities and their content graphs.
type DataSetManager struct {
	e entities
}

func NewDataSetManager(b *Base) *DataSetManager {
	return &DataSetManager{e: entities{Base: b, lv: dataSetLevel}}
}

func (m *DataSetManager) URI(c, ds, set string) string { return m.e.Naming.DataSetURI(c, ds, set) }

// ContentGraph is the name of the graph holding a data set's triples.
func (m *DataSetManager) ContentGraph(c, ds, set string) string { return m.URI(c, ds, set) }

// ObjectBase is the namespace of resources uploaded into the data sets of
// one data source.
func (m *DataSetManager) ObjectBase(c, ds string) string { return m.e.Naming.ObjectBaseURI(c, ds) }

// Name is the flat data set name used for saved uploads.
func (m *DataSetManager) Name(c, ds, set string) string { return m.e.Naming.DataSetName(c, ds, set) }

func (m *DataSetManager) GetAll(ctx context.Context, c, ds string) (*rdf.Graph, error) {
	return m.e.getAll(ctx, []string{c, ds})
}

func (m *DataSetManager) GetByID(ctx context.Context, c, ds, set string) (*rdf.Graph, error) {
	return m.e.getByID(ctx, []string{c, ds, set})
}

// Create registers the data set and creates its empty content graph.
func (m *DataSetManager) Create(ctx context.Context, c, ds, set string, attrs Attributes) (*rdf.Graph, error) {
	content := m.ContentGraph(c, ds, set)
	return m.e.create(ctx, []string{c, ds, set}, attrs, func(ctx context.Context) error {
		if err := m.e.Store.CreateGraph(ctx, content); err != nil {
			return apperrors.Internal(err, "creating content graph %s", content)
		}
		return nil
	})
}

// Delete unregisters the data set and drops its content graph.
func (m *DataSetManager) Delete(ctx context.Context, c, ds, set string) error {
	content := m.ContentGraph(c, ds, set)
	return m.e.delete(ctx, []string{c, ds, set}, func(ctx context.Context) error {
		if err := m.e.Store.DropGraph(ctx, content); err != nil {
			return apperrors.Internal(err, "dropping content graph %s", content)
		}
		m.e.Logger.Debug("content graph dropped", zap.String("graph", content))
		return nil
	})
}

func (m *DataSetManager) CheckExists(ctx context.Context, c, ds, set string) (bool, error) {
	return m.e.checkExists(ctx, []string{c, ds, set})
}

// CheckHasChildren is always false: data sets have no dependent entities.
func (m *DataSetManager) CheckHasChildren(ctx context.Context, c, ds, set string) (bool, error) {
	return m.e.checkHasChildren(ctx, []string{c, ds, set})
}

// LockContent serializes writers of one content graph. The key is the
// data set URI, shared with create and delete.
func (m *DataSetManager) LockContent(c, ds, set string) func() {
	return m.e.Locks.Lock(m.URI(c, ds, set))
}

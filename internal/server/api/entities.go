package api

import (
	"net/http"

	"github.com/systemshift/drumbeat/internal/server/managers"
	"github.com/systemshift/drumbeat/internal/server/subscriptions"
	"github.com/systemshift/drumbeat/internal/server/validation"
)

// Resource types carried by entity events.
const (
	resourceCollection = "Collection"
	resourceDataSource = "DataSource"
	resourceDataSet    = "DataSet"
)

// createForm is the body of an entity create.
type createForm struct {
	Name string `validate:"max=1024"`
}

// readCreate validates the path ids and the create form.
func readCreate(r *http.Request, ids ...[2]string) (managers.Attributes, error) {
	for _, id := range ids {
		if err := validation.Var(id[0], id[1], "required,entityid"); err != nil {
			return nil, err
		}
	}
	form := createForm{Name: r.FormValue("name")}
	if err := validation.Struct(form); err != nil {
		return nil, err
	}
	return managers.Named(form.Name), nil
}

func (s *Server) emit(eventType, resourceType, uri string, meta map[string]interface{}) {
	if s.subMgr == nil {
		return
	}
	s.subMgr.EmitEvent(subscriptions.Event{
		Type:         eventType,
		Resource:     uri,
		ResourceType: resourceType,
		Meta:         meta,
	})
}

// ============== Collections ==============

// ListCollections handles GET /collections
func (s *Server) ListCollections(w http.ResponseWriter, r *http.Request) {
	frag, err := s.collections.GetAll(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeFragment(w, r, http.StatusOK, frag)
}

// GetCollection handles GET /collections/{collectionId}
func (s *Server) GetCollection(w http.ResponseWriter, r *http.Request) {
	frag, err := s.collections.GetByID(r.Context(), pathParam(r, "collectionId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeFragment(w, r, http.StatusOK, frag)
}

// CreateCollection handles POST /collections/{collectionId}
func (s *Server) CreateCollection(w http.ResponseWriter, r *http.Request) {
	c := pathParam(r, "collectionId")
	if !s.negotiate(w, r) {
		return
	}
	attrs, err := readCreate(r, [2]string{"collectionId", c})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	frag, err := s.collections.Create(r.Context(), c, attrs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.emit(subscriptions.EventCollectionCreated, resourceCollection, s.collections.URI(c),
		map[string]interface{}{"collectionId": c})
	s.writeFragment(w, r, http.StatusCreated, frag)
}

// DeleteCollection handles DELETE /collections/{collectionId}
func (s *Server) DeleteCollection(w http.ResponseWriter, r *http.Request) {
	c := pathParam(r, "collectionId")
	if err := s.collections.Delete(r.Context(), c); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.emit(subscriptions.EventCollectionDeleted, resourceCollection, s.collections.URI(c),
		map[string]interface{}{"collectionId": c})
	w.WriteHeader(http.StatusNoContent)
}

// ============== Data sources ==============

// ListDataSources handles GET /datasources/{collectionId}
func (s *Server) ListDataSources(w http.ResponseWriter, r *http.Request) {
	frag, err := s.dataSources.GetAll(r.Context(), pathParam(r, "collectionId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeFragment(w, r, http.StatusOK, frag)
}

// GetDataSource handles GET /datasources/{collectionId}/{dataSourceId}
func (s *Server) GetDataSource(w http.ResponseWriter, r *http.Request) {
	frag, err := s.dataSources.GetByID(r.Context(), pathParam(r, "collectionId"), pathParam(r, "dataSourceId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeFragment(w, r, http.StatusOK, frag)
}

// CreateDataSource handles POST /datasources/{collectionId}/{dataSourceId}
func (s *Server) CreateDataSource(w http.ResponseWriter, r *http.Request) {
	c, ds := pathParam(r, "collectionId"), pathParam(r, "dataSourceId")
	if !s.negotiate(w, r) {
		return
	}
	attrs, err := readCreate(r, [2]string{"collectionId", c}, [2]string{"dataSourceId", ds})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	frag, err := s.dataSources.Create(r.Context(), c, ds, attrs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.emit(subscriptions.EventDataSourceCreated, resourceDataSource, s.dataSources.URI(c, ds),
		map[string]interface{}{"collectionId": c, "dataSourceId": ds})
	s.writeFragment(w, r, http.StatusCreated, frag)
}

// DeleteDataSource handles DELETE /datasources/{collectionId}/{dataSourceId}
func (s *Server) DeleteDataSource(w http.ResponseWriter, r *http.Request) {
	c, ds := pathParam(r, "collectionId"), pathParam(r, "dataSourceId")
	if err := s.dataSources.Delete(r.Context(), c, ds); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.emit(subscriptions.EventDataSourceDeleted, resourceDataSource, s.dataSources.URI(c, ds),
		map[string]interface{}{"collectionId": c, "dataSourceId": ds})
	w.WriteHeader(http.StatusNoContent)
}

// ============== Data sets ==============

// ListDataSets handles GET /datasets/{collectionId}/{dataSourceId}
func (s *Server) ListDataSets(w http.ResponseWriter, r *http.Request) {
	frag, err := s.dataSets.GetAll(r.Context(), pathParam(r, "collectionId"), pathParam(r, "dataSourceId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeFragment(w, r, http.StatusOK, frag)
}

// GetDataSet handles GET /datasets/{collectionId}/{dataSourceId}/{dataSetId}
func (s *Server) GetDataSet(w http.ResponseWriter, r *http.Request) {
	c, ds, set := dataSetPath(r)
	frag, err := s.dataSets.GetByID(r.Context(), c, ds, set)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeFragment(w, r, http.StatusOK, frag)
}

// CreateDataSet handles POST /datasets/{collectionId}/{dataSourceId}/{dataSetId}
func (s *Server) CreateDataSet(w http.ResponseWriter, r *http.Request) {
	c, ds, set := dataSetPath(r)
	if !s.negotiate(w, r) {
		return
	}
	attrs, err := readCreate(r, [2]string{"collectionId", c}, [2]string{"dataSourceId", ds}, [2]string{"dataSetId", set})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	frag, err := s.dataSets.Create(r.Context(), c, ds, set, attrs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.emit(subscriptions.EventDataSetCreated, resourceDataSet, s.dataSets.URI(c, ds, set), dataSetMeta(c, ds, set))
	s.writeFragment(w, r, http.StatusCreated, frag)
}

// DeleteDataSet handles DELETE /datasets/{collectionId}/{dataSourceId}/{dataSetId}
func (s *Server) DeleteDataSet(w http.ResponseWriter, r *http.Request) {
	c, ds, set := dataSetPath(r)
	if err := s.dataSets.Delete(r.Context(), c, ds, set); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.emit(subscriptions.EventDataSetDeleted, resourceDataSet, s.dataSets.URI(c, ds, set), dataSetMeta(c, ds, set))
	w.WriteHeader(http.StatusNoContent)
}

func dataSetPath(r *http.Request) (c, ds, set string) {
	return pathParam(r, "collectionId"), pathParam(r, "dataSourceId"), pathParam(r, "dataSetId")
}

func dataSetMeta(c, ds, set string) map[string]interface{} {
	return map[string]interface{}{"collectionId": c, "dataSourceId": ds, "dataSetId": set}
}

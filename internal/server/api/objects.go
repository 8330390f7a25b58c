package api

import (
	"net/http"

	"github.com/systemshift/drumbeat/internal/rdf"
	"github.com/systemshift/drumbeat/internal/server/managers"
)

// ListObjects handles GET /dsobjects/{collectionId}/{dataSourceId}/{dataSetId}
func (s *Server) ListObjects(w http.ResponseWriter, r *http.Request) {
	c, ds, set := dataSetPath(r)
	frag, err := s.objects.GetAll(r.Context(), c, ds, set)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeFragment(w, r, http.StatusOK, frag)
}

// GetObject handles GET /dsobjects/{collectionId}/{dataSourceId}/{dataSetId}/{objectId}
// Query params narrow the description: excludeProperties, expandBlankObjects,
// filterProperties and filterObjectTypes (comma separated IRIs or prefixed names).
func (s *Server) GetObject(w http.ResponseWriter, r *http.Request) {
	c, ds, set := dataSetPath(r)
	opts, err := objectOptions(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	frag, err := s.objects.GetByID(r.Context(), c, ds, set, pathParam(r, "objectId"), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeFragment(w, r, http.StatusOK, frag)
}

// GetObjectType handles GET /dsobjects/{collectionId}/{dataSourceId}/{dataSetId}/{objectId}/type
func (s *Server) GetObjectType(w http.ResponseWriter, r *http.Request) {
	c, ds, set := dataSetPath(r)
	frag, err := s.objects.GetType(r.Context(), c, ds, set, pathParam(r, "objectId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeFragment(w, r, http.StatusOK, frag)
}

func objectOptions(r *http.Request) (managers.ObjectOptions, error) {
	var opts managers.ObjectOptions
	var err error
	if opts.ExcludeProperties, err = formBool(r, "excludeProperties"); err != nil {
		return opts, err
	}
	if opts.ExpandBlankObjects, err = formBool(r, "expandBlankObjects"); err != nil {
		return opts, err
	}
	prefixes := rdf.StandardPrefixes()
	if opts.FilterProperties, err = managers.ParseIRIList(r.FormValue("filterProperties"), prefixes); err != nil {
		return opts, err
	}
	if opts.FilterObjectTypes, err = managers.ParseIRIList(r.FormValue("filterObjectTypes"), prefixes); err != nil {
		return opts, err
	}
	return opts, nil
}

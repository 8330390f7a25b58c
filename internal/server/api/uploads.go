package api

import (
	"errors"
	"net/http"
	"path/filepath"

	apperrors "github.com/systemshift/drumbeat/internal/server/errors"
	"github.com/systemshift/drumbeat/internal/server/ingest"
	"github.com/systemshift/drumbeat/internal/server/validation"
)

// maxMultipartMemory is how much of a client file is buffered in memory
// before spilling to a temporary file.
const maxMultipartMemory = 32 << 20

// uploadForm holds the fields shared by every upload endpoint.
type uploadForm struct {
	DataType   string `validate:"required"`
	DataFormat string `validate:"max=32"`
}

type urlForm struct {
	URL string `validate:"required,url"`
}

type serverFileForm struct {
	FilePath string `validate:"required"`
}

// readUpload builds the ingest request for the addressed data set.
func readUpload(r *http.Request) (ingest.Request, error) {
	form := uploadForm{DataType: r.FormValue("dataType"), DataFormat: r.FormValue("dataFormat")}
	if err := validation.Struct(form); err != nil {
		return ingest.Request{}, err
	}
	clear, err := formBool(r, "clearBefore")
	if err != nil {
		return ingest.Request{}, err
	}
	notify, err := formBool(r, "notifyRemote")
	if err != nil {
		return ingest.Request{}, err
	}
	c, ds, set := dataSetPath(r)
	return ingest.Request{
		Collection:   c,
		DataSource:   ds,
		DataSet:      set,
		DataType:     form.DataType,
		DataFormat:   form.DataFormat,
		ClearBefore:  clear,
		NotifyRemote: notify,
	}, nil
}

func (s *Server) writeUpload(w http.ResponseWriter, r *http.Request, res *ingest.Result, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// UploadContent handles POST .../{dataSetId}/uploadContent
func (s *Server) UploadContent(w http.ResponseWriter, r *http.Request) {
	req, err := readUpload(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.uploads.UploadContent(r.Context(), req, r.FormValue("content"))
	s.writeUpload(w, r, res, err)
}

// UploadURL handles POST .../{dataSetId}/uploadUrl
func (s *Server) UploadURL(w http.ResponseWriter, r *http.Request) {
	req, err := readUpload(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	form := urlForm{URL: r.FormValue("url")}
	if err := validation.Struct(form); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.uploads.UploadURL(r.Context(), req, form.URL)
	s.writeUpload(w, r, res, err)
}

// UploadServerFile handles POST .../{dataSetId}/uploadServerFile
func (s *Server) UploadServerFile(w http.ResponseWriter, r *http.Request) {
	req, err := readUpload(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	form := serverFileForm{FilePath: r.FormValue("filePath")}
	if err := validation.Struct(form); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.DataFormat == "" {
		req.DataFormat = filepath.Ext(form.FilePath)
	}
	res, err := s.uploads.UploadServerFile(r.Context(), req, form.FilePath)
	s.writeUpload(w, r, res, err)
}

// UploadClientFile handles POST .../{dataSetId}/uploadClientFile with a
// multipart body carrying the document in the "file" part.
func (s *Server) UploadClientFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		s.writeError(w, r, apperrors.BadRequest("invalid multipart body: %v", err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	req, err := readUpload(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			s.writeError(w, r, apperrors.BadRequest("file is required"))
			return
		}
		s.writeError(w, r, apperrors.BadRequest("reading file part: %v", err))
		return
	}
	if req.DataFormat == "" {
		req.DataFormat = filepath.Ext(header.Filename)
	}
	res, err := s.uploads.UploadReader(r.Context(), req, file, header.Filename)
	s.writeUpload(w, r, res, err)
}

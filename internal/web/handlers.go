package web

import (
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/variantlabs/imagesync/internal/core"
)

// handleHealth reports process liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"ok": true})
}

// handleStatus reports engine state for monitoring: upload limiter
// occupancy and whether the CDN integration is configured.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	limiter := s.service.Limiter()
	writeJSON(w, map[string]any{
		"ok":             true,
		"cdn_configured": s.cfg.CDN.Configured(),
		"uploads": map[string]int{
			"active":         limiter.ActiveCount(),
			"available":      limiter.Available(),
			"max_concurrent": limiter.MaxConcurrent(),
		},
	})
}

// handleResolve returns the entity's normalized, enriched image list.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.Resolve(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		respondOpError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// handleUpload accepts a multipart file upload and attaches the resulting
// CDN asset to the end of the entity's list.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")

	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+4096)

	file, header, err := s.formFile(r, maxSize)
	if err != nil {
		respondOpError(w, r, err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondOpError(w, r, core.MapError(err))
		return
	}

	out, err := s.service.Upload(r.Context(), ref, header.Filename, data, r.FormValue("variant"))
	if err != nil {
		respondOpError(w, r, err)
		return
	}
	writeJSON(w, out)
}

// handleDeleteOrigin deletes a CDN asset at origin. Catalog lists are
// intentionally untouched; use detach for that.
func (s *Server) handleDeleteOrigin(w http.ResponseWriter, r *http.Request) {
	out, err := s.service.DeleteOrigin(r.Context(), chi.URLParam(r, "imageID"))
	if err != nil {
		respondOpError(w, r, err)
		return
	}
	writeJSON(w, out)
}

// targetRequest is the body for detach and make-primary.
type targetRequest struct {
	Target  string `json:"target"`
	ImageID string `json:"image_id"`
	URL     string `json:"url"`
}

func (t targetRequest) value() string {
	if t.Target != "" {
		return t.Target
	}
	if t.ImageID != "" {
		return t.ImageID
	}
	return t.URL
}

// handleDetach removes an entry from the entity's list.
func (s *Server) handleDetach(w http.ResponseWriter, r *http.Request) {
	var req targetRequest
	if err := decodeJSON(r, &req); err != nil {
		respondOpError(w, r, err)
		return
	}

	out, err := s.service.Detach(r.Context(), chi.URLParam(r, "ref"), req.value())
	if err != nil {
		respondOpError(w, r, err)
		return
	}
	writeJSON(w, out)
}

// handleMakePrimary moves an entry to index 0.
func (s *Server) handleMakePrimary(w http.ResponseWriter, r *http.Request) {
	var req targetRequest
	if err := decodeJSON(r, &req); err != nil {
		respondOpError(w, r, err)
		return
	}

	out, err := s.service.MakePrimary(r.Context(), chi.URLParam(r, "ref"), req.value())
	if err != nil {
		respondOpError(w, r, err)
		return
	}
	writeJSON(w, out)
}

// handleRelink migrates an external entry into CDN-hosted form in place.
func (s *Server) handleRelink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondOpError(w, r, err)
		return
	}

	out, err := s.service.Relink(r.Context(), chi.URLParam(r, "ref"), req.URL)
	if err != nil {
		respondOpError(w, r, err)
		return
	}
	writeJSON(w, out)
}

// handleValidate probes every entry on the entity and reports health.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	out, err := s.service.Validate(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		respondOpError(w, r, err)
		return
	}
	writeJSON(w, out)
}

// handlePurge requests edge-cache invalidation for one URL.
func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondOpError(w, r, err)
		return
	}

	out, err := s.service.Purge(r.Context(), req.URL)
	if err != nil {
		respondOpError(w, r, err)
		return
	}
	writeJSON(w, out)
}

// handleBulkAttach accepts rows either as a multipart CSV file (field
// "file") or as a JSON array body, and applies them with per-row
// isolation.
func (s *Server) handleBulkAttach(w http.ResponseWriter, r *http.Request) {
	rows, err := s.readBulkRows(r)
	if err != nil {
		respondOpError(w, r, err)
		return
	}

	out, err := s.service.BulkAttach(r.Context(), rows)
	if err != nil {
		respondOpError(w, r, err)
		return
	}
	writeJSON(w, out)
}

func (s *Server) readBulkRows(r *http.Request) ([]core.BulkRow, error) {
	ct := r.Header.Get("Content-Type")

	if strings.HasPrefix(ct, "multipart/form-data") {
		file, _, err := s.formFile(r, s.cfg.Upload.MaxFileSize)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		return core.ParseBulkCSV(file)
	}

	var req struct {
		Rows []core.BulkRow `json:"rows"`
	}
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	return req.Rows, nil
}

// formFile extracts the uploaded "file" part from a multipart request.
func (s *Server) formFile(r *http.Request, maxSize int64) (multipart.File, *multipart.FileHeader, error) {
	if err := r.ParseMultipartForm(maxSize); err != nil {
		return nil, nil, &core.OpError{Code: core.CodeInvalidPayload, Message: "file too large or invalid form", Err: err}
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, &core.OpError{Code: core.CodeInvalidPayload, Message: "no file provided", Err: err}
	}
	return file, header, nil
}

// decodeJSON parses a bounded JSON request body.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return &core.OpError{Code: core.CodeInvalidPayload, Message: "invalid JSON body", Err: err}
	}
	return nil
}

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// DirectoryHandler is a placeholder for the radio-directory record
// endpoints (stations, bands, operators, regions). The real handlers live
// with the domain data model, which is a separate concern; these stubs
// exist so the route table can declare its permission requirements against
// a working surface.
type DirectoryHandler struct{}

// NewDirectoryHandler creates a DirectoryHandler.
func NewDirectoryHandler() *DirectoryHandler {
	return &DirectoryHandler{}
}

// List answers read routes with an empty collection.
func (h *DirectoryHandler) List(resource string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":  true,
			"resource": resource,
			"items":    []any{},
		})
	}
}

// Create answers write routes with 501 until the domain model lands.
func (h *DirectoryHandler) Create(resource string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotImplemented, resource+" storage not implemented")
	}
}

// Get answers single-record reads with 404; no records exist yet.
func (h *DirectoryHandler) Get(resource string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, resource+" "+chi.URLParam(r, "id")+" not found")
	}
}

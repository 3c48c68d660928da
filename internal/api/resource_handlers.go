package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JakeFAU/clew-freshness/internal/apperr"
	"github.com/JakeFAU/clew-freshness/internal/catalog"
)

type resourcesResponse struct {
	Domain    string             `json:"domain"`
	Count     int                `json:"count"`
	Resources []catalog.Resource `json:"resources"`
}

// listResources handles GET /v1/resources?domain=&verify=.
func (s *Server) listResources(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scout == nil {
		writeError(w, http.StatusServiceUnavailable, "scout unavailable")
		return
	}
	domain := strings.TrimSpace(r.URL.Query().Get("domain"))
	if domain == "" {
		domain = catalog.DefaultDomain
	}
	verify := s.deps.Config.Scout.Verify
	if raw := r.URL.Query().Get("verify"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeAppError(w, s.logger, apperr.Validation("verify", "must be true or false"))
			return
		}
		verify = v
	}

	resources, err := s.deps.Scout.Gather(r.Context(), domain, verify)
	if err != nil {
		writeAppError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resourcesResponse{
		Domain:    domain,
		Count:     len(resources),
		Resources: resources,
	})
}

// getResource handles GET /v1/resources/{id}.
func (s *Server) getResource(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scout == nil {
		writeError(w, http.StatusServiceUnavailable, "scout unavailable")
		return
	}
	id := chi.URLParam(r, "id")
	domain := strings.TrimSpace(r.URL.Query().Get("domain"))
	res, err := s.deps.Scout.Resource(r.Context(), domain, id)
	if err != nil {
		writeAppError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

package web

import (
	"net/http"
	"net/url"

	"github.com/ritzau/relgraph/pkg/logging"
	"github.com/tidwall/gjson"
)

const proxyFailure = "Failed to connect to backend"

// forward passes a GET through and writes the backend's status and body. When
// unwrap is set and the body has a "data" field, only that field is returned.
func (s *Server) forward(w http.ResponseWriter, r *http.Request, path string, query url.Values, unwrap bool) {
	status, body, err := s.backend.Forward(r.Context(), path, query)
	if err != nil {
		logging.ErrorContext(r.Context(), "proxy error", "path", path, "error", err)
		writeError(w, http.StatusInternalServerError, proxyFailure, err.Error())
		return
	}
	if !validJSON(body) {
		logging.ErrorContext(r.Context(), "proxy got non-JSON body", "path", path, "status", status)
		writeError(w, http.StatusInternalServerError, proxyFailure, "backend returned a body that is not JSON")
		return
	}
	if len(body) == 0 {
		body = []byte("null")
	}

	if unwrap {
		if data := gjson.GetBytes(body, "data"); data.Exists() {
			body = []byte(data.Raw)
		}
	}
	writeRawJSON(w, status, body)
}

func (s *Server) handleSearchProxy(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	s.forward(w, r, "/api/search", url.Values{"q": {q}}, false)
}

func (s *Server) handleEntitySearchProxy(w http.ResponseWriter, r *http.Request) {
	keyword := r.URL.Query().Get("keyword")
	if keyword == "" {
		writeError(w, http.StatusBadRequest, "Missing required parameter: keyword", "")
		return
	}
	query := url.Values{"keyword": {keyword}}
	if size := r.URL.Query().Get("size"); size != "" {
		query.Set("size", size)
	}
	s.forward(w, r, "/api/v1/et/search", query, false)
}

func (s *Server) handleRelationshipSearchProxy(w http.ResponseWriter, r *http.Request) {
	one := r.URL.Query().Get("entity_one")
	two := r.URL.Query().Get("entity_two")
	if one == "" || two == "" {
		writeError(w, http.StatusBadRequest, "Missing required parameters: entity_one or entity_two", "")
		return
	}
	s.forward(w, r, "/api/v1/srp/search", url.Values{"entity_one": {one}, "entity_two": {two}}, true)
}

// validJSON reports whether b parses, treating an empty body as JSON null.
func validJSON(b []byte) bool {
	return len(b) == 0 || gjson.ValidBytes(b)
}

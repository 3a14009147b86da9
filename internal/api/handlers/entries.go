package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"lookupbot/internal/model"
)

type entryRequest struct {
	Keys string `json:"keys"`
	Text string `json:"text"`
}

func (s *Server) ListEntries(w http.ResponseWriter, r *http.Request) {
	page := parseInt(r.URL.Query().Get("page"), 1)
	perPage := parseInt(r.URL.Query().Get("limit"), 50)
	all := s.Knowledge.Entries()
	if key := strings.TrimSpace(r.URL.Query().Get("key")); key != "" {
		all = filterByKey(all, strings.ToLower(key))
	}
	start := (page - 1) * perPage
	if start > len(all) {
		start = len(all)
	}
	end := start + perPage
	if end > len(all) {
		end = len(all)
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": all[start:end]}, &pagination{
		Page: page, PerPage: perPage, Total: len(all),
	})
}

func (s *Server) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req entryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	entry, err := s.Knowledge.Add(r.Context(), req.Keys, req.Text)
	if err != nil {
		if mapServiceErr(w, err) {
			return
		}
		writeErr(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"entry": entry}, nil)
}

func (s *Server) EditEntry(w http.ResponseWriter, r *http.Request) {
	keys, ok := keysParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	found, err := s.Knowledge.Edit(r.Context(), keys, req.Text)
	if err != nil {
		if mapServiceErr(w, err) {
			return
		}
		writeErr(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	if !found {
		writeErr(w, http.StatusNotFound, "NOT_FOUND", "no entry carries any of the given keys")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": true}, nil)
}

func (s *Server) DeleteEntries(w http.ResponseWriter, r *http.Request) {
	keys, ok := keysParam(w, r)
	if !ok {
		return
	}
	res, err := s.Knowledge.Delete(r.Context(), keys)
	if err != nil {
		if mapServiceErr(w, err) {
			return
		}
		writeErr(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": res}, nil)
}

func (s *Server) Match(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		writeErr(w, http.StatusBadRequest, "VALIDATION_ERROR", "q is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"texts": s.Knowledge.Match(q)}, nil)
}

// keysParam returns the decoded {keys} segment. chi matches on the raw path,
// so an escaped comma arrives as "%2C".
func keysParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	keys, err := url.PathUnescape(chi.URLParam(r, "keys"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid keys in path")
		return "", false
	}
	return keys, true
}

func filterByKey(entries []model.Entry, key string) []model.Entry {
	out := make([]model.Entry, 0, len(entries))
	for _, e := range entries {
		for _, k := range e.Keys {
			if k == key {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

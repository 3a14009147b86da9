package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"lookupbot/internal/knowledge"
)

type pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Total   int `json:"total"`
}

// envelope is the body of every API response.
type envelope struct {
	OK         bool        `json:"ok"`
	Data       any         `json:"data"`
	Error      *apiError   `json:"error"`
	Pagination *pagination `json:"pagination"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// serviceErrors maps knowledge sentinels to HTTP status and error code.
var serviceErrors = []struct {
	target error
	status int
	code   string
}{
	{knowledge.ErrInputFormat, http.StatusBadRequest, "VALIDATION_ERROR"},
	{knowledge.ErrPersistence, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE"},
}

func respond(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSON(w http.ResponseWriter, status int, data any, pg *pagination) {
	respond(w, status, envelope{OK: status < 300, Data: data, Pagination: pg})
}

func writeErr(w http.ResponseWriter, status int, code, message string) {
	respond(w, status, envelope{Error: &apiError{Code: code, Message: message}})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// parseInt reads a positive integer query value, falling back to def.
func parseInt(value string, def int) int {
	if v, err := strconv.Atoi(value); err == nil && v > 0 {
		return v
	}
	return def
}

// mapServiceErr writes the response for a known service error and reports
// whether it did.
func mapServiceErr(w http.ResponseWriter, err error) bool {
	for _, e := range serviceErrors {
		if errors.Is(err, e.target) {
			writeErr(w, e.status, e.code, err.Error())
			return true
		}
	}
	return false
}

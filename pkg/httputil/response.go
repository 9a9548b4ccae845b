package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrorResponse is the body of every error response. Code is a stable,
// machine readable identifier; Error is for humans.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// ErrorStatus maps errors matching Target (via errors.Is) to an HTTP status
type ErrorStatus struct {
	Target error
	Status int
	Code   string
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes an error body with the given status and code
func WriteError(w http.ResponseWriter, status int, code, message string) {
	_ = WriteJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// WriteMappedError writes err with the status of the first matching entry in
// table. It reports false, writing nothing, when no entry matches.
func WriteMappedError(w http.ResponseWriter, err error, table []ErrorStatus) bool {
	for _, m := range table {
		if errors.Is(err, m.Target) {
			WriteError(w, m.Status, m.Code, err.Error())
			return true
		}
	}
	return false
}

// WriteSuccess writes v with 200 OK
func WriteSuccess(w http.ResponseWriter, v interface{}) error {
	return WriteJSON(w, http.StatusOK, v)
}

// WriteCreated writes v with 201 Created
func WriteCreated(w http.ResponseWriter, v interface{}) error {
	return WriteJSON(w, http.StatusCreated, v)
}

func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthenticated", message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, "forbidden", message)
}

// WriteInternalError hides the cause; callers log it
func WriteInternalError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, "internal", "internal error")
}

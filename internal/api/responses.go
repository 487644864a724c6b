package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/snarg/scribe/internal/capture"
	"github.com/snarg/scribe/internal/session"
	"github.com/snarg/scribe/internal/transcribe"
)

// Machine-readable error codes.
const (
	ErrBadRequest    = "bad_request"
	ErrInvalidBody   = "invalid_body"
	ErrUnauthorized  = "unauthorized"
	ErrNotFound      = "not_found"
	ErrConflict      = "invalid_state"
	ErrCaptureFailed = "capture_failed"
	ErrConfiguration = "configuration"
	ErrUnsupported   = "unsupported_provider"
	ErrProvider      = "provider_error"
	ErrInternal      = "internal"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg})
}

// WriteErrorWithCode writes a JSON error response with a machine-readable code.
func WriteErrorWithCode(w http.ResponseWriter, status int, code, msg string) {
	WriteJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// WriteErrorDetail writes a JSON error response with detail.
func WriteErrorDetail(w http.ResponseWriter, status int, code, msg, detail string) {
	WriteJSON(w, status, ErrorResponse{Error: msg, Code: code, Detail: detail})
}

// StatusFor maps pipeline and session errors to an HTTP status and code.
func StatusFor(err error) (int, string) {
	var pe *transcribe.ProviderError
	switch {
	case errors.Is(err, session.ErrInvalidState):
		return http.StatusConflict, ErrConflict
	case errors.Is(err, capture.ErrCapture):
		return http.StatusServiceUnavailable, ErrCaptureFailed
	case errors.Is(err, transcribe.ErrConfiguration):
		return http.StatusUnprocessableEntity, ErrConfiguration
	case errors.Is(err, transcribe.ErrUnsupportedProvider):
		return http.StatusUnprocessableEntity, ErrUnsupported
	case errors.As(err, &pe):
		return http.StatusBadGateway, ErrProvider
	default:
		return http.StatusInternalServerError, ErrInternal
	}
}

// WriteControllerError writes err with the status from StatusFor.
func WriteControllerError(w http.ResponseWriter, err error) {
	status, code := StatusFor(err)
	WriteErrorWithCode(w, status, code, err.Error())
}

// Pagination holds parsed pagination parameters.
type Pagination struct {
	Limit  int
	Offset int
}

// ParsePagination extracts limit and offset from query params. Missing or
// out-of-range values fall back to the defaults.
func ParsePagination(r *http.Request) Pagination {
	p := Pagination{Limit: 50, Offset: 0}
	if n, ok := QueryInt(r, "limit"); ok && n >= 1 && n <= 500 {
		p.Limit = n
	}
	if n, ok := QueryInt(r, "offset"); ok && n >= 0 {
		p.Offset = n
	}
	return p
}

// QueryInt extracts an integer query parameter. Returns 0, false if missing or invalid.
func QueryInt(r *http.Request, name string) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

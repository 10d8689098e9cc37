package httputil

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"
)

// HeaderVersion carries the table state version a response was derived from
const HeaderVersion = "X-Table-Version"

type Envelope map[string]any

type APIError struct {
	Code    string `json:"code"` // bad_request, not_found, invalid_input, internal
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

func (e *APIError) Error() string { return e.Code + ": " + e.Message }

// JSON wraps body in {"status":"ok","data":...} or {"status":"error","error":...};
// a nil body with 204 writes headers only
func JSON(w http.ResponseWriter, status int, body any, headers map[string]string) error {
	for k, v := range headers {
		w.Header().Set(k, v)
	}

	if body == nil && status == http.StatusNoContent {
		w.WriteHeader(status)
		return nil
	}

	payload := Envelope{"status": "ok", "data": body}
	switch e := body.(type) {
	case APIError:
		payload = Envelope{"status": "error", "error": &e}
	case *APIError:
		payload = Envelope{"status": "error", "error": e}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(payload)
}

// Versioned is JSON with the state version exposed as a header
func Versioned(w http.ResponseWriter, status int, body any, version uint64) error {
	return JSON(w, status, body, map[string]string{
		HeaderVersion: strconv.FormatUint(version, 10),
	})
}

func NoContent(w http.ResponseWriter) {
	_ = JSON(w, http.StatusNoContent, nil, nil)
}

// Error replies with an APIError tagged with the chi request id
func Error(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) error {
	return JSON(w, status, &APIError{
		Code:    code,
		Message: message,
		Details: details,
		TraceID: middleware.GetReqID(r.Context()),
	}, map[string]string{
		"Cache-Control": "no-store",
	})
}

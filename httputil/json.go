// httputil/json.go
package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// ErrorBody is the payload of the standard JSON error envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Field   string `json:"field,omitempty"`
}

// ErrorResponse is the standard JSON error envelope:
//
//	{"error": {"code": "not_found", "message": "..."}}
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

var jsonLogger = zap.NewNop()

// SetJSONLogger configures the logger used for JSON encoding errors.
// Call once during startup.
func SetJSONLogger(logger *zap.Logger) {
	if logger != nil {
		jsonLogger = logger
	}
}

// WriteJSON writes a JSON response with the given status code. Encoding
// failures are logged; headers are already sent by then.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	if status < 100 || status > 599 {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		jsonLogger.Error("json encoding failed after headers sent",
			zap.String("type", fmt.Sprintf("%T", v)),
			zap.Error(err))
	}
}

// JSONError writes the standard error envelope.
func JSONError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}

// WantsJSON reports whether the client sent or asked for JSON.
func WantsJSON(r *http.Request) bool {
	return isJSONType(r.Header.Get("Content-Type")) || strings.Contains(strings.ToLower(r.Header.Get("Accept")), "application/json")
}

// IsJSONContent reports whether the request body is declared as JSON.
func IsJSONContent(r *http.Request) bool {
	return isJSONType(r.Header.Get("Content-Type"))
}

func isJSONType(ct string) bool {
	if idx := strings.Index(ct, ";"); idx != -1 {
		ct = ct[:idx]
	}
	ct = strings.ToLower(strings.TrimSpace(ct))
	return ct == "application/json" || strings.HasSuffix(ct, "+json")
}

// BindJSON decodes the request body as JSON into v. Unknown fields, empty
// bodies and trailing data are rejected. The returned errors are safe to
// show to clients.
func BindJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return errors.New("request body is empty")
	}
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return parseJSONError(err)
	}
	if dec.More() {
		return errors.New("request body contains multiple JSON values")
	}
	return nil
}

// parseJSONError converts json decoding errors into user-friendly messages.
func parseJSONError(err error) error {
	if errors.Is(err, io.EOF) {
		return errors.New("request body is empty")
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return fmt.Errorf("malformed JSON at position %d", syntaxErr.Offset)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Errorf("invalid value for field %q: expected %s", typeErr.Field, typeErr.Type.String())
	}

	// "json: unknown field \"name\"" when DisallowUnknownFields is set
	if strings.HasPrefix(err.Error(), "json: unknown field") {
		field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), "\"")
		return fmt.Errorf("unknown field %q", field)
	}

	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return errors.New("request body too large")
	}

	return errors.New("invalid JSON in request body")
}

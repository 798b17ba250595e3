package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/c-f-an/tov-nextjs-sub002/internal/auth"
)

const msgUnauthorized = "unauthorized"

// writeServiceError maps the auth error taxonomy onto HTTP statuses. Token
// failures collapse to a bare 401 so verification details never leave the server.
func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *auth.ValidationError
	switch {
	case errors.As(err, &verr):
		writeErrorFields(w, r, http.StatusBadRequest, verr.Message, map[string]any{"field": verr.Field})
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "invalid input")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeUnauthorized(w, r, "invalid email or password")
	case errors.Is(err, auth.ErrInvalidToken):
		writeUnauthorized(w, r, msgUnauthorized)
	case errors.Is(err, auth.ErrForbidden):
		writeForbidden(w, r)
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, "resource already exists")
	default:
		a.logger.Error("request failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="tov"`)
	writeError(w, r, http.StatusUnauthorized, msg)
}

func writeForbidden(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope"`)
	writeError(w, r, http.StatusForbidden, "forbidden")
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeErrorFields(w, r, code, msg, nil)
}

func writeErrorFields(w http.ResponseWriter, r *http.Request, code int, msg string, extra map[string]any) {
	payload := map[string]any{
		"error": msg,
	}
	for k, v := range extra {
		payload[k] = v
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// decodeJSON ignores fields dst does not declare.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeRequest(w, r, dst, false)
}

// decodeStrictJSON rejects fields dst does not declare.
func decodeStrictJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return decodeRequest(w, r, dst, true)
}

func decodeRequest(w http.ResponseWriter, r *http.Request, dst any, strict bool) error {
	reader := http.MaxBytesReader(w, r.Body, defaultMaxBodyBytes)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &auth.ValidationError{Field: "body", Message: "request body is required"}
		}
		return &auth.ValidationError{Field: "body", Message: err.Error()}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return &auth.ValidationError{Field: "body", Message: "unexpected data after JSON body"}
	}
	return nil
}

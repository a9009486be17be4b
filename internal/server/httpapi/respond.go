package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/bizsync/internal/common"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 8 << 20

type envelope struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

type requestEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// respondJSON sends data wrapped in the success envelope.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Data: data})
}

// respondError sends an error envelope.
func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Error: message})
}

// statusFor maps a service error to an HTTP status and a client-safe
// message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrorValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, common.ErrorConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, common.ErrRefreshTokenExpired):
		return http.StatusUnauthorized, common.ErrRefreshTokenExpired.Error()
	case errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized, common.ErrorUnauthorized.Error()
	case errors.Is(err, common.ErrorForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "deadline exceeded"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func (r *Router) fail(w http.ResponseWriter, req *http.Request, err error) {
	code, msg := statusFor(err)
	if code == http.StatusInternalServerError {
		r.logger.Error(req.Context(), "Request failed", "path", req.URL.Path, "error", err)
	}
	respondError(w, code, msg)
}

// decodeData reads a {"data": ...} request body into v.
func decodeData(w http.ResponseWriter, req *http.Request, v any) error {
	var env requestEnvelope
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err := dec.Decode(&env); err != nil {
		return fmt.Errorf("%w: malformed body: %w", common.ErrorValidation, err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return fmt.Errorf("%w: data is required", common.ErrorValidation)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%w: malformed data: %w", common.ErrorValidation, err)
	}
	return nil
}

// Package respond writes JSON responses and maps domain errors onto HTTP
// status codes.
package respond

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/joao-fontenele/storefront/internal/domain"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func JSON(w http.ResponseWriter, logger *zap.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

// Message writes an error body with an explicit status and kind, for failures
// that never reach a service (bad JSON, missing credentials).
func Message(w http.ResponseWriter, logger *zap.Logger, status int, kind, message string) {
	JSON(w, logger, status, errorBody{Error: errorDetail{Kind: kind, Message: message}})
}

// Error writes err using its domain kind. Only the domain message reaches the
// client; wrapped causes are logged. Unclassified errors are reported as an
// opaque internal error.
func Error(w http.ResponseWriter, logger *zap.Logger, err error) {
	var derr *domain.Error
	if !errors.As(err, &derr) || derr.Kind == domain.KindInternal {
		logger.Error("internal error", zap.Error(err))
		Message(w, logger, http.StatusInternalServerError, string(domain.KindInternal), "internal server error")
		return
	}

	if derr.Err != nil {
		logger.Warn("request failed", zap.String("kind", string(derr.Kind)), zap.Error(err))
	}
	Message(w, logger, StatusFor(derr.Kind), string(derr.Kind), derr.Message)
}

func StatusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindInvalidArgument:
		return http.StatusBadRequest
	case domain.KindInsufficientStock, domain.KindAlreadyPaid, domain.KindInvalidState, domain.KindConflict:
		return http.StatusConflict
	case domain.KindUnavailable:
		return http.StatusUnprocessableEntity
	case domain.KindPaymentProviderError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Decode reads a JSON request body into v, rejecting unknown fields.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.Errorf(domain.KindInvalidArgument, "invalid request body: %v", err)
	}
	return nil
}

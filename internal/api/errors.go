package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/refdata/validate-service/internal/domain"
)

// errorResponse is the structured JSON error body spec.md §7 requires:
// {error, error_type, ...context}.
type errorResponse struct {
	Error     string `json:"error"`
	ErrorType string `json:"error_type"`
	Context   any    `json:"context,omitempty"`
}

// writeJSON encodes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps a domain error (or a generic one) to the typed error
// taxonomy of spec.md §7 and writes it as JSON.
func writeError(w http.ResponseWriter, err error) {
	status, errType := classifyError(err)
	writeJSON(w, status, errorResponse{Error: err.Error(), ErrorType: errType})
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrRuleSetNotFound):
		return http.StatusNotFound, "RuleNotFound"
	case errors.Is(err, domain.ErrCircularInclude):
		return http.StatusInternalServerError, "CircularInclude"
	case errors.Is(err, domain.ErrInvalidRule):
		return http.StatusInternalServerError, "InvalidRule"
	case errors.Is(err, domain.ErrUnsupportedExpectation):
		return http.StatusInternalServerError, "InvalidRule"
	case errors.Is(err, domain.ErrInvalidCondition):
		return http.StatusInternalServerError, "InvalidRule"
	case errors.Is(err, domain.ErrUnknownExchange):
		return http.StatusNotFound, "ExchangeNotFound"
	case errors.Is(err, domain.ErrUnknownProduct):
		return http.StatusNotFound, "ExchangeNotFound"
	case errors.Is(err, domain.ErrDatasetNotFound):
		return http.StatusNotFound, "DatasetNotFound"
	case errors.Is(err, domain.ErrInstrumentNotFound):
		return http.StatusNotFound, "InstrumentNotFound"
	case errors.Is(err, domain.ErrRunNotFound):
		return http.StatusNotFound, "RunNotFound"
	case errors.Is(err, domain.ErrTransient):
		return http.StatusInternalServerError, "EngineTransientError"
	case errors.Is(err, domain.ErrPersistenceFailed):
		return http.StatusInternalServerError, "PersistenceError"
	default:
		return http.StatusInternalServerError, "InternalError"
	}
}

package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-ledger/internal/apperr"
)

type errorBody struct {
	Error    string            `json:"error"`
	Kind     string            `json:"kind"`
	Field    string            `json:"field,omitempty"`
	Reason   string            `json:"reason,omitempty"`
	Shortage []apperr.Shortage `json:"shortage,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Kind: "validation"})
}

// writeError maps the apperr taxonomy onto HTTP status codes. Anything
// unrecognised is a 500 and is logged; its message is not echoed.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	var (
		ve   *apperr.ValidationError
		nf   *apperr.NotFoundError
		se   *apperr.StockError
		pe   *apperr.PointsError
		ste  *apperr.StateError
		ae   *apperr.AuthorizationError
		comp *apperr.CompensationError
	)
	switch {
	case errors.As(err, &comp) && !comp.Compensated():
		log.Error("compensation incomplete", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "operation failed and could not be fully rolled back", Kind: "compensation"})
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Kind: "validation", Field: ve.Field})
	case errors.As(err, &nf):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), Kind: "not_found"})
	case errors.As(err, &se):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Kind: "insufficient_stock", Shortage: se.Items})
	case errors.As(err, &pe):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Kind: "points", Reason: string(pe.Reason)})
	case errors.As(err, &ste):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Kind: "state"})
	case errors.As(err, &ae):
		writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error(), Kind: "authorization"})
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, errorBody{Error: "request timed out", Kind: "timeout"})
	default:
		log.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Kind: "internal"})
	}
}

package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/blindbox-shop/order-service/internal/domain/catalog"
	"github.com/blindbox-shop/order-service/internal/domain/order"
	"github.com/blindbox-shop/order-service/internal/domain/store"
)

// writeDomainError maps domain errors onto HTTP status codes. Anything
// unrecognised is logged with full context and surfaced as a generic 500.
func writeDomainError(r *http.Request, w http.ResponseWriter, err error) {
	var (
		vErr  *order.ValidationError
		iErr  *order.InvalidItemError
		tErr  *order.InvalidTransitionError
		scErr *order.StockConflictError
	)

	switch {
	case errors.Is(err, order.ErrEmptyItems),
		errors.As(err, &vErr),
		errors.As(err, &iErr),
		errors.As(err, &tErr):
		writeError(w, http.StatusBadRequest, err.Error())

	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "Order not found")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Store not found")

	case errors.Is(err, order.ErrForbidden):
		writeError(w, http.StatusForbidden, "Access denied")

	case errors.As(err, &scErr):
		writeError(w, http.StatusConflict, scErr.Error())
	case errors.Is(err, order.ErrStatusConflict),
		errors.Is(err, order.ErrNumberExhausted):
		writeError(w, http.StatusConflict, err.Error())

	case errors.Is(err, catalog.ErrUnavailable), errors.Is(err, store.ErrUnavailable):
		zctx.From(r.Context()).Error("upstream unavailable", zap.Error(err))
		writeError(w, http.StatusBadGateway, "upstream service unavailable")

	default:
		zctx.From(r.Context()).Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorResponse{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

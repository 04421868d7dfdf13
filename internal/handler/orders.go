package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sheetcart-ai/ops-platform/internal/middleware"
	"github.com/sheetcart-ai/ops-platform/internal/store"
	"github.com/sheetcart-ai/ops-platform/pkg/logger"
)

// OrderHandler serves read access to ingested orders.
type OrderHandler struct {
	store *store.Store
	log   *logger.Logger
}

// NewOrderHandler creates an order handler.
func NewOrderHandler(st *store.Store, log *logger.Logger) *OrderHandler {
	return &OrderHandler{store: st, log: log.Component("handler")}
}

// Get returns one order with its items. Tokens scoped to a store can only
// read that store's orders.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "order id is required")
		return
	}

	ord, err := h.store.GetOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.log.Error("failed to load order", zap.String("order_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load order")
		return
	}

	if storeID := middleware.GetStoreID(r.Context()); storeID != "" && storeID != ord.StoreID {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}

	writeJSON(w, http.StatusOK, ord)
}

package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/sheetcart-ai/ops-platform/internal/events"
	"github.com/sheetcart-ai/ops-platform/internal/middleware"
	"github.com/sheetcart-ai/ops-platform/internal/model"
	"github.com/sheetcart-ai/ops-platform/pkg/logger"
)

// ConversationHandler accepts manual conversation triggers and enqueues
// them for the conversation worker.
type ConversationHandler struct {
	publisher *events.StreamManager
	log       *logger.Logger
}

// NewConversationHandler creates a conversation handler.
func NewConversationHandler(pub *events.StreamManager, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{publisher: pub, log: log.Component("handler")}
}

type startConversationRequest struct {
	To        string `json:"to"`
	OrderID   string `json:"order_id,omitempty"`
	BuyerText string `json:"buyer_text,omitempty"`
	Locale    string `json:"locale,omitempty"`
	Context   string `json:"context,omitempty"`
}

// Start enqueues a conversation.start event for the authenticated store.
// Processing is asynchronous, so the response is 202.
func (h *ConversationHandler) Start(w http.ResponseWriter, r *http.Request) {
	storeID := middleware.GetStoreID(r.Context())
	if storeID == "" {
		writeError(w, http.StatusForbidden, "token is not scoped to a store")
		return
	}

	var req startConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.To == "" {
		writeError(w, http.StatusBadRequest, "to is required")
		return
	}
	if req.BuyerText != "" {
		if err := middleware.ValidateMessageContent(req.BuyerText); err != nil {
			writeError(w, http.StatusBadRequest, "buyer_text: "+err.Error())
			return
		}
	}

	evt := model.ConversationStart{
		StoreID:   storeID,
		To:        req.To,
		OrderID:   req.OrderID,
		BuyerText: req.BuyerText,
		Locale:    req.Locale,
		Context:   req.Context,
	}
	if err := h.publisher.PublishConversationStart(r.Context(), evt); err != nil {
		h.log.Error("failed to enqueue conversation start",
			zap.String("store_id", storeID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to enqueue conversation")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "queued",
	})
}

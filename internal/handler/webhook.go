package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sheetcart-ai/ops-platform/internal/events"
	"github.com/sheetcart-ai/ops-platform/internal/middleware"
	"github.com/sheetcart-ai/ops-platform/internal/model"
	"github.com/sheetcart-ai/ops-platform/pkg/logger"
)

// WebhookHandler receives inbound buyer messages from channel providers
// and routes them onto the event bus for the conversation worker.
type WebhookHandler struct {
	publisher *events.StreamManager
	log       *logger.Logger
}

// NewWebhookHandler creates a webhook handler.
func NewWebhookHandler(pub *events.StreamManager, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{publisher: pub, log: log.Component("webhook")}
}

type inboundMessageRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	From           string `json:"from"`
	Text           string `json:"text"`
	Locale         string `json:"locale,omitempty"`
}

// Inbound accepts one buyer message. The provider path segment is recorded
// for diagnostics only; routing is by the token's store scope.
func (h *WebhookHandler) Inbound(w http.ResponseWriter, r *http.Request) {
	storeID := middleware.GetStoreID(r.Context())
	if storeID == "" {
		writeError(w, http.StatusForbidden, "token is not scoped to a store")
		return
	}
	provider := chi.URLParam(r, "provider")

	var req inboundMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.From == "" {
		writeError(w, http.StatusBadRequest, "from is required")
		return
	}
	if err := middleware.ValidateMessageContent(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, "text: "+err.Error())
		return
	}
	if req.ConversationID != "" {
		if err := middleware.ValidateConversationID(req.ConversationID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	evt := model.ConversationUserMessage{
		StoreID:        storeID,
		ConversationID: req.ConversationID,
		To:             req.From,
		Text:           req.Text,
		Locale:         req.Locale,
	}
	if err := h.publisher.PublishConversationInbound(r.Context(), evt); err != nil {
		h.log.Error("failed to enqueue inbound message",
			zap.String("store_id", storeID),
			zap.String("provider", provider),
			zap.String("correlation_id", middleware.GetCorrelationID(r.Context())),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to enqueue message")
		return
	}

	h.log.Info("inbound message queued",
		zap.String("store_id", storeID),
		zap.String("provider", provider),
		zap.String("correlation_id", middleware.GetCorrelationID(r.Context())))

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "queued",
	})
}

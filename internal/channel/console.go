package channel

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sheetcart-ai/ops-platform/pkg/logger"
)

// ConsoleSender logs outbound messages instead of delivering them. Used
// in development and as the dispatch target for demo tenants.
type ConsoleSender struct {
	log *logger.Logger
}

// NewConsoleSender creates a console sender.
func NewConsoleSender(log *logger.Logger) *ConsoleSender {
	return &ConsoleSender{log: log}
}

// Name returns the provider name.
func (s *ConsoleSender) Name() string { return "console" }

// Send logs the message and fabricates a message id.
func (s *ConsoleSender) Send(ctx context.Context, to, body string) (string, error) {
	id := uuid.New().String()
	s.log.Info("console dispatch",
		zap.String("to", to),
		zap.String("body", body),
		zap.String("message_id", id))
	return id, nil
}

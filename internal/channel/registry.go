package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sheetcart-ai/ops-platform/internal/model"
	"github.com/sheetcart-ai/ops-platform/internal/store"
	"github.com/sheetcart-ai/ops-platform/pkg/logger"
)

// WebhookSettings is the config variant for the generic webhook provider.
type WebhookSettings struct {
	URL       string `json:"url"`
	AuthToken string `json:"auth_token,omitempty"`
}

// ConfigStore loads tenant channel configuration.
type ConfigStore interface {
	GetChannelConfig(ctx context.Context, storeID string) (*model.ChannelConfig, error)
}

// Registry resolves a tenant's provider-tagged config to a concrete
// sender. Each variant holds exactly the fields its provider needs.
type Registry struct {
	configs ConfigStore
	client  *http.Client
	log     *logger.Logger
}

// NewRegistry creates a channel registry.
func NewRegistry(configs ConfigStore, client *http.Client, log *logger.Logger) *Registry {
	if client == nil {
		client = http.DefaultClient
	}
	return &Registry{configs: configs, client: client, log: log.Component("channel")}
}

// Resolve returns the sender for a tenant along with its stored config.
// A missing row or unknown provider is a hard error for the caller.
func (r *Registry) Resolve(ctx context.Context, storeID string) (Sender, *model.ChannelConfig, error) {
	cfg, err := r.configs.GetChannelConfig(ctx, storeID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("store %s: %w", storeID, ErrNotConfigured)
	}
	if err != nil {
		return nil, nil, err
	}

	sender, err := senderFor(cfg, r.client, r.log)
	if err != nil {
		return nil, nil, err
	}
	return sender, cfg, nil
}

func senderFor(cfg *model.ChannelConfig, client *http.Client, log *logger.Logger) (Sender, error) {
	switch cfg.Provider {
	case "webhook":
		var settings WebhookSettings
		if err := json.Unmarshal(cfg.Config, &settings); err != nil {
			return nil, fmt.Errorf("invalid webhook config for store %s: %w", cfg.StoreID, err)
		}
		if settings.URL == "" {
			return nil, fmt.Errorf("webhook config for store %s has no url", cfg.StoreID)
		}
		return NewWebhookSender(settings, client), nil
	case "console":
		return NewConsoleSender(log), nil
	default:
		return nil, fmt.Errorf("provider %q: %w", cfg.Provider, ErrUnknownProvider)
	}
}

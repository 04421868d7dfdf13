package model

import (
	"time"
)

// ConversationStatus is the stored lifecycle status of a conversation.
type ConversationStatus string

const (
	ConversationStatusOpen   ConversationStatus = "open"
	ConversationStatusActive ConversationStatus = "active"
	ConversationStatusClosed ConversationStatus = "closed"
)

// Conversation is a tenant-scoped buyer conversation. Contact is the
// channel address (phone number, chat handle) the dispatcher delivers to.
// At most one non-closed conversation exists per (store, contact, origin).
type Conversation struct {
	ID         string             `json:"id"`
	StoreID    string             `json:"store_id"`
	CustomerID *string            `json:"customer_id,omitempty"`
	OrderID    *string            `json:"order_id,omitempty"`
	Contact    string             `json:"contact"`
	Origin     string             `json:"origin"`
	Locale     string             `json:"locale,omitempty"`
	Status     ConversationStatus `json:"status"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// Role is the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleAgent     Role = "agent"
)

// Message is one immutable conversation turn, ordered by creation time.
// Action records the parsed plan action for assistant turns; the system
// role is reserved for internal audit notes that are never dispatched.
type Message struct {
	ID             string  `json:"id"`
	ConversationID string  `json:"conversation_id"`
	StoreID        string  `json:"store_id"`
	Role           Role    `json:"role"`
	Content        string  `json:"content"`
	Action         *string `json:"action,omitempty"`

	// LLM metadata, nil for non-assistant turns.
	Model     *string `json:"model,omitempty"`
	LatencyMs *int64  `json:"latency_ms,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ChannelConfig is a tenant's messaging channel configuration. Config is
// the provider-specific variant, keyed by Provider.
type ChannelConfig struct {
	StoreID     string     `json:"store_id"`
	Provider    string     `json:"provider"`
	DisplayName string     `json:"display_name"`
	Config      []byte     `json:"config"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
}

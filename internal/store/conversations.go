package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sheetcart-ai/ops-platform/internal/model"
)

// FindOrCreateConversation returns the existing non-closed conversation
// for (store, contact, origin), creating one when none exists. The lookup
// runs before the insert, and a concurrent insert racing past it is
// resolved on the next lookup; per-conversation serialization in the
// worker keeps replies from interleaving either way.
func (s *Store) FindOrCreateConversation(ctx context.Context, storeID, contact, origin string, customerID, orderID *string, locale string) (*model.Conversation, error) {
	conv, err := s.findOpenConversation(ctx, storeID, contact, origin)
	if err == nil {
		return conv, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	now := time.Now()
	conv = &model.Conversation{
		ID:         uuid.Must(uuid.NewV7()).String(),
		StoreID:    storeID,
		CustomerID: customerID,
		OrderID:    orderID,
		Contact:    contact,
		Origin:     origin,
		Locale:     locale,
		Status:     model.ConversationStatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO conversations (id, store_id, customer_id, order_id, contact, origin, locale, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		conv.ID, storeID, customerID, orderID, contact, origin, locale, string(conv.Status), now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

func (s *Store) findOpenConversation(ctx context.Context, storeID, contact, origin string) (*model.Conversation, error) {
	var c model.Conversation
	err := s.pool.QueryRow(ctx, `
		SELECT id, store_id, customer_id, order_id, contact, origin, locale, status, created_at, updated_at
		FROM conversations
		WHERE store_id = $1 AND contact = $2 AND origin = $3 AND status <> 'closed'
		ORDER BY created_at DESC LIMIT 1`,
		storeID, contact, origin,
	).Scan(&c.ID, &c.StoreID, &c.CustomerID, &c.OrderID, &c.Contact, &c.Origin, &c.Locale, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up conversation: %w", err)
	}
	return &c, nil
}

// GetConversation loads one conversation by id.
func (s *Store) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	var c model.Conversation
	err := s.pool.QueryRow(ctx, `
		SELECT id, store_id, customer_id, order_id, contact, origin, locale, status, created_at, updated_at
		FROM conversations WHERE id = $1`, id,
	).Scan(&c.ID, &c.StoreID, &c.CustomerID, &c.OrderID, &c.Contact, &c.Origin, &c.Locale, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return &c, nil
}

// SetConversationStatus updates the stored conversation status.
func (s *Store) SetConversationStatus(ctx context.Context, id string, status model.ConversationStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE conversations SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("failed to update conversation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// LinkConversationOrder attaches an order to a conversation when it was
// created without one.
func (s *Store) LinkConversationOrder(ctx context.Context, id, orderID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE conversations SET order_id = $2, updated_at = now() WHERE id = $1 AND order_id IS NULL`,
		id, orderID,
	)
	if err != nil {
		return fmt.Errorf("failed to link conversation order: %w", err)
	}
	return nil
}

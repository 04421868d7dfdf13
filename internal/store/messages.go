package store

import (
	"context"
	"fmt"

	"github.com/sheetcart-ai/ops-platform/internal/model"
)

// AppendMessage persists one immutable conversation turn.
func (s *Store) AppendMessage(ctx context.Context, msg *model.Message) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, store_id, role, content, action, model, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		msg.ID, msg.ConversationID, msg.StoreID, string(msg.Role), msg.Content,
		msg.Action, msg.Model, msg.LatencyMs, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	return nil
}

// History returns the turns of a conversation in creation order, oldest
// first, capped at limit.
func (s *Store) History(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, store_id, role, content, action, model, latency_ms, created_at
		FROM messages WHERE conversation_id = $1
		ORDER BY created_at ASC LIMIT $2`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.StoreID, &m.Role, &m.Content,
			&m.Action, &m.Model, &m.LatencyMs, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return msgs, nil
}

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sheetcart-ai/ops-platform/internal/model"
)

// UpsertOrder reconciles a normalized order against existing rows for the
// tenant. Customer resolution (phone first, then email), the order upsert
// by (store_id, external_key), and the item replacement all run in one
// transaction so partial application is never observable. Re-ingestion
// preserves the order id and its status; only the payload, customer link,
// totals, and items are refreshed. The bool reports whether the order was
// newly created.
func (s *Store) UpsertOrder(ctx context.Context, storeID string, ord model.NormalizedOrder, raw map[string]string) (*model.Order, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin upsert tx: %w", err)
	}
	defer tx.Rollback(ctx)

	customerID, err := resolveCustomer(ctx, tx, storeID, ord.Customer)
	if err != nil {
		return nil, false, err
	}

	now := time.Now()
	order := &model.Order{
		ID:          uuid.Must(uuid.NewV7()).String(),
		StoreID:     storeID,
		CustomerID:  customerID,
		ExternalKey: ord.ExternalKey,
		Status:      model.OrderStatusNew,
		Total:       ord.Total,
		Currency:    ord.Currency,
		Notes:       ord.Notes,
		RawPayload:  raw,
	}

	var created bool
	err = tx.QueryRow(ctx, `
		INSERT INTO orders (id, store_id, customer_id, external_key, status, total, currency, notes, raw_payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		ON CONFLICT (store_id, external_key) DO UPDATE SET
			customer_id = EXCLUDED.customer_id,
			total       = EXCLUDED.total,
			currency    = EXCLUDED.currency,
			notes       = EXCLUDED.notes,
			raw_payload = EXCLUDED.raw_payload,
			updated_at  = EXCLUDED.updated_at
		RETURNING id, status, created_at, (xmax = 0)`,
		order.ID, storeID, customerID, ord.ExternalKey, string(order.Status),
		ord.Total, ord.Currency, ord.Notes, raw, now,
	).Scan(&order.ID, &order.Status, &order.CreatedAt, &created)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert order: %w", err)
	}
	order.UpdatedAt = now

	// Replace the full item set; item-level history lives in the audit
	// trail and the stored raw payload.
	if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, order.ID); err != nil {
		return nil, false, fmt.Errorf("failed to clear order items: %w", err)
	}
	for i, item := range ord.Items {
		oi := model.OrderItem{
			ID:       uuid.Must(uuid.NewV7()).String(),
			OrderID:  order.ID,
			Qty:      item.Qty,
			Price:    item.Price,
			Position: i,
		}
		if item.SKU != "" {
			oi.SKU = &item.SKU
		}
		if item.Title != "" {
			oi.Title = &item.Title
		}
		if item.Currency != "" {
			oi.Currency = &item.Currency
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, sku, title, qty, price, currency, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			oi.ID, oi.OrderID, oi.SKU, oi.Title, oi.Qty, oi.Price, oi.Currency, oi.Position,
		); err != nil {
			return nil, false, fmt.Errorf("failed to insert order item: %w", err)
		}
		order.Items = append(order.Items, oi)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit upsert: %w", err)
	}

	return order, created, nil
}

// resolveCustomer finds the customer by phone, then email, creating one
// when neither matches. First match wins so repeated cycles never create
// duplicates.
func resolveCustomer(ctx context.Context, tx pgx.Tx, storeID string, contact *model.NormalizedContact) (*string, error) {
	if contact == nil || (contact.Phone == "" && contact.Email == "") {
		return nil, nil
	}

	var id string
	if contact.Phone != "" {
		err := tx.QueryRow(ctx,
			`SELECT id FROM customers WHERE store_id = $1 AND phone = $2 LIMIT 1`,
			storeID, contact.Phone,
		).Scan(&id)
		if err == nil {
			return &id, nil
		}
		if err != pgx.ErrNoRows {
			return nil, fmt.Errorf("failed to look up customer by phone: %w", err)
		}
	}
	if contact.Email != "" {
		err := tx.QueryRow(ctx,
			`SELECT id FROM customers WHERE store_id = $1 AND email = $2 LIMIT 1`,
			storeID, contact.Email,
		).Scan(&id)
		if err == nil {
			return &id, nil
		}
		if err != pgx.ErrNoRows {
			return nil, fmt.Errorf("failed to look up customer by email: %w", err)
		}
	}

	id = uuid.Must(uuid.NewV7()).String()
	var name, phone, email *string
	if contact.Name != "" {
		name = &contact.Name
	}
	if contact.Phone != "" {
		phone = &contact.Phone
	}
	if contact.Email != "" {
		email = &contact.Email
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO customers (id, store_id, name, phone, email)
		VALUES ($1, $2, $3, $4, $5)`,
		id, storeID, name, phone, email,
	); err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}
	return &id, nil
}

// GetOrder loads one order with its items.
func (s *Store) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	var o model.Order
	err := s.pool.QueryRow(ctx, `
		SELECT id, store_id, customer_id, external_key, status, total, currency, notes, raw_payload, created_at, updated_at
		FROM orders WHERE id = $1`, id,
	).Scan(&o.ID, &o.StoreID, &o.CustomerID, &o.ExternalKey, &o.Status, &o.Total,
		&o.Currency, &o.Notes, &o.RawPayload, &o.CreatedAt, &o.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, sku, title, qty, price, currency, position
		FROM order_items WHERE order_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.SKU, &it.Title, &it.Qty, &it.Price, &it.Currency, &it.Position); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order items: %w", err)
	}

	return &o, nil
}

// SetOrderStatus updates the order's lifecycle status.
func (s *Store) SetOrderStatus(ctx context.Context, id string, status model.OrderStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetCustomer loads one customer.
func (s *Store) GetCustomer(ctx context.Context, id string) (*model.Customer, error) {
	var c model.Customer
	err := s.pool.QueryRow(ctx, `
		SELECT id, store_id, name, phone, email, created_at, updated_at
		FROM customers WHERE id = $1`, id,
	).Scan(&c.ID, &c.StoreID, &c.Name, &c.Phone, &c.Email, &c.CreatedAt, &c.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load customer: %w", err)
	}
	return &c, nil
}

// Package model defines data structures for the operations platform.
package model

import (
	"time"
)

// OrderStatus is the lifecycle status of an order.
type OrderStatus string

const (
	OrderStatusNew        OrderStatus = "new"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// Customer is a tenant-scoped buyer record. Matching on ingestion is by
// (store, phone) first, then (store, email), so repeated ingestion cycles
// never create duplicates for the same contact.
type Customer struct {
	ID        string    `json:"id"`
	StoreID   string    `json:"store_id"`
	Name      *string   `json:"name,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
	Email     *string   `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Order is a tenant-scoped order, uniquely identified by (store_id,
// external_key). Re-ingestion of the same external key updates the payload
// and customer link but preserves the order id and its conversations.
type Order struct {
	ID          string            `json:"id"`
	StoreID     string            `json:"store_id"`
	CustomerID  *string           `json:"customer_id,omitempty"`
	ExternalKey string            `json:"external_key"`
	Status      OrderStatus       `json:"status"`
	Total       *float64          `json:"total,omitempty"`
	Currency    string            `json:"currency,omitempty"`
	Notes       string            `json:"notes,omitempty"`
	RawPayload  map[string]string `json:"raw_payload,omitempty"`
	Items       []OrderItem       `json:"items,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// OrderItem is one line of an order. The full item set is replaced
// atomically whenever the parent order is re-ingested.
type OrderItem struct {
	ID       string   `json:"id"`
	OrderID  string   `json:"order_id"`
	SKU      *string  `json:"sku,omitempty"`
	Title    *string  `json:"title,omitempty"`
	Qty      int      `json:"qty"`
	Price    *float64 `json:"price,omitempty"`
	Currency *string  `json:"currency,omitempty"`
	Position int      `json:"position"`
}

// NormalizedOrder is the transient shape produced by the row normalizer.
// It is never persisted directly; the upsert engine reconciles it against
// existing customer/order rows.
type NormalizedOrder struct {
	ExternalKey string             `json:"external_key"`
	Customer    *NormalizedContact `json:"customer,omitempty"`
	Items       []NormalizedItem   `json:"items"`
	Total       *float64           `json:"total,omitempty"`
	Currency    string             `json:"currency,omitempty"`
	Notes       string             `json:"notes,omitempty"`
}

// NormalizedContact is the customer portion of a normalized row.
type NormalizedContact struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// NormalizedItem is one normalized line item. Qty defaults to 1 when the
// source value is absent or unparseable; Price stays nil when unparseable
// so "free" and "unknown" remain distinguishable.
type NormalizedItem struct {
	SKU      string   `json:"sku,omitempty"`
	Title    string   `json:"title,omitempty"`
	Qty      int      `json:"qty"`
	Price    *float64 `json:"price,omitempty"`
	Currency string   `json:"currency,omitempty"`
}

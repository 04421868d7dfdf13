package model

// Domain events carried over the internal queue. All events are
// JSON-serializable and carry enough to be replayed idempotently.

// OrderUpserted is emitted after the upsert transaction commits for a
// newly created or updated order.
type OrderUpserted struct {
	OrderID     string `json:"order_id"`
	StoreID     string `json:"store_id"`
	ExternalKey string `json:"external_key"`
}

// ConversationStart requests outreach to a buyer: a new order or contact
// needs a first message.
type ConversationStart struct {
	StoreID    string `json:"store_id"`
	To         string `json:"to"`
	CustomerID string `json:"customer_id,omitempty"`
	OrderID    string `json:"order_id,omitempty"`
	BuyerText  string `json:"buyer_text,omitempty"`
	Locale     string `json:"locale,omitempty"`
	Context    string `json:"context,omitempty"`
}

// ConversationUserMessage is an inbound buyer message routed to the
// conversation worker.
type ConversationUserMessage struct {
	StoreID        string `json:"store_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	To             string `json:"to"`
	Text           string `json:"text"`
	Locale         string `json:"locale,omitempty"`
	Context        string `json:"context,omitempty"`
}

package model

import (
	"time"
)

// SourceConfig is one tenant-configured spreadsheet source. LastRow is an
// advisory cursor only; the ingestion ledger is what prevents reprocessing.
// CountryCode is the store's dialing prefix for phone normalization; empty
// defers to the process default.
type SourceConfig struct {
	ID          string    `json:"id"`
	StoreID     string    `json:"store_id"`
	URI         string    `json:"uri"`
	Tab         string    `json:"tab,omitempty"`
	CountryCode string    `json:"country_code,omitempty"`
	Enabled     bool      `json:"enabled"`
	LastRow     int       `json:"last_row"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RawRow is an immutable snapshot of one ingested spreadsheet row. The
// signature is a deterministic hash of the field map and the idempotency
// key is derived from (source id, row number, signature).
type RawRow struct {
	SourceID       string            `json:"source_id"`
	RowNumber      int               `json:"row_number"`
	Fields         map[string]string `json:"fields"`
	Signature      string            `json:"signature"`
	IdempotencyKey string            `json:"idempotency_key"`
}

// IngestionOutcome is the recorded result of one row application.
type IngestionOutcome string

const (
	IngestionOutcomeSuccess IngestionOutcome = "success"
	IngestionOutcomeError   IngestionOutcome = "error"
)

// IngestionAudit is one ledger entry per attempted row application. A
// success entry for an idempotency key means that exact row content has
// been applied and must not be re-applied.
type IngestionAudit struct {
	IdempotencyKey string           `json:"idempotency_key"`
	RunID          string           `json:"run_id"`
	SourceID       string           `json:"source_id"`
	RowNumber      int              `json:"row_number"`
	Signature      string           `json:"signature"`
	Outcome        IngestionOutcome `json:"outcome"`
	Ref            *string          `json:"ref,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

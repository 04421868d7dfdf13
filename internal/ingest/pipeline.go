package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sheetcart-ai/ops-platform/internal/model"
	"github.com/sheetcart-ai/ops-platform/pkg/logger"
	"github.com/sheetcart-ai/ops-platform/pkg/metrics"
)

// Ledger records which row identities have already been applied.
type Ledger interface {
	ShouldProcess(ctx context.Context, idempotencyKey string) (bool, error)
	RecordProcessed(ctx context.Context, rec model.IngestionAudit) error
	SaveRawRow(ctx context.Context, row model.RawRow) error
}

// OrderUpserter applies a normalized order atomically.
type OrderUpserter interface {
	UpsertOrder(ctx context.Context, storeID string, ord model.NormalizedOrder, raw map[string]string) (*model.Order, bool, error)
}

// SourceLister enumerates enabled sources and tracks the advisory cursor.
type SourceLister interface {
	ListEnabledSources(ctx context.Context) ([]model.SourceConfig, error)
	AdvanceSourceCursor(ctx context.Context, sourceID string, lastRow int) error
}

// Indexer stores a similarity vector for a row. Failures are non-fatal to
// ingestion.
type Indexer interface {
	Index(ctx context.Context, id, text string) error
}

// EventPublisher emits domain events after side effects commit.
type EventPublisher interface {
	PublishOrderUpserted(ctx context.Context, evt model.OrderUpserted) error
}

// Pipeline composes the extractor, ledger, normalizer, indexer, and
// upsert engine per configured source, per poll cycle.
type Pipeline struct {
	extractor  Extractor
	ledger     Ledger
	normalizer *Normalizer
	indexer    Indexer
	orders     OrderUpserter
	sources    SourceLister
	events     EventPublisher
	log        *logger.Logger
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(
	extractor Extractor,
	ledger Ledger,
	normalizer *Normalizer,
	indexer Indexer,
	orders OrderUpserter,
	sources SourceLister,
	events EventPublisher,
	log *logger.Logger,
) *Pipeline {
	return &Pipeline{
		extractor:  extractor,
		ledger:     ledger,
		normalizer: normalizer,
		indexer:    indexer,
		orders:     orders,
		sources:    sources,
		events:     events,
		log:        log.Component("ingest"),
	}
}

// RunTick processes every enabled source once. A source that fails to
// fetch is logged and skipped; the rest of the tick continues.
func (p *Pipeline) RunTick(ctx context.Context) {
	runID := uuid.Must(uuid.NewV7()).String()

	sources, err := p.sources.ListEnabledSources(ctx)
	if err != nil {
		p.log.Error("failed to list sources", zap.Error(err))
		return
	}

	for _, src := range sources {
		if ctx.Err() != nil {
			return
		}
		if err := p.ProcessSource(ctx, src, runID); err != nil {
			p.log.Error("source tick failed",
				zap.String("source_id", src.ID),
				zap.String("run_id", runID),
				zap.Error(err))
		}
	}
}

// ProcessSource ingests one source's rows in spreadsheet order. A single
// row's failure is audited and the remaining rows continue.
func (p *Pipeline) ProcessSource(ctx context.Context, src model.SourceConfig, runID string) error {
	rows, err := p.extractor.FetchRows(ctx, src)
	if err != nil {
		return fmt.Errorf("failed to fetch rows for source %s: %w", src.ID, err)
	}

	lastRow := src.LastRow
	for _, row := range rows {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if row.Number > lastRow {
			lastRow = row.Number
		}
		if err := p.processRow(ctx, src, row, runID); err != nil {
			p.log.Warn("row processing failed",
				zap.String("source_id", src.ID),
				zap.Int("row_number", row.Number),
				zap.Error(err))
		}
	}

	if err := p.sources.AdvanceSourceCursor(ctx, src.ID, lastRow); err != nil {
		p.log.Warn("failed to advance source cursor", zap.String("source_id", src.ID), zap.Error(err))
	}
	return nil
}

func (p *Pipeline) processRow(ctx context.Context, src model.SourceConfig, row Row, runID string) error {
	sig := Signature(row.Fields)
	raw := model.RawRow{
		SourceID:       src.ID,
		RowNumber:      row.Number,
		Fields:         row.Fields,
		Signature:      sig,
		IdempotencyKey: IdempotencyKey(src.ID, row.Number, sig),
	}

	ok, err := p.ledger.ShouldProcess(ctx, raw.IdempotencyKey)
	if err != nil {
		return fmt.Errorf("ledger check failed: %w", err)
	}
	if !ok {
		metrics.RowsSkipped.WithLabelValues(src.ID).Inc()
		return nil
	}

	if err := p.ledger.SaveRawRow(ctx, raw); err != nil {
		return fmt.Errorf("failed to snapshot raw row: %w", err)
	}

	ord := p.normalizer.Normalize(ctx, raw, src.StoreID, src.CountryCode)
	if ord.ExternalKey == "" {
		ord.ExternalKey = fmt.Sprintf("%s:%d", src.ID, row.Number)
	}

	// Similarity indexing is best-effort: an unreachable embedding
	// service must not cost us the order.
	if err := p.indexer.Index(ctx, raw.IdempotencyKey, RenderRow(row.Fields)); err != nil {
		metrics.EmbedFailures.Inc()
		p.log.Warn("similarity indexing skipped",
			zap.String("source_id", src.ID),
			zap.Int("row_number", row.Number),
			zap.Error(err))
	}

	order, created, err := p.orders.UpsertOrder(ctx, src.StoreID, ord, row.Fields)
	if err != nil {
		metrics.RowsProcessed.WithLabelValues(src.ID, string(model.IngestionOutcomeError)).Inc()
		if recErr := p.ledger.RecordProcessed(ctx, model.IngestionAudit{
			IdempotencyKey: raw.IdempotencyKey,
			RunID:          runID,
			SourceID:       src.ID,
			RowNumber:      row.Number,
			Signature:      sig,
			Outcome:        model.IngestionOutcomeError,
		}); recErr != nil {
			p.log.Error("failed to record error audit", zap.Error(recErr))
		}
		return fmt.Errorf("upsert failed: %w", err)
	}

	op := "updated"
	if created {
		op = "created"
	}
	metrics.OrdersUpserted.WithLabelValues(src.StoreID, op).Inc()
	metrics.RowsProcessed.WithLabelValues(src.ID, string(model.IngestionOutcomeSuccess)).Inc()

	if err := p.events.PublishOrderUpserted(ctx, model.OrderUpserted{
		OrderID:     order.ID,
		StoreID:     src.StoreID,
		ExternalKey: order.ExternalKey,
	}); err != nil {
		p.log.Error("failed to publish order.upserted",
			zap.String("order_id", order.ID),
			zap.Error(err))
	}

	// The ledger entry lands last: if this write fails after the upsert
	// committed, the next tick reapplies the row and the upsert-by-key
	// design absorbs the duplicate.
	if err := p.ledger.RecordProcessed(ctx, model.IngestionAudit{
		IdempotencyKey: raw.IdempotencyKey,
		RunID:          runID,
		SourceID:       src.ID,
		RowNumber:      row.Number,
		Signature:      sig,
		Outcome:        model.IngestionOutcomeSuccess,
		Ref:            &order.ID,
	}); err != nil {
		return fmt.Errorf("failed to record success audit: %w", err)
	}

	p.log.Info("row ingested",
		zap.String("source_id", src.ID),
		zap.Int("row_number", row.Number),
		zap.String("order_id", order.ID),
		zap.String("external_key", order.ExternalKey),
		zap.Bool("created", created))
	return nil
}

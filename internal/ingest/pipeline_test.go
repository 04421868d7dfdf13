package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetcart-ai/ops-platform/internal/model"
	"github.com/sheetcart-ai/ops-platform/pkg/logger"
)

type fakeLedger struct {
	applied map[string]bool
	audits  []model.IngestionAudit
	raws    []model.RawRow
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{applied: make(map[string]bool)}
}

func (l *fakeLedger) ShouldProcess(ctx context.Context, key string) (bool, error) {
	return !l.applied[key], nil
}

func (l *fakeLedger) RecordProcessed(ctx context.Context, rec model.IngestionAudit) error {
	l.audits = append(l.audits, rec)
	if rec.Outcome == model.IngestionOutcomeSuccess {
		l.applied[rec.IdempotencyKey] = true
	}
	return nil
}

func (l *fakeLedger) SaveRawRow(ctx context.Context, row model.RawRow) error {
	l.raws = append(l.raws, row)
	return nil
}

type fakeUpserter struct {
	calls   int
	failFor map[string]error
}

func (u *fakeUpserter) UpsertOrder(ctx context.Context, storeID string, ord model.NormalizedOrder, raw map[string]string) (*model.Order, bool, error) {
	if err := u.failFor[ord.ExternalKey]; err != nil {
		return nil, false, err
	}
	u.calls++
	return &model.Order{
		ID:          fmt.Sprintf("order-%s", ord.ExternalKey),
		StoreID:     storeID,
		ExternalKey: ord.ExternalKey,
		Status:      model.OrderStatusNew,
	}, true, nil
}

type fakeSources struct {
	sources []model.SourceConfig
	cursors map[string]int
}

func (s *fakeSources) ListEnabledSources(ctx context.Context) ([]model.SourceConfig, error) {
	return s.sources, nil
}

func (s *fakeSources) AdvanceSourceCursor(ctx context.Context, sourceID string, lastRow int) error {
	if s.cursors == nil {
		s.cursors = make(map[string]int)
	}
	s.cursors[sourceID] = lastRow
	return nil
}

type fakeIndexer struct {
	indexed []string
	err     error
}

func (i *fakeIndexer) Index(ctx context.Context, id, text string) error {
	if i.err != nil {
		return i.err
	}
	i.indexed = append(i.indexed, id)
	return nil
}

type fakePublisher struct {
	events []model.OrderUpserted
}

func (p *fakePublisher) PublishOrderUpserted(ctx context.Context, evt model.OrderUpserted) error {
	p.events = append(p.events, evt)
	return nil
}

type fakeExtractor struct {
	rows map[string][]Row
	err  map[string]error
}

func (e *fakeExtractor) FetchRows(ctx context.Context, src model.SourceConfig) ([]Row, error) {
	if err := e.err[src.ID]; err != nil {
		return nil, err
	}
	return e.rows[src.ID], nil
}

func newTestPipeline(ex *fakeExtractor, led *fakeLedger, up *fakeUpserter, srcs *fakeSources, ix *fakeIndexer, pub *fakePublisher) *Pipeline {
	norm := NewNormalizer(&stubLLM{content: `{}`}, "", "+212", logger.NewNop())
	return NewPipeline(ex, led, norm, ix, up, srcs, pub, logger.NewNop())
}

func TestProcessSourceIsIdempotent(t *testing.T) {
	src := model.SourceConfig{ID: "src-1", StoreID: "store-1", Enabled: true}
	ex := &fakeExtractor{rows: map[string][]Row{
		"src-1": {
			{Number: 2, Fields: map[string]string{"order_id": "A-1", "name": "Sara"}},
			{Number: 3, Fields: map[string]string{"order_id": "A-2", "name": "Omar"}},
		},
	}}
	led := newFakeLedger()
	up := &fakeUpserter{}
	srcs := &fakeSources{sources: []model.SourceConfig{src}}
	pub := &fakePublisher{}

	p := newTestPipeline(ex, led, up, srcs, &fakeIndexer{}, pub)

	require.NoError(t, p.ProcessSource(context.Background(), src, "run-1"))
	assert.Equal(t, 2, up.calls)
	assert.Len(t, pub.events, 2)

	// Same rows again: nothing reapplied, nothing republished.
	require.NoError(t, p.ProcessSource(context.Background(), src, "run-2"))
	assert.Equal(t, 2, up.calls)
	assert.Len(t, pub.events, 2)
}

func TestProcessSourceReappliesEditedRow(t *testing.T) {
	src := model.SourceConfig{ID: "src-1", StoreID: "store-1", Enabled: true}
	ex := &fakeExtractor{rows: map[string][]Row{
		"src-1": {{Number: 2, Fields: map[string]string{"order_id": "A-1", "qty": "1"}}},
	}}
	led := newFakeLedger()
	up := &fakeUpserter{}
	srcs := &fakeSources{sources: []model.SourceConfig{src}}

	p := newTestPipeline(ex, led, up, srcs, &fakeIndexer{}, &fakePublisher{})

	require.NoError(t, p.ProcessSource(context.Background(), src, "run-1"))
	require.Equal(t, 1, up.calls)

	// The cell edit changes the signature, so the row is picked up again.
	ex.rows["src-1"] = []Row{{Number: 2, Fields: map[string]string{"order_id": "A-1", "qty": "2"}}}
	require.NoError(t, p.ProcessSource(context.Background(), src, "run-2"))
	assert.Equal(t, 2, up.calls)
}

func TestProcessSourceEmbedFailureDoesNotBlockOrder(t *testing.T) {
	src := model.SourceConfig{ID: "src-1", StoreID: "store-1", Enabled: true}
	ex := &fakeExtractor{rows: map[string][]Row{
		"src-1": {{Number: 2, Fields: map[string]string{"order_id": "A-1"}}},
	}}
	led := newFakeLedger()
	up := &fakeUpserter{}
	srcs := &fakeSources{sources: []model.SourceConfig{src}}
	pub := &fakePublisher{}

	p := newTestPipeline(ex, led, up, srcs, &fakeIndexer{err: errors.New("embedding service down")}, pub)

	require.NoError(t, p.ProcessSource(context.Background(), src, "run-1"))
	assert.Equal(t, 1, up.calls)
	require.Len(t, led.audits, 1)
	assert.Equal(t, model.IngestionOutcomeSuccess, led.audits[0].Outcome)
}

func TestProcessSourceRowFailureContinues(t *testing.T) {
	src := model.SourceConfig{ID: "src-1", StoreID: "store-1", Enabled: true}
	ex := &fakeExtractor{rows: map[string][]Row{
		"src-1": {
			{Number: 2, Fields: map[string]string{"order_id": "BAD"}},
			{Number: 3, Fields: map[string]string{"order_id": "A-2"}},
		},
	}}
	led := newFakeLedger()
	up := &fakeUpserter{failFor: map[string]error{"BAD": errors.New("constraint violation")}}
	srcs := &fakeSources{sources: []model.SourceConfig{src}}

	p := newTestPipeline(ex, led, up, srcs, &fakeIndexer{}, &fakePublisher{})

	require.NoError(t, p.ProcessSource(context.Background(), src, "run-1"))
	assert.Equal(t, 1, up.calls, "the good row still lands")

	outcomes := map[model.IngestionOutcome]int{}
	for _, a := range led.audits {
		outcomes[a.Outcome]++
	}
	assert.Equal(t, 1, outcomes[model.IngestionOutcomeError])
	assert.Equal(t, 1, outcomes[model.IngestionOutcomeSuccess])

	// Error audits do not block a retry on the next tick.
	require.NoError(t, p.ProcessSource(context.Background(), src, "run-2"))
	assert.Equal(t, 1, up.calls, "BAD still fails, A-2 stays applied")
}

func TestProcessSourceAdvancesCursor(t *testing.T) {
	src := model.SourceConfig{ID: "src-1", StoreID: "store-1", Enabled: true, LastRow: 2}
	ex := &fakeExtractor{rows: map[string][]Row{
		"src-1": {
			{Number: 2, Fields: map[string]string{"order_id": "A-1"}},
			{Number: 5, Fields: map[string]string{"order_id": "A-2"}},
		},
	}}
	srcs := &fakeSources{sources: []model.SourceConfig{src}}

	p := newTestPipeline(ex, newFakeLedger(), &fakeUpserter{}, srcs, &fakeIndexer{}, &fakePublisher{})

	require.NoError(t, p.ProcessSource(context.Background(), src, "run-1"))
	assert.Equal(t, 5, srcs.cursors["src-1"])
}

func TestRunTickContinuesPastFailingSource(t *testing.T) {
	broken := model.SourceConfig{ID: "src-broken", StoreID: "store-1", Enabled: true}
	good := model.SourceConfig{ID: "src-good", StoreID: "store-1", Enabled: true}
	ex := &fakeExtractor{
		rows: map[string][]Row{"src-good": {{Number: 2, Fields: map[string]string{"order_id": "A-1"}}}},
		err:  map[string]error{"src-broken": errors.New("404 from sheet host")},
	}
	up := &fakeUpserter{}
	srcs := &fakeSources{sources: []model.SourceConfig{broken, good}}

	p := newTestPipeline(ex, newFakeLedger(), up, srcs, &fakeIndexer{}, &fakePublisher{})

	p.RunTick(context.Background())
	assert.Equal(t, 1, up.calls, "the healthy source still ingests")
}

func TestProcessRowSynthesizesExternalKey(t *testing.T) {
	// No reference column anywhere: the key falls back to source and row.
	src := model.SourceConfig{ID: "src-1", StoreID: "store-1", Enabled: true}
	ex := &fakeExtractor{rows: map[string][]Row{
		"src-1": {{Number: 4, Fields: map[string]string{"name": "Sara"}}},
	}}
	pub := &fakePublisher{}
	srcs := &fakeSources{sources: []model.SourceConfig{src}}

	p := newTestPipeline(ex, newFakeLedger(), &fakeUpserter{}, srcs, &fakeIndexer{}, pub)

	require.NoError(t, p.ProcessSource(context.Background(), src, "run-1"))
	require.Len(t, pub.events, 1)
	assert.Equal(t, "src-1:4", pub.events[0].ExternalKey)
}

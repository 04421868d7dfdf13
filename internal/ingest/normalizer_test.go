package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetcart-ai/ops-platform/internal/llm"
	"github.com/sheetcart-ai/ops-platform/internal/model"
	"github.com/sheetcart-ai/ops-platform/pkg/logger"
)

type stubLLM struct {
	content string
	err     error
}

func (s *stubLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.CompletionResponse{Content: s.content, Model: "stub-model"}, nil
}

func (s *stubLLM) Name() string { return "stub" }

func testRow(fields map[string]string) model.RawRow {
	return model.RawRow{SourceID: "src-1", RowNumber: 2, Fields: fields}
}

func TestNormalizeParsesModelOutput(t *testing.T) {
	client := &stubLLM{content: `Here is the order:
{"external_key": "A-100",
 "customer": {"name": "Sara", "phone": "0612345678"},
 "items": [{"title": "Blue Tee", "qty": "2", "price": "99,90", "currency": "MAD"}],
 "total": 199.8, "currency": "MAD"}`}
	n := NewNormalizer(client, "", "+212", logger.NewNop())

	ord := n.Normalize(context.Background(), testRow(map[string]string{"order_id": "A-100"}), "Atlas Wear", "")

	assert.Equal(t, "A-100", ord.ExternalKey)
	require.NotNil(t, ord.Customer)
	assert.Equal(t, "Sara", ord.Customer.Name)
	assert.Equal(t, "+212612345678", ord.Customer.Phone, "local number must normalize to E.164")
	require.Len(t, ord.Items, 1)
	assert.Equal(t, 2, ord.Items[0].Qty)
	require.NotNil(t, ord.Items[0].Price)
	assert.InDelta(t, 99.90, *ord.Items[0].Price, 0.001, "decimal comma must parse")
	require.NotNil(t, ord.Total)
	assert.InDelta(t, 199.8, *ord.Total, 0.001)
}

func TestNormalizeFallsBackOnModelError(t *testing.T) {
	client := &stubLLM{err: errors.New("model unavailable")}
	n := NewNormalizer(client, "", "+212", logger.NewNop())

	ord := n.Normalize(context.Background(), testRow(map[string]string{"Order_ID": " A-7 ", "name": "Sara"}), "Atlas Wear", "")

	assert.Equal(t, "A-7", ord.ExternalKey, "external key comes from the reference column, case-insensitively")
	assert.Nil(t, ord.Customer)
	assert.Empty(t, ord.Items)
}

func TestNormalizeFallsBackOnGarbageOutput(t *testing.T) {
	client := &stubLLM{content: "I cannot produce JSON for this row."}
	n := NewNormalizer(client, "", "+212", logger.NewNop())

	ord := n.Normalize(context.Background(), testRow(map[string]string{"id": "42"}), "Atlas Wear", "")

	assert.Equal(t, "42", ord.ExternalKey)
	assert.Empty(t, ord.Items)
}

func TestNormalizeExternalKeyFallsBackToColumn(t *testing.T) {
	// Model omits the external key; the reference column fills it.
	client := &stubLLM{content: `{"customer": {"name": "Omar"}, "items": []}`}
	n := NewNormalizer(client, "", "+212", logger.NewNop())

	ord := n.Normalize(context.Background(), testRow(map[string]string{"reference": "R-9"}), "Atlas Wear", "")
	assert.Equal(t, "R-9", ord.ExternalKey)
}

func TestNormalizeUsesSourceCountryCode(t *testing.T) {
	client := &stubLLM{content: `{"external_key": "A-1", "customer": {"name": "Léa", "phone": "0612345678"}}`}
	n := NewNormalizer(client, "", "+212", logger.NewNop())

	ord := n.Normalize(context.Background(), testRow(map[string]string{"order_id": "A-1"}), "Paris Shop", "+33")

	require.NotNil(t, ord.Customer)
	assert.Equal(t, "+33612345678", ord.Customer.Phone, "source prefix wins over the process default")
}

func TestCoerceQty(t *testing.T) {
	assert.Equal(t, 3, coerceQty(float64(3)))
	assert.Equal(t, 2, coerceQty("2"))
	assert.Equal(t, 1, coerceQty(nil), "absent qty defaults to 1")
	assert.Equal(t, 1, coerceQty("many"))
	assert.Equal(t, 1, coerceQty(float64(0)))
	assert.Equal(t, 1, coerceQty(float64(-4)))
}

func TestCoerceFloat(t *testing.T) {
	require.NotNil(t, coerceFloat(float64(0)))
	assert.Equal(t, 0.0, *coerceFloat(float64(0)), "free stays zero, not nil")
	assert.Nil(t, coerceFloat(nil))
	assert.Nil(t, coerceFloat("n/a"))

	v := coerceFloat("12,50")
	require.NotNil(t, v)
	assert.InDelta(t, 12.50, *v, 0.001)
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+212612345678", NormalizePhone("06 12 34 56 78", "+212"))
	assert.Equal(t, "+212612345678", NormalizePhone("00212612345678", "+212"))
	assert.Equal(t, "+33612345678", NormalizePhone("+33 6 12 34 56 78", "+212"))
	assert.Equal(t, "", NormalizePhone("no number", "+212"))
}

package ingest

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sheetcart-ai/ops-platform/internal/llm"
	"github.com/sheetcart-ai/ops-platform/internal/model"
	"github.com/sheetcart-ai/ops-platform/pkg/logger"
	"github.com/sheetcart-ai/ops-platform/pkg/metrics"
)

const normalizerSystemPrompt = `You normalize raw e-commerce spreadsheet rows into JSON orders.
Reply with a single JSON object and nothing else, using exactly this shape:
{"external_key": string, "customer": {"name": string, "phone": string, "email": string},
"items": [{"sku": string, "title": string, "qty": number, "price": number, "currency": string}],
"total": number, "currency": string, "notes": string}
Omit fields you cannot determine. Never invent prices or totals.`

// Normalizer turns one raw row into a structured order via the language
// model. It never fails: malformed model output degrades to a minimal
// order carrying only the external key.
type Normalizer struct {
	client      llm.Client
	modelName   string
	countryCode string
	log         *logger.Logger
}

// NewNormalizer creates a row normalizer. countryCode is the default
// dialing prefix used to normalize local phone numbers to E.164.
func NewNormalizer(client llm.Client, modelName, countryCode string, log *logger.Logger) *Normalizer {
	return &Normalizer{
		client:      client,
		modelName:   modelName,
		countryCode: countryCode,
		log:         log.Component("normalizer"),
	}
}

// Normalize asks the model for a structured order for the given row.
// countryCode is the source's dialing prefix; empty falls back to the
// process default.
func (n *Normalizer) Normalize(ctx context.Context, row model.RawRow, storeName, countryCode string) model.NormalizedOrder {
	if countryCode == "" {
		countryCode = n.countryCode
	}
	prompt := "Store: " + storeName + "\nRow:\n" + RenderRow(row.Fields)

	resp, err := n.client.Complete(ctx, &llm.CompletionRequest{
		Model: n.modelName,
		Messages: []llm.ChatMessage{
			{Role: "system", Content: normalizerSystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0,
	})
	if err != nil {
		metrics.RecordLLMCall(n.client.Name(), "normalize", "error", 0, n.modelName, 0, 0)
		n.log.Warn("normalizer model call failed, using minimal order",
			zap.String("source_id", row.SourceID),
			zap.Int("row_number", row.RowNumber),
			zap.Error(err))
		return minimalOrder(row)
	}
	metrics.RecordLLMCall(n.client.Name(), "normalize", "success",
		float64(resp.LatencyMs)/1000.0, resp.Model, resp.TokensIn, resp.TokensOut)

	ord, ok := parseNormalized(resp.Content)
	if !ok {
		n.log.Warn("normalizer output unparseable, using minimal order",
			zap.String("source_id", row.SourceID),
			zap.Int("row_number", row.RowNumber))
		return minimalOrder(row)
	}

	if ord.ExternalKey == "" {
		ord.ExternalKey = externalKeyFromRow(row)
	}
	if ord.Customer != nil && ord.Customer.Phone != "" {
		ord.Customer.Phone = NormalizePhone(ord.Customer.Phone, countryCode)
	}
	return ord
}

// minimalOrder is the degraded shape: external key from any recognizable
// reference column, no items, no totals.
func minimalOrder(row model.RawRow) model.NormalizedOrder {
	return model.NormalizedOrder{ExternalKey: externalKeyFromRow(row)}
}

func externalKeyFromRow(row model.RawRow) string {
	for _, k := range []string{"order_id", "id", "reference"} {
		for field, v := range row.Fields {
			if strings.EqualFold(strings.TrimSpace(field), k) && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
	}
	return ""
}

// rawNormalized tolerates the loose typing models produce: qty and price
// arrive as numbers or strings and are coerced afterwards.
type rawNormalized struct {
	ExternalKey string `json:"external_key"`
	Customer    *struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
		Email string `json:"email"`
	} `json:"customer"`
	Items []struct {
		SKU      string `json:"sku"`
		Title    string `json:"title"`
		Qty      any    `json:"qty"`
		Price    any    `json:"price"`
		Currency string `json:"currency"`
	} `json:"items"`
	Total    any    `json:"total"`
	Currency string `json:"currency"`
	Notes    string `json:"notes"`
}

func parseNormalized(content string) (model.NormalizedOrder, bool) {
	payload, ok := extractJSON(content)
	if !ok {
		return model.NormalizedOrder{}, false
	}

	var raw rawNormalized
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return model.NormalizedOrder{}, false
	}

	ord := model.NormalizedOrder{
		ExternalKey: strings.TrimSpace(raw.ExternalKey),
		Total:       coerceFloat(raw.Total),
		Currency:    strings.TrimSpace(raw.Currency),
		Notes:       strings.TrimSpace(raw.Notes),
	}
	if raw.Customer != nil && (raw.Customer.Name != "" || raw.Customer.Phone != "" || raw.Customer.Email != "") {
		ord.Customer = &model.NormalizedContact{
			Name:  strings.TrimSpace(raw.Customer.Name),
			Phone: strings.TrimSpace(raw.Customer.Phone),
			Email: strings.TrimSpace(raw.Customer.Email),
		}
	}
	for _, it := range raw.Items {
		ord.Items = append(ord.Items, model.NormalizedItem{
			SKU:      strings.TrimSpace(it.SKU),
			Title:    strings.TrimSpace(it.Title),
			Qty:      coerceQty(it.Qty),
			Price:    coerceFloat(it.Price),
			Currency: strings.TrimSpace(it.Currency),
		})
	}
	return ord, true
}

// extractJSON pulls the JSON object out of model output that may be
// wrapped in code fences or prose.
func extractJSON(content string) (string, bool) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return content[start : end+1], true
}

// coerceQty parses a quantity, defaulting to 1 when absent or not finite.
func coerceQty(v any) int {
	switch q := v.(type) {
	case float64:
		if math.IsNaN(q) || math.IsInf(q, 0) || q < 1 {
			return 1
		}
		return int(q)
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(q)); err == nil && i >= 1 {
			return i
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(q), 64); err == nil && f >= 1 && !math.IsInf(f, 0) {
			return int(f)
		}
	}
	return 1
}

// coerceFloat parses a price or total, returning nil when the value is
// absent or not finite. "Free" (0) and "unknown" (nil) stay distinct.
func coerceFloat(v any) *float64 {
	switch p := v.(type) {
	case float64:
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return nil
		}
		return &p
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(p, ",", "."))
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return &f
		}
	}
	return nil
}

// NormalizePhone converts a local number to E.164 using the store's
// default country code. Already-international numbers pass through.
func NormalizePhone(phone, countryCode string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' || r == '+' {
			b.WriteRune(r)
		}
	}
	p := b.String()
	switch {
	case p == "":
		return ""
	case strings.HasPrefix(p, "+"):
		return p
	case strings.HasPrefix(p, "00"):
		return "+" + p[2:]
	case strings.HasPrefix(p, "0"):
		return countryCode + p[1:]
	default:
		return countryCode + p
	}
}

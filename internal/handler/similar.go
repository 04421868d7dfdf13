package handler

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/sheetcart-ai/ops-platform/internal/vector"
	"github.com/sheetcart-ai/ops-platform/pkg/logger"
)

// SimilarHandler serves nearest-neighbor row lookups, used by operators
// to spot near-duplicate orders across ingested rows.
type SimilarHandler struct {
	indexer *vector.Indexer
	log     *logger.Logger
}

// NewSimilarHandler creates a similarity-lookup handler. indexer may be
// nil when no embedding provider is configured.
func NewSimilarHandler(indexer *vector.Indexer, log *logger.Logger) *SimilarHandler {
	return &SimilarHandler{indexer: indexer, log: log.Component("handler")}
}

// Query returns the k rows nearest to the query text, lowest distance
// first.
func (h *SimilarHandler) Query(w http.ResponseWriter, r *http.Request) {
	if h.indexer == nil {
		writeError(w, http.StatusServiceUnavailable, "similarity index is not configured")
		return
	}

	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	k := 5
	if raw := r.URL.Query().Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 50 {
			writeError(w, http.StatusBadRequest, "k must be between 1 and 50")
			return
		}
		k = n
	}

	matches, err := h.indexer.Query(r.Context(), q, k)
	if err != nil {
		h.log.Error("similarity query failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "similarity query failed")
		return
	}

	type match struct {
		RowID    string  `json:"row_id"`
		Distance float64 `json:"distance"`
	}
	out := make([]match, 0, len(matches))
	for _, m := range matches {
		out = append(out, match{RowID: m.ID, Distance: m.Distance})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"matches": out,
	})
}

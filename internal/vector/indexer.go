package vector

import (
	"context"
	"fmt"

	"github.com/sheetcart-ai/ops-platform/internal/llm"
)

// Indexer embeds text and stores the vector for later lookup.
type Indexer struct {
	embedder llm.Embedder
	index    *Index
}

// NewIndexer creates an indexer over the given embedder and index.
func NewIndexer(embedder llm.Embedder, index *Index) *Indexer {
	return &Indexer{embedder: embedder, index: index}
}

// Index embeds text and stores (id, vector). The caller decides whether a
// failure matters; during ingestion it never does.
func (s *Indexer) Index(ctx context.Context, id, text string) error {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to embed text: %w", err)
	}
	s.index.Upsert(id, vec)
	return nil
}

// Query embeds text and returns its k nearest indexed neighbors.
func (s *Indexer) Query(ctx context.Context, text string, k int) ([]Match, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return s.index.Query(vec, k), nil
}

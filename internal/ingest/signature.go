// Package ingest implements the spreadsheet ingestion pipeline: row
// extraction, idempotency-key derivation, LLM row normalization, and the
// per-source processing loop.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Signature returns a deterministic hash of a row's field map. Keys are
// sorted so column order never affects the result; any cell edit does.
func Signature(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(fields[k]))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// IdempotencyKey derives the stable identity of a (source, row-position,
// content) triple. Unchanged rows keep their key across polls; an edited
// row gets a new one and is reapplied.
func IdempotencyKey(sourceID string, rowNumber int, signature string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s", sourceID, rowNumber, signature)))
	return hex.EncodeToString(h[:])
}

// RenderRow projects a row as a newline-delimited "key: value" block,
// keys sorted. Used both as the normalizer prompt body and as the text
// embedded for similarity indexing.
func RenderRow(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(fields[k])
		b.WriteString("\n")
	}
	return b.String()
}

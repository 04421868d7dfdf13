package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sheetcart-ai/ops-platform/internal/model"
)

// Row is one extracted data row. Number is 1-based in spreadsheet terms:
// the header is row 1, so the first data row is 2.
type Row struct {
	Number int
	Fields map[string]string
}

// Extractor fetches the current contents of a tabular source.
type Extractor interface {
	FetchRows(ctx context.Context, src model.SourceConfig) ([]Row, error)
}

// CSVExtractor fetches a source exported as CSV over HTTP (published
// Google Sheets, Airtable share links, plain files). The first record is
// the header row and is excluded from the result.
type CSVExtractor struct {
	client *http.Client
}

// NewCSVExtractor creates an extractor using the given HTTP client.
func NewCSVExtractor(client *http.Client) *CSVExtractor {
	if client == nil {
		client = http.DefaultClient
	}
	return &CSVExtractor{client: client}
}

// FetchRows downloads and parses the source. Short rows are padded and
// long rows truncated against the header so one ragged line never aborts
// the whole sheet.
func (e *CSVExtractor) FetchRows(ctx context.Context, src model.SourceConfig) ([]Row, error) {
	uri, err := sourceURL(src)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build source request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source fetch returned status %d", resp.StatusCode)
	}

	r := csv.NewReader(resp.Body)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse source CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	rows := make([]Row, 0, len(records)-1)
	for i, record := range records[1:] {
		fields := make(map[string]string, len(header))
		for j, col := range header {
			name := strings.TrimSpace(col)
			if name == "" {
				continue
			}
			if j < len(record) {
				fields[name] = strings.TrimSpace(record[j])
			} else {
				fields[name] = ""
			}
		}
		rows = append(rows, Row{Number: i + 2, Fields: fields})
	}
	return rows, nil
}

// sourceURL appends the tab identifier as a gid query parameter when the
// source configures one.
func sourceURL(src model.SourceConfig) (string, error) {
	u, err := url.Parse(src.URI)
	if err != nil {
		return "", fmt.Errorf("invalid source URI: %w", err)
	}
	if src.Tab != "" {
		q := u.Query()
		q.Set("gid", src.Tab)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

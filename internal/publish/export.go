package publish

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/JakeFAU/legal-corpus-crawler/internal/corpus"
)

// Format selects the on-disk encoding of an exported corpus.
type Format string

const (
	// FormatJSONL writes one JSON object per line.
	FormatJSONL Format = "jsonl"
	// FormatCSV writes a header row followed by one row per record.
	FormatCSV Format = "csv"
)

// ParseFormat accepts "jsonl", "csv", or empty (jsonl).
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatJSONL:
		return FormatJSONL, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unknown export format %q", s)
	}
}

// Ext is the file extension, without the dot.
func (f Format) Ext() string {
	return string(f)
}

// ContentType is the MIME type used when storing the object.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/x-ndjson"
}

// Encode writes records to w in the given format.
func Encode(w io.Writer, f Format, records []corpus.Record) error {
	switch f {
	case FormatJSONL:
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		for i, rec := range records {
			if err := enc.Encode(rec); err != nil {
				return fmt.Errorf("encode record %d: %w", i, err)
			}
		}
		return nil
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(corpus.Columns); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
		for i, rec := range records {
			if err := cw.Write(rec.Row()); err != nil {
				return fmt.Errorf("write csv row %d: %w", i, err)
			}
		}
		cw.Flush()
		return cw.Error()
	default:
		return fmt.Errorf("unknown export format %q", f)
	}
}

// Package corpus collects extracted documents for a crawl run.
package corpus

import (
	"errors"
	"strings"
	"sync"
)

// ErrEmptyContent is returned when a record without usable text is appended.
var ErrEmptyContent = errors.New("corpus: record content is empty")

// Record is one extracted document.
type Record struct {
	SourceURL   string `json:"url"`
	Content     string `json:"content"`
	SourceLabel string `json:"source"`
}

// Columns lists the tabular column names in export order.
var Columns = []string{"url", "content", "source"}

// Row returns the record as a slice aligned with Columns.
func (r Record) Row() []string {
	return []string{r.SourceURL, r.Content, r.SourceLabel}
}

// Accumulator is an append-only, concurrency-safe list of records.
type Accumulator struct {
	mu      sync.Mutex
	records []Record
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Append adds a record. Records whose content is blank are rejected.
func (a *Accumulator) Append(rec Record) error {
	if strings.TrimSpace(rec.Content) == "" {
		return ErrEmptyContent
	}
	a.mu.Lock()
	a.records = append(a.records, rec)
	a.mu.Unlock()
	return nil
}

// Drain hands the accumulated records to the caller and resets the accumulator.
func (a *Accumulator) Drain() []Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.records
	a.records = nil
	if out == nil {
		return []Record{}
	}
	return out
}

// Len reports how many records are held.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

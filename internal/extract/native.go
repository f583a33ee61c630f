package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Native extracts text in-process with github.com/ledongthuc/pdf.
type Native struct{}

// NewNative returns the strategy.
func NewNative() *Native { return &Native{} }

// Name implements Strategy.
func (Native) Name() string { return StrategyNative }

// Extract implements Strategy. Unreadable pages are skipped. The library
// panics on some malformed inputs; those panics are returned as errors.
func (Native) Extract(ctx context.Context, content []byte) (text string, err error) {
	if len(content) == 0 {
		return "", errors.New("empty pdf content")
	}
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(pageText)
	}
	return b.String(), nil
}

// Package extract converts PDF bytes to plain text.
//
// Extraction runs an ordered Chain of strategies. The first strategy whose
// output contains non-whitespace text wins; errors and blank output both fall
// through to the next strategy.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/legal-corpus-crawler/internal/metrics"
)

// ErrBlankOutput is reported when a strategy ran but produced only whitespace.
var ErrBlankOutput = errors.New("strategy produced no text")

// Strategy is one PDF-to-text engine.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, pdf []byte) (string, error)
}

// Result describes a chain run.
type Result struct {
	Text     string
	Strategy string
	// Attempts holds the error of every strategy that did not win, keyed by name.
	Attempts map[string]error
}

// Chain tries strategies in order.
type Chain struct {
	strategies []Strategy
	logger     *zap.Logger
}

// NewChain builds a Chain. A nil logger discards output.
func NewChain(logger *zap.Logger, strategies ...Strategy) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{strategies: strategies, logger: logger}
}

// Strategies returns the strategy names in order.
func (c *Chain) Strategies() []string {
	names := make([]string, 0, len(c.strategies))
	for _, s := range c.strategies {
		names = append(names, s.Name())
	}
	return names
}

// Extract returns the sanitized text of the first successful strategy, or "".
func (c *Chain) Extract(ctx context.Context, pdf []byte) string {
	return c.Run(ctx, pdf).Text
}

// Run is Extract with the details of each attempt.
func (c *Chain) Run(ctx context.Context, pdf []byte) Result {
	res := Result{Attempts: make(map[string]error, len(c.strategies))}
	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			res.Attempts[s.Name()] = err
			break
		}
		text, err := s.Extract(ctx, pdf)
		text = sanitize(text)
		if err == nil && text == "" {
			err = ErrBlankOutput
		}
		if err != nil {
			res.Attempts[s.Name()] = err
			metrics.ObserveExtraction(s.Name(), outcome(err))
			c.logger.Debug("extraction strategy failed", zap.String("strategy", s.Name()), zap.Error(err))
			continue
		}
		metrics.ObserveExtraction(s.Name(), "ok")
		res.Text = text
		res.Strategy = s.Name()
		return res
	}
	return res
}

// sanitize drops invalid UTF-8 and NUL bytes, then trims surrounding space.
// Postgres TEXT columns reject both.
func sanitize(text string) string {
	text = strings.ToValidUTF8(text, "")
	text = strings.ReplaceAll(text, "\x00", "")
	return strings.TrimSpace(text)
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrBlankOutput):
		return "blank"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

// Strategy names accepted by Build.
const (
	StrategyPdftotext = "pdftotext"
	StrategyNative    = "native"
)

// Options configures the built-in strategies.
type Options struct {
	PdftotextPath string
	Timeout       time.Duration
}

// Build assembles a Chain from strategy names.
func Build(names []string, opts Options, logger *zap.Logger) (*Chain, error) {
	if len(names) == 0 {
		names = []string{StrategyPdftotext, StrategyNative}
	}
	strategies := make([]Strategy, 0, len(names))
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case StrategyPdftotext:
			strategies = append(strategies, NewPdftotext(opts.PdftotextPath, opts.Timeout))
		case StrategyNative:
			strategies = append(strategies, NewNative())
		default:
			return nil, fmt.Errorf("unknown extraction strategy %q", name)
		}
	}
	return NewChain(logger, strategies...), nil
}

package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Pdftotext runs the poppler pdftotext binary with the document on stdin.
type Pdftotext struct {
	path    string
	timeout time.Duration
}

// NewPdftotext returns the strategy. An empty path means "pdftotext" on $PATH;
// a non-positive timeout means one minute.
func NewPdftotext(path string, timeout time.Duration) *Pdftotext {
	if path == "" {
		path = "pdftotext"
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Pdftotext{path: path, timeout: timeout}
}

// Name implements Strategy.
func (p *Pdftotext) Name() string { return StrategyPdftotext }

// Extract implements Strategy.
func (p *Pdftotext) Extract(ctx context.Context, pdf []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.path, "-q", "-", "-")
	cmd.Stdin = bytes.NewReader(pdf)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("pdftotext: %w", ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("pdftotext exited with %d: %s", exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return "", fmt.Errorf("run pdftotext: %w", err)
	}
	return stdout.String(), nil
}

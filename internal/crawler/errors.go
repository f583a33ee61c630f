package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotPDF means a body did not start with the PDF magic header.
	ErrNotPDF = errors.New("content is not a PDF")
	// ErrNoText means no extraction strategy produced usable text.
	ErrNoText = errors.New("no extractable text")
	// ErrNoSeeds means a site has nothing to start from.
	ErrNoSeeds = errors.New("no seed URLs configured")
	// ErrAlreadyRan is returned when Run is called twice on the same Crawler.
	ErrAlreadyRan = errors.New("crawler already ran")
	// ErrBodyTooLarge means a response exceeded the configured body cap.
	ErrBodyTooLarge = errors.New("response body too large")
)

var pdfMagic = []byte("%PDF")

// ValidatePDF checks the PDF magic header.
func ValidatePDF(body []byte) error {
	if !bytes.HasPrefix(body, pdfMagic) {
		return ErrNotPDF
	}
	return nil
}

// TransportError wraps DNS, connection, and timeout failures.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error fetching %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPStatusError reports a non-2xx response.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("fetching %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// FilesystemError wraps cache read and write failures.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

// ErrorKind names an error for logs and metrics.
func ErrorKind(err error) string {
	var (
		transportErr *TransportError
		statusErr    *HTTPStatusError
		fsErr        *FilesystemError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, ErrNotPDF):
		return "not_pdf"
	case errors.Is(err, ErrNoText):
		return "no_text"
	case errors.As(err, &statusErr):
		return "http_status"
	case errors.As(err, &transportErr):
		return "transport"
	case errors.As(err, &fsErr):
		return "filesystem"
	default:
		return "error"
	}
}

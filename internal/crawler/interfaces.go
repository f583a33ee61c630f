package crawler

import (
	"context"
	"time"

	"github.com/JakeFAU/legal-corpus-crawler/internal/corpus"
)

// Fetcher performs a single HTTP GET.
// Non-2xx responses come back as *HTTPStatusError, network failures as *TransportError.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResponse, error)
}

// DocumentCache returns PDF bytes for a URL, downloading them at most once.
type DocumentCache interface {
	GetOrFetch(ctx context.Context, url string) ([]byte, CacheOutcome, error)
}

// Extractor turns PDF bytes into text. An empty string means no usable text.
type Extractor interface {
	Extract(ctx context.Context, pdf []byte) string
}

// Sink receives the records produced by a crawl.
type Sink interface {
	Append(rec corpus.Record) error
}

// RetryPolicy decides whether and when a failed fetch is retried.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

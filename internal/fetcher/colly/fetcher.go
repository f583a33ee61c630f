// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/legal-corpus-crawler/internal/crawler"
)

// Default request headers. Some legal-publication hosts answer 406 to
// non-browser user agents.
const (
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/118.0 Safari/537.36"
	DefaultAccept    = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
)

// Limiter throttles requests per domain.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Accept    string
	// Headers are added to every request after User-Agent and Accept.
	Headers      http.Header
	Timeout      time.Duration
	MaxBodyBytes int
	Limiter      Limiter
}

// Fetcher implements crawler.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. Zero values select browser headers, a 30s timeout, and a 64 MiB body cap.
func New(cfg Config) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Accept == "" {
		cfg.Accept = DefaultAccept
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 20
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
		// One byte over the cap lets OnResponse tell a full body from a truncated one.
		colly.MaxBodySize(cfg.MaxBodyBytes+1),
		colly.UserAgent(cfg.UserAgent),
	)
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET using Colly.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawler.FetchResponse, error) {
	if f.cfg.Limiter != nil {
		if err := f.cfg.Limiter.Wait(ctx, url); err != nil {
			return crawler.FetchResponse{}, fmt.Errorf("fetch %s: %w", url, err)
		}
	}

	var (
		result   crawler.FetchResponse
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(ctx, start, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, url, &fetchErr); err != nil {
		// The collector goroutine may still be running after cancellation.
		return crawler.FetchResponse{Duration: time.Since(start)}, err
	}
	if result.StatusCode < 200 || result.StatusCode > 299 {
		return result, &crawler.HTTPStatusError{URL: url, StatusCode: result.StatusCode}
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	ctx context.Context,
	start time.Time,
	result *crawler.FetchResponse,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	f.configureCollectorHooks(collector, start, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *crawler.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.setHeaders(r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		if err := f.checkBodySize(r); err != nil {
			*fetchErr = err
			return
		}
		*result = crawler.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

// checkBodySize rejects responses colly cut short at MaxBodySize.
func (f *Fetcher) checkBodySize(r *colly.Response) error {
	if len(r.Body) > f.cfg.MaxBodyBytes {
		return fmt.Errorf("%w: more than %d bytes", crawler.ErrBodyTooLarge, f.cfg.MaxBodyBytes)
	}
	if r.Headers == nil {
		return nil
	}
	if cl := r.Headers.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err == nil && n > int64(f.cfg.MaxBodyBytes) {
			return fmt.Errorf("%w: content-length %d exceeds %d bytes", crawler.ErrBodyTooLarge, n, f.cfg.MaxBodyBytes)
		}
	}
	return nil
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err == nil {
			err = *fetchErr
		}
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
		}
		return &crawler.TransportError{URL: url, Err: err}
	}
}

func (f *Fetcher) setHeaders(r *colly.Request) {
	r.Headers.Set("User-Agent", f.cfg.UserAgent)
	r.Headers.Set("Accept", f.cfg.Accept)
	for key, values := range f.cfg.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
	}
}

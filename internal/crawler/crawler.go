package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/legal-corpus-crawler/internal/corpus"
	"github.com/JakeFAU/legal-corpus-crawler/internal/metrics"
)

// Deps are the collaborators a Crawler drives.
type Deps struct {
	Fetcher   Fetcher
	Cache     DocumentCache
	Extractor Extractor
	Sink      Sink
	Logger    *zap.Logger
}

// Option customises a Crawler.
type Option func(*Crawler)

// WithConcurrency bounds the number of URLs processed at once. Values below 1 mean 1.
func WithConcurrency(n int) Option {
	return func(c *Crawler) {
		if n < 1 {
			n = 1
		}
		c.concurrency = n
	}
}

// Crawler traverses one site. Each Crawler runs once.
type Crawler struct {
	site        SiteConfig
	scope       *Scope
	visited     *VisitedSet
	fetcher     Fetcher
	cache       DocumentCache
	extractor   Extractor
	sink        Sink
	logger      *zap.Logger
	concurrency int

	ran     atomic.Bool
	running atomic.Bool

	pagesFetched       atomic.Int64
	pdfsDownloaded     atomic.Int64
	cacheHits          atomic.Int64
	documents          atomic.Int64
	extractionFailures atomic.Int64
	validationFailures atomic.Int64
	fetchFailures      atomic.Int64
	ignoredLinks       atomic.Int64
}

type task struct {
	// url is what gets fetched and recorded; key is its visited-set form.
	url  string
	key  string
	kind LinkKind
}

// New validates the site and wires a Crawler.
func New(site SiteConfig, deps Deps, opts ...Option) (*Crawler, error) {
	if err := site.Validate(); err != nil {
		return nil, err
	}
	if deps.Fetcher == nil || deps.Cache == nil || deps.Extractor == nil || deps.Sink == nil {
		return nil, errors.New("crawler requires fetcher, cache, extractor, and sink")
	}
	scope, err := NewScope(site)
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	site.Seeds = append([]string(nil), site.Seeds...)
	c := &Crawler{
		site:        site,
		scope:       scope,
		visited:     NewVisitedSet(),
		fetcher:     deps.Fetcher,
		cache:       deps.Cache,
		extractor:   deps.Extractor,
		sink:        deps.Sink,
		logger:      logger.With(zap.String("site", site.Name)),
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Site returns the crawler's site configuration.
func (c *Crawler) Site() SiteConfig {
	return c.site
}

// Visited exposes the visited set.
func (c *Crawler) Visited() *VisitedSet {
	return c.visited
}

// Run traverses the site until the frontier is empty or ctx is done.
// Per-URL failures are logged and never returned. On cancellation Run stops
// launching work, waits for in-flight URLs, and returns ctx.Err().
func (c *Crawler) Run(ctx context.Context) error {
	if !c.ran.CompareAndSwap(false, true) {
		return ErrAlreadyRan
	}
	c.running.Store(true)
	defer c.running.Store(false)

	start := time.Now()
	c.logger.Info("crawl starting",
		zap.Strings("seeds", c.site.Seeds),
		zap.String("scope", string(c.scope.mode)),
		zap.Int("concurrency", c.concurrency),
	)

	queue := c.seedTasks()
	results := make(chan []task)
	inFlight := 0
	for {
		for inFlight < c.concurrency && len(queue) > 0 && ctx.Err() == nil {
			next := queue[0]
			queue = queue[1:]
			inFlight++
			go func(t task) {
				metrics.IncActiveWorkers()
				defer metrics.DecActiveWorkers()
				results <- c.process(ctx, t)
			}(next)
		}
		if inFlight == 0 {
			break
		}
		children := <-results
		inFlight--
		if ctx.Err() == nil {
			queue = append(queue, children...)
		}
	}

	stats := c.Stats()
	fields := []zap.Field{
		zap.Duration("elapsed", time.Since(start)),
		zap.Int64("documents", stats.Documents),
		zap.Int64("pages_fetched", stats.PagesFetched),
		zap.Int64("pdfs_downloaded", stats.PDFsDownloaded),
		zap.Int64("cache_hits", stats.CacheHits),
		zap.Int64("extraction_failures", stats.ExtractionFailures),
		zap.Int64("validation_failures", stats.ValidationFailures),
		zap.Int64("fetch_failures", stats.FetchFailures),
		zap.Int("visited", stats.Visited),
	}
	if err := ctx.Err(); err != nil {
		c.logger.Warn("crawl interrupted", append(fields, zap.Int("pending", len(queue)), zap.Error(err))...)
		return fmt.Errorf("crawl %s: %w", c.site.Name, err)
	}
	c.logger.Info("crawl finished", fields...)
	return nil
}

// Stats returns a snapshot of the run's counters.
func (c *Crawler) Stats() Stats {
	return Stats{
		Site:               c.site.Name,
		PagesFetched:       c.pagesFetched.Load(),
		PDFsDownloaded:     c.pdfsDownloaded.Load(),
		CacheHits:          c.cacheHits.Load(),
		Documents:          c.documents.Load(),
		ExtractionFailures: c.extractionFailures.Load(),
		ValidationFailures: c.validationFailures.Load(),
		FetchFailures:      c.fetchFailures.Load(),
		IgnoredLinks:       c.ignoredLinks.Load(),
		Visited:            c.visited.Len(),
		Running:            c.running.Load(),
	}
}

func (c *Crawler) seedTasks() []task {
	var tasks []task
	for _, seed := range c.site.Seeds {
		kind := c.scope.Classify(seed)
		if kind == LinkIgnore {
			c.logger.Warn("seed is out of scope", zap.String("url", seed))
			continue
		}
		if t, ok := c.admit(seed, kind); ok {
			tasks = append(tasks, t)
		}
	}
	return tasks
}

// admit marks the URL visited and reports whether it is new.
func (c *Crawler) admit(rawURL string, kind LinkKind) (task, bool) {
	key, err := NormalizeURL(rawURL)
	if err != nil {
		c.logger.Debug("dropping unparsable link", zap.String("url", rawURL), zap.Error(err))
		return task{}, false
	}
	if !c.visited.MarkIfNotVisited(key) {
		return task{}, false
	}
	return task{url: StripFragment(rawURL), key: key, kind: kind}, true
}

func (c *Crawler) process(ctx context.Context, t task) []task {
	if ctx.Err() != nil {
		return nil
	}
	switch t.kind {
	case LinkPDF:
		c.collectPDF(ctx, t.url)
		return nil
	case LinkInScopePage:
		return c.expandPage(ctx, t.url)
	default:
		return nil
	}
}

func (c *Crawler) expandPage(ctx context.Context, pageURL string) []task {
	resp, err := c.fetcher.Fetch(ctx, pageURL)
	metrics.ObserveFetch(metrics.KindPage, ErrorKind(err), resp.Duration)
	if err != nil {
		if ctx.Err() == nil {
			c.fetchFailures.Add(1)
			c.logger.Warn("page fetch failed",
				zap.String("url", pageURL),
				zap.String("error_kind", ErrorKind(err)),
				zap.Error(err),
			)
		}
		return nil
	}
	c.pagesFetched.Add(1)
	if !resp.IsHTML() {
		c.logger.Debug("page is not html", zap.String("url", pageURL), zap.String("content_type", resp.Headers.Get("Content-Type")))
		return nil
	}

	base := resp.URL
	if base == "" {
		base = pageURL
	}
	links, err := ExtractLinks(base, resp.Body)
	if err != nil {
		c.logger.Warn("link extraction failed", zap.String("url", pageURL), zap.Error(err))
		return nil
	}

	var next []task
	for _, link := range links {
		kind := c.scope.Classify(link)
		if kind == LinkIgnore {
			c.ignoredLinks.Add(1)
			c.logger.Debug("link ignored", zap.String("url", link), zap.String("from", pageURL))
			continue
		}
		if t, ok := c.admit(link, kind); ok {
			c.logger.Debug("link enqueued", zap.String("url", t.url), zap.String("key", t.key), zap.Stringer("kind", kind))
			next = append(next, t)
		}
	}
	c.logger.Info("page expanded",
		zap.String("url", pageURL),
		zap.Int("links", len(links)),
		zap.Int("enqueued", len(next)),
	)
	return next
}

func (c *Crawler) collectPDF(ctx context.Context, pdfURL string) {
	body, outcome, err := c.cache.GetOrFetch(ctx, pdfURL)
	if err != nil {
		switch {
		case ctx.Err() != nil:
		case errors.Is(err, ErrNotPDF):
			c.validationFailures.Add(1)
			c.logger.Warn("content validation failed", zap.String("url", pdfURL), zap.Error(err))
		default:
			c.fetchFailures.Add(1)
			c.logger.Warn("pdf fetch failed",
				zap.String("url", pdfURL),
				zap.String("error_kind", ErrorKind(err)),
				zap.Error(err),
			)
		}
		return
	}
	if outcome == CacheHit {
		c.cacheHits.Add(1)
		c.logger.Info("pdf cache hit", zap.String("url", pdfURL), zap.Int("bytes", len(body)))
	} else {
		c.pdfsDownloaded.Add(1)
		c.logger.Info("pdf downloaded", zap.String("url", pdfURL), zap.Int("bytes", len(body)))
	}

	text := c.extractor.Extract(ctx, body)
	if ctx.Err() != nil {
		return
	}
	if text == "" {
		c.extractionFailures.Add(1)
		c.logger.Warn("extraction failed", zap.String("url", pdfURL), zap.Error(ErrNoText))
		return
	}
	rec := corpus.Record{SourceURL: pdfURL, Content: text, SourceLabel: c.site.Label()}
	if err := c.sink.Append(rec); err != nil {
		c.extractionFailures.Add(1)
		c.logger.Warn("record rejected", zap.String("url", pdfURL), zap.Error(err))
		return
	}
	c.documents.Add(1)
	metrics.ObserveDocument(c.site.Name)
	c.logger.Info("document recorded", zap.String("url", pdfURL), zap.Int("chars", len(text)))
}

// Package app initializes and holds the long-lived services of a crawl run,
// acting as a dependency injection container for the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/JakeFAU/legal-corpus-crawler/internal/cache"
	"github.com/JakeFAU/legal-corpus-crawler/internal/config"
	"github.com/JakeFAU/legal-corpus-crawler/internal/corpus"
	"github.com/JakeFAU/legal-corpus-crawler/internal/crawler"
	"github.com/JakeFAU/legal-corpus-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/legal-corpus-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/legal-corpus-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/legal-corpus-crawler/internal/progress"
	"github.com/JakeFAU/legal-corpus-crawler/internal/publish"
	"github.com/JakeFAU/legal-corpus-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/legal-corpus-crawler/internal/storage/gcs"
	"github.com/JakeFAU/legal-corpus-crawler/internal/storage/local"
	"github.com/JakeFAU/legal-corpus-crawler/internal/storage/postgres"
)

// App holds the shared services of one run.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	fetcher   crawler.Fetcher
	extractor crawler.Extractor
	publisher *publish.Publisher
	tracker   *progress.Tracker
	closers   []func() error
}

// Option customises NewApp. Tests use it to swap collaborators.
type Option func(*App)

// WithFetcher replaces the HTTP fetcher.
func WithFetcher(f crawler.Fetcher) Option {
	return func(a *App) { a.fetcher = f }
}

// WithExtractor replaces the extraction chain.
func WithExtractor(e crawler.Extractor) Option {
	return func(a *App) { a.extractor = e }
}

// WithPublisher replaces the publisher built from configuration.
func WithPublisher(p *publish.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// NewApp builds every service the configuration asks for. It fails fast when
// a configured sink cannot be initialized.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger, tracker: progress.NewTracker()}
	for _, opt := range opts {
		opt(a)
	}

	if a.fetcher == nil {
		a.fetcher = newFetcher(cfg.Crawler, logger)
	}
	if a.extractor == nil {
		chain, err := extract.Build(cfg.Extractor.Strategies, extract.Options{
			PdftotextPath: cfg.Extractor.PdftotextPath,
			Timeout:       cfg.Extractor.Timeout,
		}, logger.Named("extract"))
		if err != nil {
			return nil, fmt.Errorf("build extractor: %w", err)
		}
		logger.Info("extraction chain ready", zap.Strings("strategies", chain.Strategies()))
		a.extractor = chain
	}
	if a.publisher == nil {
		pub, err := a.newPublisher(ctx)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.publisher = pub
	}
	return a, nil
}

func newFetcher(cfg config.CrawlerConfig, logger *zap.Logger) crawler.Fetcher {
	base := collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.UserAgent,
		Accept:       cfg.Accept,
		Timeout:      cfg.RequestTimeout,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Limiter:      ratelimit.New(ratelimit.Config{RPS: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst}),
	})
	var policy crawler.RetryPolicy
	if cfg.MaxRetries > 0 {
		policy = crawler.NewExponentialRetryPolicy(cfg.MaxRetries, cfg.BackoffInitial, cfg.BackoffMax)
	}
	return crawler.NewRetryingFetcher(base, policy, logger.Named("fetch"))
}

func (a *App) newPublisher(ctx context.Context) (*publish.Publisher, error) {
	pc := a.cfg.Publish
	opts := []publish.Option{publish.WithLogger(a.logger.Named("publish"))}

	if pc.Local.Dir != "" {
		store, err := local.New(local.Config{BaseDir: pc.Local.Dir})
		if err != nil {
			return nil, fmt.Errorf("init local export: %w", err)
		}
		a.logger.Info("using local export", zap.String("dir", pc.Local.Dir))
		opts = append(opts, publish.WithBlobStore(store))
	}
	if pc.GCS.Bucket != "" {
		store, closeFn, err := gcs.NewFromEnv(ctx, gcs.Config{
			Bucket:   pc.GCS.Bucket,
			Metadata: map[string]string{"corpus-format": pc.Format},
		})
		if err != nil {
			return nil, fmt.Errorf("init gcs export: %w", err)
		}
		a.closers = append(a.closers, closeFn)
		a.logger.Info("using gcs export", zap.String("bucket", pc.GCS.Bucket))
		opts = append(opts, publish.WithBlobStore(store))
	}
	if pc.Postgres.DSN != "" {
		store, err := postgres.NewRecordStore(ctx, postgres.Config{DSN: pc.Postgres.DSN, Table: pc.Postgres.Table})
		if err != nil {
			return nil, fmt.Errorf("init postgres sink: %w", err)
		}
		a.closers = append(a.closers, func() error { store.Close(); return nil })
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		a.logger.Info("using postgres sink", zap.String("table", pc.Postgres.Table))
		opts = append(opts, publish.WithRowStore(store))
	}
	if pc.PubSub.Topic != "" {
		notifier, err := pubsub.NewFromProject(ctx, pc.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("init pubsub notifier: %w", err)
		}
		a.closers = append(a.closers, notifier.Close)
		a.logger.Info("using pubsub notifier", zap.String("topic", pc.PubSub.Topic))
		opts = append(opts, publish.WithNotifier(notifier))
	}

	return publish.New(publish.Config{
		Prefix: pc.RunPrefix,
		Format: publish.Format(pc.Format),
		Topic:  pc.PubSub.Topic,
	}, opts...)
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Tracker returns the run's progress tracker.
func (a *App) Tracker() *progress.Tracker {
	return a.tracker
}

// Sites returns the configured sites, or only the named one.
func (a *App) Sites(only string) ([]crawler.SiteConfig, error) {
	if only == "" {
		return a.cfg.Sites, nil
	}
	site, ok := a.cfg.Site(only)
	if !ok {
		return nil, fmt.Errorf("site %q is not configured", only)
	}
	return []crawler.SiteConfig{site}, nil
}

// Crawl runs the sites one after another and concatenates their corpora in
// site order. On cancellation it returns the records gathered so far together
// with the context error.
func (a *App) Crawl(ctx context.Context, sites []crawler.SiteConfig) ([]corpus.Record, error) {
	defer a.tracker.MarkDone()

	var records []corpus.Record
	for _, site := range sites {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		got, err := a.crawlSite(ctx, site)
		records = append(records, got...)
		if err != nil {
			return records, err
		}
	}
	return records, nil
}

func (a *App) crawlSite(ctx context.Context, site crawler.SiteConfig) ([]corpus.Record, error) {
	dir := filepath.Join(a.cfg.Cache.Root, site.CacheDir())
	store := cache.New(dir, a.fetcher,
		cache.WithKeyMode(cache.KeyMode(a.cfg.Cache.KeyMode)),
		cache.WithLogger(a.logger.Named("cache")),
	)
	acc := corpus.NewAccumulator()
	c, err := crawler.New(site, crawler.Deps{
		Fetcher:   a.fetcher,
		Cache:     store,
		Extractor: a.extractor,
		Sink:      acc,
		Logger:    a.logger.Named("crawler"),
	}, crawler.WithConcurrency(a.cfg.Crawler.Concurrency))
	if err != nil {
		return nil, fmt.Errorf("site %s: %w", site.Name, err)
	}
	a.tracker.Register(c)

	runErr := c.Run(ctx)
	return acc.Drain(), runErr
}

// Publish assigns a run ID and ships records to every configured sink.
func (a *App) Publish(ctx context.Context, records []corpus.Record) (publish.Result, error) {
	runID, err := publish.NewRunID()
	if err != nil {
		return publish.Result{}, err
	}
	return a.publisher.Publish(ctx, runID, records)
}

// Close releases every sink client. Errors are logged and joined.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

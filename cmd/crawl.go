package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/legal-corpus-crawler/internal/api"
	"github.com/JakeFAU/legal-corpus-crawler/internal/app"
	"github.com/JakeFAU/legal-corpus-crawler/internal/logging"
)

type crawlOptions struct {
	site        string
	skipPublish bool
}

// newApp is a variable so tests can swap in an app with fake collaborators.
var newApp = app.NewApp

func newCrawlCmd() *cobra.Command {
	opts := &crawlOptions{}
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawls the configured sites and publishes the corpus",
		Long: `Crawls every configured site in order (or only --site), caching PDFs on
disk and extracting their text. The concatenated corpus is then published to
the configured sinks unless --skip-publish is set. SIGINT or SIGTERM stops the
crawl after in-flight downloads settle; an interrupted run is not published.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCrawl(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.site, "site", "", "crawl only the named site")
	cmd.Flags().BoolVar(&opts.skipPublish, "skip-publish", false, "crawl and cache without publishing")
	return cmd
}

func runCrawl(parent context.Context, opts *crawlOptions) error {
	cfg, err := configFrom(parent)
	if err != nil {
		return err
	}
	logger := logging.L

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := newApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	defer func() {
		if cerr := application.Close(); cerr != nil {
			logger.Warn("failed to close services", zap.Error(cerr))
		}
	}()

	sites, err := application.Sites(opts.site)
	if err != nil {
		return err
	}

	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	g, gctx := errgroup.WithContext(serverCtx)
	if cfg.Metrics.Addr != "" {
		srv := api.NewServer(application.Tracker(), logger.Named("api"))
		g.Go(func() error { return srv.ListenAndServe(gctx, cfg.Metrics.Addr) })
	}

	records, crawlErr := application.Crawl(ctx, sites)
	stopServer()
	if err := g.Wait(); err != nil {
		logger.Warn("status server stopped with error", zap.Error(err))
	}

	if crawlErr != nil {
		if errors.Is(crawlErr, context.Canceled) {
			logger.Warn("crawl interrupted; corpus not published", zap.Int("records", len(records)))
			return nil
		}
		return crawlErr
	}
	logger.Info("crawl complete", zap.Int("records", len(records)), zap.Int("sites", len(sites)))

	if opts.skipPublish {
		logger.Info("publication skipped")
		return nil
	}
	res, err := application.Publish(parent, records)
	if err != nil {
		return fmt.Errorf("publish run %s: %w", res.RunID, err)
	}
	if res.Skipped {
		logger.Warn("empty corpus; nothing published", zap.String("run_id", res.RunID))
		return nil
	}
	logger.Info("corpus published",
		zap.String("run_id", res.RunID),
		zap.Strings("objects", res.ObjectURIs),
		zap.String("message_id", res.MessageID),
		zap.Int("records", res.Records),
	)
	return nil
}

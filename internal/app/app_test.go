package app

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/legal-corpus-crawler/internal/config"
	"github.com/JakeFAU/legal-corpus-crawler/internal/corpus"
	"github.com/JakeFAU/legal-corpus-crawler/internal/crawler"
	"github.com/JakeFAU/legal-corpus-crawler/internal/extract"
	"github.com/JakeFAU/legal-corpus-crawler/internal/pdftest"
)

func newLegalSite(t *testing.T, prefix string, docs map[string]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(prefix, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body>")
		for name := range docs {
			fmt.Fprintf(w, `<a href="%s">%s</a>`, name, name)
		}
		fmt.Fprint(w, `<a href="https://elsewhere.example/x.html">x</a></body></html>`)
	})
	for name, text := range docs {
		body := pdftest.OnePage(text)
		mux.HandleFunc(prefix+name, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write(body)
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, sites ...crawler.SiteConfig) config.Config {
	t.Helper()
	return config.Config{
		Crawler: config.CrawlerConfig{
			Concurrency:    3,
			RequestTimeout: 5 * time.Second,
			MaxRetries:     1,
			BackoffInitial: 10 * time.Millisecond,
			BackoffMax:     20 * time.Millisecond,
		},
		Cache:     config.CacheConfig{Root: t.TempDir(), KeyMode: "basename"},
		Extractor: config.ExtractorConfig{Strategies: []string{"native"}},
		Sites:     sites,
		Publish: config.PublishConfig{
			RunPrefix: "corpora",
			Format:    "jsonl",
			Local:     config.LocalConfig{Dir: t.TempDir()},
		},
	}
}

func TestAppCrawlsSitesInOrderAndPublishes(t *testing.T) {
	t.Parallel()

	sris := newLegalSite(t, "/wetgeving/", map[string]string{"wet-a.pdf": "Wet A"})
	dna := newLegalSite(t, "/wetgeving/surinaamse-wetten/", map[string]string{"wet-b.pdf": "Wet B"})

	cfg := testConfig(t,
		crawler.SiteConfig{Name: "sris", Seeds: []string{sris.URL + "/wetgeving/"}, SourceLabel: "SRIS"},
		crawler.SiteConfig{
			Name:        "dna",
			Seeds:       []string{dna.URL + "/wetgeving/surinaamse-wetten/"},
			Scope:       crawler.ScopePathPrefix,
			PathPrefix:  "/wetgeving/surinaamse-wetten/",
			SourceLabel: "DNA",
		},
	)

	a, err := NewApp(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	sites, err := a.Sites("")
	require.NoError(t, err)
	records, err := a.Crawl(context.Background(), sites)
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "SRIS", records[0].SourceLabel)
	assert.Equal(t, "Wet A", records[0].Content)
	assert.Equal(t, "DNA", records[1].SourceLabel)
	assert.Equal(t, "Wet B", records[1].Content)

	_, err = os.Stat(filepath.Join(cfg.Cache.Root, "sris", "wet-a.pdf"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(cfg.Cache.Root, "dna", "wet-b.pdf"))
	require.NoError(t, err)

	snap := a.Tracker().Snapshot()
	require.Len(t, snap.Sites, 2)
	assert.True(t, snap.Done)
	assert.Equal(t, int64(2), snap.Documents)

	res, err := a.Publish(context.Background(), records)
	require.NoError(t, err)
	require.Len(t, res.ObjectURIs, 1)
	exported := filepath.Join(cfg.Publish.Local.Dir, "corpora", res.RunID+".jsonl")
	f, err := os.Open(exported)
	require.NoError(t, err)
	defer f.Close()

	var lines []corpus.Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec corpus.Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		lines = append(lines, rec)
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, records, lines)
}

func TestAppSitesFilter(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t,
		crawler.SiteConfig{Name: "sris", Seeds: []string{"https://sris.sr/"}},
		crawler.SiteConfig{Name: "dna", Seeds: []string{"https://www.dna.sr/"}},
	)
	a, err := NewApp(context.Background(), cfg, nil, WithExtractor(extract.NewChain(nil, extract.NewNative())))
	require.NoError(t, err)

	sites, err := a.Sites("dna")
	require.NoError(t, err)
	require.Len(t, sites, 1)
	assert.Equal(t, "dna", sites[0].Name)

	_, err = a.Sites("unknown")
	require.Error(t, err)
}

func TestAppCrawlStopsWhenCanceled(t *testing.T) {
	t.Parallel()

	srv := newLegalSite(t, "/wetgeving/", map[string]string{"wet-a.pdf": "Wet A"})
	cfg := testConfig(t,
		crawler.SiteConfig{Name: "sris", Seeds: []string{srv.URL + "/wetgeving/"}},
		crawler.SiteConfig{Name: "dna", Seeds: []string{srv.URL + "/wetgeving/"}, OutputDir: "dna"},
	)
	a, err := NewApp(context.Background(), cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	records, err := a.Crawl(ctx, cfg.Sites)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, records)
	assert.Empty(t, a.Tracker().Snapshot().Sites, "no crawler starts after cancellation")
}

func TestNewAppRejectsBadSinks(t *testing.T) {
	t.Parallel()

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	cfg := testConfig(t, crawler.SiteConfig{Name: "sris", Seeds: []string{"https://sris.sr/"}})
	cfg.Publish.Local.Dir = blocker
	_, err := NewApp(context.Background(), cfg, nil)
	require.ErrorContains(t, err, "init local export")

	cfg = testConfig(t, crawler.SiteConfig{Name: "sris", Seeds: []string{"https://sris.sr/"}})
	cfg.Extractor.Strategies = []string{"ocr"}
	_, err = NewApp(context.Background(), cfg, nil)
	require.ErrorContains(t, err, "build extractor")
}

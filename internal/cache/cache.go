// Package cache stores downloaded PDFs on disk so each one is fetched once.
//
// The presence of a file is the only record that a document was downloaded:
// a hit is served from disk without touching the network, and a miss is
// fetched, checked for the PDF magic header, and written atomically.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/legal-corpus-crawler/internal/crawler"
	"github.com/JakeFAU/legal-corpus-crawler/internal/metrics"
)

// ErrUnsafeFilename means no usable file name could be derived from a URL.
var ErrUnsafeFilename = errors.New("url yields no safe file name")

// KeyMode selects how cache file names are derived.
type KeyMode string

const (
	// KeyBasename uses the sanitized URL path basename. Distinct URLs sharing
	// a basename share one file.
	KeyBasename KeyMode = "basename"
	// KeyURLHash uses the SHA-256 of the normalized URL.
	KeyURLHash KeyMode = "url_hash"
)

// Option customises a Store.
type Option func(*Store)

// WithKeyMode selects the file naming scheme.
func WithKeyMode(mode KeyMode) Option {
	return func(s *Store) {
		if mode != "" {
			s.keyMode = mode
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Store is a per-site download cache rooted at one directory.
type Store struct {
	dir     string
	fetcher crawler.Fetcher
	keyMode KeyMode
	logger  *zap.Logger
	group   singleflight.Group
}

type entry struct {
	body    []byte
	outcome crawler.CacheOutcome
	// url is the URL whose call performed the load.
	url string
}

// New returns a Store that keeps files in dir and downloads misses with fetcher.
func New(dir string, fetcher crawler.Fetcher, opts ...Option) *Store {
	s := &Store{
		dir:     dir,
		fetcher: fetcher,
		keyMode: KeyBasename,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the directory holding cached files.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns where the document for rawURL is, or would be, stored.
func (s *Store) Path(rawURL string) (string, error) {
	name, err := Filename(rawURL, s.keyMode)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name), nil
}

// GetOrFetch returns the bytes for rawURL, reading them from disk when present.
// Concurrent calls for the same file share one download.
func (s *Store) GetOrFetch(ctx context.Context, rawURL string) ([]byte, crawler.CacheOutcome, error) {
	full, err := s.Path(rawURL)
	if err != nil {
		metrics.ObserveCacheLookup("error")
		return nil, crawler.CacheMiss, &crawler.FilesystemError{Op: "derive filename", Path: rawURL, Err: err}
	}
	v, err, shared := s.group.Do(full, func() (any, error) {
		return s.load(ctx, rawURL, full)
	})
	if err != nil {
		return nil, crawler.CacheMiss, err
	}
	e := v.(entry)
	if shared && e.outcome == crawler.CacheMiss && e.url != rawURL {
		// Another URL with the same file name downloaded it.
		s.logger.Debug("cache hit on shared download", zap.String("url", rawURL), zap.String("loaded_by", e.url))
		return e.body, crawler.CacheHit, nil
	}
	return e.body, e.outcome, nil
}

func (s *Store) load(ctx context.Context, rawURL, full string) (entry, error) {
	body, err := os.ReadFile(full)
	switch {
	case err == nil:
		metrics.ObserveCacheLookup("hit")
		s.logger.Debug("cache hit", zap.String("url", rawURL), zap.String("path", full))
		return entry{body: body, outcome: crawler.CacheHit, url: rawURL}, nil
	case !errors.Is(err, fs.ErrNotExist):
		metrics.ObserveCacheLookup("error")
		return entry{}, &crawler.FilesystemError{Op: "read", Path: full, Err: err}
	}

	metrics.ObserveCacheLookup("miss")
	resp, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		metrics.ObserveFetch(metrics.KindPDF, crawler.ErrorKind(err), resp.Duration)
		return entry{}, fmt.Errorf("download: %w", err)
	}
	if err := crawler.ValidatePDF(resp.Body); err != nil {
		metrics.ObserveFetch(metrics.KindPDF, crawler.ErrorKind(err), resp.Duration)
		return entry{}, fmt.Errorf("download %s (content-type %q): %w", rawURL, resp.Headers.Get("Content-Type"), err)
	}
	metrics.ObserveFetch(metrics.KindPDF, "ok", resp.Duration)

	if err := s.write(full, resp.Body); err != nil {
		return entry{}, err
	}
	s.logger.Debug("cache stored", zap.String("url", rawURL), zap.String("path", full), zap.Int("bytes", len(resp.Body)))
	return entry{body: resp.Body, outcome: crawler.CacheMiss, url: rawURL}, nil
}

// write publishes body at full through a temp file and rename. A partially
// written document is never visible under its final name.
func (s *Store) write(full string, body []byte) error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return &crawler.FilesystemError{Op: "mkdir", Path: s.dir, Err: err}
	}
	tmp, err := os.CreateTemp(s.dir, ".download-*")
	if err != nil {
		return &crawler.FilesystemError{Op: "create", Path: s.dir, Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		cleanup()
		return &crawler.FilesystemError{Op: "write", Path: tmpName, Err: err}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return &crawler.FilesystemError{Op: "close", Path: tmpName, Err: err}
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		cleanup()
		return &crawler.FilesystemError{Op: "chmod", Path: tmpName, Err: err}
	}
	if err := os.Rename(tmpName, full); err != nil {
		cleanup()
		return &crawler.FilesystemError{Op: "rename", Path: full, Err: err}
	}
	return nil
}

// Filename derives the cache file name for rawURL.
func Filename(rawURL string, mode KeyMode) (string, error) {
	if mode == KeyURLHash {
		key, err := crawler.NormalizeURL(rawURL)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnsafeFilename, err)
		}
		sum := sha256.Sum256([]byte(key))
		return hex.EncodeToString(sum[:]) + ".pdf", nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsafeFilename, err)
	}
	name := SanitizeFilename(path.Base(u.Path))
	if strings.TrimSpace(name) == "" || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrUnsafeFilename, rawURL)
	}
	return name, nil
}

// SanitizeFilename keeps ASCII letters, digits, '.', '_', '-', and space.
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '_', r == '-', r == ' ':
			b.WriteRune(r)
		}
	}
	return b.String()
}

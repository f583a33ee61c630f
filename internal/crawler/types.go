package crawler

import (
	"fmt"
	"mime"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// ScopeMode selects how in-scope pages are recognised.
type ScopeMode string

const (
	// ScopeDomain admits every page on the seed's registrable domain.
	ScopeDomain ScopeMode = "domain"
	// ScopePathPrefix additionally requires the page path to start with SiteConfig.PathPrefix.
	ScopePathPrefix ScopeMode = "path_prefix"
)

// SiteConfig describes one source website. It is read-only once a crawl starts.
type SiteConfig struct {
	Name        string    `mapstructure:"name"`
	Seeds       []string  `mapstructure:"seeds"`
	Scope       ScopeMode `mapstructure:"scope"`
	PathPrefix  string    `mapstructure:"path_prefix"`
	OutputDir   string    `mapstructure:"output_dir"`
	SourceLabel string    `mapstructure:"source_label"`
}

var unsafeDirChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Validate reports configuration errors that must stop a crawl before it starts.
func (s SiteConfig) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("site name must be set")
	}
	if len(s.Seeds) == 0 {
		return fmt.Errorf("site %q: %w", s.Name, ErrNoSeeds)
	}
	switch s.Scope {
	case "", ScopeDomain:
	case ScopePathPrefix:
		if !strings.HasPrefix(s.PathPrefix, "/") {
			return fmt.Errorf("site %q: path_prefix must start with / when scope is %s", s.Name, ScopePathPrefix)
		}
	default:
		return fmt.Errorf("site %q: unknown scope %q", s.Name, s.Scope)
	}
	if _, err := NewScope(s); err != nil {
		return err
	}
	return nil
}

// CacheDir returns the directory name, relative to the cache root, used for the site's PDFs.
func (s SiteConfig) CacheDir() string {
	dir := s.OutputDir
	if dir == "" {
		dir = s.Name
	}
	dir = strings.Trim(unsafeDirChars.ReplaceAllString(dir, "_"), "._")
	if dir == "" {
		return "site"
	}
	return dir
}

// Label returns the source label attached to records, defaulting to the site name.
func (s SiteConfig) Label() string {
	if s.SourceLabel != "" {
		return s.SourceLabel
	}
	return s.Name
}

// LinkKind is the classifier's verdict for a discovered URL.
type LinkKind int

const (
	// LinkIgnore marks off-scope, non-HTTP, and unparsable links.
	LinkIgnore LinkKind = iota
	// LinkPDF marks a document to download and extract.
	LinkPDF
	// LinkInScopePage marks a page to fetch and expand.
	LinkInScopePage
)

func (k LinkKind) String() string {
	switch k {
	case LinkPDF:
		return "pdf"
	case LinkInScopePage:
		return "page"
	default:
		return "ignore"
	}
}

// FetchResponse captures the HTTP response of a successful fetch.
type FetchResponse struct {
	// URL is the final URL after redirects.
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// IsHTML reports whether the response carries a document that can contain links.
// A missing Content-Type is treated as HTML.
func (r FetchResponse) IsHTML() bool {
	ct := r.Headers.Get("Content-Type")
	if ct == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	switch mediaType {
	case "text/html", "application/xhtml+xml":
		return true
	default:
		return false
	}
}

// CacheOutcome says whether a cached document came from disk or the network.
type CacheOutcome int

const (
	// CacheMiss means the document was downloaded during this call.
	CacheMiss CacheOutcome = iota
	// CacheHit means the document was already on disk.
	CacheHit
)

func (o CacheOutcome) String() string {
	if o == CacheHit {
		return "hit"
	}
	return "miss"
}

// Stats summarises a crawl run.
type Stats struct {
	Site               string `json:"site"`
	PagesFetched       int64  `json:"pages_fetched"`
	PDFsDownloaded     int64  `json:"pdfs_downloaded"`
	CacheHits          int64  `json:"cache_hits"`
	Documents          int64  `json:"documents"`
	ExtractionFailures int64  `json:"extraction_failures"`
	ValidationFailures int64  `json:"validation_failures"`
	FetchFailures      int64  `json:"fetch_failures"`
	IgnoredLinks       int64  `json:"ignored_links"`
	Visited            int    `json:"visited"`
	Running            bool   `json:"running"`
}

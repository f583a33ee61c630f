package crawler

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Scope is a SiteConfig compiled for repeated classification.
type Scope struct {
	mode   ScopeMode
	prefix string
	seed   *url.URL
	domain string
}

// NewScope compiles the site's scope rule against its first seed.
func NewScope(site SiteConfig) (*Scope, error) {
	if len(site.Seeds) == 0 {
		return nil, fmt.Errorf("site %q: %w", site.Name, ErrNoSeeds)
	}
	seed, err := url.Parse(strings.TrimSpace(site.Seeds[0]))
	if err != nil {
		return nil, fmt.Errorf("site %q: parse seed: %w", site.Name, err)
	}
	if !isHTTPScheme(seed.Scheme) || seed.Host == "" {
		return nil, fmt.Errorf("site %q: seed %q must be an absolute http(s) URL", site.Name, site.Seeds[0])
	}
	mode := site.Scope
	if mode == "" {
		mode = ScopeDomain
	}
	return &Scope{
		mode:   mode,
		prefix: site.PathPrefix,
		seed:   seed,
		domain: registrableDomain(seed),
	}, nil
}

// Classify decides what to do with a candidate link for the given site.
// Relative candidates are resolved against the site's first seed.
func Classify(candidate string, site SiteConfig) LinkKind {
	scope, err := NewScope(site)
	if err != nil {
		return LinkIgnore
	}
	return scope.Classify(candidate)
}

// Classify is the compiled form of the package-level Classify.
func (s *Scope) Classify(candidate string) LinkKind {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" || strings.HasPrefix(candidate, "#") {
		return LinkIgnore
	}
	u, err := url.Parse(candidate)
	if err != nil || u.Opaque != "" {
		return LinkIgnore
	}
	if u.Scheme != "" && !isHTTPScheme(u.Scheme) {
		return LinkIgnore
	}
	if isPDFPath(u.Path) {
		return LinkPDF
	}
	abs := s.seed.ResolveReference(u)
	if u.Host != "" && !s.sameSite(abs) {
		return LinkIgnore
	}
	if s.mode == ScopePathPrefix && !strings.HasPrefix(abs.Path, s.prefix) {
		return LinkIgnore
	}
	return LinkInScopePage
}

func (s *Scope) sameSite(u *url.URL) bool {
	if s.domain != "" {
		return registrableDomain(u) == s.domain
	}
	return hostKey(u) == hostKey(s.seed)
}

// registrableDomain returns the eTLD+1 of u, or "" for IPs and single-label hosts.
func registrableDomain(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	if host == "" || net.ParseIP(host) != nil || !strings.Contains(host, ".") {
		return ""
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return ""
	}
	return domain
}

func hostKey(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == "" || (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		return host
	}
	return net.JoinHostPort(host, port)
}

func isHTTPScheme(scheme string) bool {
	scheme = strings.ToLower(scheme)
	return scheme == "http" || scheme == "https"
}

func isPDFPath(p string) bool {
	return strings.HasSuffix(strings.ToLower(p), ".pdf")
}

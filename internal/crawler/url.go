package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL produces the visited-set key for a URL.
// It lowercases the scheme and host, drops default ports and the fragment,
// gives an empty path a trailing slash, and sorts query parameters.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	switch {
	case u.Scheme == "http" && strings.HasSuffix(u.Host, ":80"):
		u.Host = strings.TrimSuffix(u.Host, ":80")
	case u.Scheme == "https" && strings.HasSuffix(u.Host, ":443"):
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	if u.Host != "" && u.Path == "" {
		u.Path = "/"
	}
	u.Fragment = ""
	u.RawFragment = ""
	if u.RawQuery != "" {
		u.RawQuery = u.Query().Encode()
	}
	return u.String(), nil
}

// ResolveURL resolves href against base and strips the fragment.
func ResolveURL(base *url.URL, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("parse href: %w", err)
	}
	abs := base.ResolveReference(ref)
	abs.Fragment = ""
	abs.RawFragment = ""
	return abs.String(), nil
}

// StripFragment trims rawURL and drops its fragment, leaving the rest of the
// URL as written. Unparsable input is returned trimmed.
func StripFragment(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || (u.Fragment == "" && u.RawFragment == "" && !strings.HasSuffix(rawURL, "#")) {
		return rawURL
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

package seo

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/cennso/sitegen/pkg/utils"
)

// NormalizeURL returns the canonical string form of u: lowercase scheme and host,
// no default port, no query or fragment, and no trailing slash except on the root path.
// u is not modified.
func NormalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	n := *u
	n.Scheme = strings.ToLower(n.Scheme)
	n.Host = strings.ToLower(n.Host)

	if host, port, err := net.SplitHostPort(n.Host); err == nil {
		if (n.Scheme == "http" && port == "80") || (n.Scheme == "https" && port == "443") {
			n.Host = host
		}
	}

	switch {
	case n.Path == "":
		n.Path = "/"
	case len(n.Path) > 1 && strings.HasSuffix(n.Path, "/"):
		n.Path = strings.TrimRight(n.Path, "/")
		if n.Path == "" {
			n.Path = "/"
		}
	}
	n.RawPath = ""
	n.RawQuery = ""
	n.ForceQuery = false
	n.Fragment = ""
	n.RawFragment = ""
	return n.String()
}

// CanonicalURL joins a site base URL ("https://example.com" or "https://example.com/docs")
// and a route ("/guides/setup") into a normalized absolute URL.
func CanonicalURL(baseURL, route string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return "", fmt.Errorf("%w: invalid base URL '%s'", utils.ErrConfigValidation, baseURL)
	}
	joined := *base
	joined.Path = strings.TrimSuffix(base.Path, "/") + "/" + strings.TrimPrefix(route, "/")
	return NormalizeURL(&joined), nil
}

package helpers

import (
	"errors"
	"net/url"
	"path"
	"strings"
)

var trackingQueryParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"utm_id":       {},
	"gclid":        {},
	"dclid":        {},
	"fbclid":       {},
	"msclkid":      {},
	"igshid":       {},
}

// blockedDomains are hosts whose pages are never worth crawling for
// research: login walls, video, social feeds, raw marketplaces.
var blockedDomains = map[string]struct{}{
	"facebook.com":    {},
	"instagram.com":   {},
	"twitter.com":     {},
	"x.com":           {},
	"youtube.com":     {},
	"tiktok.com":      {},
	"linkedin.com":    {},
	"pinterest.com":   {},
	"amazon.com":      {},
	"login.live.com":  {},
	"accounts.google.com": {},
}

// CanonicalURL normalises a URL string for comparison and deduplication.
// It lowercases scheme/host, removes default ports, strips fragments,
// cleans path segments, removes tracking query parameters and sorts the
// remaining query deterministically. A missing scheme defaults to https.
func CanonicalURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty url")
	}

	parsed, err := parseURLPreserveHost(raw)
	if err != nil {
		return "", err
	}

	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("unsupported scheme " + parsed.Scheme)
	}

	host := strings.ToLower(parsed.Host)
	if host == "" {
		return "", errors.New("url missing host")
	}
	if h, p, ok := strings.Cut(host, ":"); ok {
		if (parsed.Scheme == "http" && p == "80") || (parsed.Scheme == "https" && p == "443") {
			host = h
		}
	}
	parsed.Host = host

	cleanPath := path.Clean(parsed.Path)
	if cleanPath == "." || cleanPath == "" {
		cleanPath = "/"
	}
	if !strings.HasPrefix(cleanPath, "/") {
		cleanPath = "/" + cleanPath
	}
	parsed.Path = cleanPath

	parsed.Fragment = ""
	query := parsed.Query()
	for key := range query {
		if _, drop := trackingQueryParams[strings.ToLower(key)]; drop {
			query.Del(key)
		}
	}
	if len(query) == 0 {
		parsed.RawQuery = ""
	} else {
		parsed.RawQuery = query.Encode() // Encode sorts keys
	}
	return parsed.String(), nil
}

// Blocked reports whether a URL's host (or a parent domain) is on the
// crawl blocklist.
func Blocked(raw string) bool {
	parsed, err := parseURLPreserveHost(raw)
	if err != nil {
		return true
	}
	host := strings.ToLower(parsed.Hostname())
	host = strings.TrimPrefix(host, "www.")
	for host != "" {
		if _, ok := blockedDomains[host]; ok {
			return true
		}
		_, rest, ok := strings.Cut(host, ".")
		if !ok || !strings.Contains(rest, ".") {
			break
		}
		host = rest
	}
	return false
}

// FilterURLs canonicalises, deduplicates and strips blocked or broken
// URLs, preserving first-seen order. Callers apply their own size cap.
func FilterURLs(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	var out []string
	for _, r := range raw {
		canonical, err := CanonicalURL(r)
		if err != nil {
			continue
		}
		if Blocked(canonical) {
			continue
		}
		if _, ok := seen[canonical]; ok {
			continue
		}
		seen[canonical] = struct{}{}
		out = append(out, canonical)
	}
	return out
}

func parseURLPreserveHost(raw string) (*url.URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if parsed.Scheme == "" && parsed.Host == "" {
		if strings.HasPrefix(raw, "//") {
			return url.Parse("https:" + raw)
		}
		return url.Parse("https://" + raw)
	}
	return parsed, nil
}

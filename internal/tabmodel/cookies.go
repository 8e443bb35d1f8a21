package tabmodel

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Cookie mirrors the fields the restore flow needs to replay a session.
// ExpirationDate is epoch seconds; zero means session cookie.
type Cookie struct {
	Name           string  `json:"name"`
	Value          string  `json:"value"`
	Domain         string  `json:"domain"`
	Path           string  `json:"path"`
	Secure         bool    `json:"secure"`
	HTTPOnly       bool    `json:"httpOnly"`
	SameSite       string  `json:"sameSite"`
	ExpirationDate float64 `json:"expirationDate"`
}

// SerializeCookies renders the restore wire form: a JSON array string.
func SerializeCookies(cookies []Cookie) (string, error) {
	data, err := json.Marshal(cookies)
	if err != nil {
		return "", fmt.Errorf("serialize cookies: %w", err)
	}
	return string(data), nil
}

func ParseCookies(s string) ([]Cookie, error) {
	if s == "" {
		return nil, nil
	}
	var cookies []Cookie
	if err := json.Unmarshal([]byte(s), &cookies); err != nil {
		return nil, fmt.Errorf("parse cookies: %w", err)
	}
	return cookies, nil
}

// URL computes the cookie-set URL: scheme from the secure flag, host from
// the domain with any leading dot stripped.
func (c Cookie) URL() string {
	scheme := "http"
	if c.Secure {
		scheme = "https"
	}
	host := strings.TrimPrefix(c.Domain, ".")
	path := c.Path
	if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path
}

// ParentDomains returns the URL's host plus every parent domain down to
// the registrable-looking two-label suffix. Capturing parent-domain
// cookies picks up cross-subdomain session cookies
// (app.example.com -> example.com).
func ParentDomains(rawURL string) []string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return nil
	}
	host := u.Hostname()

	// IP addresses and single-label hosts have no parents.
	if !strings.Contains(host, ".") || net4(host) {
		return []string{host}
	}

	labels := strings.Split(host, ".")
	domains := make([]string, 0, len(labels)-1)
	for i := 0; i+2 <= len(labels); i++ {
		domains = append(domains, strings.Join(labels[i:], "."))
	}
	return domains
}

func net4(host string) bool {
	for _, r := range host {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return true
}

// DedupeCookies removes duplicates by (name, domain, path), keeping the
// first occurrence. Capture order puts the tab's own URL first, so exact
// matches win over parent-domain copies.
func DedupeCookies(cookies []Cookie) []Cookie {
	type key struct{ name, domain, path string }
	seen := make(map[key]bool, len(cookies))
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		k := key{c.Name, c.Domain, c.Path}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out
}

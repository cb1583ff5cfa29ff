// Package domain canonicalizes site URLs and applies the marketplace and platform policies.
package domain

import (
	"net/url"
	"strings"
)

// ProxyRule describes a wrapper URL that carries the real target as a path segment,
// e.g. https://www.similarweb.com/website/shop.it/.
type ProxyRule struct {
	HostContains string // substring of the wrapper host
	PathPrefix   string // segment preceding the embedded target
}

// DefaultProxyRules returns the wrappers unwrapped by Normalize.
func DefaultProxyRules() []ProxyRule {
	return []ProxyRule{
		{HostContains: "similarweb.com", PathPrefix: "/website/"},
	}
}

// Normalizer turns raw URLs into comparable domain keys.
type Normalizer struct {
	rules []ProxyRule
}

// NewNormalizer creates a normalizer with the given proxy rules.
// A nil slice means DefaultProxyRules.
func NewNormalizer(rules []ProxyRule) *Normalizer {
	if rules == nil {
		rules = DefaultProxyRules()
	}
	return &Normalizer{rules: rules}
}

var defaultNormalizer = NewNormalizer(nil)

// Normalize returns the domain key for raw using the default proxy rules.
func Normalize(raw string) string {
	return defaultNormalizer.Normalize(raw)
}

// Normalize returns the domain key for raw. It never fails: inputs that do not
// parse fall back to string surgery.
func (n *Normalizer) Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if target, ok := n.unwrap(s); ok {
		s = target
	}

	withScheme := s
	if !strings.Contains(s, "://") {
		withScheme = "https://" + s
	}
	if u, err := url.Parse(withScheme); err == nil && u.Hostname() != "" {
		return clean(u.Hostname())
	}
	return surgery(s)
}

func (n *Normalizer) unwrap(s string) (string, bool) {
	lower := strings.ToLower(s)
	for _, r := range n.rules {
		if !strings.Contains(lower, strings.ToLower(r.HostContains)) {
			continue
		}
		idx := strings.Index(lower, strings.ToLower(r.PathPrefix))
		if idx < 0 {
			continue
		}
		target := s[idx+len(r.PathPrefix):]
		target = strings.TrimLeft(target, "/")
		if cut := strings.IndexAny(target, "/?#"); cut >= 0 {
			target = target[:cut]
		}
		if target != "" {
			return target, true
		}
	}
	return "", false
}

// surgery strips a scheme and www. and keeps everything up to the first path,
// query or fragment delimiter.
func surgery(s string) string {
	s = strings.ToLower(s)
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	s = strings.TrimPrefix(s, "www.")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return s
}

func clean(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	return strings.TrimPrefix(host, "www.")
}

// Package protection recognises bot-protection and challenge pages among crawled responses.
package protection

import (
	"net/http"
	"regexp"
	"strings"
)

// Signal identifies the kind of protection detected.
type Signal string

const (
	SignalNone               Signal = ""
	SignalCloudflare         Signal = "cloudflare"
	SignalCaptcha            Signal = "captcha"
	SignalAccessDenied       Signal = "access_denied"
	SignalJavaScriptRequired Signal = "javascript_required"
)

// Detector classifies a fetched page. Shop pages routinely embed captcha widgets on
// contact forms, so body markers only count on pages with little visible text.
type Detector struct {
	// MaxChallengeText is the visible text length above which a page is treated as
	// real content regardless of markers.
	MaxChallengeText int
}

// NewDetector creates a detector with default settings.
func NewDetector() *Detector {
	return &Detector{MaxChallengeText: 1500}
}

var (
	// Markers only present on Cloudflare interstitials.
	cloudflareMarkers = []string{
		"cf-browser-verification",
		"cf_chl_opt",
		"_cf_chl",
		"challenge-platform",
		"checking your browser",
		"just a moment...",
		"attention required! | cloudflare",
	}

	captchaMarkers = []string{
		"g-recaptcha",
		"h-captcha",
		"cf-turnstile",
		"captcha-container",
		"please verify you are human",
		"are you a robot",
		"prove you're not a robot",
	}

	accessDeniedMarkers = []string{
		"access denied",
		"access to this page has been denied",
		"request blocked",
		"bot detected",
		"automated access",
	}

	jsRequiredMarkers = []string{
		"enable javascript",
		"javascript is required",
		"requires javascript",
	}

	spaRootPatterns = []*regexp.Regexp{
		regexp.MustCompile(`<div\s+id=["'](?:root|app|__next|__nuxt)["'][^>]*>\s*</div>`),
		regexp.MustCompile(`<app-root[^>]*>\s*</app-root>`),
	}

	scriptRegex     = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	htmlTagRegex    = regexp.MustCompile(`<[^>]+>`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// Detect returns the protection signal for a response, or SignalNone for a normal page.
func (d *Detector) Detect(headers http.Header, body []byte) Signal {
	if headers != nil && headers.Get("cf-mitigated") == "challenge" {
		return SignalCloudflare
	}

	content := string(body)
	if visibleTextLen(content) > d.MaxChallengeText {
		return SignalNone
	}

	lower := strings.ToLower(content)
	switch {
	case containsAny(lower, cloudflareMarkers):
		return SignalCloudflare
	case containsAny(lower, captchaMarkers):
		return SignalCaptcha
	case containsAny(lower, accessDeniedMarkers):
		return SignalAccessDenied
	case containsAny(lower, jsRequiredMarkers):
		return SignalJavaScriptRequired
	}
	for _, re := range spaRootPatterns {
		if re.MatchString(content) {
			return SignalJavaScriptRequired
		}
	}
	return SignalNone
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func visibleTextLen(content string) int {
	text := scriptRegex.ReplaceAllString(content, "")
	text = htmlTagRegex.ReplaceAllString(text, " ")
	return len(strings.TrimSpace(whitespaceRegex.ReplaceAllString(text, " ")))
}

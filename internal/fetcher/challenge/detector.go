// Package challenge recognizes bot-wall interstitials and retries such pages
// through a rendering fetcher.
package challenge

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/JakeFAU/inc-submissions-harvester/internal/submission"
)

var markers = [][]byte{
	[]byte("cf-browser-verification"),
	[]byte("challenge-platform"),
	[]byte("cf_chl_opt"),
	[]byte("<title>just a moment"),
	[]byte("attention required! | cloudflare"),
	[]byte("_incapsula_resource"),
}

// Detector applies rule-based checks to decide whether a page is a challenge.
type Detector struct {
	// SmallBodyBytes marks bodies below this size as suspicious when mostly script.
	SmallBodyBytes int
}

// NewDetector creates a Detector. A zero threshold uses 4 KiB.
func NewDetector(threshold int) *Detector {
	if threshold <= 0 {
		threshold = 4096
	}
	return &Detector{SmallBodyBytes: threshold}
}

// Blocked reports whether a successful response is really a bot wall.
func (d *Detector) Blocked(page submission.Page) bool {
	body := bytes.ToLower(page.Body)
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	for _, m := range markers {
		if bytes.Contains(body, m) {
			return true
		}
	}
	return len(body) < d.SmallBodyBytes && scriptDensityHigh(body)
}

// BlockedError reports whether a fetch failure looks like a bot wall rather
// than a missing page.
func (d *Detector) BlockedError(err error) bool {
	var fe *submission.FetchError
	if !errors.As(err, &fe) {
		return false
	}
	return fe.StatusCode == http.StatusForbidden || fe.StatusCode == http.StatusServiceUnavailable
}

// scriptDensityHigh reports whether script elements cover at least a quarter
// of a lowercased document.
func scriptDensityHigh(lower []byte) bool {
	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	total := len(lower)
	covered, pos := 0, 0
	for pos < total {
		rel := bytes.Index(lower[pos:], []byte(openTag))
		if rel < 0 {
			break
		}
		start := pos + rel
		end := bytes.Index(lower[start:], []byte(closeTag))
		if end < 0 {
			covered += total - start
			break
		}
		next := start + end + len(closeTag)
		covered += next - start
		pos = next
	}
	return covered > 0 && covered*100/total >= 25
}

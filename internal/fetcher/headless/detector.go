// Package headless renders challenge-walled listing pages with headless
// Chrome. Some directories sit behind JavaScript interstitials that defeat a
// plain HTTP probe; when the heuristic detector flags a response, the fetch is
// retried through a real browser.
package headless

import (
	"bytes"
	"strings"

	"github.com/aitoolsdir/harvester/internal/harvest"
)

// defaultChallengeMarkers are substrings that indicate a JS challenge or an
// otherwise script-gated page.
var defaultChallengeMarkers = []string{
	"just a moment",
	"checking your browser",
	"cf-challenge",
	"enable javascript",
	"captcha",
}

// HeuristicDetector flags responses that look like a challenge page or are
// too thin to contain real content.
type HeuristicDetector struct {
	minHTMLBytes int
	markers      [][]byte
}

// NewHeuristicDetector constructs a detector. Passing no markers installs the
// default challenge marker set.
func NewHeuristicDetector(minBytes int, markers ...string) *HeuristicDetector {
	if len(markers) == 0 {
		markers = defaultChallengeMarkers
	}
	lowered := make([][]byte, 0, len(markers))
	for _, m := range markers {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		lowered = append(lowered, bytes.ToLower([]byte(m)))
	}
	return &HeuristicDetector{
		minHTMLBytes: minBytes,
		markers:      lowered,
	}
}

// NeedsHeadless inspects the probe response for challenge signals.
func (d *HeuristicDetector) NeedsHeadless(page harvest.Page) bool {
	if d == nil {
		return false
	}
	if d.minHTMLBytes > 0 && len(page.Body) < d.minHTMLBytes {
		return true
	}
	if len(page.Body) == 0 {
		return false
	}
	lowerBody := bytes.ToLower(page.Body)
	for _, m := range d.markers {
		if bytes.Contains(lowerBody, m) {
			return true
		}
	}
	return false
}

package extractor

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Link scoring constants. A candidate at or below the exclusion floor is
// never selected.
const (
	scoreExcluded      = -999
	scoreDeniedDomain  = -500
	scoreDeniedPath    = -200
	scoreActionVerb    = 50
	scoreRootPath      = 20
	scoreTargetBlank   = 5
	scoreRelNoopener   = 2
	scoreLongQuery     = -5
	longQueryThreshold = 30
)

var actionVerbs = []string{"visit", "official", "website", "open", "launch", "try", "go to"}

// excludedDomains are social/media/affiliate/shortener hosts that are never a
// tool's own website.
var excludedDomains = map[string]struct{}{
	"youtube.com":   {},
	"twitter.com":   {},
	"x.com":         {},
	"pinterest.com": {},
	"linkedin.com":  {},
	"facebook.com":  {},
	"instagram.com": {},
	"medium.com":    {},
	"go2cloud.org":  {},
	"impact.com":    {},
	"i384100.net":   {},
	"grsm.io":       {},
	"bit.ly":        {},
	"tinyurl.com":   {},
	"t.me":          {},
	"telegram.me":   {},
	"telegram.org":  {},
	"fas.st":        {},
	"pxf.io":        {},
}

var excludedURLPatterns = []string{
	"privacy",
	"cookie",
	"cookies",
	"terms",
	"policy",
	"newsletter",
	"press",
	"newsroom",
	"/news/",
	"/blog/",
	"/notify/",
	"/dsar/",
	"aff_",
	"utm_",
	"?ref=",
}

var httpSchemeRe = regexp.MustCompile(`(?i)^https?://`)

// findExternalWebsite scores every outbound link on a listing page and
// returns the best-scoring href, or "" when the page has no anchors at all.
// Same-host and non-http(s) links sit at the exclusion floor and are never
// returned.
func findExternalWebsite(doc *goquery.Document, pageURL string) string {
	pageHost := hostWithoutWWW(pageURL)
	bestScore := scoreExcluded
	bestHref := ""
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		s := scoreExternalLink(a, pageHost)
		if s > bestScore {
			bestScore = s
			bestHref, _ = a.Attr("href")
		}
	})
	return bestHref
}

func scoreExternalLink(a *goquery.Selection, pageHost string) int {
	href := strings.TrimSpace(a.AttrOr("href", ""))
	if href == "" || !httpSchemeRe.MatchString(href) {
		return scoreExcluded
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return scoreExcluded
	}
	targetHost := strings.ToLower(strings.Replace(parsed.Host, "www.", "", 1))
	if targetHost == pageHost {
		return scoreExcluded
	}
	if _, denied := excludedDomains[targetHost]; denied {
		return scoreDeniedDomain
	}
	pathQ := strings.ToLower(parsed.Path)
	if parsed.RawQuery != "" {
		pathQ += "?" + strings.ToLower(parsed.RawQuery)
	}
	for _, pat := range excludedURLPatterns {
		if strings.Contains(pathQ, pat) {
			return scoreDeniedPath
		}
	}

	score := 0
	text := strings.ToLower(strings.TrimSpace(a.Text()))
	for _, verb := range actionVerbs {
		if strings.Contains(text, verb) {
			score += scoreActionVerb
			break
		}
	}
	if a.AttrOr("target", "") == "_blank" {
		score += scoreTargetBlank
	}
	rel := strings.ToLower(a.AttrOr("rel", ""))
	if strings.Contains(rel, "noopener") || strings.Contains(rel, "noreferrer") {
		score += scoreRelNoopener
	}
	if len(parsed.RawQuery) > longQueryThreshold {
		score += scoreLongQuery
	}
	if parsed.Path == "" || parsed.Path == "/" {
		score += scoreRootPath
	}
	return score
}

func hostWithoutWWW(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.Replace(u.Host, "www.", "", 1))
}

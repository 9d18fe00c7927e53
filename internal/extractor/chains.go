package extractor

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aitoolsdir/harvester/internal/harvest"
)

const (
	maxNameLen        = 100
	maxDescriptionLen = 280
	minDescriptionLen = 40
	minParagraphLen   = 60
	maxParagraphLen   = 300
)

var (
	stopWordRe = regexp.MustCompile(`(?i)cookies|subscribe|sign\s*up|newsletter|privacy`)
	digitsRe   = regexp.MustCompile(`(\d+)`)
)

var rejectedNamePrefixes = []string{"privacy", "terms", "cookie"}

// nameFromDoc walks the name priority chain: og:title, first h1, <title>,
// then a domain-derived fallback. Candidates shorter than three characters or
// starting with a boilerplate prefix are rejected and the chain continues.
func nameFromDoc(doc *goquery.Document, domain string) string {
	if title := acceptableName(doc.Find(`meta[property="og:title"]`).AttrOr("content", "")); title != "" {
		return title
	}
	if title := acceptableName(doc.Find("h1").First().Text()); title != "" {
		return title
	}
	if title := acceptableName(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return nameFromDomain(domain)
}

func acceptableName(raw string) string {
	title := strings.TrimSpace(raw)
	if len(title) < 3 {
		return ""
	}
	lower := strings.ToLower(title)
	for _, prefix := range rejectedNamePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return ""
		}
	}
	return harvest.Truncate(title, maxNameLen)
}

// nameFromDomain title-cases the second-to-last dot segment of the domain:
// "figma.com" -> "Figma".
func nameFromDomain(domain string) string {
	parts := strings.Split(domain, ".")
	if len(parts) >= 2 {
		return harvest.TitleCase(parts[len(parts)-2])
	}
	return harvest.TitleCase(domain)
}

// descriptionFromDoc prefers a meta description of at least 40 characters,
// then the first meaningful body paragraph.
func descriptionFromDoc(doc *goquery.Document) string {
	meta := doc.Find(`meta[name="description"]`).AttrOr("content", "")
	if meta == "" {
		meta = doc.Find(`meta[property="og:description"]`).AttrOr("content", "")
	}
	meta = strings.TrimSpace(meta)
	if len(meta) >= minDescriptionLen {
		return harvest.Truncate(meta, maxDescriptionLen)
	}
	if p := bestParagraph(doc); p != "" {
		return harvest.Truncate(p, maxDescriptionLen)
	}
	return ""
}

// bestParagraph picks the first paragraph within the length window that does
// not look like cookie/newsletter boilerplate.
func bestParagraph(doc *goquery.Document) string {
	found := ""
	doc.Find("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		txt := strings.Join(strings.Fields(p.Text()), " ")
		if len(txt) < minParagraphLen || len(txt) > maxParagraphLen {
			return true
		}
		if stopWordRe.MatchString(txt) {
			return true
		}
		found = txt
		return false
	})
	return found
}

// iconRels are the exact rel values that announce a site icon. Values like
// mask-icon carry monochrome SVG masks, not usable logos.
var iconRels = map[string]bool{
	"icon":                         true,
	"shortcut icon":                true,
	"apple-touch-icon":             true,
	"apple-touch-icon-precomposed": true,
}

// logoFromDoc collects icon <link> tags, preferring the largest declared
// size, resolved against the homepage URL. When the page declares no icons
// the conventional /favicon.ico path is returned.
func logoFromDoc(doc *goquery.Document, homeURL string) string {
	base, err := url.Parse(homeURL)
	if err != nil {
		return ""
	}
	bestSize := -1
	bestURL := ""
	doc.Find("link[rel]").Each(func(_ int, link *goquery.Selection) {
		rel := strings.ToLower(strings.TrimSpace(link.AttrOr("rel", "")))
		if !iconRels[rel] {
			return
		}
		href := strings.TrimSpace(link.AttrOr("href", ""))
		if href == "" {
			return
		}
		size := declaredIconSize(link.AttrOr("sizes", ""))
		if size > bestSize {
			bestSize = size
			bestURL = resolveRef(base, href)
		}
	})
	if bestURL != "" {
		return bestURL
	}
	return base.Scheme + "://" + base.Host + "/favicon.ico"
}

func declaredIconSize(sizes string) int {
	if !strings.Contains(sizes, "x") {
		return 0
	}
	best := 0
	for _, m := range digitsRe.FindAllString(sizes, -1) {
		if n, err := strconv.Atoi(m); err == nil && n > best {
			best = n
		}
	}
	return best
}

func resolveRef(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// categoryFromDoc returns the first comma-separated keyword token,
// title-cased, or "" when the page has no keywords meta tag.
func categoryFromDoc(doc *goquery.Document) string {
	content := doc.Find(`meta[name="keywords"]`).AttrOr("content", "")
	if content == "" {
		return ""
	}
	first := strings.TrimSpace(strings.SplitN(content, ",", 2)[0])
	if first == "" {
		return ""
	}
	return harvest.TitleCase(first)
}

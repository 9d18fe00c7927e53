// Package urlnorm normalizes URLs for deduplication: tracking-parameter
// stripping, registrable-domain (eTLD+1) extraction, and canonical homepage
// computation. Every function is best-effort and returns its input (or the
// closest usable value) on parse failure; normalization never aborts a run.
package urlnorm

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// trackingParams are dropped from query strings in addition to any key with
// the "utm_" prefix.
var trackingParams = map[string]struct{}{
	"fbclid":   {},
	"gclid":    {},
	"yclid":    {},
	"mc_cid":   {},
	"mc_eid":   {},
	"ref":      {},
	"referrer": {},
}

// Clean removes tracking query parameters and the fragment, preserving the
// order of the remaining parameters. Blank parameter values are kept.
func Clean(raw string) string {
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.RawFragment = ""
	if u.RawQuery != "" {
		kept := make([]string, 0, 4)
		for _, pair := range strings.Split(u.RawQuery, "&") {
			key := pair
			if i := strings.IndexByte(pair, '='); i >= 0 {
				key = pair[:i]
			}
			key = strings.ToLower(key)
			if strings.HasPrefix(key, "utm_") {
				continue
			}
			if _, tracked := trackingParams[key]; tracked {
				continue
			}
			kept = append(kept, pair)
		}
		u.RawQuery = strings.Join(kept, "&")
	}
	return u.String()
}

// RegistrableDomain returns the eTLD+1 for the URL's host, e.g.
// "help.figma.com" -> "figma.com". When no valid domain+suffix pair exists
// (IPs, localhost, bare suffixes) the lower-cased host is returned as-is.
func RegistrableDomain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(strings.TrimSpace(u.Hostname()))
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return ""
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return etld1
}

// CanonicalHomepage collapses any URL to "https://{registrableDomain}/",
// discarding the original scheme, path, and query.
func CanonicalHomepage(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	host := strings.ToLower(strings.TrimSpace(u.Hostname()))
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return raw
	}
	if etld1, psErr := publicsuffix.EffectiveTLDPlusOne(host); psErr == nil {
		host = etld1
	}
	return "https://" + host + "/"
}

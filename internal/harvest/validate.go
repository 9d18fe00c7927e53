package harvest

import (
	"fmt"
	"net/url"
	"strings"
)

// RejectReason classifies why a candidate was dropped. Rejections are counted,
// never fatal to a run.
type RejectReason string

// Rejection reasons surfaced by candidate validation.
const (
	RejectEmptyWebsite    RejectReason = "empty_website"
	RejectNoDomain        RejectReason = "no_domain"
	RejectDuplicateDomain RejectReason = "duplicate_domain"
	RejectNameTooShort    RejectReason = "name_too_short"
	RejectMalformedURL    RejectReason = "malformed_url"
)

// ValidationError is the typed rejection returned when a record fails the
// staged-record schema.
type ValidationError struct {
	Reason RejectReason
	Field  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s (%s)", e.Reason, e.Field)
}

const minNameLen = 3

// Validate checks the StagedRecord schema: a non-empty domain, a trimmed name
// of at least three characters, and a well-formed absolute website URL.
func (r StagedRecord) Validate() error {
	if strings.TrimSpace(r.Domain) == "" {
		return &ValidationError{Reason: RejectNoDomain, Field: "domain"}
	}
	if len(strings.TrimSpace(r.Name)) < minNameLen {
		return &ValidationError{Reason: RejectNameTooShort, Field: "name"}
	}
	if !isHTTPURL(r.Website) {
		return &ValidationError{Reason: RejectMalformedURL, Field: "website"}
	}
	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Validate enforces the per-mode parameter invariants of a source.
func (s SourceConfig) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("source name is required")
	}
	switch s.Mode {
	case ModeSitemap:
		if strings.TrimSpace(s.SitemapURL) == "" {
			return fmt.Errorf("source %q: sitemap mode requires sitemap_url", s.Name)
		}
	case ModeSelectors:
		if strings.TrimSpace(s.BaseURL) == "" {
			return fmt.Errorf("source %q: selectors mode requires base_url", s.Name)
		}
		if strings.TrimSpace(s.ListSelector) == "" {
			return fmt.Errorf("source %q: selectors mode requires list_selector", s.Name)
		}
	default:
		return fmt.Errorf("source %q: unknown mode %q", s.Name, s.Mode)
	}
	return nil
}

// Package harvest defines core types shared across subsystems.
package harvest

import "time"

// SourceMode selects the crawl strategy for a source.
type SourceMode string

// Crawl strategies supported by the pipeline.
const (
	ModeSitemap   SourceMode = "sitemap"
	ModeSelectors SourceMode = "selectors"
)

// FieldMap binds candidate fields to CSS selectors. A selector may carry an
// "@attr" suffix meaning "read this attribute instead of text content".
type FieldMap struct {
	Name        string `mapstructure:"name" json:"name,omitempty"`
	Description string `mapstructure:"description" json:"description,omitempty"`
	Website     string `mapstructure:"website" json:"website,omitempty"`
	Category    string `mapstructure:"category" json:"category,omitempty"`
	Pricing     string `mapstructure:"pricing" json:"pricing,omitempty"`
	Logo        string `mapstructure:"logo" json:"logo,omitempty"`
}

// SourceConfig describes one harvesting target. It is immutable once loaded
// for a run.
type SourceConfig struct {
	Name         string     `mapstructure:"name" json:"name"`
	Mode         SourceMode `mapstructure:"mode" json:"mode"`
	BaseURL      string     `mapstructure:"base_url" json:"base_url,omitempty"`
	ListSelector string     `mapstructure:"list_selector" json:"list_selector,omitempty"`
	Fields       FieldMap   `mapstructure:"fields" json:"fields,omitempty"`
	SitemapURL   string     `mapstructure:"sitemap_url" json:"sitemap_url,omitempty"`
	Limit        int        `mapstructure:"limit" json:"limit"`
}

// RawCandidate is an extracted-but-unvalidated record produced by a source
// strategy and consumed by the pipeline driver.
type RawCandidate struct {
	Name        string
	Description string
	Website     string
	Category    string
	Pricing     string
	Logo        string
	Source      string
}

// StagedRecord is a validated, normalized candidate. Exactly one record per
// registrable domain is staged per run; the domain is the dedup key.
type StagedRecord struct {
	Domain      string
	Name        string
	Description string
	Website     string
	Category    string
	Pricing     string
	Logo        string
	Source      string
}

// PipelineStats tallies one pipeline run.
type PipelineStats struct {
	Written    int `json:"written"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
}

// ImportStats is returned by the import engine after a batch.
type ImportStats struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// JobState represents the lifecycle state of a harvest job.
type JobState string

// Job state values persisted in the status store. Completed and failed are
// terminal.
const (
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateUnknown   JobState = "unknown"
)

// JobStatus is the status object persisted per job id. Meta carries free-form
// payload such as the output path, import stats, or a failure reason.
type JobStatus struct {
	State JobState       `json:"status"`
	Meta  map[string]any `json:"meta,omitempty"`
}

// JobOverrides carries optional CLI-style overrides forwarded to the
// pipeline subprocess. Nil fields are omitted from the argument list.
type JobOverrides struct {
	PerSource *int     `json:"per_source,omitempty"`
	RateLimit *float64 `json:"rate_limit,omitempty"`
	Timeout   *int     `json:"timeout,omitempty"`
}

// JobRequest wraps a job ready to run.
type JobRequest struct {
	JobID     string
	Overrides JobOverrides
	Submitted time.Time
}

// Page is the result returned by a Fetcher implementation.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

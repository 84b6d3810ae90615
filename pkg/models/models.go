package models

import (
	"time"

	"github.com/cennso/sitegen/pkg/toc"
)

// CacheEntry stores the rendered result of a document in the build cache
type CacheEntry struct {
	ContentHash string      `json:"content_hash"` // Hash of renderer version + raw source
	Title       string      `json:"title"`
	HTML        string      `json:"html"`
	TOC         []*toc.Node `json:"toc,omitempty"`
	Anchors     []string    `json:"anchors,omitempty"` // Heading ids present in HTML
	RenderedAt  time.Time   `json:"rendered_at"`
}

// BuildManifest records one build run
type BuildManifest struct {
	RunID        string         `yaml:"run_id"`
	SiteName     string         `yaml:"site_name"`
	BaseURL      string         `yaml:"base_url"`
	StartTime    time.Time      `yaml:"start_time"`
	EndTime      time.Time      `yaml:"end_time"`
	TotalPages   int            `yaml:"total_pages"`
	Rendered     int            `yaml:"rendered"`
	Cached       int            `yaml:"cached"`
	Failed       int            `yaml:"failed"`
	CacheEntries int            `yaml:"cache_entries,omitempty"` // Documents held by the build cache after pruning
	Artifacts    []string       `yaml:"artifacts,omitempty"`     // Site-level files written (sitemap.xml, llms.txt, ...)
	Audit        *AuditSummary  `yaml:"audit,omitempty"`
	Pages        []PageManifest `yaml:"pages"`
}

// AuditSummary counts audit violations of a build
type AuditSummary struct {
	PagesChecked int `yaml:"pages_checked"`
	Errors       int `yaml:"errors"`
	Warnings     int `yaml:"warnings"`
}

// PageManifest holds metadata for a single built page
type PageManifest struct {
	Route       string     `yaml:"route"`
	SourcePath  string     `yaml:"source_path"`
	OutputPath  string     `yaml:"output_path,omitempty"` // Relative to output dir
	Title       string     `yaml:"title"`
	Description string     `yaml:"description,omitempty"`
	Collection  string     `yaml:"collection,omitempty"`
	ContentHash string     `yaml:"content_hash,omitempty"`
	Headings    int        `yaml:"headings"`
	Tokens      int        `yaml:"tokens,omitempty"`
	Status      PageStatus `yaml:"status"`
	ErrorType   string     `yaml:"error_type,omitempty"` // Error category (on failure)
}

// SearchRecord is one line of the section search index
type SearchRecord struct {
	ID         string   `json:"id"`     // route#anchor, with a chunk suffix when a section is split
	URL        string   `json:"url"`    // Absolute URL including fragment
	Route      string   `json:"route"`  // Page route
	Anchor     string   `json:"anchor"` // Heading id, empty for the page preamble
	PageTitle  string   `json:"page_title"`
	Title      string   `json:"title"` // Section heading, page title for the preamble
	Breadcrumb []string `json:"breadcrumb,omitempty"`
	Level      int      `json:"level"`
	Content    string   `json:"content"`
	Tokens     int      `json:"tokens"`
}

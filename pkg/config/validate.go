package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/cennso/sitegen/pkg/utils"
)

var validChangeFreqs = []string{"always", "hourly", "daily", "weekly", "monthly", "yearly", "never"}

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// Site
	if c.Site.BaseURL == "" {
		return nil, fmt.Errorf("%w: site.base_url is required", utils.ErrConfigValidation)
	}
	u, parseErr := url.Parse(c.Site.BaseURL)
	if parseErr != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: site.base_url %q must be an absolute http(s) URL", utils.ErrConfigValidation, c.Site.BaseURL)
	}
	if u.Scheme != "https" {
		warnings = append(warnings, fmt.Sprintf("site.base_url %q does not use https; canonical URLs will be insecure", c.Site.BaseURL))
	}
	c.Site.BaseURL = strings.TrimSuffix(c.Site.BaseURL, "/")
	if c.Site.Name == "" {
		c.Site.Name = u.Hostname()
	}
	if c.Site.Title == "" {
		warnings = append(warnings, fmt.Sprintf("site.title is empty, defaulting to '%s'", c.Site.Name))
		c.Site.Title = c.Site.Name
	}

	// ContentDir
	if c.ContentDir == "" {
		warnings = append(warnings, "content_dir is empty, defaulting to './content'")
		c.ContentDir = "./content"
	}

	// OutputDir
	if c.OutputDir == "" {
		warnings = append(warnings, "output_dir is empty, defaulting to './public'")
		c.OutputDir = "./public"
	}

	// StateDir
	if c.StateDir == "" {
		warnings = append(warnings, "state_dir is empty, defaulting to './.sitegen'")
		c.StateDir = "./.sitegen"
	}

	// NumWorkers
	if c.NumWorkers <= 0 {
		warnings = append(warnings, "num_workers should be > 0, defaulting to 4")
		c.NumWorkers = 4
	}

	// ExcludePatterns must compile
	if _, err := utils.CompileRegexPatterns(c.ExcludePatterns); err != nil {
		return nil, fmt.Errorf("exclude_patterns: %w", err)
	}

	// Collections
	for key, coll := range c.Collections {
		collWarnings, collErr := coll.Validate()
		if collErr != nil {
			return nil, fmt.Errorf("collection '%s': %w", key, collErr)
		}
		for _, w := range collWarnings {
			warnings = append(warnings, fmt.Sprintf("collection '%s': %s", key, w))
		}
		c.Collections[key] = coll
	}

	warnings = append(warnings, c.validateArtifacts()...)
	c.validateWatch()

	return warnings, nil
}

// validateArtifacts applies defaults to the generated SEO and search files.
func (c *AppConfig) validateArtifacts() (warnings []string) {
	if c.Sitemap.Filename == "" {
		c.Sitemap.Filename = "sitemap.xml"
	}
	if c.Sitemap.ChangeFreq != "" && !slices.Contains(validChangeFreqs, c.Sitemap.ChangeFreq) {
		warnings = append(warnings, fmt.Sprintf("sitemap.change_freq '%s' is invalid, defaulting to 'weekly'", c.Sitemap.ChangeFreq))
		c.Sitemap.ChangeFreq = "weekly"
	}
	if c.Sitemap.Priority < 0 || c.Sitemap.Priority > 1 {
		warnings = append(warnings, "sitemap.priority must be within [0, 1], defaulting to 0.5")
		c.Sitemap.Priority = 0.5
	}

	if c.Robots.UserAgent == "" {
		c.Robots.UserAgent = "*"
	}
	if c.Robots.Enabled && !c.Sitemap.Enabled {
		warnings = append(warnings, "robots.txt is enabled without a sitemap; no Sitemap line will be written")
	}

	if c.LLMs.Filename == "" {
		c.LLMs.Filename = "llms.txt"
	}
	if c.LLMs.FullFilename == "" {
		c.LLMs.FullFilename = "llms-full.txt"
	}
	if c.LLMs.TokenEncoding == "" {
		c.LLMs.TokenEncoding = "cl100k_base"
	}

	if c.Search.Filename == "" {
		c.Search.Filename = "search-index.jsonl"
	}
	if c.Search.MaxChunkTokens <= 0 {
		c.Search.MaxChunkTokens = 512
	}
	if c.Search.ChunkOverlap < 0 {
		warnings = append(warnings, "search.chunk_overlap cannot be negative, setting to 0")
		c.Search.ChunkOverlap = 0
	}
	if c.Search.ChunkOverlap >= c.Search.MaxChunkTokens {
		warnings = append(warnings, fmt.Sprintf(
			"search.chunk_overlap (%d) >= max_chunk_tokens (%d), setting overlap to 0",
			c.Search.ChunkOverlap, c.Search.MaxChunkTokens))
		c.Search.ChunkOverlap = 0
	}

	if c.Audit.FailOnError && !c.Audit.Enabled {
		warnings = append(warnings, "audit.fail_on_error has no effect while audit is disabled")
	}
	return warnings
}

// validateWatch applies defaults to watch mode settings.
func (c *AppConfig) validateWatch() {
	if c.Watch.Debounce <= 0 {
		c.Watch.Debounce = 300 * time.Millisecond
	}
}

// Validate checks CollectionConfig fields and applies defaults.
// Modifies receiver in place (path prefix normalization).
func (c *CollectionConfig) Validate() (warnings []string, err error) {
	// Required: PathPrefix
	if c.PathPrefix == "" {
		return nil, fmt.Errorf("%w: collection needs path_prefix", utils.ErrConfigValidation)
	}
	if c.PathPrefix[0] != '/' {
		c.PathPrefix = "/" + c.PathPrefix
	}
	if len(c.PathPrefix) > 1 {
		c.PathPrefix = strings.TrimSuffix(c.PathPrefix, "/")
	}

	if c.ChangeFreq != "" && !slices.Contains(validChangeFreqs, c.ChangeFreq) {
		warnings = append(warnings, fmt.Sprintf("change_freq '%s' is invalid, inheriting global", c.ChangeFreq))
		c.ChangeFreq = ""
	}

	if c.Priority != nil && (*c.Priority < 0 || *c.Priority > 1) {
		warnings = append(warnings, "priority must be within [0, 1], inheriting global")
		c.Priority = nil
	}

	return warnings, nil
}

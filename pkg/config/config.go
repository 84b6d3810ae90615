package config

import (
	"strings"
	"time"
)

// SiteInfo describes the published site
type SiteInfo struct {
	Name        string `yaml:"name"`        // Short identifier, used for the cache directory
	Title       string `yaml:"title"`       // Human title, used in llms.txt
	Description string `yaml:"description"` // One-line summary, used in llms.txt
	BaseURL     string `yaml:"base_url"`    // Absolute origin, e.g. https://example.com
}

// CollectionConfig groups content under a path prefix (blog, docs, legal) and overrides
// global SEO settings for it
type CollectionConfig struct {
	PathPrefix       string   `yaml:"path_prefix"`
	Title            string   `yaml:"title,omitempty"`
	Description      string   `yaml:"description,omitempty"`
	Order            int      `yaml:"order,omitempty"` // Section order in llms.txt, lower first
	IncludeInSitemap *bool    `yaml:"include_in_sitemap,omitempty"`
	IncludeInLLMs    *bool    `yaml:"include_in_llms,omitempty"`
	ChangeFreq       string   `yaml:"change_freq,omitempty"`
	Priority         *float64 `yaml:"priority,omitempty"`
}

// RenderConfig controls Markdown rendering
type RenderConfig struct {
	UnsafeHTML bool `yaml:"unsafe_html,omitempty"` // Pass raw HTML in Markdown through to the output
	Sanitize   bool `yaml:"sanitize,omitempty"`    // Run rendered HTML through a UGC sanitizer policy
}

// SitemapConfig controls sitemap.xml generation
type SitemapConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Filename   string  `yaml:"filename,omitempty"`
	ChangeFreq string  `yaml:"change_freq,omitempty"`
	Priority   float64 `yaml:"priority,omitempty"`
}

// RobotsConfig controls robots.txt generation
type RobotsConfig struct {
	Enabled   bool     `yaml:"enabled"`
	UserAgent string   `yaml:"user_agent,omitempty"`
	Disallow  []string `yaml:"disallow,omitempty"`
}

// LLMsConfig controls llms.txt and llms-full.txt generation
type LLMsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Filename      string `yaml:"filename,omitempty"`
	FullFilename  string `yaml:"full_filename,omitempty"`
	TokenEncoding string `yaml:"token_encoding,omitempty"` // tiktoken encoding used for token counts
}

// SearchConfig controls the section-level search index
type SearchConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Filename       string `yaml:"filename,omitempty"`
	MaxChunkTokens int    `yaml:"max_chunk_tokens,omitempty"`
	ChunkOverlap   int    `yaml:"chunk_overlap,omitempty"`
}

// AuditConfig controls the post-build heading and link audit
type AuditConfig struct {
	Enabled     bool `yaml:"enabled"`
	FailOnError bool `yaml:"fail_on_error,omitempty"`
}

// WatchConfig controls watch mode
type WatchConfig struct {
	Debounce        time.Duration `yaml:"debounce,omitempty"`
	RebuildInterval string        `yaml:"rebuild_interval,omitempty"` // e.g. "1h", "1d"; empty disables periodic rebuilds
}

// AppConfig holds the global application configuration
type AppConfig struct {
	Site            SiteInfo                    `yaml:"site"`
	ContentDir      string                      `yaml:"content_dir"`
	OutputDir       string                      `yaml:"output_dir"`
	StateDir        string                      `yaml:"state_dir"`
	StaticDirs      []string                    `yaml:"static_dirs,omitempty"` // Directories whose files are served as-is (links to them are valid)
	NumWorkers      int                         `yaml:"num_workers"`
	EnableCache     bool                        `yaml:"enable_cache,omitempty"`
	ExcludePatterns []string                    `yaml:"exclude_patterns,omitempty"` // Regex patterns matched against content-relative paths
	Render          RenderConfig                `yaml:"render,omitempty"`
	Collections     map[string]CollectionConfig `yaml:"collections,omitempty"`
	Sitemap         SitemapConfig               `yaml:"sitemap,omitempty"`
	Robots          RobotsConfig                `yaml:"robots,omitempty"`
	LLMs            LLMsConfig                  `yaml:"llms,omitempty"`
	Search          SearchConfig                `yaml:"search,omitempty"`
	Audit           AuditConfig                 `yaml:"audit,omitempty"`
	Watch           WatchConfig                 `yaml:"watch,omitempty"`
}

// CollectionFor returns the collection key whose path prefix is the longest match for route.
// Returns "" when no collection matches.
func (c *AppConfig) CollectionFor(route string) string {
	best, bestLen := "", -1
	for key, coll := range c.Collections {
		prefix := coll.PathPrefix
		if route != prefix && !strings.HasPrefix(route, strings.TrimSuffix(prefix, "/")+"/") {
			continue
		}
		if len(prefix) > bestLen {
			best, bestLen = key, len(prefix)
		}
	}
	return best
}

// GetEffectiveIncludeInSitemap determines whether pages of a collection appear in sitemap.xml
func GetEffectiveIncludeInSitemap(collCfg CollectionConfig, appCfg AppConfig) bool {
	if collCfg.IncludeInSitemap != nil {
		return *collCfg.IncludeInSitemap
	}
	return appCfg.Sitemap.Enabled
}

// GetEffectiveIncludeInLLMs determines whether pages of a collection appear in llms.txt
func GetEffectiveIncludeInLLMs(collCfg CollectionConfig, appCfg AppConfig) bool {
	if collCfg.IncludeInLLMs != nil {
		return *collCfg.IncludeInLLMs
	}
	return appCfg.LLMs.Enabled
}

// GetEffectiveChangeFreq determines the sitemap change frequency.
// Collection config (if non-empty) overrides global
func GetEffectiveChangeFreq(collCfg CollectionConfig, appCfg AppConfig) string {
	if collCfg.ChangeFreq != "" {
		return collCfg.ChangeFreq
	}
	if appCfg.Sitemap.ChangeFreq != "" {
		return appCfg.Sitemap.ChangeFreq
	}
	return "weekly"
}

// GetEffectivePriority determines the sitemap priority
func GetEffectivePriority(collCfg CollectionConfig, appCfg AppConfig) float64 {
	if collCfg.Priority != nil {
		return *collCfg.Priority
	}
	if appCfg.Sitemap.Priority > 0 {
		return appCfg.Sitemap.Priority
	}
	return 0.5
}

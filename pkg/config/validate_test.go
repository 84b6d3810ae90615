package config

import (
	"strings"
	"testing"
	"time"

	"github.com/cennso/sitegen/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func containsWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestAppConfig_Validate_Defaults(t *testing.T) {
	cfg := AppConfig{Site: SiteInfo{BaseURL: "https://example.com/"}}
	warnings, err := cfg.Validate()

	require.NoError(t, err)

	assert.Equal(t, "https://example.com", cfg.Site.BaseURL)
	assert.Equal(t, "example.com", cfg.Site.Name)
	assert.Equal(t, "example.com", cfg.Site.Title)
	assert.Equal(t, "./content", cfg.ContentDir)
	assert.Equal(t, "./public", cfg.OutputDir)
	assert.Equal(t, "./.sitegen", cfg.StateDir)
	assert.Equal(t, 4, cfg.NumWorkers)
	assert.Equal(t, "sitemap.xml", cfg.Sitemap.Filename)
	assert.Equal(t, "*", cfg.Robots.UserAgent)
	assert.Equal(t, "llms.txt", cfg.LLMs.Filename)
	assert.Equal(t, "llms-full.txt", cfg.LLMs.FullFilename)
	assert.Equal(t, "cl100k_base", cfg.LLMs.TokenEncoding)
	assert.Equal(t, "search-index.jsonl", cfg.Search.Filename)
	assert.Equal(t, 512, cfg.Search.MaxChunkTokens)
	assert.Equal(t, 300*time.Millisecond, cfg.Watch.Debounce)

	assert.True(t, containsWarning(warnings, "num_workers should be > 0"))
	assert.True(t, containsWarning(warnings, "content_dir is empty"))
	assert.True(t, containsWarning(warnings, "output_dir is empty"))
	assert.True(t, containsWarning(warnings, "state_dir is empty"))
	assert.True(t, containsWarning(warnings, "site.title is empty"))
	assert.False(t, containsWarning(warnings, "https"))
}

func TestAppConfig_Validate_ValidConfig(t *testing.T) {
	cfg := AppConfig{
		Site:       SiteInfo{Name: "acme", Title: "Acme", BaseURL: "https://acme.dev"},
		ContentDir: "/content",
		OutputDir:  "/out",
		StateDir:   "/state",
		NumWorkers: 8,
		Search:     SearchConfig{Enabled: true, MaxChunkTokens: 256, ChunkOverlap: 32},
	}

	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, 8, cfg.NumWorkers)
	assert.Equal(t, "acme", cfg.Site.Name)
	assert.Equal(t, "/out", cfg.OutputDir)
	assert.Equal(t, 256, cfg.Search.MaxChunkTokens)
	assert.Equal(t, 32, cfg.Search.ChunkOverlap)
}

func TestAppConfig_Validate_BaseURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
		warn    string
	}{
		{"missing", "", true, ""},
		{"relative", "/docs", true, ""},
		{"unsupported scheme", "ftp://example.com", true, ""},
		{"http warns", "http://example.com", false, "does not use https"},
		{"https ok", "https://example.com", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := AppConfig{Site: SiteInfo{Title: "T", BaseURL: tt.baseURL}}
			warnings, err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, utils.ErrConfigValidation)
				return
			}
			require.NoError(t, err)
			if tt.warn != "" {
				assert.True(t, containsWarning(warnings, tt.warn))
			}
		})
	}
}

func TestAppConfig_Validate_InvalidExcludePattern(t *testing.T) {
	cfg := AppConfig{
		Site:            SiteInfo{BaseURL: "https://example.com"},
		ExcludePatterns: []string{"^drafts/", "(["},
	}
	_, err := cfg.Validate()

	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
	assert.Contains(t, err.Error(), "exclude_patterns")
}

func TestAppConfig_Validate_SearchOverlapInversion(t *testing.T) {
	cfg := AppConfig{
		Site:   SiteInfo{BaseURL: "https://example.com"},
		Search: SearchConfig{MaxChunkTokens: 100, ChunkOverlap: 150},
	}
	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Search.ChunkOverlap)
	assert.True(t, containsWarning(warnings, "chunk_overlap (150) >= max_chunk_tokens (100)"))
}

func TestAppConfig_Validate_SitemapValues(t *testing.T) {
	cfg := AppConfig{
		Site:    SiteInfo{BaseURL: "https://example.com"},
		Sitemap: SitemapConfig{Enabled: true, ChangeFreq: "sometimes", Priority: 3},
	}
	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.Equal(t, "weekly", cfg.Sitemap.ChangeFreq)
	assert.Equal(t, 0.5, cfg.Sitemap.Priority)
	assert.True(t, containsWarning(warnings, "sitemap.change_freq 'sometimes' is invalid"))
	assert.True(t, containsWarning(warnings, "sitemap.priority must be within"))
}

func TestAppConfig_Validate_RobotsWithoutSitemap(t *testing.T) {
	cfg := AppConfig{
		Site:   SiteInfo{BaseURL: "https://example.com"},
		Robots: RobotsConfig{Enabled: true},
	}
	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.True(t, containsWarning(warnings, "without a sitemap"))
}

func TestAppConfig_Validate_CollectionErrorPropagates(t *testing.T) {
	cfg := AppConfig{
		Site:        SiteInfo{BaseURL: "https://example.com"},
		Collections: map[string]CollectionConfig{"blog": {}},
	}
	_, err := cfg.Validate()

	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
	assert.Contains(t, err.Error(), "collection 'blog'")
}

func TestAppConfig_Validate_CollectionNormalized(t *testing.T) {
	cfg := AppConfig{
		Site:        SiteInfo{BaseURL: "https://example.com"},
		Collections: map[string]CollectionConfig{"blog": {PathPrefix: "blog/", ChangeFreq: "often"}},
	}
	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.Equal(t, "/blog", cfg.Collections["blog"].PathPrefix)
	assert.Equal(t, "", cfg.Collections["blog"].ChangeFreq)
	assert.True(t, containsWarning(warnings, "collection 'blog': change_freq 'often' is invalid"))
}

func TestCollectionConfig_Validate_PathPrefixNormalization(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"/", "/"},
		{"docs", "/docs"},
		{"/docs/", "/docs"},
		{"/docs", "/docs"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cfg := CollectionConfig{PathPrefix: tt.input}
			_, err := cfg.Validate()
			require.NoError(t, err)
			assert.Equal(t, tt.expected, cfg.PathPrefix)
		})
	}
}

func TestCollectionConfig_Validate_InvalidPriority(t *testing.T) {
	cfg := CollectionConfig{PathPrefix: "/blog", Priority: floatPtr(1.5)}
	warnings, err := cfg.Validate()

	require.NoError(t, err)
	assert.Nil(t, cfg.Priority)
	assert.True(t, containsWarning(warnings, "priority must be within"))
}

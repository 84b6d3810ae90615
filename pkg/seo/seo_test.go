package seo

import (
	"bytes"
	"encoding/xml"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cennso/sitegen/pkg/config"
	"github.com/cennso/sitegen/pkg/utils"
)

func boolPtr(b bool) *bool { return &b }
func floatPtr(f float64) *float64 { return &f }

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg := &config.AppConfig{
		Site: config.SiteInfo{Title: "Cennso", Description: "Telecom\ncloud.", BaseURL: "https://example.com/"},
		Collections: map[string]config.CollectionConfig{
			"blog":  {PathPrefix: "/blog", Title: "Blog", Order: 2, ChangeFreq: "daily"},
			"docs":  {PathPrefix: "docs", Order: 1, Priority: floatPtr(0.8)},
			"legal": {PathPrefix: "/legal", IncludeInSitemap: boolPtr(false), IncludeInLLMs: boolPtr(false)},
		},
		Sitemap: config.SitemapConfig{Enabled: true},
		Robots:  config.RobotsConfig{Enabled: true},
		LLMs:    config.LLMsConfig{Enabled: true},
	}
	_, err := cfg.Validate()
	require.NoError(t, err)
	return cfg
}

func testPages() []Page {
	return []Page{
		{Route: "/", Title: "Home", Description: "Welcome", LastMod: time.Date(2024, 5, 1, 23, 0, 0, 0, time.UTC), Markdown: "Hello."},
		{Route: "/docs/setup", Title: "Setup", Collection: "docs", Markdown: "## Install\nRun it.\n"},
		{Route: "/blog/hello", Title: "Hello [world]", Description: "First post", Collection: "blog", Markdown: "Post body"},
		{Route: "/legal/privacy", Title: "Privacy", Collection: "legal", Markdown: "Secret"},
	}
}

func newTestGenerator(t *testing.T, cfg *config.AppConfig) *Generator {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewGenerator(cfg, nil, logrus.NewEntry(logger))
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"HTTPS://Example.COM/Path", "https://example.com/Path"},
		{"http://example.com:80/path", "http://example.com/path"},
		{"https://example.com:443/path", "https://example.com/path"},
		{"https://example.com:8443/path", "https://example.com:8443/path"},
		{"https://example.com", "https://example.com/"},
		{"https://example.com/", "https://example.com/"},
		{"https://example.com/docs/", "https://example.com/docs"},
		{"https://example.com/docs?q=1#top", "https://example.com/docs"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			u, err := url.Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, NormalizeURL(u))
		})
	}
	assert.Equal(t, "", NormalizeURL(nil))
}

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		base, route, expected string
	}{
		{"https://example.com", "/", "https://example.com/"},
		{"https://example.com", "", "https://example.com/"},
		{"https://Example.com/", "/docs/", "https://example.com/docs"},
		{"https://example.com/site/", "/a/b", "https://example.com/site/a/b"},
		{"https://example.com/site", "/", "https://example.com/site"},
		{"https://example.com", "sitemap.xml", "https://example.com/sitemap.xml"},
	}
	for _, tt := range tests {
		got, err := CanonicalURL(tt.base, tt.route)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, got, "%s + %s", tt.base, tt.route)
	}

	_, err := CanonicalURL("not a url", "/")
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
}

func TestWriteSitemap(t *testing.T) {
	g := newTestGenerator(t, testConfig(t))

	var buf bytes.Buffer
	n, err := g.WriteSitemap(&buf, testPages())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Contains(t, buf.String(), `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)

	var set URLSet
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &set))
	assert.Equal(t, []SitemapURL{
		{Loc: "https://example.com/", LastMod: "2024-05-01", ChangeFreq: "weekly", Priority: "0.5"},
		{Loc: "https://example.com/docs/setup", ChangeFreq: "weekly", Priority: "0.8"},
		{Loc: "https://example.com/blog/hello", ChangeFreq: "daily", Priority: "0.5"},
	}, set.URLs)
}

func TestRobots(t *testing.T) {
	cfg := testConfig(t)
	cfg.Robots.Disallow = []string{"/blog/drafts"}
	g := newTestGenerator(t, cfg)

	robots := g.RobotsTxt("https://example.com/sitemap.xml")
	assert.Equal(t, "User-agent: *\nDisallow: /blog/drafts\n\nSitemap: https://example.com/sitemap.xml\n", string(robots))

	blocked, err := VerifyRobots(robots, "*", []string{"https://example.com/", "https://example.com/blog/hello"})
	require.NoError(t, err)
	assert.Empty(t, blocked)

	blocked, err = VerifyRobots(robots, "*", []string{"https://example.com/blog/drafts/wip", "https://example.com/docs"})
	assert.ErrorIs(t, err, utils.ErrRobotsBlocked)
	assert.Equal(t, []string{"https://example.com/blog/drafts/wip"}, blocked)
}

func TestRobots_AllowAll(t *testing.T) {
	g := newTestGenerator(t, testConfig(t))

	robots := g.RobotsTxt("")
	assert.Equal(t, "User-agent: *\nAllow: /\n", string(robots))

	_, err := VerifyRobots(robots, "*", []string{"https://example.com/anything"})
	assert.NoError(t, err)
}

func TestWriteLLMs(t *testing.T) {
	g := newTestGenerator(t, testConfig(t))

	var buf bytes.Buffer
	require.NoError(t, g.WriteLLMs(&buf, testPages()))

	expected := "# Cennso\n" +
		"\n> Telecom cloud.\n" +
		"\n## Pages\n\n" +
		"- [Home](https://example.com/): Welcome\n" +
		"\n## docs\n\n" +
		"- [Setup](https://example.com/docs/setup)\n" +
		"\n## Blog\n\n" +
		"- [Hello \\[world\\]](https://example.com/blog/hello): First post\n"
	assert.Equal(t, expected, buf.String())
}

func TestWriteLLMsFull(t *testing.T) {
	g := newTestGenerator(t, testConfig(t))

	var buf bytes.Buffer
	tokens, err := g.WriteLLMsFull(&buf, testPages())
	require.NoError(t, err)
	assert.Equal(t, -1, tokens)

	out := buf.String()
	assert.Contains(t, out, "# Setup\n\nSource: https://example.com/docs/setup\n\n## Install\nRun it.\n")
	assert.Contains(t, out, "# Home\n\nSource: https://example.com/\n\nHello.\n")
	assert.NotContains(t, out, "Secret")
}

func TestWriteAll(t *testing.T) {
	out := t.TempDir()
	g := newTestGenerator(t, testConfig(t))

	written, err := g.WriteAll(out, testPages())
	require.NoError(t, err)
	assert.Equal(t, []string{"sitemap.xml", "robots.txt", "llms.txt", "llms-full.txt"}, written)

	robots, err := os.ReadFile(filepath.Join(out, "robots.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(robots), "Sitemap: https://example.com/sitemap.xml")
}

func TestWriteAll_BlockedSitemapURLs(t *testing.T) {
	out := t.TempDir()
	cfg := testConfig(t)
	cfg.Robots.Disallow = []string{"/docs"}
	cfg.LLMs.Enabled = false
	g := newTestGenerator(t, cfg)

	written, err := g.WriteAll(out, testPages())
	assert.ErrorIs(t, err, utils.ErrRobotsBlocked)
	assert.Equal(t, []string{"sitemap.xml", "robots.txt"}, written)
	assert.FileExists(t, filepath.Join(out, "robots.txt"))
}

func TestWriteAll_Disabled(t *testing.T) {
	out := t.TempDir()
	cfg := testConfig(t)
	cfg.Sitemap.Enabled = false
	cfg.Robots.Enabled = false
	cfg.LLMs.Enabled = false

	written, err := newTestGenerator(t, cfg).WriteAll(out, testPages())
	require.NoError(t, err)
	assert.Empty(t, written)
}

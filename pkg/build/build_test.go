package build

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cennso/sitegen/pkg/config"
	"github.com/cennso/sitegen/pkg/models"
	"github.com/cennso/sitegen/pkg/toc"
	"github.com/cennso/sitegen/pkg/utils"
)

func newTestLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0644))
}

func newTestConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.AppConfig{
		Site:       config.SiteInfo{Name: "test", Title: "Test Site", BaseURL: "https://example.com"},
		ContentDir: filepath.Join(dir, "content"),
		OutputDir:  filepath.Join(dir, "public"),
		StateDir:   filepath.Join(dir, "state"),
		NumWorkers: 2,
		Sitemap:    config.SitemapConfig{Enabled: true},
		Robots:     config.RobotsConfig{Enabled: true},
		LLMs:       config.LLMsConfig{Enabled: true},
		Search:     config.SearchConfig{Enabled: true},
		Audit:      config.AuditConfig{Enabled: true},
	}
	_, err := cfg.Validate()
	require.NoError(t, err)

	writeFile(t, cfg.ContentDir, "index.md", "# Home\n\nStart with the [setup guide](docs/intro.md#setup).\n")
	writeFile(t, cfg.ContentDir, "docs/intro.md",
		"---\ntitle: Intro\ndescription: Getting started\n---\n## Setup\n\nInstall it.\n\n## Setup\n\nAgain.\n\n### Details\n\nMore.\n")
	return cfg
}

func readTOC(t *testing.T, outputDir, route string) []*toc.Node {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(outputDir, filepath.FromSlash(strings.TrimPrefix(route, "/")), tocFileName))
	require.NoError(t, err)
	var forest []*toc.Node
	require.NoError(t, json.Unmarshal(data, &forest))
	return forest
}

func TestBuilder_Run(t *testing.T) {
	cfg := newTestConfig(t)

	manifest, err := NewBuilder(cfg, Options{}, newTestLogger()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, manifest.TotalPages)
	assert.Equal(t, 2, manifest.Rendered)
	assert.Equal(t, 0, manifest.Failed)
	assert.ElementsMatch(t,
		[]string{"search-index.jsonl", "sitemap.xml", "robots.txt", "llms.txt", "llms-full.txt"},
		manifest.Artifacts)
	require.NotNil(t, manifest.Audit)
	assert.Equal(t, 2, manifest.Audit.PagesChecked)
	assert.Zero(t, manifest.Audit.Errors)

	// Every TOC entry links to a heading id present in the page
	forest := readTOC(t, cfg.OutputDir, "/docs/intro")
	assert.Equal(t, []string{"setup", "setup-1", "details"}, toc.IDs(forest))

	f, err := os.Open(filepath.Join(cfg.OutputDir, "docs", "intro", pageFileName))
	require.NoError(t, err)
	defer f.Close()
	doc, err := goquery.NewDocumentFromReader(f)
	require.NoError(t, err)

	var headingIDs []string
	doc.Find("article h2, article h3").Each(func(_ int, s *goquery.Selection) {
		headingIDs = append(headingIDs, s.AttrOr("id", ""))
	})
	assert.Equal(t, toc.IDs(forest), headingIDs)
	assert.Equal(t, "Intro", doc.Find("main > h1").Text())
	assert.Equal(t, 3, doc.Find("nav.toc a").Length())

	home, err := os.ReadFile(filepath.Join(cfg.OutputDir, pageFileName))
	require.NoError(t, err)
	assert.Contains(t, string(home), `href="/docs/intro#setup"`)
	assert.Empty(t, readTOC(t, cfg.OutputDir, "/"))

	for _, p := range manifest.Pages {
		assert.Equal(t, models.PageStatusRendered, p.Status)
		assert.NotEmpty(t, p.ContentHash)
	}
}

func TestBuilder_Run_WritesManifest(t *testing.T) {
	cfg := newTestConfig(t)

	manifest, err := NewBuilder(cfg, Options{}, newTestLogger()).Run(context.Background())
	require.NoError(t, err)

	loaded, err := LoadManifest(cfg.StateDir)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, manifest.RunID, loaded.RunID)
	require.Len(t, loaded.Pages, 2)

	var intro models.PageManifest
	for _, p := range loaded.Pages {
		if p.Route == "/docs/intro" {
			intro = p
		}
	}
	assert.Equal(t, "docs/intro.md", intro.SourcePath)
	assert.Equal(t, "docs/intro/index.html", intro.OutputPath)
	assert.Equal(t, "Getting started", intro.Description)
	assert.Equal(t, 3, intro.Headings)
	assert.Greater(t, intro.Tokens, 0)
}

func TestBuilder_Run_SearchIndex(t *testing.T) {
	cfg := newTestConfig(t)

	_, err := NewBuilder(cfg, Options{}, newTestLogger()).Run(context.Background())
	require.NoError(t, err)

	f, err := os.Open(filepath.Join(cfg.OutputDir, cfg.Search.Filename))
	require.NoError(t, err)
	defer f.Close()

	var records []models.SearchRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec models.SearchRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		records = append(records, rec)
	}
	require.NoError(t, scanner.Err())
	require.NotEmpty(t, records)

	found := false
	for _, rec := range records {
		if strings.HasPrefix(rec.URL, "https://example.com/docs/intro") {
			found = true
		}
	}
	assert.True(t, found, "expected a record for /docs/intro")
}

func TestBuilder_Run_CacheHit(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.EnableCache = true

	first, err := NewBuilder(cfg, Options{}, newTestLogger()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Rendered)
	assert.Equal(t, 2, first.CacheEntries)

	second, err := NewBuilder(cfg, Options{}, newTestLogger()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Rendered)
	assert.Equal(t, 2, second.Cached)
	assert.Equal(t, []string{"setup", "setup-1", "details"}, toc.IDs(readTOC(t, cfg.OutputDir, "/docs/intro")))

	// A changed source is rendered again
	writeFile(t, cfg.ContentDir, "docs/intro.md", "## Install\n")
	third, err := NewBuilder(cfg, Options{}, newTestLogger()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, third.Rendered)
	assert.Equal(t, 1, third.Cached)
	assert.Equal(t, []string{"install"}, toc.IDs(readTOC(t, cfg.OutputDir, "/docs/intro")))
	assert.Equal(t, 2, third.CacheEntries, "a re-rendered page replaces its entry")

	fresh, err := NewBuilder(cfg, Options{Fresh: true}, newTestLogger()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.Rendered)
}

func TestBuilder_Run_RemovesStalePages(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Audit.Enabled = false
	writeFile(t, cfg.ContentDir, "docs/old.md", "## Gone soon\n")

	_, err := NewBuilder(cfg, Options{}, newTestLogger()).Run(context.Background())
	require.NoError(t, err)
	oldPage := filepath.Join(cfg.OutputDir, "docs", "old", pageFileName)
	assert.FileExists(t, oldPage)

	require.NoError(t, os.Remove(filepath.Join(cfg.ContentDir, "docs", "old.md")))
	manifest, err := NewBuilder(cfg, Options{}, newTestLogger()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, manifest.TotalPages)
	assert.NoFileExists(t, oldPage)
	assert.NoDirExists(t, filepath.Join(cfg.OutputDir, "docs", "old"))
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "docs", "intro", pageFileName))
}

func TestBuilder_Run_AuditFailure(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Audit.FailOnError = true
	writeFile(t, cfg.ContentDir, "docs/deep.md", "## Top\n\n#### Too deep\n\nSee [missing](/nowhere).\n")

	manifest, err := NewBuilder(cfg, Options{}, newTestLogger()).Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrAuditFailed)
	require.NotNil(t, manifest)
	require.NotNil(t, manifest.Audit)
	assert.GreaterOrEqual(t, manifest.Audit.Errors, 2)
	assert.Equal(t, 3, manifest.Rendered)

	// The manifest is written even when the audit fails
	loaded, err := LoadManifest(cfg.StateDir)
	require.NoError(t, err)
	assert.Equal(t, manifest.RunID, loaded.RunID)
}

func TestBuilder_Run_CopiesStatic(t *testing.T) {
	cfg := newTestConfig(t)
	staticDir := filepath.Join(t.TempDir(), "static")
	writeFile(t, staticDir, "img/logo.svg", "<svg/>")
	writeFile(t, cfg.ContentDir, "about.md", "## Brand\n\n![logo](/img/logo.svg)\n")
	cfg.StaticDirs = []string{staticDir}
	cfg.Audit.FailOnError = true

	_, err := NewBuilder(cfg, Options{}, newTestLogger()).Run(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(cfg.OutputDir, "img", "logo.svg"))
}

func TestBuilder_Run_Canceled(t *testing.T) {
	cfg := newTestConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBuilder(cfg, Options{}, newTestLogger()).Run(ctx)
	assert.Error(t, err)
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, "index.html", OutputPath("/"))
	assert.Equal(t, "docs/intro/index.html", OutputPath("/docs/intro"))
}

func TestBuilder_Run_SingleTitleHeading(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Audit.FailOnError = true
	writeFile(t, cfg.ContentDir, "docs/fenced.md",
		"---\ntitle: Fenced\n---\n~~~md\n```\n~~~\n\n# Real Title\n\n## Usage\n")
	writeFile(t, cfg.ContentDir, "docs/tabbed.md", "---\ntitle: Tabbed\n---\n#\tTabbed Title\n\n## Usage\n")
	writeFile(t, cfg.ContentDir, "docs/code.md",
		"---\ntitle: Code\n---\n```bash\n# install dependencies\nnpm ci\n```\n\n## Usage\n")

	manifest, err := NewBuilder(cfg, Options{}, newTestLogger()).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, manifest.Audit.Errors)

	for route, want := range map[string]string{
		"/docs/fenced": "Real Title",
		"/docs/tabbed": "Tabbed Title",
		"/docs/code":   "Code",
	} {
		f, err := os.Open(filepath.Join(cfg.OutputDir, filepath.FromSlash(OutputPath(route))))
		require.NoError(t, err)
		doc, err := goquery.NewDocumentFromReader(f)
		f.Close()
		require.NoError(t, err)

		h1 := doc.Find("h1")
		assert.Equal(t, 1, h1.Length(), route)
		assert.Equal(t, want, h1.Text(), route)
	}
}

func TestCopyFile_SkipsUnchanged(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.css")
	dst := filepath.Join(dir, "dst.css")
	require.NoError(t, os.WriteFile(src, []byte("body{}"), 0644))

	require.NoError(t, copyFile(src, dst))
	past := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(dst, past, past))

	require.NoError(t, copyFile(src, dst))
	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(past), "unchanged file rewritten")

	require.NoError(t, os.WriteFile(src, []byte("body{margin:0}"), 0644))
	require.NoError(t, copyFile(src, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "body{margin:0}", string(data))
}

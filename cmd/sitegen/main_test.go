package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cennso/sitegen/pkg/build"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfgPath := filepath.Join(t.TempDir(), "sitegen.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0644))
	return cfgPath
}

func TestLoadConfig_ValidFile(t *testing.T) {
	cfgPath := writeConfig(t, `
site:
  name: docs
  base_url: https://docs.example.com
num_workers: 4
content_dir: ./content
collections:
  blog:
    path_prefix: /blog
`)

	cfg, err := loadConfig(cfgPath)

	require.NoError(t, err)
	assert.Equal(t, 4, cfg.NumWorkers)
	assert.Equal(t, "https://docs.example.com", cfg.Site.BaseURL)
	assert.Contains(t, cfg.Collections, "blog")
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := loadConfig("/nonexistent/path/sitegen.yaml")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	cfgPath := writeConfig(t, "{{invalid yaml")

	_, err := loadConfig(cfgPath)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestDoValidate(t *testing.T) {
	cfgPath := writeConfig(t, `
site:
  base_url: https://docs.example.com/
collections:
  blog:
    path_prefix: blog/
  guides:
    path_prefix: /guides
`)

	var stdout, stderr bytes.Buffer
	exitCode := doValidate(cfgPath, &stdout, &stderr)

	assert.Equal(t, 0, exitCode, stderr.String())
	out := stdout.String()
	assert.Contains(t, out, "WARN: content_dir is empty")
	assert.Contains(t, out, "OK: [blog] /blog")
	assert.Contains(t, out, "OK: [guides] /guides")
	assert.Contains(t, out, "OK: Site 'docs.example.com' (https://docs.example.com)")
	assert.Contains(t, out, "Configuration valid")
}

func TestDoValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing base url", "num_workers: 2\n", "site.base_url is required"},
		{"bad collection", "site:\n  base_url: https://a.com\ncollections:\n  x: {}\n", "collection 'x'"},
		{"bad interval", "site:\n  base_url: https://a.com\nwatch:\n  rebuild_interval: often\n", "watch.rebuild_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			exitCode := doValidate(writeConfig(t, tt.content), &stdout, &stderr)

			assert.Equal(t, 1, exitCode)
			assert.Contains(t, stderr.String(), tt.wantErr)
		})
	}
}

func TestDoValidate_ConfigNotFound(t *testing.T) {
	var stdout, stderr bytes.Buffer
	exitCode := doValidate("/nonexistent.yaml", &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "Error")
}

func TestDoTOC(t *testing.T) {
	src := "---\ntitle: Guide\n---\n# Guide\n\n## Install\n\n### Linux\n\n## Install\n"

	tests := []struct {
		format string
		want   string
	}{
		{"tree", "├── Install (#install)\n│   └── Linux (#linux)\n└── Install (#install-1)\n"},
		{"markdown", "- [Install](#install)\n  - [Linux](#linux)\n- [Install](#install-1)\n"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			exitCode := doTOC("", tt.format, strings.NewReader(src), &stdout, &stderr)

			require.Equal(t, 0, exitCode, stderr.String())
			assert.Equal(t, tt.want, stdout.String())
		})
	}
}

func TestDoTOC_JSONFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.md")
	require.NoError(t, os.WriteFile(path, []byte("## A\n## B\n"), 0644))

	var stdout, stderr bytes.Buffer
	exitCode := doTOC(path, "json", nil, &stdout, &stderr)

	require.Equal(t, 0, exitCode)
	assert.JSONEq(t, `[{"id":"a","title":"A","level":2},{"id":"b","title":"B","level":2}]`, stdout.String())
}

func TestDoTOC_Errors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, doTOC("/nonexistent.md", "tree", nil, &stdout, &stderr))

	stderr.Reset()
	assert.Equal(t, 1, doTOC("", "yaml", strings.NewReader("## A\n"), &stdout, &stderr))
	assert.Contains(t, stderr.String(), "unknown format")
}

func newSiteConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	contentDir := filepath.Join(dir, "content")
	require.NoError(t, os.MkdirAll(filepath.Join(contentDir, "docs"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(contentDir, "index.md"),
		[]byte("# Home\n\nRead the [guide](docs/guide.md#usage).\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(contentDir, "docs", "guide.md"),
		[]byte("# Guide\n\n## Usage\n\nRun it.\n"), 0644))

	cfg := "site:\n  name: test\n  base_url: https://example.com\n" +
		"content_dir: " + contentDir + "\n" +
		"output_dir: " + filepath.Join(dir, "public") + "\n" +
		"state_dir: " + filepath.Join(dir, "state") + "\n" + extra
	return writeConfig(t, cfg)
}

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestDoBuildAndAudit(t *testing.T) {
	cfgPath := newSiteConfig(t, "sitemap:\n  enabled: true\n")

	exitCode := doBuild(context.Background(), cfgPath, build.Options{}, discardLogger())
	require.Equal(t, 0, exitCode)

	var stdout, stderr bytes.Buffer
	exitCode = doAudit(cfgPath, "", &stdout, &stderr)
	assert.Equal(t, 0, exitCode, stdout.String()+stderr.String())
	assert.Contains(t, stdout.String(), "2 pages checked, 0 errors")
}

func TestDoAudit_ReportsErrors(t *testing.T) {
	dir := t.TempDir()
	page := filepath.Join(dir, "docs", "index.html")
	require.NoError(t, os.MkdirAll(filepath.Dir(page), 0755))
	require.NoError(t, os.WriteFile(page,
		[]byte(`<html><body><h1>Docs</h1><h3 id="deep">Deep</h3><a href="/missing">x</a></body></html>`), 0644))

	var stdout, stderr bytes.Buffer
	exitCode := doAudit("", dir, &stdout, &stderr)

	assert.Equal(t, 1, exitCode)
	out := stdout.String()
	assert.Contains(t, out, "ERROR: [/docs] heading-level-skipped")
	assert.Contains(t, out, "ERROR: [/docs] broken-link")
}

func TestDoBuild_ConfigError(t *testing.T) {
	cfgPath := writeConfig(t, "num_workers: 1\n")
	assert.Equal(t, 1, doBuild(context.Background(), cfgPath, build.Options{}, discardLogger()))
}

func TestDoBuild_Cancelled(t *testing.T) {
	cfgPath := newSiteConfig(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, 1, doBuild(ctx, cfgPath, build.Options{}, discardLogger()))
}

func TestDoMcpServer_Errors(t *testing.T) {
	var stderr bytes.Buffer
	assert.Equal(t, 1, doMcpServer("/nonexistent.yaml", "stdio", 0, "info", &stderr))
	assert.Contains(t, stderr.String(), "Error loading config")

	stderr.Reset()
	assert.Equal(t, 1, doMcpServer(newSiteConfig(t, ""), "stdio", 0, "loud", &stderr))
	assert.Contains(t, stderr.String(), "Invalid log level")

	stderr.Reset()
	assert.Equal(t, 1, doMcpServer(newSiteConfig(t, ""), "carrier-pigeon", 0, "error", &stderr))
	assert.Contains(t, stderr.String(), "unknown transport")
}

func TestPrintUsageTo(t *testing.T) {
	var buf bytes.Buffer
	printUsageTo(&buf)

	out := buf.String()
	for _, cmd := range []string{"build", "watch", "toc", "audit", "validate", "mcp-server", "version"} {
		assert.Contains(t, out, cmd)
	}
}

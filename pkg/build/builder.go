// Package build turns the content directory into the published site: rendered pages with
// their tables of contents, the search index, SEO artifacts and the build manifest.
package build

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/cennso/sitegen/pkg/audit"
	"github.com/cennso/sitegen/pkg/config"
	"github.com/cennso/sitegen/pkg/content"
	"github.com/cennso/sitegen/pkg/models"
	"github.com/cennso/sitegen/pkg/process"
	"github.com/cennso/sitegen/pkg/render"
	"github.com/cennso/sitegen/pkg/seo"
	"github.com/cennso/sitegen/pkg/storage"
	"github.com/cennso/sitegen/pkg/toc"
	"github.com/cennso/sitegen/pkg/utils"
)

const metaLastRunID = "last_run_id"

// Options tune a single build
type Options struct {
	Fresh         bool // Discard the build cache before building
	IncludeDrafts bool
}

// Builder builds the site described by an AppConfig. A Builder may be run repeatedly;
// each run reloads content from disk.
type Builder struct {
	cfg  *config.AppConfig
	opts Options
	tok  *process.Tokenizer
	log  *logrus.Entry
}

// NewBuilder creates a Builder. cfg must be validated. A tokenizer that cannot be
// loaded is logged and token counts are then reported as unknown.
func NewBuilder(cfg *config.AppConfig, opts Options, log *logrus.Entry) *Builder {
	log = log.WithField("component", "build")
	tok, err := process.NewTokenizer(cfg.LLMs.TokenEncoding)
	if err != nil {
		log.Warnf("Token counting disabled: %v", err)
	}
	return &Builder{cfg: cfg, opts: opts, tok: tok, log: log}
}

// pageResult is what one worker produces for one document
type pageResult struct {
	manifest models.PageManifest
	seo      seo.Page
	records  []models.SearchRecord
}

// Run performs a full build and returns its manifest. Pages that fail to render are
// recorded as failed and the build continues; the returned error then wraps ErrRender.
func (b *Builder) Run(ctx context.Context) (*models.BuildManifest, error) {
	runID := uuid.NewString()
	log := b.log.WithField("run_id", runID)
	manifest := &models.BuildManifest{
		RunID:     runID,
		SiteName:  b.cfg.Site.Name,
		BaseURL:   b.cfg.Site.BaseURL,
		StartTime: time.Now(),
	}
	log.Infof("Starting build of '%s' (%d workers)", b.cfg.Site.Name, b.cfg.NumWorkers)

	loader, err := content.NewLoader(content.Options{
		ContentDir:      b.cfg.ContentDir,
		ExcludePatterns: b.cfg.ExcludePatterns,
		IncludeDrafts:   b.opts.IncludeDrafts,
	}, log)
	if err != nil {
		return nil, err
	}
	docs, err := loader.LoadAll(ctx)
	if err != nil {
		return nil, err
	}

	routes := make(map[string]string, len(docs))
	for _, doc := range docs {
		routes[doc.SourcePath] = doc.Route
	}
	renderer := render.New(render.Options{
		UnsafeHTML: b.cfg.Render.UnsafeHTML,
		Sanitize:   b.cfg.Render.Sanitize,
		Routes:     routes,
	}, log)

	var cache storage.BuildCache
	if b.cfg.EnableCache {
		store, err := storage.NewBadgerStore(ctx, b.cfg.StateDir, b.cfg.Site.Name, b.opts.Fresh, log)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		if prev, found, err := store.GetMeta(metaLastRunID); err == nil && found {
			log.Debugf("Build cache last written by run %s", prev)
		}
		cache = store
	}

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create output directory: %w", utils.ErrFilesystem, err)
	}
	for _, dir := range b.cfg.StaticDirs {
		n, err := copyStatic(dir, b.cfg.OutputDir)
		if err != nil {
			return nil, err
		}
		log.Debugf("Copied %d static files from %s", n, dir)
	}

	var indexer *process.Indexer
	if b.cfg.Search.Enabled {
		indexer = process.NewIndexer(process.ChunkerConfig{
			MaxChunkTokens: b.cfg.Search.MaxChunkTokens,
			ChunkOverlap:   b.cfg.Search.ChunkOverlap,
		}, b.tok)
	}

	// Each worker owns its result slot, so no locking is needed
	results := make([]pageResult, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.NumWorkers)
	for i, doc := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = b.buildPage(doc, renderer, cache, indexer, log.WithField("route", doc.Route))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	current := make(map[string]bool, len(docs))
	var seoPages []seo.Page
	var records []models.SearchRecord
	for _, r := range results {
		manifest.Pages = append(manifest.Pages, r.manifest)
		if !r.manifest.Status.Succeeded() {
			manifest.Failed++
			continue
		}
		if r.manifest.Status == models.PageStatusCached {
			manifest.Cached++
		} else {
			manifest.Rendered++
		}
		current[r.manifest.Route] = true
		seoPages = append(seoPages, r.seo)
		records = append(records, r.records...)
	}
	manifest.TotalPages = len(docs)

	prev, err := LoadManifest(b.cfg.StateDir)
	if err != nil {
		log.Warnf("Could not read previous manifest, stale pages are kept: %v", err)
	}
	if n := removeStale(b.cfg.OutputDir, prev, current, log); n > 0 {
		log.Infof("Removed %d stale pages", n)
	}

	var errs []error
	if indexer != nil {
		if err := writeSearchIndex(filepath.Join(b.cfg.OutputDir, b.cfg.Search.Filename), records); err != nil {
			return nil, err
		}
		manifest.Artifacts = append(manifest.Artifacts, b.cfg.Search.Filename)
		log.WithField("records", len(records)).Infof("Wrote %s", b.cfg.Search.Filename)
	}

	artifacts, err := seo.NewGenerator(b.cfg, b.tok, log).WriteAll(b.cfg.OutputDir, seoPages)
	manifest.Artifacts = append(manifest.Artifacts, artifacts...)
	if err != nil {
		if !errors.Is(err, utils.ErrRobotsBlocked) {
			return nil, err
		}
		errs = append(errs, err)
	}

	if cache != nil {
		if n, err := cache.Prune(ctx, current); err != nil {
			log.Warnf("Failed to prune build cache: %v", err)
		} else if n > 0 {
			log.Debugf("Pruned %d cache entries", n)
		}
		if n, err := cache.CollectGarbage(); err != nil {
			log.Warnf("Build cache garbage collection failed: %v", err)
		} else if n > 0 {
			log.Debugf("Build cache GC rewrote %d value log files", n)
		}
		manifest.CacheEntries = cache.Count()
		if err := cache.SetMeta(metaLastRunID, runID); err != nil {
			log.Warnf("Failed to record run id in cache: %v", err)
		}
	}

	if b.cfg.Audit.Enabled {
		report, err := audit.New(log).Run(ctx, b.cfg.OutputDir)
		if err != nil {
			return nil, err
		}
		manifest.Audit = &models.AuditSummary{
			PagesChecked: report.PagesChecked,
			Errors:       report.Count(audit.SeverityError),
			Warnings:     report.Count(audit.SeverityWarning),
		}
		if report.HasErrors() && b.cfg.Audit.FailOnError {
			errs = append(errs, fmt.Errorf("%w: %d error(s) in %d pages", utils.ErrAuditFailed,
				manifest.Audit.Errors, report.PagesChecked))
		}
	}

	if manifest.Failed > 0 {
		errs = append(errs, fmt.Errorf("%w: %d page(s) failed", utils.ErrRender, manifest.Failed))
	}

	manifest.EndTime = time.Now()
	if err := writeManifest(b.cfg.StateDir, manifest); err != nil {
		return manifest, err
	}
	b.logSummary(log, manifest)
	return manifest, errors.Join(errs...)
}

// buildPage renders one document, reusing the cached render when the source and
// renderer are unchanged, and writes its page files.
func (b *Builder) buildPage(doc *content.Document, renderer *render.Renderer, cache storage.BuildCache,
	indexer *process.Indexer, log *logrus.Entry) pageResult {
	hash := utils.ContentHash([]byte(renderer.Fingerprint()), doc.Raw)
	res := pageResult{
		manifest: models.PageManifest{
			Route:       doc.Route,
			SourcePath:  doc.SourcePath,
			Title:       doc.Title,
			Description: doc.FrontMatter.Description,
			Collection:  b.cfg.CollectionFor(doc.Route),
			ContentHash: hash,
			Tokens:      b.tok.Count(doc.Body),
		},
	}
	fail := func(stage string, err error) pageResult {
		res.manifest.Status = models.PageStatusFailed
		res.manifest.ErrorType = utils.CategorizeError(err)
		log.WithField("error_type", res.manifest.ErrorType).Errorf("%s failed: %v", stage, err)
		return res
	}

	var entry *models.CacheEntry
	res.manifest.Status = models.PageStatusRendered
	if cache != nil {
		cached, found, err := cache.GetDocument(doc.Route)
		if err != nil {
			log.Warnf("Build cache read failed: %v", err)
		} else if found && cached.ContentHash == hash {
			entry = cached
			res.manifest.Status = models.PageStatusCached
		}
	}

	if entry == nil {
		page, err := renderer.Render(render.Input{
			Route:      doc.Route,
			SourcePath: doc.SourcePath,
			Source:     []byte(doc.Body),
		})
		if err != nil {
			return fail("Render", err)
		}
		entry = &models.CacheEntry{
			ContentHash: hash,
			Title:       doc.Title,
			HTML:        page.HTML,
			TOC:         page.TOC,
			Anchors:     page.Anchors,
			RenderedAt:  time.Now(),
		}
		if cache != nil {
			if err := cache.PutDocument(doc.Route, entry); err != nil {
				log.Warnf("Build cache write failed: %v", err)
			}
		}
	}

	_, hasTitle := toc.TitleHeading(doc.Body)
	view := pageView{
		Title:     doc.Title,
		SiteTitle: b.cfg.Site.Title,
		ShowTitle: !hasTitle,
		TOC:       entry.TOC,
		Content:   template.HTML(entry.HTML),
	}
	if err := writePage(b.cfg.OutputDir, doc.Route, view); err != nil {
		return fail("Write", err)
	}
	res.manifest.OutputPath = OutputPath(doc.Route)
	res.manifest.Headings = toc.Count(entry.TOC)

	if indexer != nil {
		pageURL, err := seo.CanonicalURL(b.cfg.Site.BaseURL, doc.Route)
		if err != nil {
			return fail("Index", err)
		}
		records, err := indexer.Index(pageURL, doc.Route, doc.Title, doc.Body)
		if err != nil {
			return fail("Index", err)
		}
		res.records = records
	}

	lastMod := doc.FrontMatter.Date
	if lastMod.IsZero() {
		lastMod = doc.ModTime
	}
	res.seo = seo.Page{
		Route:       doc.Route,
		Title:       doc.Title,
		Description: doc.FrontMatter.Description,
		Collection:  res.manifest.Collection,
		LastMod:     lastMod,
		Markdown:    doc.Body,
	}
	log.WithField("status", res.manifest.Status).Debug("Page built")
	return res
}

func (b *Builder) logSummary(log *logrus.Entry, m *models.BuildManifest) {
	log.Info("============================================")
	log.Infof("Build completed in %v", m.EndTime.Sub(m.StartTime).Round(time.Millisecond))
	log.Infof("Pages: %d total, %d rendered, %d cached, %d failed", m.TotalPages, m.Rendered, m.Cached, m.Failed)
	if b.cfg.EnableCache {
		log.Infof("Build cache: %d documents", m.CacheEntries)
	}
	for _, p := range m.Pages {
		if !p.Status.Succeeded() {
			log.Infof("  FAILED %s (%s): %s", p.Route, p.SourcePath, p.ErrorType)
		}
	}
	if len(m.Artifacts) > 0 {
		log.Infof("Artifacts: %s", strings.Join(m.Artifacts, ", "))
	}
	if m.Audit != nil {
		log.Infof("Audit: %d pages, %d errors, %d warnings", m.Audit.PagesChecked, m.Audit.Errors, m.Audit.Warnings)
	}
	log.Info("============================================")
}

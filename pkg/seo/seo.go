// Package seo writes the site-level artifacts crawlers and language models read:
// sitemap.xml, robots.txt, llms.txt and llms-full.txt.
package seo

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cennso/sitegen/pkg/config"
	"github.com/cennso/sitegen/pkg/process"
	"github.com/cennso/sitegen/pkg/utils"
)

// Page is what the artifacts need to know about one built page
type Page struct {
	Route       string
	Title       string
	Description string
	Collection  string // Collection key, empty when the page belongs to none
	LastMod     time.Time
	Markdown    string // Body used for llms-full.txt
}

// Generator writes SEO artifacts for one site
type Generator struct {
	cfg *config.AppConfig
	tok *process.Tokenizer
	log *logrus.Entry
}

// NewGenerator creates a Generator. cfg must be validated. tok may be nil.
func NewGenerator(cfg *config.AppConfig, tok *process.Tokenizer, log *logrus.Entry) *Generator {
	return &Generator{
		cfg: cfg,
		tok: tok,
		log: log.WithField("component", "seo"),
	}
}

func (g *Generator) collection(p Page) config.CollectionConfig {
	return g.cfg.Collections[p.Collection]
}

func (g *Generator) includeInSitemap(coll config.CollectionConfig) bool {
	return config.GetEffectiveIncludeInSitemap(coll, *g.cfg)
}

func (g *Generator) includeInLLMs(coll config.CollectionConfig) bool {
	return config.GetEffectiveIncludeInLLMs(coll, *g.cfg)
}

func (g *Generator) changeFreq(coll config.CollectionConfig) string {
	return config.GetEffectiveChangeFreq(coll, *g.cfg)
}

func (g *Generator) priority(coll config.CollectionConfig) float64 {
	return config.GetEffectivePriority(coll, *g.cfg)
}

// WriteAll writes every enabled artifact into outputDir and returns the file names
// written. A robots.txt that blocks sitemap URLs is still written; the returned error
// then wraps ErrRobotsBlocked.
func (g *Generator) WriteAll(outputDir string, pages []Page) ([]string, error) {
	var written []string
	var sitemapURL string
	var sitemapLocs []string

	if g.cfg.Sitemap.Enabled {
		var buf bytes.Buffer
		n, err := g.WriteSitemap(&buf, pages)
		if err != nil {
			return written, err
		}
		if err := writeArtifact(outputDir, g.cfg.Sitemap.Filename, buf.Bytes()); err != nil {
			return written, err
		}
		written = append(written, g.cfg.Sitemap.Filename)
		g.log.WithField("urls", n).Infof("Wrote %s", g.cfg.Sitemap.Filename)

		if sitemapURL, err = CanonicalURL(g.cfg.Site.BaseURL, g.cfg.Sitemap.Filename); err != nil {
			return written, err
		}
		entries, _ := g.SitemapEntries(pages)
		for _, e := range entries {
			sitemapLocs = append(sitemapLocs, e.Loc)
		}
	}

	var robotsErr error
	if g.cfg.Robots.Enabled {
		robots := g.RobotsTxt(sitemapURL)
		if err := writeArtifact(outputDir, "robots.txt", robots); err != nil {
			return written, err
		}
		written = append(written, "robots.txt")

		blocked, err := VerifyRobots(robots, g.cfg.Robots.UserAgent, sitemapLocs)
		switch {
		case errors.Is(err, utils.ErrRobotsBlocked):
			for _, u := range blocked {
				g.log.WithField("url", u).Error("Sitemap URL is disallowed by robots.txt")
			}
			robotsErr = err
		case err != nil:
			return written, err
		default:
			g.log.WithField("urls", len(sitemapLocs)).Info("Wrote robots.txt, all sitemap URLs crawlable")
		}
	}

	if g.cfg.LLMs.Enabled {
		var buf bytes.Buffer
		if err := g.WriteLLMs(&buf, pages); err != nil {
			return written, err
		}
		if err := writeArtifact(outputDir, g.cfg.LLMs.Filename, buf.Bytes()); err != nil {
			return written, err
		}
		written = append(written, g.cfg.LLMs.Filename)

		buf.Reset()
		tokens, err := g.WriteLLMsFull(&buf, pages)
		if err != nil {
			return written, err
		}
		if err := writeArtifact(outputDir, g.cfg.LLMs.FullFilename, buf.Bytes()); err != nil {
			return written, err
		}
		written = append(written, g.cfg.LLMs.FullFilename)
		g.log.WithFields(logrus.Fields{
			"tokens":   tokens,
			"encoding": g.tok.Encoding(),
		}).Infof("Wrote %s and %s", g.cfg.LLMs.Filename, g.cfg.LLMs.FullFilename)
	}

	return written, robotsErr
}

func writeArtifact(outputDir, name string, data []byte) error {
	p := filepath.Join(outputDir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("%w: create directory for '%s': %v", utils.ErrFilesystem, name, err)
	}
	if err := os.WriteFile(p, data, 0644); err != nil {
		return fmt.Errorf("%w: write '%s': %v", utils.ErrFilesystem, name, err)
	}
	return nil
}

package seo

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
)

const sitemapNamespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

// SitemapURL is a <url> element of a sitemap
type SitemapURL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

// URLSet is the <urlset> root of a sitemap
type URLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []SitemapURL `xml:"url"`
}

// SitemapEntries returns the sitemap entries for pages, skipping pages whose collection
// is excluded from the sitemap.
func (g *Generator) SitemapEntries(pages []Page) ([]SitemapURL, error) {
	entries := make([]SitemapURL, 0, len(pages))
	for _, p := range pages {
		coll := g.collection(p)
		if !g.includeInSitemap(coll) {
			continue
		}
		loc, err := CanonicalURL(g.cfg.Site.BaseURL, p.Route)
		if err != nil {
			return nil, err
		}
		entry := SitemapURL{
			Loc:        loc,
			ChangeFreq: g.changeFreq(coll),
			Priority:   strconv.FormatFloat(g.priority(coll), 'f', 1, 64),
		}
		if !p.LastMod.IsZero() {
			entry.LastMod = p.LastMod.UTC().Format("2006-01-02")
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// WriteSitemap writes sitemap.xml for pages and returns the number of URLs written.
func (g *Generator) WriteSitemap(w io.Writer, pages []Page) (int, error) {
	entries, err := g.SitemapEntries(pages)
	if err != nil {
		return 0, err
	}
	set := URLSet{XMLNS: sitemapNamespace, URLs: entries}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return 0, err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(set); err != nil {
		return 0, fmt.Errorf("encode sitemap: %w", err)
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return 0, err
	}
	return len(entries), nil
}

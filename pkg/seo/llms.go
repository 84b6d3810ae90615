package seo

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
)

const uncategorized = "Pages"

type llmsSection struct {
	title string
	order int
	pages []Page
}

// llmsSections groups pages included in llms.txt by collection. Pages outside any
// collection come first, then collections by order and key.
func (g *Generator) llmsSections(pages []Page) []llmsSection {
	byKey := make(map[string]*llmsSection)
	var keys []string

	for _, p := range pages {
		coll := g.collection(p)
		if !g.includeInLLMs(coll) {
			continue
		}
		sec, ok := byKey[p.Collection]
		if !ok {
			sec = &llmsSection{title: uncategorized, order: -1 << 31}
			if p.Collection != "" {
				sec.title = coll.Title
				if sec.title == "" {
					sec.title = p.Collection
				}
				sec.order = coll.Order
			}
			byKey[p.Collection] = sec
			keys = append(keys, p.Collection)
		}
		sec.pages = append(sec.pages, p)
	}

	sort.SliceStable(keys, func(i, j int) bool {
		a, b := byKey[keys[i]], byKey[keys[j]]
		if a.order != b.order {
			return a.order < b.order
		}
		return keys[i] < keys[j]
	})

	sections := make([]llmsSection, 0, len(keys))
	for _, k := range keys {
		sections = append(sections, *byKey[k])
	}
	return sections
}

// WriteLLMs writes llms.txt: the site title and summary followed by one link list
// per collection.
func (g *Generator) WriteLLMs(w io.Writer, pages []Page) error {
	bw := bufio.NewWriter(w)
	g.writeLLMsHeader(bw)

	for _, sec := range g.llmsSections(pages) {
		fmt.Fprintf(bw, "\n## %s\n\n", sec.title)
		for _, p := range sec.pages {
			loc, err := CanonicalURL(g.cfg.Site.BaseURL, p.Route)
			if err != nil {
				return err
			}
			fmt.Fprintf(bw, "- [%s](%s)", escapeLinkText(p.Title), loc)
			if desc := oneLine(p.Description); desc != "" {
				fmt.Fprintf(bw, ": %s", desc)
			}
			bw.WriteString("\n")
		}
	}
	return bw.Flush()
}

// WriteLLMsFull writes llms-full.txt: every included page's Markdown under its title and
// source URL. Returns the token count of the written text (-1 when unknown).
func (g *Generator) WriteLLMsFull(w io.Writer, pages []Page) (int, error) {
	var sb strings.Builder
	g.writeLLMsHeader(&sb)

	for _, sec := range g.llmsSections(pages) {
		for _, p := range sec.pages {
			loc, err := CanonicalURL(g.cfg.Site.BaseURL, p.Route)
			if err != nil {
				return 0, err
			}
			fmt.Fprintf(&sb, "\n---\n\n# %s\n\nSource: %s\n\n%s\n", p.Title, loc, strings.TrimSpace(p.Markdown))
		}
	}

	text := sb.String()
	if _, err := io.WriteString(w, text); err != nil {
		return 0, err
	}
	return g.tok.Count(text), nil
}

func (g *Generator) writeLLMsHeader(w io.Writer) {
	fmt.Fprintf(w, "# %s\n", g.cfg.Site.Title)
	if desc := oneLine(g.cfg.Site.Description); desc != "" {
		fmt.Fprintf(w, "\n> %s\n", desc)
	}
}

var linkTextEscaper = strings.NewReplacer("[", `\[`, "]", `\]`)

func escapeLinkText(s string) string {
	return linkTextEscaper.Replace(s)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

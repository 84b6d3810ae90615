package content

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/cennso/sitegen/pkg/toc"
	"github.com/cennso/sitegen/pkg/utils"
)

// Format of a source file
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatMDX      Format = "mdx"
	FormatHTML     Format = "html"
)

var extensionFormats = map[string]Format{
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".mdx":      FormatMDX,
	".html":     FormatHTML,
	".htm":      FormatHTML,
}

// Document is one content file ready for rendering. Body is always Markdown with the
// front matter removed; HTML sources are converted on load.
type Document struct {
	Route       string // URL path, e.g. "/blog/first-post"; "/" for the root index
	SourcePath  string // Path relative to the content directory, slash-separated
	Format      Format
	FrontMatter FrontMatter
	Title       string // Front matter title, else first level-1 heading, else file name
	Body        string
	Raw         []byte // Unmodified file content, used for cache keys
	ModTime     time.Time
}

// Options configures a Loader
type Options struct {
	ContentDir      string
	ExcludePatterns []string
	IncludeDrafts   bool
}

// Loader reads content files from disk
type Loader struct {
	opts      Options
	exclude   []*regexp.Regexp
	converter *md.Converter
	log       *logrus.Entry
}

// NewLoader creates a Loader. Returns an error if an exclude pattern does not compile.
func NewLoader(opts Options, log *logrus.Entry) (*Loader, error) {
	exclude, err := utils.CompileRegexPatterns(opts.ExcludePatterns)
	if err != nil {
		return nil, err
	}
	return &Loader{
		opts:      opts,
		exclude:   exclude,
		converter: md.NewConverter("", true, nil),
		log:       log.WithField("component", "content"),
	}, nil
}

// LoadAll walks the content directory and returns every publishable document sorted by route.
// Drafts are skipped unless IncludeDrafts is set. Two files mapping to one route is an error.
func (l *Loader) LoadAll(ctx context.Context) ([]*Document, error) {
	root := l.opts.ContentDir
	if info, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("%w: content directory '%s': %w", utils.ErrFilesystem, root, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("%w: content path '%s' is not a directory", utils.ErrFilesystem, root)
	}

	var docs []*Document
	byRoute := make(map[string]string)

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if _, ok := extensionFormats[strings.ToLower(path.Ext(rel))]; !ok {
			return nil
		}
		if utils.MatchesAny(l.exclude, rel) {
			l.log.Debugf("Skipping excluded file: %s", rel)
			return nil
		}

		doc, loadErr := l.Load(rel)
		if loadErr != nil {
			return fmt.Errorf("load '%s': %w", rel, loadErr)
		}
		if doc.FrontMatter.Draft && !l.opts.IncludeDrafts {
			l.log.Debugf("Skipping draft: %s", rel)
			return nil
		}
		if other, dup := byRoute[doc.Route]; dup {
			return fmt.Errorf("%w: '%s' and '%s' both map to route '%s'", utils.ErrConfigValidation, other, rel, doc.Route)
		}
		byRoute[doc.Route] = rel
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Route < docs[j].Route })
	l.log.Infof("Loaded %d documents from %s", len(docs), root)
	return docs, nil
}

// Load reads a single file given its slash-separated path relative to the content directory.
func (l *Loader) Load(rel string) (*Document, error) {
	format, ok := extensionFormats[strings.ToLower(path.Ext(rel))]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported content file '%s'", utils.ErrParsing, rel)
	}

	full := filepath.Join(l.opts.ContentDir, filepath.FromSlash(rel))
	raw, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrFilesystem, err)
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrFilesystem, err)
	}

	return l.parse(rel, format, raw, info.ModTime())
}

func (l *Loader) parse(rel string, format Format, raw []byte, modTime time.Time) (*Document, error) {
	fm, body, err := SplitFrontMatter(raw)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		SourcePath:  rel,
		Format:      format,
		FrontMatter: fm,
		Title:       fm.Title,
		Raw:         raw,
		ModTime:     modTime,
	}

	switch format {
	case FormatHTML:
		markdown, htmlTitle, convErr := l.convertHTML(body)
		if convErr != nil {
			return nil, convErr
		}
		doc.Body = markdown
		if doc.Title == "" {
			doc.Title = htmlTitle
		}
	case FormatMDX:
		doc.Body = stripModuleStatements(string(body))
	default:
		doc.Body = string(body)
	}

	if doc.Title == "" {
		doc.Title, _ = toc.TitleHeading(doc.Body)
	}
	if doc.Title == "" {
		doc.Title = strings.TrimSuffix(path.Base(rel), path.Ext(rel))
	}
	doc.Route = RouteFor(rel, fm.Slug)
	return doc, nil
}

// convertHTML converts an HTML page to Markdown, preferring <main> or <article> when present.
// Also returns the <title> text.
func (l *Loader) convertHTML(body []byte) (string, string, error) {
	page, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("%w: HTML: %v", utils.ErrParsing, err)
	}
	title := strings.TrimSpace(page.Find("title").First().Text())

	selection := page.Find("main").First()
	if selection.Length() == 0 {
		selection = page.Find("article").First()
	}
	if selection.Length() == 0 {
		selection = page.Find("body").First()
	}
	html, err := goquery.OuterHtml(selection)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", utils.ErrHTMLConversion, err)
	}

	markdown, err := l.converter.ConvertString(html)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", utils.ErrHTMLConversion, err)
	}
	return markdown, title, nil
}

// RouteFor maps a content-relative path to its URL route. "index" files map to their
// directory; slug replaces the last segment when set.
func RouteFor(rel, slug string) string {
	rel = strings.TrimSuffix(rel, path.Ext(rel))
	segments := strings.Split(rel, "/")
	last := len(segments) - 1
	if segments[last] == "index" || segments[last] == "_index" {
		segments = segments[:last]
		last--
	}
	if slug != "" {
		if last >= 0 {
			segments[last] = slug
		} else {
			segments = []string{slug}
		}
	}

	cleaned := make([]string, 0, len(segments))
	for _, s := range segments {
		if s == "" {
			continue
		}
		cleaned = append(cleaned, utils.SanitizeRouteSegment(s))
	}
	return "/" + strings.Join(cleaned, "/")
}

// stripModuleStatements removes the leading import/export block of an MDX file.
func stripModuleStatements(body string) string {
	lines := strings.Split(body, "\n")
	i := 0
	for ; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" || strings.HasPrefix(trimmed, "import ") || strings.HasPrefix(trimmed, "export ") {
			continue
		}
		break
	}
	return strings.Join(lines[i:], "\n")
}

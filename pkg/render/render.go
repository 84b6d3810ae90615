package render

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/microcosm-cc/bluemonday"
	"github.com/sirupsen/logrus"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"

	"github.com/cennso/sitegen/pkg/toc"
	"github.com/cennso/sitegen/pkg/utils"
)

// Version changes whenever rendering output changes for identical input,
// invalidating cached pages.
const Version = "render/4"

// Options configures a Renderer
type Options struct {
	UnsafeHTML bool // Pass raw HTML in Markdown through
	Sanitize   bool // Run output through the UGC sanitizer
	// Routes maps content-relative source paths ("guides/setup.md") to routes
	// ("/guides/setup"); relative links to those files are rewritten.
	Routes map[string]string
}

// Input is one document to render
type Input struct {
	Route      string
	SourcePath string // Content-relative, slash separated
	Source     []byte // Markdown body, front matter already removed
}

// Page is a rendered document
type Page struct {
	HTML    string
	TOC     []*toc.Node
	Anchors []string // Heading ids present in HTML, in document order
}

// Renderer converts Markdown to HTML with stable heading anchors. Safe for concurrent use.
type Renderer struct {
	md          goldmark.Markdown
	policy      *bluemonday.Policy
	fingerprint string
	log         *logrus.Entry
}

// New creates a Renderer
func New(opts Options, log *logrus.Entry) *Renderer {
	rendererOpts := []goldmark.Option{
		goldmark.WithExtensions(toc.Extensions()...),
		goldmark.WithParserOptions(
			parser.WithASTTransformers(
				util.Prioritized(&headingIDTransformer{}, 100),
				util.Prioritized(&linkTransformer{routes: opts.Routes}, 200),
			),
		),
	}
	if opts.UnsafeHTML {
		rendererOpts = append(rendererOpts, goldmark.WithRendererOptions(html.WithUnsafe()))
	}

	r := &Renderer{
		md:          goldmark.New(rendererOpts...),
		fingerprint: fingerprint(opts),
		log:         log.WithField("component", "render"),
	}
	if opts.Sanitize {
		r.policy = sanitizePolicy()
	}
	return r
}

// sanitizePolicy is the UGC policy with heading ids kept, since TOC links target them.
func sanitizePolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("id").OnElements("h1", "h2", "h3", "h4", "h5", "h6")
	return p
}

// Fingerprint identifies everything besides the source that affects output.
// It is part of the build cache key.
func (r *Renderer) Fingerprint() string {
	return r.fingerprint
}

func fingerprint(opts Options) string {
	sources := make([]string, 0, len(opts.Routes))
	for src := range opts.Routes {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s unsafe=%t sanitize=%t\n", Version, opts.UnsafeHTML, opts.Sanitize)
	for _, src := range sources {
		fmt.Fprintf(&buf, "%s=%s\n", src, opts.Routes[src])
	}
	return utils.ContentHash(buf.Bytes())
}

// Render converts one document. The table of contents is built from the headings that
// received anchors, so every TOC link resolves within the page.
func (r *Renderer) Render(in Input) (*Page, error) {
	pc := parser.NewContext()
	pc.Set(sourcePathKey, in.SourcePath)

	var buf bytes.Buffer
	if err := r.md.Convert(in.Source, &buf, parser.WithContext(pc)); err != nil {
		return nil, fmt.Errorf("%w: convert %s: %v", utils.ErrRender, in.Route, err)
	}

	out := buf.Bytes()
	if r.policy != nil {
		out = r.policy.SanitizeBytes(out)
	}

	entries, _ := pc.Get(headingsKey).([]toc.Entry)
	anchors := make([]string, 0, len(entries))
	for _, e := range entries {
		anchors = append(anchors, e.ID)
	}
	r.log.WithFields(logrus.Fields{
		"route":    in.Route,
		"headings": len(entries),
	}).Debug("Rendered document")

	return &Page{
		HTML:    string(out),
		TOC:     toc.BuildTree(entries),
		Anchors: anchors,
	}, nil
}

package render

import (
	"net/url"
	"path"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"

	"github.com/cennso/sitegen/pkg/toc"
)

var (
	sourcePathKey = parser.NewContextKey()
	headingsKey   = parser.NewContextKey()
)

// headingIDTransformer gives the document's TOC headings their ids and records them,
// so the page's table of contents is built from exactly the headings that carry anchors.
// Assign uses a fresh Slugger per call, so every document starts with a clean history.
type headingIDTransformer struct{}

func (t *headingIDTransformer) Transform(doc *ast.Document, reader text.Reader, pc parser.Context) {
	var nodes []*ast.Heading
	var headings []toc.Heading
	toc.WalkHeadings(doc, reader.Source(), func(node *ast.Heading, h toc.Heading) {
		nodes = append(nodes, node)
		headings = append(headings, h)
	})

	entries := toc.Assign(headings)
	for i, e := range entries {
		nodes[i].SetAttributeString("id", []byte(e.ID))
	}
	pc.Set(headingsKey, entries)
}

// linkTransformer rewrites relative links to Markdown sources ("../pricing.md#plans")
// into the routes those sources are published at ("/pricing#plans").
type linkTransformer struct {
	routes map[string]string // content-relative source path -> route
}

var markdownExts = map[string]bool{".md": true, ".mdx": true, ".markdown": true}

func (t *linkTransformer) Transform(doc *ast.Document, reader text.Reader, pc parser.Context) {
	sourcePath, _ := pc.Get(sourcePathKey).(string)
	if len(t.routes) == 0 {
		return
	}

	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		link, ok := n.(*ast.Link)
		if !ok {
			return ast.WalkContinue, nil
		}
		if dest, ok := resolveSourceLink(string(link.Destination), sourcePath, t.routes); ok {
			link.Destination = []byte(dest)
		}
		return ast.WalkContinue, nil
	})
}

// resolveSourceLink maps a relative link to a Markdown file onto its route.
func resolveSourceLink(dest, sourcePath string, routes map[string]string) (string, bool) {
	if dest == "" || strings.HasPrefix(dest, "/") || strings.HasPrefix(dest, "#") {
		return "", false
	}
	if u, err := url.Parse(dest); err != nil || u.Scheme != "" || u.Host != "" {
		return "", false
	}

	target, fragment, hasFragment := strings.Cut(dest, "#")
	if !markdownExts[strings.ToLower(path.Ext(target))] {
		return "", false
	}

	joined := path.Clean(path.Join(path.Dir(sourcePath), target))
	route, ok := routes[joined]
	if !ok {
		return "", false
	}
	if hasFragment && fragment != "" {
		route += "#" + fragment
	}
	return route, true
}

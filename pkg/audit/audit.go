package audit

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"github.com/cennso/sitegen/pkg/utils"
)

// Severity of a violation
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Rule names
const (
	RuleNoHeadings     = "no-headings"
	RuleFirstNotH1     = "first-heading-not-h1"
	RuleMultipleH1     = "multiple-h1"
	RuleSkippedLevel   = "heading-level-skipped"
	RuleEmptyHeading   = "empty-heading"
	RuleDuplicateID    = "duplicate-id"
	RuleBrokenLink     = "broken-link"
	RuleBrokenFragment = "broken-fragment"
	RuleMissingAlt     = "missing-alt"
	RuleEmptyLinkText  = "empty-link-text"
	RuleVagueLinkText  = "vague-link-text"
)

// vagueLinkTexts do not tell the reader where a link goes without its surroundings
var vagueLinkTexts = map[string]bool{
	"click here": true,
	"click":      true,
	"here":       true,
	"read more":  true,
	"more":       true,
	"link":       true,
	"continue":   true,
	"this":       true,
}

// Violation is one problem found on a page
type Violation struct {
	Route    string   `json:"route" yaml:"route"`
	Rule     string   `json:"rule" yaml:"rule"`
	Severity Severity `json:"severity" yaml:"severity"`
	Message  string   `json:"message" yaml:"message"`
}

// Report is the result of auditing a built site
type Report struct {
	Violations   []Violation `json:"violations" yaml:"violations"`
	PagesChecked int         `json:"pages_checked" yaml:"pages_checked"`
}

// HasErrors reports whether any violation has error severity
func (r *Report) HasErrors() bool {
	return r.Count(SeverityError) > 0
}

// Count returns the number of violations with the given severity
func (r *Report) Count(sev Severity) int {
	n := 0
	for _, v := range r.Violations {
		if v.Severity == sev {
			n++
		}
	}
	return n
}

func (r *Report) add(route, rule string, sev Severity, format string, args ...interface{}) {
	r.Violations = append(r.Violations, Violation{
		Route:    route,
		Rule:     rule,
		Severity: sev,
		Message:  fmt.Sprintf(format, args...),
	})
}

// page is a parsed built page
type page struct {
	route string
	doc   *goquery.Document
	ids   map[string]int
}

// Auditor checks heading structure, internal links, image text alternatives and link
// text of a built site
type Auditor struct {
	log *logrus.Entry
}

// New creates an Auditor
func New(log *logrus.Entry) *Auditor {
	return &Auditor{log: log.WithField("component", "audit")}
}

// Run audits the site in outputDir. Every "index.html" is a page whose route is its
// directory; every other file is a static asset that links may point to.
func (a *Auditor) Run(ctx context.Context, outputDir string) (*Report, error) {
	pages := make(map[string]*page)
	static := make(map[string]bool)

	err := filepath.WalkDir(outputDir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(outputDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if path.Base(rel) != "index.html" {
			static["/"+rel] = true
			return nil
		}

		route := "/" + strings.TrimSuffix(strings.TrimSuffix(rel, "index.html"), "/")
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("%w: parse %s: %v", utils.ErrParsing, rel, err)
		}
		pages[route] = &page{route: route, doc: doc, ids: collectIDs(doc)}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: walk output directory '%s': %v", utils.ErrFilesystem, outputDir, err)
	}

	routes := make([]string, 0, len(pages))
	for route := range pages {
		routes = append(routes, route)
	}
	sort.Strings(routes)

	report := &Report{}
	for _, route := range routes {
		p := pages[route]
		CheckHeadings(report, route, p.doc)
		checkDuplicateIDs(report, p)
		checkLinks(report, p, pages, static)
		CheckTextAlternatives(report, route, p.doc)
		CheckLinkText(report, route, p.doc)
		report.PagesChecked++
	}

	a.log.WithFields(logrus.Fields{
		"pages":    report.PagesChecked,
		"errors":   report.Count(SeverityError),
		"warnings": report.Count(SeverityWarning),
	}).Info("Audit finished")
	for _, v := range report.Violations {
		entry := a.log.WithFields(logrus.Fields{"route": v.Route, "rule": v.Rule})
		if v.Severity == SeverityError {
			entry.Error(v.Message)
		} else {
			entry.Warn(v.Message)
		}
	}
	return report, nil
}

func collectIDs(doc *goquery.Document) map[string]int {
	ids := make(map[string]int)
	doc.Find("[id]").Each(func(_ int, s *goquery.Selection) {
		if id, _ := s.Attr("id"); id != "" {
			ids[id]++
		}
	})
	return ids
}

var headingLevels = map[string]int{"h1": 1, "h2": 2, "h3": 3, "h4": 4, "h5": 5, "h6": 6}

// CheckHeadings adds heading structure violations of one page to report
func CheckHeadings(report *Report, route string, doc *goquery.Document) {
	var levels []int
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		level, ok := headingLevels[goquery.NodeName(s)]
		if !ok {
			return
		}
		levels = append(levels, level)
		if strings.TrimSpace(s.Text()) == "" {
			report.add(route, RuleEmptyHeading, SeverityWarning, "h%d has no text", level)
		}
	})

	if len(levels) == 0 {
		report.add(route, RuleNoHeadings, SeverityWarning, "page has no headings")
		return
	}
	if levels[0] != 1 {
		report.add(route, RuleFirstNotH1, SeverityError, "first heading is h%d, should be h1", levels[0])
	}

	h1 := 0
	for i, level := range levels {
		if level == 1 {
			h1++
		}
		if i > 0 && level > levels[i-1]+1 {
			report.add(route, RuleSkippedLevel, SeverityError, "h%d → h%d skips levels", levels[i-1], level)
		}
	}
	if h1 > 1 {
		report.add(route, RuleMultipleH1, SeverityError, "page has %d h1 elements, should have exactly 1", h1)
	}
}

func checkDuplicateIDs(report *Report, p *page) {
	ids := make([]string, 0, len(p.ids))
	for id, n := range p.ids {
		if n > 1 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		report.add(p.route, RuleDuplicateID, SeverityError, "id '%s' is used %d times", id, p.ids[id])
	}
}

func checkLinks(report *Report, p *page, pages map[string]*page, static map[string]bool) {
	p.doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		target, fragment, internal := ResolveLink(p.route, href)
		if !internal {
			return
		}

		if dest, ok := pages[target]; ok {
			if fragment != "" && dest.ids[fragment] == 0 {
				report.add(p.route, RuleBrokenFragment, SeverityError, "link '%s' points to a missing id on %s", href, target)
			}
			return
		}
		if static[target] {
			return
		}
		report.add(p.route, RuleBrokenLink, SeverityError, "link '%s' does not resolve to a page or file", href)
	})
}

// CheckTextAlternatives reports images without a text alternative. A missing alt attribute
// is an error; an empty one is only acceptable for decorative images and is a warning
// unless the image is marked presentational.
func CheckTextAlternatives(report *Report, route string, doc *goquery.Document) {
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src := s.AttrOr("src", "")
		alt, ok := s.Attr("alt")
		if !ok {
			report.add(route, RuleMissingAlt, SeverityError, "image '%s' has no alt attribute", src)
			return
		}
		if strings.TrimSpace(alt) != "" || decorative(s) {
			return
		}
		report.add(route, RuleMissingAlt, SeverityWarning, "image '%s' has empty alt text, describe it unless it is decorative", src)
	})
}

func decorative(s *goquery.Selection) bool {
	role := strings.ToLower(s.AttrOr("role", ""))
	return role == "presentation" || role == "none" || s.AttrOr("aria-hidden", "") == "true"
}

// CheckLinkText reports links whose purpose cannot be told from the link itself:
// links with no accessible name (error) and generic text such as "click here" (warning).
func CheckLinkText(report *Report, route string, doc *goquery.Document) {
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := s.AttrOr("href", "")
		name := accessibleName(s)
		if name == "" {
			report.add(route, RuleEmptyLinkText, SeverityError, "link '%s' has no text, aria-label or title", href)
			return
		}
		if vagueLinkTexts[strings.ToLower(strings.Trim(name, " .:!…→»"))] {
			report.add(route, RuleVagueLinkText, SeverityWarning, "link text '%s' for '%s' does not describe its target", name, href)
		}
	})
}

// accessibleName approximates the name a screen reader announces for a link
func accessibleName(s *goquery.Selection) string {
	if label := strings.TrimSpace(s.AttrOr("aria-label", "")); label != "" {
		return label
	}
	if text := strings.Join(strings.Fields(s.Text()), " "); text != "" {
		return text
	}
	var alts []string
	s.Find("img[alt]").Each(func(_ int, img *goquery.Selection) {
		if alt := strings.TrimSpace(img.AttrOr("alt", "")); alt != "" {
			alts = append(alts, alt)
		}
	})
	if len(alts) > 0 {
		return strings.Join(alts, " ")
	}
	return strings.TrimSpace(s.AttrOr("title", ""))
}

// ResolveLink resolves href found on the page at route. It returns the target path
// without trailing slash, the unescaped fragment, and whether the link is internal.
// Relative links resolve against the page's directory URL ("/route/"), which is how
// "<route>/index.html" is served.
func ResolveLink(route, href string) (target, fragment string, internal bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", "", false
	}
	u, err := url.Parse(href)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "", "", false
	}

	base := route
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	resolved := (&url.URL{Path: base}).ResolveReference(u)

	target = resolved.Path
	if u.Path == "" {
		target = route
	}
	if len(target) > 1 {
		target = strings.TrimSuffix(target, "/")
	}
	return target, u.Fragment, true
}

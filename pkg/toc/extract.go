package toc

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

const (
	// MinLevel is the shallowest heading level that appears in a table of contents.
	// Level 1 is the document title.
	MinLevel = 2
	// MaxLevel is the deepest heading level Markdown supports.
	MaxLevel = 6
)

// Heading is one heading line found in a document.
type Heading struct {
	Level int    // 2-6
	Title string // raw text after the marker run
	Line  int    // 1-based source line
}

// Extensions returns the goldmark extensions whose block structure decides which lines
// are headings. A renderer assigning anchors must parse with the same set.
func Extensions() []goldmark.Extender {
	return []goldmark.Extender{extension.GFM, extension.Footnote}
}

var blockParser = goldmark.New(goldmark.WithExtensions(Extensions()...)).Parser()

func parse(src []byte) ast.Node {
	return blockParser.Parse(text.NewReader(src))
}

// ExtractHeadings returns the level 2-6 ATX headings of Markdown source in document order.
// Only top-level blocks count: heading-like lines inside fenced code, HTML blocks
// (including MDX components), lists and block quotes are not headings.
func ExtractHeadings(src string) []Heading {
	source := []byte(src)
	return DocumentHeadings(parse(source), source)
}

// DocumentHeadings returns the TOC headings among the top-level blocks of a parsed document.
func DocumentHeadings(doc ast.Node, src []byte) []Heading {
	var headings []Heading
	WalkHeadings(doc, src, func(_ *ast.Heading, h Heading) {
		headings = append(headings, h)
	})
	return headings
}

// WalkHeadings calls fn, in document order, for each top-level heading node that belongs in
// the table of contents. A heading qualifies when its source line passes ParseHeadingLine at
// the level the parser assigned, which excludes setext, indented and level-1 headings.
func WalkHeadings(doc ast.Node, src []byte, fn func(node *ast.Heading, h Heading)) {
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		node, ok := n.(*ast.Heading)
		if !ok {
			continue
		}
		start, line, ok := headingSourceLine(node, src)
		if !ok {
			continue
		}
		level, title, ok := ParseHeadingLine(line)
		if !ok || level != node.Level {
			continue
		}
		fn(node, Heading{
			Level: level,
			Title: title,
			Line:  bytes.Count(src[:start], []byte{'\n'}) + 1,
		})
	}
}

// TitleHeading returns the display text of the first level-1 heading anywhere in the
// document. ok reports whether the document has a level-1 heading at all, even an empty one.
func TitleHeading(src string) (title string, ok bool) {
	source := []byte(src)
	_ = ast.Walk(parse(source), func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, isHeading := n.(*ast.Heading)
		if !isHeading || heading.Level != 1 {
			return ast.WalkContinue, nil
		}
		var raw strings.Builder
		lines := heading.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			raw.Write(seg.Value(source))
			raw.WriteByte(' ')
		}
		title, ok = CleanTitle(raw.String()), true
		return ast.WalkStop, nil
	})
	return title, ok
}

// ParseHeadingLine reports whether a single line is a TOC heading: 2-6 '#' at column 0,
// at least one space or tab, then text that does not clean down to nothing.
// It returns the level and the raw title.
func ParseHeadingLine(line string) (level int, title string, ok bool) {
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level < MinLevel || level > MaxLevel || level == len(line) {
		return 0, "", false
	}
	if line[level] != ' ' && line[level] != '\t' {
		return 0, "", false
	}
	title = strings.TrimSpace(line[level:])
	if CleanTitle(title) == "" {
		return 0, "", false
	}
	return level, title, true
}

// headingSourceLine returns the offset and text of the full source line holding the
// heading's content.
func headingSourceLine(heading *ast.Heading, src []byte) (int, string, bool) {
	lines := heading.Lines()
	if lines == nil || lines.Len() == 0 {
		return 0, "", false
	}
	seg := lines.At(0)
	start := seg.Start
	for start > 0 && src[start-1] != '\n' {
		start--
	}
	end := seg.Stop
	if i := bytes.IndexByte(src[end:], '\n'); i >= 0 {
		end += i
	} else {
		end = len(src)
	}
	return start, strings.TrimSuffix(string(src[start:end]), "\r"), true
}

package process

import (
	"strings"

	"github.com/cennso/sitegen/pkg/toc"
)

// Section is the text under one heading, up to the next TOC heading
type Section struct {
	Anchor     string   // Heading id, empty for the preamble before the first heading
	Title      string   // Clean heading title
	Level      int      // Heading level, 0 for the preamble
	Breadcrumb []string // Titles of the enclosing headings, outermost first
	Content    string
}

// SplitSections cuts a Markdown body at its TOC headings. Anchors come from the same
// extraction and slug assignment as the table of contents, so they match the rendered ids.
// Level-1 lines stay in the content of the section that contains them.
func SplitSections(body string) []Section {
	lines := strings.Split(body, "\n")
	entries := toc.Assign(toc.ExtractHeadings(body))

	var sections []Section
	preambleEnd := len(lines)
	if len(entries) > 0 {
		preambleEnd = entries[0].Line - 1
	}
	if preamble := joinLines(lines[:preambleEnd]); preamble != "" {
		sections = append(sections, Section{Content: preamble})
	}

	var stack []toc.Entry
	for i, e := range entries {
		for len(stack) > 0 && stack[len(stack)-1].Level >= e.Level {
			stack = stack[:len(stack)-1]
		}
		breadcrumb := make([]string, 0, len(stack))
		for _, parent := range stack {
			breadcrumb = append(breadcrumb, parent.Title)
		}
		stack = append(stack, e)

		end := len(lines)
		if i+1 < len(entries) {
			end = entries[i+1].Line - 1
		}
		sections = append(sections, Section{
			Anchor:     e.ID,
			Title:      e.Title,
			Level:      e.Level,
			Breadcrumb: breadcrumb,
			Content:    joinLines(lines[e.Line:end]),
		})
	}
	return sections
}

func joinLines(lines []string) string {
	return strings.TrimSpace(strings.ReplaceAll(strings.Join(lines, "\n"), "\r", ""))
}

package toc

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const (
	indentPrefix    = "    "
	entryPrefix     = "├── "
	lastEntryPrefix = "└── "
	verticalLine    = "│   "
)

// WriteTree writes the forest as a box-drawing tree, one "title (#id)" line per heading.
func WriteTree(w io.Writer, forest []*Node) error {
	return writeTreeLevel(w, forest, "")
}

func writeTreeLevel(w io.Writer, nodes []*Node, indent string) error {
	for i, n := range nodes {
		isLast := i == len(nodes)-1

		connector := entryPrefix
		nextIndent := indent + verticalLine
		if isLast {
			connector = lastEntryPrefix
			nextIndent = indent + indentPrefix
		}

		if _, err := fmt.Fprintf(w, "%s%s%s (#%s)\n", indent, connector, n.Title, n.ID); err != nil {
			return err
		}
		if err := writeTreeLevel(w, n.Children, nextIndent); err != nil {
			return err
		}
	}
	return nil
}

// WriteMarkdown writes the forest as a nested Markdown list of fragment links.
// Nesting follows tree depth, not heading level, so level gaps do not produce empty items.
func WriteMarkdown(w io.Writer, forest []*Node) error {
	return writeMarkdownLevel(w, forest, 0)
}

func writeMarkdownLevel(w io.Writer, nodes []*Node, depth int) error {
	for _, n := range nodes {
		title := strings.NewReplacer("[", `\[`, "]", `\]`).Replace(n.Title)
		if _, err := fmt.Fprintf(w, "%s- [%s](#%s)\n", strings.Repeat("  ", depth), title, n.ID); err != nil {
			return err
		}
		if err := writeMarkdownLevel(w, n.Children, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// MarshalJSON encodes the forest with indentation. An empty forest encodes as [].
func MarshalJSON(forest []*Node) ([]byte, error) {
	if forest == nil {
		forest = []*Node{}
	}
	return json.MarshalIndent(forest, "", "  ")
}

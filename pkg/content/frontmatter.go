package content

import (
	"bytes"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cennso/sitegen/pkg/utils"
)

// FrontMatter is the YAML header of a content file
type FrontMatter struct {
	Title       string    `yaml:"title"`
	Description string    `yaml:"description,omitempty"`
	Date        time.Time `yaml:"date,omitempty"`
	Draft       bool      `yaml:"draft,omitempty"`
	Slug        string    `yaml:"slug,omitempty"`  // Overrides the last route segment
	Order       int       `yaml:"order,omitempty"` // Position within its collection in llms.txt
}

var (
	frontMatterDelim = []byte("---")
	frontMatterEnd   = []byte("...")
	utf8BOM          = []byte("\xef\xbb\xbf")
)

// SplitFrontMatter separates a leading "---" YAML block from the body.
// Content without front matter is returned unchanged with a zero FrontMatter.
func SplitFrontMatter(raw []byte) (FrontMatter, []byte, error) {
	var fm FrontMatter
	raw = bytes.TrimPrefix(raw, utf8BOM)

	firstLine, rest, found := cutLine(raw)
	if !bytes.Equal(bytes.TrimRight(firstLine, " \t\r"), frontMatterDelim) {
		return fm, raw, nil
	}
	if !found {
		return fm, nil, fmt.Errorf("%w: front matter opened but never closed", utils.ErrFrontMatter)
	}

	remaining := rest
	for len(remaining) > 0 {
		line, next, _ := cutLine(remaining)
		trimmed := bytes.TrimRight(line, " \t\r")
		if bytes.Equal(trimmed, frontMatterDelim) || bytes.Equal(trimmed, frontMatterEnd) {
			header := rest[:len(rest)-len(remaining)]
			if err := yaml.Unmarshal(header, &fm); err != nil {
				return FrontMatter{}, nil, fmt.Errorf("%w: %w: YAML: %v", utils.ErrFrontMatter, utils.ErrParsing, err)
			}
			return fm, next, nil
		}
		remaining = next
	}
	return FrontMatter{}, nil, fmt.Errorf("%w: front matter opened but never closed", utils.ErrFrontMatter)
}

// cutLine splits off the first line of b (without its newline).
func cutLine(b []byte) (line, rest []byte, found bool) {
	return bytes.Cut(b, []byte("\n"))
}

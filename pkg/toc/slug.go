package toc

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fallbackSlug is used when a heading has no sluggable characters (emoji, punctuation).
const fallbackSlug = "section"

var (
	// Any run of characters outside the id alphabet becomes a single hyphen
	nonSlugRun = regexp.MustCompile(`[^a-z0-9]+`)

	closingSequence = regexp.MustCompile(`\s+#+\s*$`)
	imageRef        = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	linkRef         = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	htmlTag         = regexp.MustCompile(`</?[A-Za-z][^>]*>`)
	emphasis        = strings.NewReplacer("**", "", "__", "", "~~", "", "*", "", "`", "")
)

// Slugger turns heading text into URL-fragment ids that are unique within one document.
// A Slugger must not be shared across documents; create one per document with NewSlugger.
type Slugger struct {
	counts map[string]int  // last suffix issued per base slug
	issued map[string]bool // every id handed out so far
}

// NewSlugger returns a Slugger with an empty occurrence history.
func NewSlugger() *Slugger {
	return &Slugger{
		counts: make(map[string]int),
		issued: make(map[string]bool),
	}
}

// Slug returns the id for text. Repeated bases get -1, -2, ... suffixes; a suffixed
// candidate that collides with an id already issued keeps counting up.
func (s *Slugger) Slug(text string) string {
	base := baseSlug(text)

	id := base
	n := s.counts[base]
	for s.issued[id] {
		n++
		id = base + "-" + strconv.Itoa(n)
	}
	s.counts[base] = n
	s.issued[id] = true
	return id
}

// baseSlug normalizes text without any de-duplication.
func baseSlug(text string) string {
	folded := foldDiacritics(text)
	slug := nonSlugRun.ReplaceAllString(strings.ToLower(folded), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return fallbackSlug
	}
	return slug
}

// foldDiacritics strips combining marks so "Über" becomes "Uber".
func foldDiacritics(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, text)
	if err != nil {
		return text
	}
	return folded
}

// CleanTitle converts raw heading markup into display text: the ATX closing sequence,
// inline markup and extra whitespace are removed, link and image text is kept.
func CleanTitle(raw string) string {
	title := strings.TrimSpace(raw)
	title = closingSequence.ReplaceAllString(title, "")
	if strings.Trim(title, "#") == "" {
		return ""
	}
	title = imageRef.ReplaceAllString(title, "$1")
	title = linkRef.ReplaceAllString(title, "$1")
	title = htmlTag.ReplaceAllString(title, "")
	title = emphasis.Replace(title)
	return strings.Join(strings.Fields(title), " ")
}

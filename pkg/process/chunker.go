package process

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/cennso/sitegen/pkg/models"
)

// ChunkerConfig holds configuration for section chunking.
type ChunkerConfig struct {
	MaxChunkTokens int // Sections above this size are split recursively
	ChunkOverlap   int // Overlap between split parts, in tokens
}

// DefaultChunkerConfig returns sensible defaults for search chunks.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		MaxChunkTokens: 512,
		ChunkOverlap:   50,
	}
}

// Indexer turns document bodies into search records, one per section or section part.
type Indexer struct {
	cfg      ChunkerConfig
	tok      *Tokenizer
	splitter textsplitter.RecursiveCharacter
}

// NewIndexer creates an Indexer. tok may be nil, in which case sizes are estimated.
func NewIndexer(cfg ChunkerConfig, tok *Tokenizer) *Indexer {
	if cfg.MaxChunkTokens <= 0 {
		cfg.MaxChunkTokens = DefaultChunkerConfig().MaxChunkTokens
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.MaxChunkTokens {
		cfg.ChunkOverlap = 0
	}
	return &Indexer{
		cfg: cfg,
		tok: tok,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.MaxChunkTokens),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
			textsplitter.WithLenFunc(tok.Length),
		),
	}
}

// Index splits body into sections and returns their search records. pageURL is the
// absolute page URL; each record URL adds the section anchor as fragment.
func (ix *Indexer) Index(pageURL, route, pageTitle, body string) ([]models.SearchRecord, error) {
	var records []models.SearchRecord

	for _, sec := range SplitSections(body) {
		if sec.Content == "" && sec.Anchor == "" {
			continue
		}

		parts := []string{sec.Content}
		if ix.tok.Length(sec.Content) > ix.cfg.MaxChunkTokens {
			split, err := ix.splitter.SplitText(sec.Content)
			if err != nil {
				return nil, fmt.Errorf("split section '%s' of %s: %w", sec.Anchor, route, err)
			}
			parts = split
		}

		title := sec.Title
		if sec.Anchor == "" {
			title = pageTitle
		}
		baseID, url := route, pageURL
		if sec.Anchor != "" {
			baseID += "#" + sec.Anchor
			url += "#" + sec.Anchor
		}

		n := 0
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" && len(parts) > 1 {
				continue
			}
			n++
			id := baseID
			if len(parts) > 1 {
				id = fmt.Sprintf("%s~%d", baseID, n)
			}
			records = append(records, models.SearchRecord{
				ID:         id,
				URL:        url,
				Route:      route,
				Anchor:     sec.Anchor,
				PageTitle:  pageTitle,
				Title:      title,
				Breadcrumb: sec.Breadcrumb,
				Level:      sec.Level,
				Content:    part,
				Tokens:     ix.tok.Count(part),
			})
		}
	}
	return records, nil
}

package process

import (
	"fmt"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"
)

var encodings = map[string]tokenizer.Encoding{
	"cl100k_base": tokenizer.Cl100kBase,
	"o200k_base":  tokenizer.O200kBase,
	"p50k_base":   tokenizer.P50kBase,
	"p50k_edit":   tokenizer.P50kEdit,
	"r50k_base":   tokenizer.R50kBase,
}

// Tokenizer counts tokens with a tiktoken encoding. Safe for concurrent use.
// A nil *Tokenizer is valid: Count returns -1.
type Tokenizer struct {
	codec    tokenizer.Codec
	encoding string
}

// NewTokenizer loads the named encoding ("cl100k_base" when empty).
// cl100k_base approximates most current chat models closely enough for budgeting.
func NewTokenizer(encoding string) (*Tokenizer, error) {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	enc, ok := encodings[encoding]
	if !ok {
		return nil, fmt.Errorf("unknown token encoding '%s'", encoding)
	}
	codec, err := tokenizer.Get(enc)
	if err != nil {
		return nil, fmt.Errorf("load token encoding '%s': %w", encoding, err)
	}
	return &Tokenizer{codec: codec, encoding: encoding}, nil
}

// Encoding returns the encoding name
func (t *Tokenizer) Encoding() string {
	if t == nil {
		return ""
	}
	return t.encoding
}

// Count returns the number of tokens in text, or -1 when no tokenizer is available or
// encoding fails, so callers can tell "unknown" from a real zero.
func (t *Tokenizer) Count(text string) int {
	if t == nil || t.codec == nil {
		return -1
	}
	ids, _, err := t.codec.Encode(text)
	if err != nil {
		return -1
	}
	return len(ids)
}

// Length is a splitter length function: token count when available, else a rough
// four-characters-per-token estimate.
func (t *Tokenizer) Length(text string) int {
	if n := t.Count(text); n >= 0 {
		return n
	}
	return (utf8.RuneCountInString(text) + 3) / 4
}

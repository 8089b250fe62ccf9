// Package tokenizer counts tokens the way the consuming model does, so tool
// output can be held to a token budget.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Encoding is the BPE used for counting.
const Encoding = "cl100k_base"

// Tokenizer counts tokens with a tiktoken encoding.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// New loads the cl100k_base encoding.
func New() (*Tokenizer, error) {
	enc, err := tiktoken.GetEncoding(Encoding)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: load %s: %w", Encoding, err)
	}
	return &Tokenizer{enc: enc}, nil
}

// CountTokens returns the number of tokens in text. A nil Tokenizer (or one
// whose encoding failed to load) estimates four characters per token.
func (t *Tokenizer) CountTokens(text string) int {
	if t == nil || t.enc == nil {
		return estimate(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

func estimate(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

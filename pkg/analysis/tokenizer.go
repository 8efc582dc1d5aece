package analysis

import (
	"github.com/pkoukk/tiktoken-go"
)

const fallbackCharsPerToken = 4

// Tokenizer counts and trims text by token count. It uses the cl100k_base
// encoding when available and a character heuristic when the encoding
// cannot be loaded (e.g. offline first run).
type Tokenizer struct {
	encoding *tiktoken.Tiktoken
}

// NewTokenizer never fails; the heuristic fallback keeps token budgets
// working without the encoding.
func NewTokenizer() *Tokenizer {
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &Tokenizer{}
	}
	return &Tokenizer{encoding: encoding}
}

// Count returns the token count of text.
func (t *Tokenizer) Count(text string) int {
	if text == "" {
		return 0
	}
	if t.encoding == nil {
		count := len(text) / fallbackCharsPerToken
		if count == 0 {
			count = 1
		}
		return count
	}
	return len(t.encoding.Encode(text, nil, nil))
}

// Truncate trims text to at most maxTokens tokens, dropping leading
// content so the most recent text survives.
func (t *Tokenizer) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}

	if t.encoding == nil {
		maxChars := maxTokens * fallbackCharsPerToken
		runes := []rune(text)
		if len(runes) <= maxChars {
			return text
		}
		return string(runes[len(runes)-maxChars:])
	}

	tokens := t.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return t.encoding.Decode(tokens[len(tokens)-maxTokens:])
}

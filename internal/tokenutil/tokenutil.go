// Package tokenutil counts tokens for the RAG chunker and the tool
// conversation budget.
package tokenutil

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Counter reports the token length of text.
type Counter func(text string) int

const encodingName = "cl100k_base"

// loadEncoding fetches the BPE ranks once. A nil result means the ranks
// could not be loaded, typically when offline.
var loadEncoding = sync.OnceValue(func() *tiktoken.Tiktoken {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil
	}
	return enc
})

// CountTokens counts cl100k_base tokens, falling back to EstimateFast.
func CountTokens(text string) int {
	if enc := loadEncoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return EstimateFast(text)
}

// EstimateFast approximates a token count as the larger of runes/4 and the
// word count, never less than one for non-blank text.
func EstimateFast(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	return max(len([]rune(text))/4, len(strings.Fields(text)), 1)
}

package llm

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encOnce  sync.Once
	encoding *tiktoken.Tiktoken
)

func loadEncoding() *tiktoken.Tiktoken {
	encOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Warn("tiktoken unavailable, falling back to rune estimate", "error", err)
			return
		}
		encoding = enc
	})
	return encoding
}

// TruncateTokens cuts text to roughly maxTokens cl100k tokens. Without the
// encoding it assumes four runes per token. maxTokens <= 0 disables the cut.
func TruncateTokens(text string, maxTokens int) string {
	// A token covers at least one byte.
	if maxTokens <= 0 || len(text) <= maxTokens {
		return text
	}
	if enc := loadEncoding(); enc != nil {
		tokens := enc.Encode(text, nil, nil)
		if len(tokens) <= maxTokens {
			return text
		}
		return strings.ToValidUTF8(enc.Decode(tokens[:maxTokens]), "")
	}
	runes := []rune(text)
	if limit := maxTokens * 4; limit < len(runes) {
		return string(runes[:limit])
	}
	return text
}

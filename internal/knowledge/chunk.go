package knowledge

import (
	"fmt"
	"strings"
)

// Defaults for chunking.
const (
	DefaultChunkSize = 500
	// minChunkLength is the shortest trimmed chunk worth embedding.
	minChunkLength = 10
)

// Chunk splits text into consecutive pieces of at most size runes. Pieces
// shorter than the minimum length after trimming are dropped.
func Chunk(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}

	runes := []rune(text)
	var chunks []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		piece := string(runes[start:end])
		if len([]rune(strings.TrimSpace(piece))) < minChunkLength {
			continue
		}
		chunks = append(chunks, piece)
	}
	return chunks
}

// bodyFor returns the text to chunk for a document, substituting a
// placeholder when the document has no content.
func bodyFor(title, source, content string) string {
	if strings.TrimSpace(content) != "" {
		return content
	}
	return fmt.Sprintf("Document: %s\nSource: %s\n\n[No content available]", title, source)
}

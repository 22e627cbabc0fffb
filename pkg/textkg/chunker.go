package textkg

import (
	"fmt"
	"os"

	"github.com/randalmurphal/textkg/pkg/textkg/schedule"
)

// sentenceEnders are the boundary characters chunk splits snap to.
var sentenceEnders = map[rune]bool{
	'。': true, '！': true, '？': true,
	'.': true, '!': true, '?': true,
	'；': true, ';': true, '\n': true,
}

// ChunkText splits text into chunks of roughly size runes with the
// given overlap between consecutive chunks. Chunk ends snap backwards
// to the nearest sentence boundary when one exists in the second half
// of the chunk, so extraction prompts rarely see a sentence cut in two.
// Sizes are in runes, not bytes, so multi-byte text never splits inside
// a character.
func ChunkText(text string, size, overlap int) []string {
	if size < 1 {
		size = 1
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(text)
	if len(runes) <= size {
		if len(runes) == 0 {
			return nil
		}
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		// Snap back to a sentence boundary, but never past the chunk
		// midpoint.
		limit := start + size/2
		for i := end - 1; i > limit; i-- {
			if sentenceEnders[runes[i]] {
				end = i + 1
				break
			}
		}

		chunks = append(chunks, string(runes[start:end]))

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// FileChunker returns a chunker that reads each document's content
// from its Path and splits it with ChunkText.
func FileChunker(size, overlap int) schedule.Chunker {
	return func(doc schedule.Document) ([]string, error) {
		data, err := os.ReadFile(doc.Path)
		if err != nil {
			return nil, fmt.Errorf("read document %s: %w", doc.Name, err)
		}
		return ChunkText(string(data), size, overlap), nil
	}
}

// StaticChunker returns a chunker that serves pre-loaded content keyed
// by document name. Useful for in-memory corpora and tests.
func StaticChunker(content map[string]string, size, overlap int) schedule.Chunker {
	return func(doc schedule.Document) ([]string, error) {
		text, ok := content[doc.Name]
		if !ok {
			return nil, fmt.Errorf("no content for document %s", doc.Name)
		}
		return ChunkText(text, size, overlap), nil
	}
}

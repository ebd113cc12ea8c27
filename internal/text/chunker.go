package text

import "unicode/utf8"

// DefaultChunkSize is the maximum chunk length, in characters, used when no
// positive size is configured.
const DefaultChunkSize = 1000

// TextChunk is one positional slice of an extracted document. Index is the
// chunk's position in the source text.
type TextChunk struct {
	Index   int
	Content string
}

// Chunk splits text into consecutive, non-overlapping segments of at most size
// characters (Unicode code points). Boundaries are purely positional: no word
// or sentence awareness. Every segment except the last has exactly size
// characters, and concatenating the segments in order reproduces text.
// Empty input yields an empty (nil) sequence.
func Chunk(text string, size int) []TextChunk {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if text == "" {
		return nil
	}

	chunks := make([]TextChunk, 0, utf8.RuneCountInString(text)/size+1)
	start, count := 0, 0
	for i := range text {
		if count == size {
			chunks = append(chunks, TextChunk{Index: len(chunks), Content: text[start:i]})
			start, count = i, 0
		}
		count++
	}
	chunks = append(chunks, TextChunk{Index: len(chunks), Content: text[start:]})
	return chunks
}

// Contents returns the chunk contents in index order.
func Contents(chunks []TextChunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content
	}
	return out
}

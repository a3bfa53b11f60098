// Package rag manages the knowledge base: documents are chunked, embedded
// and stored as vectors, then retrieved by similarity for the knowledge
// node's answers.
package rag

import "strings"

const (
	defaultChunkSize    = 500
	defaultChunkOverlap = 50
)

// chunkSeparators are tried in order so splits land on natural boundaries
// before falling back to hard character cuts.
var chunkSeparators = []string{"\n\n", "\n", " ", ""}

// SplitText breaks text into chunks of at most chunkSize characters with
// the given overlap between consecutive chunks. Splits prefer paragraph and
// line boundaries.
func SplitText(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = defaultChunkOverlap
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return splitRecursive(text, chunkSize, overlap, chunkSeparators)
}

func splitRecursive(text string, chunkSize, overlap int, separators []string) []string {
	if len(text) <= chunkSize {
		return []string{text}
	}

	sep := separators[len(separators)-1]
	var rest []string
	for i, s := range separators {
		if s == "" || strings.Contains(text, s) {
			sep, rest = s, separators[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		for i := 0; i < len(text); i += chunkSize - overlap {
			end := i + chunkSize
			if end > len(text) {
				end = len(text)
			}
			pieces = append(pieces, text[i:end])
			if end == len(text) {
				break
			}
		}
		return pieces
	}

	parts := strings.Split(text, sep)
	var chunks []string
	var current []string
	currentLen := 0
	for _, part := range parts {
		partLen := len(part) + len(sep)
		if currentLen+partLen > chunkSize && currentLen > 0 {
			chunk := strings.TrimSpace(strings.Join(current, sep))
			if chunk != "" {
				chunks = append(chunks, chunk)
			}
			// Keep trailing parts as overlap for the next chunk.
			for currentLen > overlap && len(current) > 0 {
				currentLen -= len(current[0]) + len(sep)
				current = current[1:]
			}
		}
		if len(part) > chunkSize {
			// A single part that exceeds the limit splits on the next
			// separator down.
			for _, sub := range splitRecursive(part, chunkSize, overlap, rest) {
				chunks = append(chunks, sub)
			}
			current = nil
			currentLen = 0
			continue
		}
		current = append(current, part)
		currentLen += partLen
	}
	if chunk := strings.TrimSpace(strings.Join(current, sep)); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

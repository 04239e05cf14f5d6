package qdrant

import "strings"

// Chunker splits long documents before they are embedded.
//
// A chunk holds at most Size characters. Within the last Margin characters
// of a chunk the cut moves back to the last sentence end (., ! or ?) so
// sentences stay whole where possible. Consecutive chunks share Overlap
// characters. A zero Size disables splitting.
type Chunker struct {
	Size    int
	Overlap int
	Margin  int
}

// DefaultChunker is used by Index unless WithChunker replaces it.
var DefaultChunker = Chunker{Size: 500, Overlap: 100, Margin: 100}

// Split returns the chunks of text, trimmed of surrounding space. Empty text
// yields no chunks.
func (c Chunker) Split(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	if c.Size <= 0 || len(runes) <= c.Size {
		return []string{string(runes)}
	}

	var chunks []string
	for start := 0; start < len(runes); {
		end := min(start+c.Size, len(runes))
		if end < len(runes) {
			window := max(start, end-c.Margin)
			if cut := lastSentenceEnd(runes[window:end]); cut >= 0 {
				end = window + cut + 1
			}
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}

		next := end - c.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

func lastSentenceEnd(rs []rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		switch rs[i] {
		case '.', '!', '?':
			return i
		}
	}
	return -1
}

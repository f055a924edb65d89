package ingest

import "strings"

const (
	DefaultChunkSize    = 1000 // characters per chunk
	DefaultChunkOverlap = 200  // characters carried over between chunks
)

// SplitText cuts text into chunks of roughly chunkSize characters with
// overlap characters shared between neighbours. Cuts happen on word
// boundaries only, so a chunk can run slightly over the budget.
func SplitText(text string, chunkSize, overlap int) []string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = DefaultChunkOverlap
		if overlap >= chunkSize {
			overlap = chunkSize / 5
		}
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []string
	start := 0
	for start < len(words) {
		length := 0
		end := start
		for end < len(words) && length < chunkSize {
			length += len(words[end]) + 1
			end++
		}

		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}

		// Step back enough words to cover the overlap budget.
		back := end
		carried := 0
		for back > start && carried < overlap {
			back--
			carried += len(words[back]) + 1
		}
		if back <= start {
			back = start + 1
		}
		start = back
	}
	return chunks
}

package ingest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTextEmpty(t *testing.T) {
	assert.Nil(t, SplitText("", 1000, 200))
	assert.Nil(t, SplitText("   \n\t  ", 1000, 200))
}

func TestSplitTextSingleChunk(t *testing.T) {
	chunks := SplitText("just a few words", 1000, 200)
	require.Len(t, chunks, 1)
	assert.Equal(t, "just a few words", chunks[0])
}

func TestSplitTextChunksAndOverlap(t *testing.T) {
	// 200 distinct words of 7 chars each, ~1600 chars total.
	words := make([]string, 200)
	for i := range words {
		words[i] = fmt.Sprintf("w%04dxx", i)
	}
	text := strings.Join(words, " ")

	chunks := SplitText(text, 400, 80)
	require.Greater(t, len(chunks), 1)

	for _, chunk := range chunks {
		// A chunk may run one word over the budget, never wildly over.
		assert.LessOrEqual(t, len(chunk), 400+8)
	}

	// Consecutive chunks share the overlap region.
	first := strings.Fields(chunks[0])
	tail := strings.Join(first[len(first)-3:], " ")
	assert.Contains(t, chunks[1], tail)

	// Nothing dropped: the final chunk ends where the input ends.
	last := chunks[len(chunks)-1]
	assert.True(t, strings.HasSuffix(last, words[len(words)-1]))
}

func TestSplitTextBadParamsFallBack(t *testing.T) {
	chunks := SplitText("alpha beta gamma delta", 0, -1)
	require.Len(t, chunks, 1)
	assert.Equal(t, "alpha beta gamma delta", chunks[0])
}

func TestTitleFromPath(t *testing.T) {
	assert.Equal(t, "annual report 2025", TitleFromPath("/data/in/annual_report-2025.pdf"))
	assert.Equal(t, "notes", TitleFromPath("notes.PDF"))
	assert.Equal(t, "plain", TitleFromPath("plain"))
}

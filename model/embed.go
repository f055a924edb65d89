package model

import (
	"log"
	"os"
)

// EmbedderInterface turns text into a vector suitable for the chunks table.
type EmbedderInterface interface {
	Embed(text string) ([]float32, error)
}

// NewEmbedderFromEnv builds the Ollama embedder from OLLAMA_EMBEDDING_URL
// and OLLAMA_EMBEDDING_MODEL.
func NewEmbedderFromEnv() *OllamaEmbedder {
	url := os.Getenv("OLLAMA_EMBEDDING_URL")
	model := os.Getenv("OLLAMA_EMBEDDING_MODEL")
	log.Printf("[EMBEDDER] using Ollama embeddings (%s)", model)
	return NewOllamaEmbedder(url, model)
}

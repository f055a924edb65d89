package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/pkoukk/tiktoken-go"
)

const systemPrompt = `You are an assistant answering questions strictly from the provided documents.
Answer clearly and to the point, without adding any outside knowledge.
If the documents are empty or do not contain the answer, say 'The available documents do not contain enough information to answer this question.'
Do not add introductions like 'Of course!' or 'Here is the answer:'.`

// Answerer produces a grounded answer from retrieved context.
type Answerer interface {
	Available() bool
	GenerateAnswer(ctx context.Context, contextText, question string) (string, error)
}

type GenerateRequest struct {
	Model  string `json:"model"`
	System string `json:"system"`
	Prompt string `json:"prompt"`
}

type GenerateResponse struct {
	Response string `json:"response"`
}

// OllamaAgent calls an Ollama /api/generate compatible endpoint.
type OllamaAgent struct {
	url    string
	model  string
	client *http.Client
}

func NewOllamaAgentFromEnv() *OllamaAgent {
	return &OllamaAgent{
		url:    os.Getenv("LLM_URL"),
		model:  os.Getenv("LLM_MODEL"),
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

// Available reports whether an LLM endpoint is configured. Without one the
// chat endpoint degrades to a fixed answer instead of failing.
func (a *OllamaAgent) Available() bool {
	return a.url != ""
}

func (a *OllamaAgent) GenerateAnswer(ctx context.Context, contextText, question string) (string, error) {
	start := time.Now()
	defer func() {
		log.Printf("[AGENT] LLM answer took %v", time.Since(start))
	}()

	if contextText == "" {
		contextText = "empty"
	}

	prompt := fmt.Sprintf(`Based on the following documents, please answer the question: %s

Documents:
%s

Please provide a comprehensive answer based on the information in the documents above. If the documents don't contain enough information to answer the question, please say so.

Answer:`, question, contextText)

	reqBody, err := json.Marshal(GenerateRequest{
		Model:  a.model,
		System: systemPrompt,
		Prompt: prompt,
	})
	if err != nil {
		return "", err
	}

	if count, err := CountTokens(reqBody); err == nil {
		log.Printf("[AGENT] prompt size: %d tokens, %d bytes", count, len(reqBody))
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.url, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read llm response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var genResp GenerateResponse
	if err := json.Unmarshal(body, &genResp); err == nil && genResp.Response != "" {
		return genResp.Response, nil
	}

	// Streaming response: accumulate the pieces.
	var output string
	decoder := json.NewDecoder(bytes.NewReader(body))
	for decoder.More() {
		var chunk GenerateResponse
		if err := decoder.Decode(&chunk); err != nil {
			break
		}
		output += chunk.Response
	}
	return output, nil
}

// CountTokens measures prompt size with a gpt-3.5 compatible encoding,
// which is close enough for budget logging across local models.
func CountTokens(data []byte) (int, error) {
	enc, err := tiktoken.EncodingForModel("gpt-3.5-turbo")
	if err != nil {
		return 0, err
	}
	tokens := enc.Encode(string(data), nil, nil)
	return len(tokens), nil
}

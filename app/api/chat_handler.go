package api

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"paperpulse/app/agent"
	"paperpulse/store"
	"paperpulse/types"
)

const (
	answerUnavailable = "Sorry, the chat functionality is not available. Please check that the LLM endpoint is configured."
	answerNoDocuments = "I couldn't find any documents that you have access to that answer this question."

	// Hard cap on assembled context, in characters.
	maxContextLength = 20000
)

type ChatHandler struct {
	store     store.Storer
	retriever *Retriever
	agent     agent.Answerer
}

func NewChatHandler(storer store.Storer, retriever *Retriever, answerer agent.Answerer) *ChatHandler {
	return &ChatHandler{
		store:     storer,
		retriever: retriever,
		agent:     answerer,
	}
}

func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	claims := currentClaims(c)
	if claims == nil {
		return ErrUnAuthorized("missing bearer token")
	}

	var params types.QueryParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	if err := h.store.AppendAudit(c.Context(), types.AuditEntry{
		Username: claims.Username(),
		Role:     claims.Role,
		Action:   "query",
		Details:  map[string]any{"query": params.Prompt},
	}); err != nil {
		log.Printf("[CHAT] audit write failed: %v", err)
	}

	if !h.agent.Available() {
		return c.JSON(types.ChatResponse{
			Answer:    answerUnavailable,
			Sources:   []types.Source{},
			Timestamp: time.Now(),
		})
	}

	hits, err := h.retriever.Search(c.Context(), claims, params.Prompt, defaultTopK)
	if err != nil {
		return err
	}

	if len(hits) == 0 {
		return c.JSON(types.ChatResponse{
			Answer:    answerNoDocuments,
			Sources:   []types.Source{},
			Timestamp: time.Now(),
		})
	}

	contextText, sources := buildContext(hits)
	confidence := hits[0].Similarity

	answer, err := h.agent.GenerateAnswer(c.Context(), contextText, params.Prompt)
	if err != nil {
		log.Printf("[CHAT] answer generation failed: %v", err)
		answer = fmt.Sprintf("Sorry, I encountered an error while generating the answer: %v", err)
	}

	return c.JSON(types.ChatResponse{
		Answer:     answer,
		Sources:    sources,
		Confidence: confidence,
		Timestamp:  time.Now(),
	})
}

// buildContext assembles per-document blocks under the length cap and
// reports which hits actually made it in.
func buildContext(hits []types.SearchHit) (string, []types.Source) {
	var sb strings.Builder
	var sources []types.Source

	for _, hit := range hits {
		block := fmt.Sprintf("Document: %s\nContent: %s\n\n", hit.Title, hit.Content)
		if sb.Len()+len(block) > maxContextLength {
			log.Printf("[CHAT] context cap reached (%d chars), using %d of %d chunks",
				maxContextLength, len(sources), len(hits))
			break
		}
		sb.WriteString(block)
		sources = append(sources, types.Source{
			DocID:     hit.DocID.String(),
			Title:     hit.Title,
			ChunkText: hit.Content,
			Index:     hit.Index,
		})
	}
	return strings.TrimSuffix(sb.String(), "\n"), sources
}

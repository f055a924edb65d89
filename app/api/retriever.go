package api

import (
	"context"
	"log"

	"github.com/google/uuid"

	"paperpulse/auth"
	"paperpulse/model"
	"paperpulse/rbac"
	"paperpulse/store"
	"paperpulse/types"
)

const (
	defaultTopK = 5
	// Over-fetch factor: the access filter throws hits away, so the
	// vector index is asked for more than the caller wants.
	overFetch = 3
)

// Retriever runs the access-controlled retrieval pipeline:
// embed -> similarity search -> dedupe by document -> role filter -> cap.
type Retriever struct {
	store    store.Storer
	embedder model.EmbedderInterface
}

func NewRetriever(storer store.Storer, embedder model.EmbedderInterface) *Retriever {
	return &Retriever{
		store:    storer,
		embedder: embedder,
	}
}

func (r *Retriever) Search(ctx context.Context, user *auth.Claims, query string, topK int) ([]types.SearchHit, error) {
	if topK <= 0 {
		topK = defaultTopK
	}

	embedded, err := r.embedder.Embed(query)
	if err != nil {
		return nil, err
	}

	hits, err := r.store.Search(ctx, embedded, topK*overFetch)
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]struct{})
	filtered := make([]types.SearchHit, 0, topK)
	for _, hit := range hits {
		// Hits arrive ordered by similarity, so the first chunk per
		// document is its best one.
		if _, ok := seen[hit.DocID]; ok {
			continue
		}
		if !rbac.CanView(user.Role, user.Department, hit.AccessRoles, hit.Department) {
			log.Printf("[SEARCH] filtered doc %s for %s (%s)", hit.DocID, user.Username(), user.Role)
			continue
		}
		seen[hit.DocID] = struct{}{}
		filtered = append(filtered, hit)
		if len(filtered) >= topK {
			break
		}
	}
	return filtered, nil
}

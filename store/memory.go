package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"paperpulse/types"
)

// MemoryStore is a Storer backed by maps with brute-force cosine search.
// It exists for tests and for running the API without Postgres.
type MemoryStore struct {
	mu     sync.RWMutex
	users  map[string]types.User
	docs   map[uuid.UUID]types.Document
	chunks map[uuid.UUID][]types.Chunk
	audit  []types.AuditEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:  make(map[string]types.User),
		docs:   make(map[uuid.UUID]types.Document),
		chunks: make(map[uuid.UUID][]types.Chunk),
	}
}

func (m *MemoryStore) CreateUser(_ context.Context, user types.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[user.Username]; exists {
		return fmt.Errorf("user %s already exists", user.Username)
	}
	m.users[user.Username] = user
	return nil
}

func (m *MemoryStore) GetUserByUsername(_ context.Context, username string) (*types.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[username]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &user, nil
}

func (m *MemoryStore) ListUsers(_ context.Context) ([]types.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]types.User, 0, len(m.users))
	for _, u := range m.users {
		u.HashedPassword = ""
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (m *MemoryStore) UpdateLastLogin(_ context.Context, username string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[username]
	if !ok {
		return sql.ErrNoRows
	}
	user.LastLogin = &at
	m.users[username] = user
	return nil
}

func (m *MemoryStore) SaveDocument(_ context.Context, doc types.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = doc
	return nil
}

func (m *MemoryStore) GetDocumentByID(_ context.Context, docID uuid.UUID) (*types.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[docID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &doc, nil
}

func (m *MemoryStore) DeleteDocument(_ context.Context, docID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, docID)
	delete(m.chunks, docID)
	return nil
}

func (m *MemoryStore) SaveChunk(_ context.Context, c types.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks[c.DocID] = append(m.chunks[c.DocID], c)
	return nil
}

func (m *MemoryStore) DeleteChunksByDocID(_ context.Context, docID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chunks, docID)
	return nil
}

func (m *MemoryStore) Search(_ context.Context, queryVec []float32, limit int) ([]types.SearchHit, error) {
	if len(queryVec) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []types.SearchHit
	for docID, chunks := range m.chunks {
		doc, ok := m.docs[docID]
		if !ok {
			continue
		}
		for _, ch := range chunks {
			hits = append(hits, types.SearchHit{
				Chunk:       ch,
				Title:       doc.Title,
				Department:  doc.Department,
				AccessRoles: doc.AccessRoles,
				Similarity:  cosine(queryVec, ch.Embedding),
			})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func (m *MemoryStore) AppendAudit(_ context.Context, entry types.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry.ID = int64(len(m.audit) + 1)
	m.audit = append(m.audit, entry)
	return nil
}

func (m *MemoryStore) ListAudit(_ context.Context, limit int) ([]types.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	entries := make([]types.AuditEntry, 0, limit)
	for i := len(m.audit) - 1; i >= 0 && len(entries) < limit; i-- {
		entries = append(entries, m.audit[i])
	}
	return entries, nil
}

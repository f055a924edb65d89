// Package ingest runs the document pipeline: extract -> chunk -> embed
// -> store. Both the upload endpoint and the bulk loader go through it.
package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"paperpulse/model"
	"paperpulse/rbac"
	"paperpulse/store"
	"paperpulse/types"
)

const previewLength = 1000

type Ingestor struct {
	store        store.Storer
	embedder     model.EmbedderInterface
	chunkSize    int
	chunkOverlap int
}

func New(storer store.Storer, embedder model.EmbedderInterface, chunkSize, chunkOverlap int) *Ingestor {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap <= 0 {
		chunkOverlap = DefaultChunkOverlap
	}
	return &Ingestor{
		store:        storer,
		embedder:     embedder,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Request describes one document to ingest on behalf of a user.
type Request struct {
	Path        string
	SourcePath  string // recorded on the document; defaults to Path
	Title       string
	Uploader    string
	Role        types.Role
	Department  string
	AccessRoles []types.Role
}

func (req Request) sourcePath() string {
	if req.SourcePath != "" {
		return req.SourcePath
	}
	return req.Path
}

// IngestPDF runs the whole pipeline for one file and returns the stored
// document metadata. The uploader's role caps the ACL; an empty ACL
// defaults to everything the uploader may grant.
func (ing *Ingestor) IngestPDF(ctx context.Context, req Request) (*types.Document, error) {
	if !rbac.CanUpload(req.Role) {
		return nil, fmt.Errorf("%w: %s may not upload documents", rbac.ErrDenied, req.Role)
	}

	acl := req.AccessRoles
	if len(acl) == 0 {
		acl = rbac.GrantableRoles(req.Role)
	}
	if err := rbac.CheckGrant(req.Role, acl); err != nil {
		return nil, err
	}

	text, pages, err := ExtractPDF(req.Path)
	if err != nil {
		return nil, err
	}

	title := req.Title
	if title == "" {
		title = TitleFromPath(req.Path)
	}

	parts := SplitText(text, ing.chunkSize, ing.chunkOverlap)
	if len(parts) == 0 {
		return nil, fmt.Errorf("document %q produced no chunks", title)
	}

	now := time.Now()
	doc := &types.Document{
		ID:          uuid.New(),
		Title:       title,
		Preview:     preview(text),
		SourcePath:  req.sourcePath(),
		Pages:       pages,
		Department:  req.Department,
		AccessRoles: acl,
		UploadedBy:  req.Uploader,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := ing.store.SaveDocument(ctx, *doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}

	// Re-ingest replaces the chunk set wholesale.
	if err := ing.store.DeleteChunksByDocID(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("clear old chunks: %w", err)
	}

	for i, content := range parts {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		embedding, err := ing.embedder.Embed(content)
		if err != nil {
			log.Printf("[INGEST] embedding error for chunk %d of %q: %v", i, title, err)
			return nil, fmt.Errorf("embed chunk %d: %w", i, err)
		}
		chunk := types.Chunk{
			ID:        uuid.New(),
			DocID:     doc.ID,
			Index:     i,
			Content:   content,
			Embedding: embedding,
		}
		if err := ing.store.SaveChunk(ctx, chunk); err != nil {
			return nil, fmt.Errorf("save chunk %d: %w", i, err)
		}
	}

	log.Printf("[INGEST] stored %q: %d pages, %d chunks", title, pages, len(parts))

	if err := ing.store.AppendAudit(ctx, types.AuditEntry{
		Username: req.Uploader,
		Role:     req.Role,
		Action:   "upload_document",
		Details: map[string]any{
			"document_id":  doc.ID.String(),
			"title":        title,
			"access_roles": types.RolesToStrings(acl),
		},
	}); err != nil {
		log.Printf("[INGEST] audit write failed: %v", err)
	}

	return doc, nil
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLength {
		return text
	}
	return string(runes[:previewLength]) + "..."
}

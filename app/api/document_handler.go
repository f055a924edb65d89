package api

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"paperpulse/ingest"
	"paperpulse/rbac"
	"paperpulse/store"
	"paperpulse/types"
)

type DocumentHandler struct {
	store     store.Storer
	ingestor  *ingest.Ingestor
	retriever *Retriever
}

func NewDocumentHandler(storer store.Storer, ingestor *ingest.Ingestor, retriever *Retriever) *DocumentHandler {
	return &DocumentHandler{
		store:     storer,
		ingestor:  ingestor,
		retriever: retriever,
	}
}

// HandleUpload ingests one multipart PDF. Form fields: file (required),
// title, access_roles (comma separated).
func (h *DocumentHandler) HandleUpload(c *fiber.Ctx) error {
	claims := currentClaims(c)
	if claims == nil {
		return ErrUnAuthorized("missing bearer token")
	}
	if !rbac.CanUpload(claims.Role) {
		return ErrForbidden("employees may not upload documents")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return ErrBadRequest()
	}
	if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".pdf") {
		return NewError(fiber.StatusUnsupportedMediaType, "only PDF uploads are supported")
	}

	acl, err := parseACL(c.FormValue("access_roles"))
	if err != nil {
		return NewError(fiber.StatusBadRequest, err.Error())
	}

	tmpDir, err := os.MkdirTemp("", "paperpulse-upload-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, filepath.Base(fileHeader.Filename))
	if err := c.SaveFile(fileHeader, path); err != nil {
		return err
	}

	doc, err := h.ingestor.IngestPDF(c.Context(), ingest.Request{
		Path: path,
		// The temp path is gone once this request ends; record the
		// uploaded filename instead.
		SourcePath:  fileHeader.Filename,
		Title:       c.FormValue("title"),
		Uploader:    claims.Username(),
		Role:        claims.Role,
		Department:  claims.Department,
		AccessRoles: acl,
	})
	if err != nil {
		if errors.Is(err, rbac.ErrDenied) {
			return ErrForbidden(err.Error())
		}
		return NewError(fiber.StatusUnprocessableEntity, err.Error())
	}

	log.Printf("[UPLOAD] document %s (%q) stored by %s", doc.ID, doc.Title, claims.Username())
	return c.Status(fiber.StatusCreated).JSON(doc)
}

func parseACL(raw string) ([]types.Role, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var roles []types.Role
	for _, part := range strings.Split(raw, ",") {
		role, err := types.ParseRole(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, nil
}

func (h *DocumentHandler) HandleSearch(c *fiber.Ctx) error {
	claims := currentClaims(c)
	if claims == nil {
		return ErrUnAuthorized("missing bearer token")
	}

	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		return NewError(fiber.StatusBadRequest, "query parameter 'q' is required")
	}
	topK, _ := strconv.Atoi(c.Query("limit"))

	if err := h.store.AppendAudit(c.Context(), types.AuditEntry{
		Username: claims.Username(),
		Role:     claims.Role,
		Action:   "search",
		Details:  map[string]any{"query": query},
	}); err != nil {
		log.Printf("[SEARCH] audit write failed: %v", err)
	}

	hits, err := h.retriever.Search(c.Context(), claims, query, topK)
	if err != nil {
		return err
	}

	results := make([]types.SearchResult, len(hits))
	for i, hit := range hits {
		results[i] = types.SearchResult{
			DocID:      hit.DocID.String(),
			Title:      hit.Title,
			ChunkText:  hit.Content,
			Index:      hit.Index,
			Similarity: hit.Similarity,
		}
	}
	return c.JSON(results)
}

func (h *DocumentHandler) HandleDelete(c *fiber.Ctx) error {
	claims := currentClaims(c)
	if claims == nil {
		return ErrUnAuthorized("missing bearer token")
	}

	docID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}

	doc, err := h.store.GetDocumentByID(c.Context(), docID)
	if err != nil {
		return ErrNotFound(docID, "document")
	}

	if !rbac.CanDelete(claims.Role, doc.AccessRoles) {
		return ErrForbidden("you don't have permission to delete this document")
	}

	if err := h.store.DeleteChunksByDocID(c.Context(), docID); err != nil {
		return err
	}
	if err := h.store.DeleteDocument(c.Context(), docID); err != nil {
		return err
	}

	if err := h.store.AppendAudit(c.Context(), types.AuditEntry{
		Username: claims.Username(),
		Role:     claims.Role,
		Action:   "delete_document",
		Details: map[string]any{
			"document_id": docID.String(),
			"title":       doc.Title,
		},
	}); err != nil {
		log.Printf("[DELETE] audit write failed: %v", err)
	}

	return c.JSON(fiber.Map{"result": "deleted", "document_id": docID.String()})
}

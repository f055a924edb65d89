package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"paperpulse/rbac"
	"paperpulse/store"
)

type AuditHandler struct {
	store store.Storer
}

func NewAuditHandler(storer store.Storer) *AuditHandler {
	return &AuditHandler{
		store: storer,
	}
}

func (h *AuditHandler) HandleListAudit(c *fiber.Ctx) error {
	claims := currentClaims(c)
	if claims == nil {
		return ErrUnAuthorized("missing bearer token")
	}
	if !rbac.CanReadAudit(claims.Role) {
		return ErrForbidden("only executives may read audit logs")
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := h.store.ListAudit(c.Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(entries)
}

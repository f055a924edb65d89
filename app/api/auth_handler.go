package api

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"paperpulse/auth"
	"paperpulse/store"
	"paperpulse/types"
)

type AuthHandler struct {
	store  store.Storer
	secret []byte
}

func NewAuthHandler(storer store.Storer, secret []byte) *AuthHandler {
	return &AuthHandler{
		store:  storer,
		secret: secret,
	}
}

func (h *AuthHandler) HandleLogin(c *fiber.Ctx) error {
	var params types.LoginParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	user, err := h.store.GetUserByUsername(c.Context(), params.Username)
	if err != nil || !auth.VerifyPassword(params.Password, user.HashedPassword) {
		return ErrInvalidCredentials()
	}

	token, err := auth.IssueToken(h.secret, user, auth.TokenTTL)
	if err != nil {
		return err
	}

	now := time.Now()
	if err := h.store.UpdateLastLogin(c.Context(), user.Username, now); err != nil {
		log.Printf("[AUTH] update last_login for %s failed: %v", user.Username, err)
	}

	h.audit(c.Context(), user, "login", nil)

	return c.JSON(fiber.Map{
		"token": token,
		"user": fiber.Map{
			"username":   user.Username,
			"role":       user.Role,
			"department": user.Department,
		},
	})
}

func (h *AuthHandler) HandleLogout(c *fiber.Ctx) error {
	claims := currentClaims(c)
	if claims == nil {
		return ErrUnAuthorized("missing bearer token")
	}
	h.audit(c.Context(), &types.User{
		Username: claims.Username(),
		Role:     claims.Role,
	}, "logout", nil)
	return c.JSON(fiber.Map{"result": "ok"})
}

func (h *AuthHandler) audit(ctx context.Context, user *types.User, action string, details map[string]any) {
	err := h.store.AppendAudit(ctx, types.AuditEntry{
		Username: user.Username,
		Role:     user.Role,
		Action:   action,
		Details:  details,
	})
	if err != nil {
		log.Printf("[AUTH] audit write failed: %v", err)
	}
}

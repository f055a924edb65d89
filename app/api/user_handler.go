package api

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"

	"paperpulse/auth"
	"paperpulse/rbac"
	"paperpulse/store"
	"paperpulse/types"
)

type UserHandler struct {
	store store.Storer
}

func NewUserHandler(storer store.Storer) *UserHandler {
	return &UserHandler{
		store: storer,
	}
}

// HandleCreateUser is Executive-only (enforced again here on top of the
// route guard).
func (h *UserHandler) HandleCreateUser(c *fiber.Ctx) error {
	claims := currentClaims(c)
	if claims == nil {
		return ErrUnAuthorized("missing bearer token")
	}
	if !rbac.CanManageUsers(claims.Role) {
		return ErrForbidden("only executives may manage users")
	}

	var params types.CreateUserParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	role, err := types.ParseRole(params.Role)
	if err != nil {
		return ErrBadRequest()
	}

	if existing, err := h.store.GetUserByUsername(c.Context(), params.Username); err == nil && existing != nil {
		return ErrConflict("user " + params.Username + " already exists")
	}

	hash, err := auth.HashPassword(params.Password)
	if err != nil {
		return err
	}

	user := types.User{
		Username:       params.Username,
		HashedPassword: hash,
		Role:           role,
		Department:     params.Department,
		CreatedAt:      time.Now(),
	}
	if err := h.store.CreateUser(c.Context(), user); err != nil {
		return err
	}

	if err := h.store.AppendAudit(c.Context(), types.AuditEntry{
		Username: claims.Username(),
		Role:     claims.Role,
		Action:   "create_user",
		Details: map[string]any{
			"username":   user.Username,
			"role":       string(user.Role),
			"department": user.Department,
		},
	}); err != nil {
		log.Printf("[USERS] audit write failed: %v", err)
	}

	user.HashedPassword = ""
	return c.Status(fiber.StatusCreated).JSON(user)
}

func (h *UserHandler) HandleListUsers(c *fiber.Ctx) error {
	claims := currentClaims(c)
	if claims == nil {
		return ErrUnAuthorized("missing bearer token")
	}
	if !rbac.CanManageUsers(claims.Role) {
		return ErrForbidden("only executives may manage users")
	}

	users, err := h.store.ListUsers(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(users)
}

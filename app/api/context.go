package api

import (
	"github.com/gofiber/fiber/v2"

	"paperpulse/app/middleware"
	"paperpulse/auth"
)

func currentClaims(c *fiber.Ctx) *auth.Claims {
	return middleware.CurrentUser(c)
}

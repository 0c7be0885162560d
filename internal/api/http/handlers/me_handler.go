package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-desk/internal/api/dto"
)

// Me GET /auth/me returns the caller resolved from the access token.
func Me(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.MeResponse{
		UserID:  principal.UserID,
		Email:   principal.Email,
		Role:    principal.Role,
		IsAdmin: principal.IsAdmin(),
	}})
}

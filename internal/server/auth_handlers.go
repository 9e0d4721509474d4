package server

import (
	"sphere/internal/models"
	"sphere/internal/service"

	"github.com/gofiber/fiber/v2"
)

// Register handles POST /auth/register
func (s *Server) Register(c *fiber.Ctx) error {
	var req service.RegisterInput
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	user, err := s.authService.Register(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "User registered successfully",
		"user":    user,
	})
}

// Login handles POST /auth/login
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	token, user, err := s.authService.Authenticate(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"token": token,
		"user":  user,
	})
}

// RefreshToken handles POST /auth/refresh-token. The token may be sent in the
// body or as a bearer header.
func (s *Server) RefreshToken(c *fiber.Ctx) error {
	var req struct {
		Token string `json:"token"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid request body"))
		}
	}
	if req.Token == "" {
		req.Token = c.Get(fiber.HeaderAuthorization)
	}

	token, err := s.authService.Refresh(c.UserContext(), req.Token)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"token": token})
}

// Logout handles POST /auth/logout
func (s *Server) Logout(c *fiber.Ctx) error {
	claims := currentClaims(c)
	if claims == nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized, models.ErrTokenMissing)
	}
	if err := s.authService.Logout(c.UserContext(), claims); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Logged out"})
}

// Package middleware provides HTTP middleware for authentication, logging, rate limiting and tracing.
package middleware

import (
	"context"
	"errors"

	"sphere/internal/models"
	"sphere/internal/observability"

	"github.com/gofiber/fiber/v2"
)

// TokenVerifier validates the raw Authorization header of a request.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, authorizationHeader string) (*models.Claims, error)
}

// AuthRequired rejects requests without a valid bearer token with 401 and a reason code.
// On success it stores "userID", "claims" and the user ID in the request context.
func AuthRequired(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := verifier.VerifyToken(c.UserContext(), c.Get(fiber.HeaderAuthorization))
		if err != nil {
			var appErr *models.AppError
			if errors.As(err, &appErr) && appErr.Code == models.CodeUnauthorized {
				observability.AuthFailures.WithLabelValues(appErr.Reason).Inc()
				return models.RespondWithError(c, fiber.StatusUnauthorized, appErr)
			}
			Logger.ErrorContext(c.UserContext(), "token verification failed", "error", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
		}

		c.Locals("userID", claims.UserID)
		c.Locals("claims", claims)
		c.SetUserContext(context.WithValue(c.UserContext(), UserIDKey, claims.UserID))

		return c.Next()
	}
}

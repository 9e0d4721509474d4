package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"sphere/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verifierStub struct {
	verify func(ctx context.Context, header string) (*models.Claims, error)
}

func (v verifierStub) VerifyToken(ctx context.Context, header string) (*models.Claims, error) {
	return v.verify(ctx, header)
}

func TestAuthRequired(t *testing.T) {
	verifier := verifierStub{verify: func(_ context.Context, header string) (*models.Claims, error) {
		switch header {
		case "":
			return nil, models.ErrTokenMissing
		case "Bearer good":
			return &models.Claims{UserID: 123, Email: "a@x.com"}, nil
		case "Bearer old":
			return nil, models.ErrTokenExpired
		case "Bearer tampered":
			return nil, models.ErrTokenInvalid
		case "Bearer broken-store":
			return nil, errors.New("boom")
		default:
			return nil, models.ErrTokenMalformed
		}
	}}

	app := fiber.New()
	app.Get("/test", AuthRequired(verifier), func(c *fiber.Ctx) error {
		uid, _ := c.Locals("userID").(uint)
		ctxUID, _ := c.UserContext().Value(UserIDKey).(uint)
		return c.JSON(fiber.Map{"userID": uid, "ctxUserID": ctxUID})
	})

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
		expectedReason string
	}{
		{"Happy Path", "Bearer good", http.StatusOK, ""},
		{"Missing Header", "", http.StatusUnauthorized, models.ReasonMissing},
		{"Malformed Header", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, models.ReasonMalformed},
		{"Expired Token", "Bearer old", http.StatusUnauthorized, models.ReasonExpired},
		{"Invalid Signature", "Bearer tampered", http.StatusUnauthorized, models.ReasonInvalid},
		{"Verifier Failure", "Bearer broken-store", http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

			if tt.expectedStatus == http.StatusOK {
				assert.Equal(t, float64(123), body["userID"])
				assert.Equal(t, float64(123), body["ctxUserID"])
				return
			}
			if tt.expectedReason != "" {
				assert.Equal(t, tt.expectedReason, body["reason"])
				assert.Equal(t, models.CodeUnauthorized, body["code"])
			}
		})
	}
}

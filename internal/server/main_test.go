package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"sphere/internal/config"
	"sphere/internal/database"
	"sphere/internal/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "server-test-secret-that-is-long-enough"

// newTestServer builds a fully wired Server over in-memory SQLite, miniredis
// and a temporary upload directory.
func newTestServer(t *testing.T) (*Server, *fiber.App) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.AutoMigrate(db))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	blobs, err := storage.NewLocalStore(t.TempDir(), "/uploads")
	require.NoError(t, err)

	cfg := &config.Config{
		Env:                    "test",
		Port:                   "0",
		AllowedOrigins:         "http://localhost:5173",
		JWTSecret:              testSecret,
		AuthTokenTTLMinutes:    60,
		AuthRefreshWindowHours: 24,
		RateLimitAuthPerMinute: 100,
		DBTimeoutMS:            5000,
		AvatarMaxUploadMB:      1,
	}

	srv, err := NewServerWithDeps(cfg, db, rdb, blobs)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = rdb.Close()
		_ = sqlDB.Close()
	})
	return srv, srv.App()
}

// call sends body as JSON (when non-nil) and decodes the response into out (when non-nil).
func call(t *testing.T, app *fiber.App, method, path, token string, body, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type session struct {
	ID    uint
	Token string
}

// signup registers username and logs in, returning the new session.
func signup(t *testing.T, app *fiber.App, username string) session {
	t.Helper()

	status := call(t, app, http.MethodPost, "/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "secret123",
	}, nil)
	require.Equal(t, http.StatusCreated, status)

	var login struct {
		Token string `json:"token"`
		User  struct {
			ID uint `json:"id"`
		} `json:"user"`
	}
	status = call(t, app, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    username + "@example.com",
		"password": "secret123",
	}, &login)
	require.Equal(t, http.StatusOK, status)
	require.NotEmpty(t, login.Token)

	return session{ID: login.User.ID, Token: login.Token}
}

func decodeBody(resp *http.Response, out any) error {
	return json.NewDecoder(resp.Body).Decode(out)
}

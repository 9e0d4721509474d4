// Package server contains the HTTP handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sphere/internal/bootstrap"
	"sphere/internal/cache"
	"sphere/internal/config"
	"sphere/internal/database"
	"sphere/internal/middleware"
	"sphere/internal/models"
	"sphere/internal/repository"
	"sphere/internal/service"
	"sphere/internal/storage"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	blobs          storage.BlobStore
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownTrace  func(context.Context) error

	authService       *service.AuthService
	graphService      *service.GraphService
	engagementService *service.EngagementService
	feedService       *service.FeedService
	postService       *service.PostService
	userService       *service.UserService
}

// NewServer connects every store described by cfg and wires the handlers.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	rt, err := bootstrap.InitRuntime(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s, err := NewServerWithDeps(cfg, rt.DB, rt.Redis, rt.Blobs)
	if err != nil {
		return nil, err
	}
	s.shutdownTrace = rt.ShutdownTrace
	return s, nil
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil; revocation, caching and rate limiting are then disabled.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, blobs storage.BlobStore) (*Server, error) {
	if cfg == nil || db == nil {
		return nil, errors.New("server requires a config and a database")
	}

	timeout := cfg.DBTimeout()
	userRepo := repository.NewUserRepository(db, timeout)
	postRepo := repository.NewPostRepository(db, timeout)
	commentRepo := repository.NewCommentRepository(db, timeout)
	engagementRepo := repository.NewEngagementRepository(db, timeout)
	followRepo := repository.NewFollowRepository(db, timeout)

	var revoker service.TokenRevoker
	if redisClient != nil {
		revoker = cache.NewRevocationStore(redisClient)
	}

	feedVersion := &service.FeedVersion{}
	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		blobs:          blobs,
		promMiddleware: middleware.InitMetrics("sphere-api"),
		authService: service.NewAuthService(userRepo, revoker, clockwork.NewRealClock(), service.AuthConfig{
			Secret:        []byte(cfg.JWTSecret),
			TokenTTL:      cfg.TokenTTL(),
			RefreshWindow: cfg.RefreshWindow(),
		}),
		graphService:      service.NewGraphService(followRepo, userRepo),
		engagementService: service.NewEngagementService(engagementRepo, commentRepo, postRepo, feedVersion),
		feedService:       service.NewFeedService(postRepo, engagementRepo, commentRepo, userRepo, feedVersion),
		postService:       service.NewPostService(postRepo, userRepo, feedVersion),
		userService: service.NewUserService(userRepo, commentRepo, blobs,
			int64(cfg.AvatarMaxUploadMB)*1024*1024),
	}
	return s, nil
}

// App builds the fiber application with middleware and routes installed.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}

	app := fiber.New(fiber.Config{
		AppName:   "Sphere API",
		BodyLimit: (s.config.AvatarMaxUploadMB + 1) * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				return c.Status(fiberErr.Code).JSON(models.ErrorResponse{Error: fiberErr.Message, Message: fiberErr.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", "error", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
		},
	})

	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New(helmet.Config{CrossOriginResourcePolicy: "cross-origin"}))
	app.Use(middleware.StructuredLogger())

	// CORS runs before anything that can short-circuit so error responses keep their headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:4200,http://localhost:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// In-process backstop against floods; the per-route Redis limits are the real policy.
	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	if local, ok := s.blobs.(*storage.LocalStore); ok {
		app.Static("/uploads", local.Dir())
	}

	authRequired := middleware.AuthRequired(s.authService)
	authLimit := middleware.RateLimit(s.rateLimitStore(), s.config.RateLimitAuthPerMinute, time.Minute, "auth")

	auth := app.Group("/auth", authLimit)
	auth.Post("/register", s.Register)
	auth.Post("/login", s.Login)
	auth.Post("/refresh-token", s.RefreshToken)
	auth.Post("/logout", authRequired, s.Logout)

	posts := app.Group("/posts", authRequired)
	posts.Get("/", s.GetFeed)
	posts.Post("/", s.CreatePost)
	posts.Get("/user/:userId", s.GetPostsByUser)
	posts.Post("/:postId/like", s.ToggleLike)
	posts.Delete("/:postId/like", s.ToggleLike)
	posts.Post("/:postId/favorite", s.ToggleFavorite)
	posts.Delete("/:postId/favorite", s.ToggleFavorite)
	posts.Post("/:postId/comment", s.AddComment)
	posts.Get("/:postId/comments", s.GetComments)

	// Fixed paths are registered before /user/:id so they are not parsed as ids.
	users := app.Group("/user", authRequired)
	users.Get("/profile", s.GetMyProfile)
	users.Put("/profile", s.UpdateMyProfile)
	users.Get("/likes", s.GetMyLikes)
	users.Get("/favorites", s.GetMyFavorites)
	users.Get("/comments", s.GetMyComments)
	users.Get("/posts", s.GetMyPosts)
	users.Post("/follow", s.Follow)
	users.Post("/unfollow", s.Unfollow)
	users.Get("/:id/isFollowing", s.IsFollowing)
	users.Get("/:id", s.GetUserProfile)
}

// rateLimitStore avoids handing a typed nil client to the limiter.
func (s *Server) rateLimitStore() redis.Cmdable {
	if s.redis == nil {
		return nil
	}
	return s.redis
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports whether the database and Redis answer a ping.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := database.Ping(ctx, s.db, s.config.DBTimeout()); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "disabled"
	}

	status := fiber.StatusOK
	overall := "healthy"
	if dbStatus != "healthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overall = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overall,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
	})
}

// Start builds the app and blocks serving on the configured port.
func (s *Server) Start() error {
	app := s.App()
	middleware.Logger.Info("server starting", "port", s.config.Port)
	return app.Listen(":" + s.config.Port)
}

// Shutdown stops accepting requests, waits for in-flight ones and closes the stores.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			errs = append(errs, fmt.Errorf("close database: %w", cerr))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", rerr))
		}
	}

	if s.shutdownTrace != nil {
		if terr := s.shutdownTrace(ctx); terr != nil {
			errs = append(errs, fmt.Errorf("flush traces: %w", terr))
		}
	}

	middleware.Logger.Info("server shutdown complete")
	return errors.Join(errs...)
}

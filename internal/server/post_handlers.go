package server

import (
	"context"

	"sphere/internal/models"
	"sphere/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetFeed handles GET /posts
func (s *Server) GetFeed(c *fiber.Ctx) error {
	feed, err := s.feedService.GetFeed(c.UserContext(), currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(feed)
}

// CreatePost handles POST /posts
func (s *Server) CreatePost(c *fiber.Ctx) error {
	var req struct {
		Content  string `json:"content"`
		ImageURL string `json:"image_url"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	post, err := s.postService.CreatePost(c.UserContext(), service.CreatePostInput{
		UserID:   currentUserID(c),
		Content:  req.Content,
		ImageURL: req.ImageURL,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Post created successfully",
		"post":    post,
	})
}

// GetPostsByUser handles GET /posts/user/:userId
func (s *Server) GetPostsByUser(c *fiber.Ctx) error {
	authorID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	posts, err := s.feedService.GetFeedByAuthor(c.UserContext(), currentUserID(c), authorID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(posts)
}

// ToggleLike handles POST and DELETE /posts/:postId/like
func (s *Server) ToggleLike(c *fiber.Ctx) error {
	return s.toggle(c, s.engagementService.ToggleLike, "liked", "unliked")
}

// ToggleFavorite handles POST and DELETE /posts/:postId/favorite
func (s *Server) ToggleFavorite(c *fiber.Ctx) error {
	return s.toggle(c, s.engagementService.ToggleFavorite, "favorited", "unfavorited")
}

type toggleFunc func(ctx context.Context, userID, postID uint) (service.ToggleOutcome, error)

func (s *Server) toggle(c *fiber.Ctx, fn toggleFunc, addedMsg, removedMsg string) error {
	postID, err := s.parseID(c, "postId")
	if err != nil {
		return nil
	}

	out, err := fn(c.UserContext(), currentUserID(c), postID)
	if err != nil {
		return respondError(c, err)
	}

	status, message := fiber.StatusOK, removedMsg
	if out.Added() {
		status, message = fiber.StatusCreated, addedMsg
	}
	return c.Status(status).JSON(fiber.Map{
		"message": message,
		"added":   out.Added(),
		"count":   out.Count,
	})
}

package server

import (
	"strings"

	"sphere/internal/models"
	"sphere/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetMyProfile handles GET /user/profile
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	user, err := s.userService.GetUserByID(c.UserContext(), currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

// UpdateMyProfile handles PUT /user/profile. It accepts multipart form data
// (username, bio, avatar file) or a JSON body with username and bio.
func (s *Server) UpdateMyProfile(c *fiber.Ctx) error {
	in := service.UpdateProfileInput{UserID: currentUserID(c)}

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid multipart form"))
		}
		if v, ok := form.Value["username"]; ok && len(v) > 0 {
			in.Username = &v[0]
		}
		if v, ok := form.Value["bio"]; ok && len(v) > 0 {
			in.Bio = &v[0]
		}
		if files := form.File["avatar"]; len(files) > 0 {
			fh := files[0]
			f, err := fh.Open()
			if err != nil {
				return models.RespondWithError(c, fiber.StatusBadRequest,
					models.NewValidationError("Could not read avatar file"))
			}
			defer f.Close()
			in.Avatar = &service.AvatarUpload{Filename: fh.Filename, Size: fh.Size, Body: f}
		}
	} else {
		var req struct {
			Username *string `json:"username"`
			Bio      *string `json:"bio"`
		}
		if err := c.BodyParser(&req); err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid request body"))
		}
		in.Username, in.Bio = req.Username, req.Bio
	}

	user, err := s.userService.UpdateProfile(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

// GetUserProfile handles GET /user/:id
func (s *Server) GetUserProfile(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	profile, err := s.userService.GetPublicProfile(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(profile)
}

// GetMyLikes handles GET /user/likes
func (s *Server) GetMyLikes(c *fiber.Ctx) error {
	posts, err := s.feedService.ListEngaged(c.UserContext(), currentUserID(c), models.EngagementLike)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(posts)
}

// GetMyFavorites handles GET /user/favorites
func (s *Server) GetMyFavorites(c *fiber.Ctx) error {
	posts, err := s.feedService.ListEngaged(c.UserContext(), currentUserID(c), models.EngagementFavorite)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(posts)
}

// GetMyComments handles GET /user/comments
func (s *Server) GetMyComments(c *fiber.Ctx) error {
	comments, err := s.userService.ListComments(c.UserContext(), currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(comments)
}

// GetMyPosts handles GET /user/posts
func (s *Server) GetMyPosts(c *fiber.Ctx) error {
	uid := currentUserID(c)
	posts, err := s.feedService.GetFeedByAuthor(c.UserContext(), uid, uid)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(posts)
}

type followRequest struct {
	UserID uint `json:"userId"`
}

func parseFollowTarget(c *fiber.Ctx) (uint, error) {
	var req followRequest
	if err := c.BodyParser(&req); err != nil || req.UserID == 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("userId is required"))
		return 0, errResponseWritten
	}
	return req.UserID, nil
}

// Follow handles POST /user/follow
func (s *Server) Follow(c *fiber.Ctx) error {
	target, err := parseFollowTarget(c)
	if err != nil {
		return nil
	}
	if err := s.graphService.Follow(c.UserContext(), currentUserID(c), target); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Now following user"})
}

// Unfollow handles POST /user/unfollow
func (s *Server) Unfollow(c *fiber.Ctx) error {
	target, err := parseFollowTarget(c)
	if err != nil {
		return nil
	}
	if err := s.graphService.Unfollow(c.UserContext(), currentUserID(c), target); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Unfollowed user"})
}

// IsFollowing handles GET /user/:id/isFollowing
func (s *Server) IsFollowing(c *fiber.Ctx) error {
	target, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	following, err := s.graphService.IsFollowing(c.UserContext(), currentUserID(c), target)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"isFollowing": following})
}

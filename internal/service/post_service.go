package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"sphere/internal/models"
	"sphere/internal/repository"
)

const maxPostLen = 10000

type PostService struct {
	postRepo    repository.PostRepository
	userRepo    repository.UserRepository
	feedVersion *FeedVersion
}

type CreatePostInput struct {
	UserID   uint
	Content  string
	ImageURL string
}

func NewPostService(postRepo repository.PostRepository, userRepo repository.UserRepository, feedVersion *FeedVersion) *PostService {
	return &PostService{
		postRepo:    postRepo,
		userRepo:    userRepo,
		feedVersion: feedVersion,
	}
}

// CreatePost publishes a post and returns it as its author sees it.
func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.PostView, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, models.NewValidationError("content is required")
	}
	if len(content) > maxPostLen {
		return nil, models.NewValidationError(fmt.Sprintf("content too long (max %d characters)", maxPostLen))
	}

	imageURL := strings.TrimSpace(in.ImageURL)
	if imageURL != "" {
		if u, err := url.ParseRequestURI(imageURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, models.NewValidationError("image_url must be an http(s) URL")
		}
	}

	post := &models.Post{
		UserID:   in.UserID,
		Content:  content,
		ImageURL: imageURL,
	}
	if err := s.postRepo.Create(ctx, post); err != nil {
		return nil, err
	}
	s.feedVersion.Bump()

	// The post is committed; an author lookup failure only degrades the response.
	author, _ := s.userRepo.GetByID(ctx, in.UserID)
	return &models.PostView{
		ID:        post.ID,
		Content:   post.Content,
		ImageURL:  post.ImageURL,
		CreatedAt: post.CreatedAt,
		Author:    models.AuthorOrDefault(in.UserID, author),
	}, nil
}

package service

import (
	"context"
	"fmt"
	"strings"

	"sphere/internal/models"
	"sphere/internal/observability"
	"sphere/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

const maxCommentLen = 10000

// EngagementService toggles likes and favorites and appends comments.
type EngagementService struct {
	engagementRepo repository.EngagementRepository
	commentRepo    repository.CommentRepository
	postRepo       repository.PostRepository
	feedVersion    *FeedVersion
}

// ToggleOutcome is the result of a toggle together with the post's live count afterwards.
type ToggleOutcome struct {
	Result models.ToggleResult
	Count  int64
}

// Added reports whether the toggle created the edge.
func (o ToggleOutcome) Added() bool {
	return o.Result == models.ToggleAdded
}

func NewEngagementService(
	engagementRepo repository.EngagementRepository,
	commentRepo repository.CommentRepository,
	postRepo repository.PostRepository,
	feedVersion *FeedVersion,
) *EngagementService {
	return &EngagementService{
		engagementRepo: engagementRepo,
		commentRepo:    commentRepo,
		postRepo:       postRepo,
		feedVersion:    feedVersion,
	}
}

func (s *EngagementService) ToggleLike(ctx context.Context, userID, postID uint) (ToggleOutcome, error) {
	return s.toggle(ctx, models.EngagementLike, userID, postID)
}

func (s *EngagementService) ToggleFavorite(ctx context.Context, userID, postID uint) (ToggleOutcome, error) {
	return s.toggle(ctx, models.EngagementFavorite, userID, postID)
}

// toggle flips the edge once. It is not retried on failure because the
// flip may have committed before the error surfaced.
func (s *EngagementService) toggle(ctx context.Context, kind models.EngagementKind, userID, postID uint) (out ToggleOutcome, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "EngagementService", "Toggle",
		attribute.String("engagement.kind", string(kind)),
		attribute.Int("post.id", int(postID)))
	defer func() {
		label := resultLabel(err)
		if err == nil {
			label = out.Result.String()
		}
		observability.EngagementToggles.WithLabelValues(string(kind), label).Inc()
		observability.EndSpan(span, err)
	}()

	result, err := s.engagementRepo.Toggle(ctx, kind, userID, postID)
	if err != nil {
		return ToggleOutcome{}, err
	}
	s.feedVersion.Bump()

	count, err := s.engagementRepo.Count(ctx, kind, postID)
	if err != nil {
		return ToggleOutcome{}, err
	}
	return ToggleOutcome{Result: result, Count: count}, nil
}

// Count returns the live number of edges of kind on postID.
func (s *EngagementService) Count(ctx context.Context, kind models.EngagementKind, postID uint) (int64, error) {
	return s.engagementRepo.Count(ctx, kind, postID)
}

// AddComment appends a comment to postID. Whitespace-only text is rejected.
func (s *EngagementService) AddComment(ctx context.Context, userID, postID uint, text string) (*models.CommentView, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, models.ErrEmptyText
	}
	if len(text) > maxCommentLen {
		return nil, models.NewValidationError(fmt.Sprintf("comment too long (max %d characters)", maxCommentLen))
	}

	comment := &models.Comment{
		PostID: postID,
		UserID: userID,
		Text:   text,
	}
	if err := s.commentRepo.Create(ctx, comment); err != nil {
		return nil, err
	}
	s.feedVersion.Bump()

	view := toCommentView(comment)
	return &view, nil
}

// ListComments returns the thread of postID, newest first.
func (s *EngagementService) ListComments(ctx context.Context, postID uint) ([]models.CommentView, error) {
	exists, err := s.postRepo.Exists(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, models.ErrPostNotFound
	}

	comments, err := s.commentRepo.ListByPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	return toCommentViews(comments), nil
}

func toCommentView(c *models.Comment) models.CommentView {
	return models.CommentView{
		ID:        c.ID,
		PostID:    c.PostID,
		Text:      c.Text,
		Author:    models.AuthorOrDefault(c.UserID, c.User),
		CreatedAt: c.CreatedAt,
	}
}

func toCommentViews(comments []*models.Comment) []models.CommentView {
	views := make([]models.CommentView, 0, len(comments))
	for _, c := range comments {
		views = append(views, toCommentView(c))
	}
	return views
}

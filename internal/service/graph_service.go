package service

import (
	"context"
	"errors"

	"sphere/internal/models"
	"sphere/internal/observability"
	"sphere/internal/repository"

	"go.opentelemetry.io/otel/attribute"
)

// GraphService manages the follow graph.
type GraphService struct {
	followRepo repository.FollowRepository
	userRepo   repository.UserRepository
}

// NewGraphService returns a new GraphService.
func NewGraphService(followRepo repository.FollowRepository, userRepo repository.UserRepository) *GraphService {
	return &GraphService{
		followRepo: followRepo,
		userRepo:   userRepo,
	}
}

// Follow makes source follow target. The edge and both counters change
// together or not at all. A failed call is never retried here: on a timeout
// the edge may already exist.
func (s *GraphService) Follow(ctx context.Context, source, target uint) (err error) {
	ctx, span := observability.StartServiceSpan(ctx, "GraphService", "Follow",
		attribute.Int("follow.source", int(source)), attribute.Int("follow.target", int(target)))
	defer func() {
		observability.FollowOperations.WithLabelValues("follow", resultLabel(err)).Inc()
		observability.EndSpan(span, err)
	}()

	if source == target {
		return models.ErrSelfFollow
	}
	return s.followRepo.Follow(ctx, source, target)
}

// Unfollow removes the edge from source to target and decrements both counters.
func (s *GraphService) Unfollow(ctx context.Context, source, target uint) (err error) {
	ctx, span := observability.StartServiceSpan(ctx, "GraphService", "Unfollow",
		attribute.Int("follow.source", int(source)), attribute.Int("follow.target", int(target)))
	defer func() {
		observability.FollowOperations.WithLabelValues("unfollow", resultLabel(err)).Inc()
		observability.EndSpan(span, err)
	}()

	if source == target {
		return models.ErrSelfFollow
	}
	return s.followRepo.Unfollow(ctx, source, target)
}

// IsFollowing reports whether source follows target.
func (s *GraphService) IsFollowing(ctx context.Context, source, target uint) (bool, error) {
	if source == target {
		return false, nil
	}
	if _, err := s.userRepo.GetByID(ctx, target); err != nil {
		return false, err
	}
	return s.followRepo.Exists(ctx, source, target)
}

// resultLabel buckets err into a low-cardinality metric label.
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return models.CodeInternal
}

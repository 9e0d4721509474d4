package service

import (
	"context"
	"fmt"
	"sync/atomic"

	"sphere/internal/models"
	"sphere/internal/observability"
	"sphere/internal/repository"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

// FeedVersion counts committed writes that change what a feed shows: posts,
// comments and engagement toggles. A nil *FeedVersion ignores writes.
type FeedVersion struct {
	n atomic.Uint64
}

// Bump records a committed write. Call it after the write is durable.
func (v *FeedVersion) Bump() {
	if v != nil {
		v.n.Add(1)
	}
}

// Load returns the number of writes recorded so far.
func (v *FeedVersion) Load() uint64 {
	if v == nil {
		return 0
	}
	return v.n.Load()
}

// FeedService assembles viewer-scoped post views.
//
// A feed of N posts is built from a constant number of queries: the post list
// (authors preloaded), one grouped like count, one like and one favorite
// lookup for the viewer, and one comment query, each batched over the post ids.
// The comment fan-out dominates the cost of GetFeed.
type FeedService struct {
	postRepo       repository.PostRepository
	engagementRepo repository.EngagementRepository
	commentRepo    repository.CommentRepository
	userRepo       repository.UserRepository

	// builds collapses concurrent feed requests of the same viewer that
	// observed the same version.
	builds  singleflight.Group
	version *FeedVersion
}

func NewFeedService(
	postRepo repository.PostRepository,
	engagementRepo repository.EngagementRepository,
	commentRepo repository.CommentRepository,
	userRepo repository.UserRepository,
	version *FeedVersion,
) *FeedService {
	return &FeedService{
		postRepo:       postRepo,
		engagementRepo: engagementRepo,
		commentRepo:    commentRepo,
		userRepo:       userRepo,
		version:        version,
	}
}

// GetFeed returns every post newest first, each with its comment thread and
// the like/favorite flags of viewerID. Callers sharing a build receive the
// same slice and must not modify it.
//
// A caller only joins a build that started after the last write it could
// have observed, so a toggle that returned before GetFeed was called is
// always reflected.
func (s *FeedService) GetFeed(ctx context.Context, viewerID uint) ([]models.FeedItem, error) {
	key := fmt.Sprintf("feed:%d:%d", viewerID, s.version.Load())
	v, err, shared := s.builds.Do(key, func() (any, error) {
		// The build outlives the first caller's cancellation; repository
		// timeouts still bound every query.
		return s.buildFeed(context.WithoutCancel(ctx), viewerID)
	})
	if shared {
		observability.FeedSharedBuilds.WithLabelValues("global").Inc()
	}
	if err != nil {
		return nil, err
	}
	return v.([]models.FeedItem), nil
}

func (s *FeedService) buildFeed(ctx context.Context, viewerID uint) (items []models.FeedItem, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "FeedService", "GetFeed", attribute.Int("viewer.id", int(viewerID)))
	defer func() { observability.EndSpan(span, err) }()
	defer observability.TrackFeed("global")()

	posts, err := s.postRepo.ListRecent(ctx)
	if err != nil {
		return nil, err
	}

	views, err := s.assemble(ctx, viewerID, posts)
	if err != nil {
		return nil, err
	}

	threads, err := s.commentRepo.ListByPosts(ctx, postIDs(posts))
	if err != nil {
		return nil, err
	}

	items = make([]models.FeedItem, len(views))
	for i, view := range views {
		items[i] = models.FeedItem{
			PostView: view,
			Comments: toCommentViews(threads[view.ID]),
		}
	}
	span.SetAttributes(attribute.Int("feed.size", len(items)))
	return items, nil
}

// GetFeedByAuthor returns authorID's posts newest first, without comments.
func (s *FeedService) GetFeedByAuthor(ctx context.Context, viewerID, authorID uint) (views []models.PostView, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "FeedService", "GetFeedByAuthor",
		attribute.Int("viewer.id", int(viewerID)), attribute.Int("author.id", int(authorID)))
	defer func() { observability.EndSpan(span, err) }()
	defer observability.TrackFeed("author")()

	if _, err = s.userRepo.GetByID(ctx, authorID); err != nil {
		return nil, err
	}

	posts, err := s.postRepo.ListByAuthor(ctx, authorID)
	if err != nil {
		return nil, err
	}
	return s.assemble(ctx, viewerID, posts)
}

// ListEngaged returns the posts viewerID liked or favorited, without comments.
func (s *FeedService) ListEngaged(ctx context.Context, viewerID uint, kind models.EngagementKind) ([]models.PostView, error) {
	defer observability.TrackFeed(string(kind))()

	posts, err := s.postRepo.ListEngagedBy(ctx, kind, viewerID)
	if err != nil {
		return nil, err
	}
	return s.assemble(ctx, viewerID, posts)
}

// assemble decorates posts with live like counts and the viewer's flags,
// keeping the order of posts.
func (s *FeedService) assemble(ctx context.Context, viewerID uint, posts []*models.Post) ([]models.PostView, error) {
	views := make([]models.PostView, 0, len(posts))
	if len(posts) == 0 {
		return views, nil
	}

	ids := postIDs(posts)
	counts, err := s.engagementRepo.CountByPosts(ctx, models.EngagementLike, ids)
	if err != nil {
		return nil, err
	}
	liked, err := s.engagementRepo.EngagedPostIDs(ctx, models.EngagementLike, viewerID, ids)
	if err != nil {
		return nil, err
	}
	favorited, err := s.engagementRepo.EngagedPostIDs(ctx, models.EngagementFavorite, viewerID, ids)
	if err != nil {
		return nil, err
	}

	for _, p := range posts {
		views = append(views, models.PostView{
			ID:         p.ID,
			Content:    p.Content,
			ImageURL:   p.ImageURL,
			CreatedAt:  p.CreatedAt,
			Author:     models.AuthorOrDefault(p.UserID, p.User),
			LikesCount: counts[p.ID],
			HasLiked:   liked[p.ID],
			IsFavorite: favorited[p.ID],
		})
	}
	return views, nil
}

func postIDs(posts []*models.Post) []uint {
	ids := make([]uint, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	return ids
}

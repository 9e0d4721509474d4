package repository

import (
	"context"
	"time"

	"sphere/internal/cache"
	"sphere/internal/models"
	"sphere/internal/observability"

	"gorm.io/gorm"
)

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	Exists(ctx context.Context, id uint) (bool, error)
	ListRecent(ctx context.Context) ([]*models.Post, error)
	ListByAuthor(ctx context.Context, authorID uint) ([]*models.Post, error)
	ListEngagedBy(ctx context.Context, kind models.EngagementKind, userID uint) ([]*models.Post, error)
}

// postRepository implements PostRepository
type postRepository struct {
	base
}

// NewPostRepository creates a new post repository
func NewPostRepository(db *gorm.DB, timeout time.Duration) PostRepository {
	return &postRepository{base: newBase(db, timeout)}
}

// Create inserts post and bumps the author's posts_count in one transaction.
func (r *postRepository) Create(ctx context.Context, post *models.Post) error {
	defer observability.TrackQuery("create", "posts")()

	err := r.runTx(ctx, "posts.create", func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("id = ?", post.UserID).
			UpdateColumn("posts_count", gorm.Expr("posts_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrUserNotFound
		}
		return tx.Omit("User").Create(post).Error
	})
	if err != nil {
		return err
	}

	cache.InvalidateUsers(ctx, post.UserID)
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	err := r.run(ctx, "posts.get", func(db *gorm.DB) error {
		return notFoundAs(db.Preload("User").First(&post, id).Error, models.ErrPostNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) Exists(ctx context.Context, id uint) (bool, error) {
	var exists bool
	err := r.run(ctx, "posts.exists", func(db *gorm.DB) error {
		var err error
		exists, err = postExists(db, id)
		return err
	})
	return exists, err
}

func postExists(db *gorm.DB, id uint) (bool, error) {
	var count int64
	if err := db.Model(&models.Post{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListRecent returns every post, newest first, with authors preloaded.
// Ties on created_at are broken by id so the order is stable.
func (r *postRepository) ListRecent(ctx context.Context) ([]*models.Post, error) {
	defer observability.TrackQuery("list_recent", "posts")()

	var posts []*models.Post
	err := r.run(ctx, "posts.list_recent", func(db *gorm.DB) error {
		return db.Preload("User").Order("created_at DESC, id DESC").Find(&posts).Error
	})
	return posts, err
}

func (r *postRepository) ListByAuthor(ctx context.Context, authorID uint) ([]*models.Post, error) {
	var posts []*models.Post
	err := r.run(ctx, "posts.list_by_author", func(db *gorm.DB) error {
		return db.Preload("User").
			Where("user_id = ?", authorID).
			Order("created_at DESC, id DESC").
			Find(&posts).Error
	})
	return posts, err
}

// ListEngagedBy returns the posts userID liked or favorited, most recent engagement first.
func (r *postRepository) ListEngagedBy(ctx context.Context, kind models.EngagementKind, userID uint) ([]*models.Post, error) {
	table := kind.Table()
	var posts []*models.Post
	err := r.run(ctx, "posts.list_engaged", func(db *gorm.DB) error {
		return db.Select("posts.*").
			Preload("User").
			Joins("JOIN "+table+" e ON e.post_id = posts.id").
			Where("e.user_id = ?", userID).
			Order("e.created_at DESC, posts.id DESC").
			Find(&posts).Error
	})
	return posts, err
}

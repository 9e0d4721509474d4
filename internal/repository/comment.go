package repository

import (
	"context"
	"time"

	"sphere/internal/models"

	"gorm.io/gorm"
)

// CommentRepository defines interface for comment operations
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	ListByPost(ctx context.Context, postID uint) ([]*models.Comment, error)
	ListByPosts(ctx context.Context, postIDs []uint) (map[uint][]*models.Comment, error)
	ListByUser(ctx context.Context, userID uint) ([]*models.Comment, error)
}

type commentRepository struct {
	base
}

// NewCommentRepository creates a new CommentRepository
func NewCommentRepository(db *gorm.DB, timeout time.Duration) CommentRepository {
	return &commentRepository{base: newBase(db, timeout)}
}

// Create inserts comment after checking that its post exists.
func (r *commentRepository) Create(ctx context.Context, comment *models.Comment) error {
	return r.runTx(ctx, "comments.create", func(tx *gorm.DB) error {
		exists, err := postExists(tx, comment.PostID)
		if err != nil {
			return err
		}
		if !exists {
			return models.ErrPostNotFound
		}
		if err := tx.Omit("User", "Post").Create(comment).Error; err != nil {
			if isForeignKeyViolation(err) {
				return models.ErrPostNotFound
			}
			return err
		}
		return tx.Preload("User").First(comment, comment.ID).Error
	})
}

// ListByPost returns the comments of postID, newest first, with authors preloaded.
func (r *commentRepository) ListByPost(ctx context.Context, postID uint) ([]*models.Comment, error) {
	var comments []*models.Comment
	err := r.run(ctx, "comments.list_by_post", func(db *gorm.DB) error {
		return db.Preload("User").
			Where("post_id = ?", postID).
			Order("created_at DESC, id DESC").
			Find(&comments).Error
	})
	return comments, err
}

// ListByPosts loads the comment threads of many posts in batched queries.
// Each thread is ordered newest first.
func (r *commentRepository) ListByPosts(ctx context.Context, postIDs []uint) (map[uint][]*models.Comment, error) {
	threads := make(map[uint][]*models.Comment, len(postIDs))
	if len(postIDs) == 0 {
		return threads, nil
	}

	err := r.run(ctx, "comments.list_by_posts", func(db *gorm.DB) error {
		for _, ids := range chunk(postIDs) {
			var comments []*models.Comment
			if err := db.Preload("User").
				Where("post_id IN ?", ids).
				Order("created_at DESC, id DESC").
				Find(&comments).Error; err != nil {
				return err
			}
			for _, c := range comments {
				threads[c.PostID] = append(threads[c.PostID], c)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return threads, nil
}

// ListByUser returns every comment written by userID, newest first.
func (r *commentRepository) ListByUser(ctx context.Context, userID uint) ([]*models.Comment, error) {
	var comments []*models.Comment
	err := r.run(ctx, "comments.list_by_user", func(db *gorm.DB) error {
		return db.Preload("User").
			Where("user_id = ?", userID).
			Order("created_at DESC, id DESC").
			Find(&comments).Error
	})
	return comments, err
}

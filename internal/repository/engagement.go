package repository

import (
	"context"
	"fmt"
	"time"

	"sphere/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// toggleAttempts bounds how often a toggle re-reads the pair when a concurrent
// transaction removes the row between its insert attempt and its delete.
const toggleAttempts = 3

// EngagementRepository manages like and favorite edges.
type EngagementRepository interface {
	Toggle(ctx context.Context, kind models.EngagementKind, userID, postID uint) (models.ToggleResult, error)
	Count(ctx context.Context, kind models.EngagementKind, postID uint) (int64, error)
	CountByPosts(ctx context.Context, kind models.EngagementKind, postIDs []uint) (map[uint]int64, error)
	EngagedPostIDs(ctx context.Context, kind models.EngagementKind, userID uint, postIDs []uint) (map[uint]bool, error)
}

type engagementRepository struct {
	base
}

// NewEngagementRepository creates a new engagement repository
func NewEngagementRepository(db *gorm.DB, timeout time.Duration) EngagementRepository {
	return &engagementRepository{base: newBase(db, timeout)}
}

// Toggle flips the (userID, postID) edge in one transaction: it attempts an
// insert that does nothing on conflict, and deletes the existing row if the
// insert was a no-op. The primary key on the pair makes concurrent toggles
// serialize on the row, so the edge exists iff an odd number of toggles succeeded.
func (r *engagementRepository) Toggle(ctx context.Context, kind models.EngagementKind, userID, postID uint) (models.ToggleResult, error) {
	var result models.ToggleResult

	err := r.runTx(ctx, "engagement.toggle", func(tx *gorm.DB) error {
		exists, err := postExists(tx, postID)
		if err != nil {
			return err
		}
		if !exists {
			return models.ErrPostNotFound
		}

		for attempt := 0; attempt < toggleAttempts; attempt++ {
			inserted, err := insertEdge(tx, kind, userID, postID)
			if err != nil {
				if isForeignKeyViolation(err) {
					return models.ErrPostNotFound
				}
				return err
			}
			if inserted {
				result = models.ToggleAdded
				return nil
			}

			res := tx.Exec("DELETE FROM "+kind.Table()+" WHERE user_id = ? AND post_id = ?", userID, postID)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				result = models.ToggleRemoved
				return nil
			}
		}
		return fmt.Errorf("%s toggle did not settle after %d attempts", kind, toggleAttempts)
	})
	if err != nil {
		return 0, err
	}
	return result, nil
}

func insertEdge(tx *gorm.DB, kind models.EngagementKind, userID, postID uint) (bool, error) {
	now := time.Now()
	var res *gorm.DB
	switch kind {
	case models.EngagementFavorite:
		res = tx.Clauses(clause.OnConflict{DoNothing: true}).
			Omit("User", "Post").
			Create(&models.Favorite{UserID: userID, PostID: postID, CreatedAt: now})
	default:
		res = tx.Clauses(clause.OnConflict{DoNothing: true}).
			Omit("User", "Post").
			Create(&models.Like{UserID: userID, PostID: postID, CreatedAt: now})
	}
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Count returns the live number of edges for postID.
func (r *engagementRepository) Count(ctx context.Context, kind models.EngagementKind, postID uint) (int64, error) {
	var count int64
	err := r.run(ctx, "engagement.count", func(db *gorm.DB) error {
		return db.Table(kind.Table()).Where("post_id = ?", postID).Count(&count).Error
	})
	return count, err
}

type postCount struct {
	PostID uint
	Total  int64
}

// CountByPosts returns live edge counts for every post in postIDs; posts without edges are absent.
func (r *engagementRepository) CountByPosts(ctx context.Context, kind models.EngagementKind, postIDs []uint) (map[uint]int64, error) {
	counts := make(map[uint]int64, len(postIDs))
	if len(postIDs) == 0 {
		return counts, nil
	}

	err := r.run(ctx, "engagement.count_by_posts", func(db *gorm.DB) error {
		for _, ids := range chunk(postIDs) {
			var rows []postCount
			if err := db.Table(kind.Table()).
				Select("post_id, COUNT(*) AS total").
				Where("post_id IN ?", ids).
				Group("post_id").
				Scan(&rows).Error; err != nil {
				return err
			}
			for _, row := range rows {
				counts[row.PostID] = row.Total
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// EngagedPostIDs reports which of postIDs have an edge from userID.
func (r *engagementRepository) EngagedPostIDs(ctx context.Context, kind models.EngagementKind, userID uint, postIDs []uint) (map[uint]bool, error) {
	engaged := make(map[uint]bool)
	if userID == 0 || len(postIDs) == 0 {
		return engaged, nil
	}

	err := r.run(ctx, "engagement.engaged_post_ids", func(db *gorm.DB) error {
		for _, ids := range chunk(postIDs) {
			var hits []uint
			if err := db.Table(kind.Table()).
				Where("user_id = ? AND post_id IN ?", userID, ids).
				Pluck("post_id", &hits).Error; err != nil {
				return err
			}
			for _, id := range hits {
				engaged[id] = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return engaged, nil
}

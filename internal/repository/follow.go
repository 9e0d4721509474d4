package repository

import (
	"context"
	"time"

	"sphere/internal/cache"
	"sphere/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FollowRepository manages follow edges together with the cached follower counters.
type FollowRepository interface {
	Follow(ctx context.Context, followerID, followeeID uint) error
	Unfollow(ctx context.Context, followerID, followeeID uint) error
	Exists(ctx context.Context, followerID, followeeID uint) (bool, error)
}

type followRepository struct {
	base
}

// NewFollowRepository creates a new follow repository
func NewFollowRepository(db *gorm.DB, timeout time.Duration) FollowRepository {
	return &followRepository{base: newBase(db, timeout)}
}

// Follow inserts the edge and increments both counters in one transaction.
// It fails with ErrUserNotFound if the followee does not exist and with
// ErrAlreadyFollowing if the edge is already present; neither changes any row.
func (r *followRepository) Follow(ctx context.Context, followerID, followeeID uint) error {
	err := r.runTx(ctx, "follows.follow", func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("id = ?", followeeID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return models.ErrUserNotFound
		}

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Omit("Follower", "Followee").
			Create(&models.Follow{FollowerID: followerID, FolloweeID: followeeID, CreatedAt: time.Now()})
		if res.Error != nil {
			if isForeignKeyViolation(res.Error) {
				return models.ErrUserNotFound
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrAlreadyFollowing
		}

		return adjustFollowCounters(tx, followerID, followeeID, 1)
	})
	if err != nil {
		return err
	}

	cache.InvalidateUsers(ctx, followerID, followeeID)
	return nil
}

// Unfollow deletes the edge and decrements both counters in one transaction.
func (r *followRepository) Unfollow(ctx context.Context, followerID, followeeID uint) error {
	err := r.runTx(ctx, "follows.unfollow", func(tx *gorm.DB) error {
		res := tx.Where("follower_id = ? AND followee_id = ?", followerID, followeeID).Delete(&models.Follow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrNotFollowing
		}
		return adjustFollowCounters(tx, followerID, followeeID, -1)
	})
	if err != nil {
		return err
	}

	cache.InvalidateUsers(ctx, followerID, followeeID)
	return nil
}

// adjustFollowCounters applies delta to the follower's following_count and the
// followee's followers_count. Rows are updated in ascending id order so that
// opposite-direction follows between the same two users cannot deadlock.
func adjustFollowCounters(tx *gorm.DB, followerID, followeeID uint, delta int) error {
	type update struct {
		id     uint
		column string
	}
	updates := []update{{followerID, "following_count"}, {followeeID, "followers_count"}}
	if followeeID < followerID {
		updates[0], updates[1] = updates[1], updates[0]
	}

	for _, u := range updates {
		res := tx.Model(&models.User{}).
			Where("id = ?", u.id).
			UpdateColumn(u.column, gorm.Expr(u.column+" + ?", delta))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrUserNotFound
		}
	}
	return nil
}

func (r *followRepository) Exists(ctx context.Context, followerID, followeeID uint) (bool, error) {
	var count int64
	err := r.run(ctx, "follows.exists", func(db *gorm.DB) error {
		return db.Model(&models.Follow{}).
			Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
			Count(&count).Error
	})
	return count > 0, err
}

package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"sphere/internal/cache"
	"sphere/internal/models"

	"gorm.io/gorm"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	UpdateProfile(ctx context.Context, id uint, fields ProfileFields) (*models.User, error)
}

// ProfileFields lists the user-editable profile columns. Nil fields are left unchanged.
type ProfileFields struct {
	Username *string
	Bio      *string
	Avatar   *string
}

type userRepository struct {
	base
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB, timeout time.Duration) UserRepository {
	return &userRepository{base: newBase(db, timeout)}
}

// Create inserts user. The unique indexes on email and username are the
// authoritative duplicate guard; violations map to ErrDuplicateEmail/ErrDuplicateUsername.
func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	return r.run(ctx, "users.create", func(db *gorm.DB) error {
		return duplicateOr(db.Create(user).Error)
	})
}

// GetByID reads through the user cache. Cached rows carry no password hash.
func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := cache.Aside(ctx, cache.UserKey(id), &user, cache.UserTTL, func() error {
		return r.run(ctx, "users.get", func(db *gorm.DB) error {
			return notFoundAs(db.First(&user, id).Error, models.ErrUserNotFound)
		})
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.run(ctx, "users.get_by_email", func(db *gorm.DB) error {
		return notFoundAs(db.Where("email = ?", email).First(&user).Error, models.ErrUserNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.run(ctx, "users.exists_by_email", func(db *gorm.DB) error {
		return db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error
	})
	return count > 0, err
}

func (r *userRepository) UpdateProfile(ctx context.Context, id uint, fields ProfileFields) (*models.User, error) {
	updates := map[string]interface{}{}
	if fields.Username != nil {
		updates["username"] = *fields.Username
	}
	if fields.Bio != nil {
		updates["bio"] = *fields.Bio
	}
	if fields.Avatar != nil {
		updates["avatar"] = *fields.Avatar
	}

	var user models.User
	err := r.runTx(ctx, "users.update", func(tx *gorm.DB) error {
		if len(updates) > 0 {
			res := tx.Model(&models.User{}).Where("id = ?", id).Updates(updates)
			if res.Error != nil {
				return duplicateOr(res.Error)
			}
			if res.RowsAffected == 0 {
				return models.ErrUserNotFound
			}
		}
		return notFoundAs(tx.First(&user, id).Error, models.ErrUserNotFound)
	})
	if err != nil {
		return nil, err
	}

	cache.InvalidateUsers(ctx, id)
	return &user, nil
}

func duplicateOr(err error) error {
	if err == nil || !isUniqueViolation(err) {
		return err
	}
	if strings.Contains(strings.ToLower(uniqueColumn(err)), "email") {
		return models.ErrDuplicateEmail
	}
	return models.ErrDuplicateUsername
}

// notFoundAs replaces gorm.ErrRecordNotFound with target.
func notFoundAs(err, target error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return target
	}
	return err
}

// Package models contains data structures for the application's domain models.
package models

import "time"

// DefaultAvatar is assigned to newly registered users.
const DefaultAvatar = "profile-default.png"

// User represents a registered account.
// PostsCount, FollowersCount and FollowingCount are cached counters that are
// only ever changed in the same transaction as the rows they count.
type User struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Username       string    `gorm:"uniqueIndex;size:30;not null" json:"username"`
	Email          string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password       string    `gorm:"not null" json:"-"`
	Bio            string    `gorm:"type:text" json:"bio"`
	Avatar         string    `json:"avatar"`
	PostsCount     int       `gorm:"not null;default:0" json:"postsCount"`
	FollowersCount int       `gorm:"not null;default:0" json:"followersCount"`
	FollowingCount int       `gorm:"not null;default:0" json:"followingCount"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (User) TableName() string {
	return "users"
}

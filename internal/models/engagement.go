package models

import "time"

// Like marks that a user liked a post. The (user_id, post_id) pair is unique.
type Like struct {
	UserID    uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	PostID    uint      `gorm:"primaryKey;autoIncrement:false;index" json:"post_id"`
	User      *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Post      *Post     `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (Like) TableName() string {
	return "likes"
}

// Favorite marks that a user bookmarked a post. The (user_id, post_id) pair is unique.
type Favorite struct {
	UserID    uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	PostID    uint      `gorm:"primaryKey;autoIncrement:false;index" json:"post_id"`
	User      *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Post      *Post     `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (Favorite) TableName() string {
	return "favorites"
}

// EngagementKind selects which edge set a toggle operates on.
type EngagementKind string

const (
	// EngagementLike is the like edge set.
	EngagementLike EngagementKind = "like"
	// EngagementFavorite is the favorite edge set.
	EngagementFavorite EngagementKind = "favorite"
)

// Table returns the table backing the edge set.
func (k EngagementKind) Table() string {
	if k == EngagementFavorite {
		return "favorites"
	}
	return "likes"
}

// ToggleResult reports which way a toggle flipped the edge.
type ToggleResult int

const (
	// ToggleAdded means the edge did not exist and was inserted.
	ToggleAdded ToggleResult = iota + 1
	// ToggleRemoved means the edge existed and was deleted.
	ToggleRemoved
)

func (r ToggleResult) String() string {
	switch r {
	case ToggleAdded:
		return "added"
	case ToggleRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

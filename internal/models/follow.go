package models

import "time"

// Follow is a directed edge: FollowerID follows FolloweeID.
type Follow struct {
	FollowerID uint      `gorm:"primaryKey;autoIncrement:false" json:"follower_id"`
	FolloweeID uint      `gorm:"primaryKey;autoIncrement:false;index" json:"followee_id"`
	Follower   *User     `gorm:"foreignKey:FollowerID;constraint:OnDelete:CASCADE" json:"-"`
	Followee   *User     `gorm:"foreignKey:FolloweeID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (Follow) TableName() string {
	return "follows"
}

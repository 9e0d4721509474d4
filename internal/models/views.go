package models

import "time"

// Fallbacks used when a post or comment references an author row that cannot be loaded.
const (
	UnknownUsername = "Unknown User"
	UnknownAvatar   = "default-profile.png"
)

// Author is the public identity attached to posts and comments.
type Author struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// AuthorOrDefault returns the author identity for u, or the placeholder identity if u is nil.
func AuthorOrDefault(id uint, u *User) Author {
	if u == nil {
		return Author{ID: id, Username: UnknownUsername, Avatar: UnknownAvatar}
	}
	a := Author{ID: u.ID, Username: u.Username, Avatar: u.Avatar}
	if a.Username == "" {
		a.Username = UnknownUsername
	}
	if a.Avatar == "" {
		a.Avatar = UnknownAvatar
	}
	return a
}

// CommentView is a comment with its author's identity.
type CommentView struct {
	ID        uint      `json:"id"`
	PostID    uint      `json:"post_id"`
	Text      string    `json:"text"`
	Author    Author    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

// PostView is a post assembled for one viewer.
// HasLiked and IsFavorite describe that viewer only.
type PostView struct {
	ID         uint      `json:"id"`
	Content    string    `json:"content"`
	ImageURL   string    `json:"image_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Author     Author    `json:"author"`
	LikesCount int64     `json:"likesCount"`
	HasLiked   bool      `json:"hasLiked"`
	IsFavorite bool      `json:"isFavorite"`
}

// FeedItem is a PostView with its full comment thread, newest first.
type FeedItem struct {
	PostView
	Comments []CommentView `json:"comments"`
}

// PublicProfile is what other users see of an account.
type PublicProfile struct {
	ID             uint   `json:"id"`
	Username       string `json:"username"`
	Bio            string `json:"bio"`
	Avatar         string `json:"avatar"`
	PostsCount     int    `json:"postsCount"`
	FollowersCount int    `json:"followersCount"`
	FollowingCount int    `json:"followingCount"`
}

// ToPublic strips private fields from u.
func (u *User) ToPublic() PublicProfile {
	return PublicProfile{
		ID:             u.ID,
		Username:       u.Username,
		Bio:            u.Bio,
		Avatar:         u.Avatar,
		PostsCount:     u.PostsCount,
		FollowersCount: u.FollowersCount,
		FollowingCount: u.FollowingCount,
	}
}

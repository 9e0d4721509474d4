package client

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Author is the public identity attached to posts and comments.
type Author struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// Comment is one comment with its author.
type Comment struct {
	ID        uint      `json:"id"`
	PostID    uint      `json:"post_id"`
	Text      string    `json:"text"`
	Author    Author    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

// Post is a post as seen by the logged-in user.
type Post struct {
	ID         uint      `json:"id"`
	Content    string    `json:"content"`
	ImageURL   string    `json:"image_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Author     Author    `json:"author"`
	LikesCount int64     `json:"likesCount"`
	HasLiked   bool      `json:"hasLiked"`
	IsFavorite bool      `json:"isFavorite"`
	Comments   []Comment `json:"comments,omitempty"`
}

// Toggle is the result of liking or favoriting.
type Toggle struct {
	Message string `json:"message"`
	Added   bool   `json:"added"`
	Count   int64  `json:"count"`
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, username, email, password string) error {
	body, err := encode(map[string]string{"username": username, "email": email, "password": password})
	if err != nil {
		return err
	}
	return c.send(ctx, http.MethodPost, "/auth/register", body, "", nil)
}

// Login authenticates and stores the returned session token.
func (c *Client) Login(ctx context.Context, email, password string) error {
	body, err := encode(map[string]string{"email": email, "password": password})
	if err != nil {
		return err
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.send(ctx, http.MethodPost, "/auth/login", body, "", &resp); err != nil {
		return err
	}
	c.SetToken(resp.Token)
	return nil
}

// Logout revokes the session server-side and forgets it locally.
func (c *Client) Logout(ctx context.Context) error {
	err := c.Do(ctx, http.MethodPost, "/auth/logout", nil, nil)
	c.SetToken("")
	return err
}

// Feed returns every post, newest first, with comments.
func (c *Client) Feed(ctx context.Context) ([]Post, error) {
	var posts []Post
	err := c.Do(ctx, http.MethodGet, "/posts", nil, &posts)
	return posts, err
}

// CreatePost publishes a post.
func (c *Client) CreatePost(ctx context.Context, content, imageURL string) (*Post, error) {
	var resp struct {
		Post Post `json:"post"`
	}
	in := map[string]string{"content": content, "image_url": imageURL}
	if err := c.Do(ctx, http.MethodPost, "/posts", in, &resp); err != nil {
		return nil, err
	}
	return &resp.Post, nil
}

// ToggleLike flips the like on postID.
func (c *Client) ToggleLike(ctx context.Context, postID uint) (*Toggle, error) {
	return c.toggle(ctx, fmt.Sprintf("/posts/%d/like", postID))
}

// ToggleFavorite flips the favorite on postID.
func (c *Client) ToggleFavorite(ctx context.Context, postID uint) (*Toggle, error) {
	return c.toggle(ctx, fmt.Sprintf("/posts/%d/favorite", postID))
}

func (c *Client) toggle(ctx context.Context, path string) (*Toggle, error) {
	var t Toggle
	if err := c.Do(ctx, http.MethodPost, path, nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// AddComment comments on postID.
func (c *Client) AddComment(ctx context.Context, postID uint, text string) (*Comment, error) {
	var resp struct {
		Comment Comment `json:"comment"`
	}
	if err := c.Do(ctx, http.MethodPost, fmt.Sprintf("/posts/%d/comment", postID),
		map[string]string{"text": text}, &resp); err != nil {
		return nil, err
	}
	return &resp.Comment, nil
}

// Follow starts following userID.
func (c *Client) Follow(ctx context.Context, userID uint) error {
	return c.Do(ctx, http.MethodPost, "/user/follow", map[string]uint{"userId": userID}, nil)
}

// Unfollow stops following userID.
func (c *Client) Unfollow(ctx context.Context, userID uint) error {
	return c.Do(ctx, http.MethodPost, "/user/unfollow", map[string]uint{"userId": userID}, nil)
}

// IsFollowing reports whether the logged-in user follows userID.
func (c *Client) IsFollowing(ctx context.Context, userID uint) (bool, error) {
	var resp struct {
		IsFollowing bool `json:"isFollowing"`
	}
	err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/user/%d/isFollowing", userID), nil, &resp)
	return resp.IsFollowing, err
}

package models

import "time"

// Claims is the verified content of a session token.
type Claims struct {
	UserID    uint      `json:"id"`
	Email     string    `json:"email"`
	TokenID   string    `json:"jti"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

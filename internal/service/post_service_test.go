package service

import (
	"context"
	"strings"
	"testing"

	"sphere/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostService_CreatePost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	view, err := f.posts.CreatePost(ctx, CreatePostInput{UserID: alice.ID, Content: "  hello  "})
	require.NoError(t, err)
	assert.Equal(t, "hello", view.Content)
	assert.Equal(t, "alice", view.Author.Username)
	assert.Zero(t, view.LikesCount)
	assert.Equal(t, 1, f.reload(t, alice.ID).PostsCount)

	tests := []struct {
		name string
		in   CreatePostInput
	}{
		{"empty", CreatePostInput{UserID: alice.ID, Content: " \n "}},
		{"too long", CreatePostInput{UserID: alice.ID, Content: strings.Repeat("x", maxPostLen+1)}},
		{"bad image url", CreatePostInput{UserID: alice.ID, Content: "x", ImageURL: "javascript:alert(1)"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.posts.CreatePost(ctx, tt.in)
			assertCode(t, err, models.CodeValidation)
		})
	}
	assert.Equal(t, 1, f.reload(t, alice.ID).PostsCount)
}

package repository

import (
	"context"
	"testing"
	"time"

	"sphere/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostRepository_CreateBumpsPostsCount(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepository(db, time.Second)
	ctx := context.Background()

	alice := createUser(t, db, "alice")
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, &models.Post{UserID: alice.ID, Content: "hello"}))
	}

	assert.Equal(t, 3, reloadUser(t, db, alice.ID).PostsCount)

	err := repo.Create(ctx, &models.Post{UserID: 999, Content: "ghost"})
	assert.ErrorIs(t, err, models.ErrUserNotFound)

	var total int64
	require.NoError(t, db.Model(&models.Post{}).Count(&total).Error)
	assert.EqualValues(t, 3, total)
}

func TestPostRepository_ListOrdering(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepository(db, time.Second)
	ctx := context.Background()

	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, author := range []*models.User{alice, bob, alice} {
		p := &models.Post{UserID: author.ID, Content: "p", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, repo.Create(ctx, p))
	}

	recent, err := repo.ListRecent(ctx)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	for i := 1; i < len(recent); i++ {
		assert.False(t, recent[i].CreatedAt.After(recent[i-1].CreatedAt))
	}
	require.NotNil(t, recent[0].User)
	assert.Equal(t, "alice", recent[0].User.Username)

	mine, err := repo.ListByAuthor(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.True(t, mine[0].CreatedAt.After(mine[1].CreatedAt))

	none, err := repo.ListByAuthor(ctx, 999)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPostRepository_GetAndExists(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPostRepository(db, time.Second)
	ctx := context.Background()

	p := createPost(t, db, createUser(t, db, "alice"), "hi")

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Content)

	_, err = repo.GetByID(ctx, 404)
	assert.ErrorIs(t, err, models.ErrPostNotFound)

	ok, err := repo.Exists(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.Exists(ctx, 404)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPostRepository_ListEngagedBy(t *testing.T) {
	db := setupTestDB(t)
	posts := NewPostRepository(db, time.Second)
	engagement := NewEngagementRepository(db, time.Second)
	ctx := context.Background()

	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	p1 := createPost(t, db, alice, "one")
	p2 := createPost(t, db, alice, "two")
	createPost(t, db, alice, "three")

	_, err := engagement.Toggle(ctx, models.EngagementLike, bob.ID, p1.ID)
	require.NoError(t, err)
	_, err = engagement.Toggle(ctx, models.EngagementLike, bob.ID, p2.ID)
	require.NoError(t, err)
	_, err = engagement.Toggle(ctx, models.EngagementFavorite, bob.ID, p2.ID)
	require.NoError(t, err)

	liked, err := posts.ListEngagedBy(ctx, models.EngagementLike, bob.ID)
	require.NoError(t, err)
	assert.Len(t, liked, 2)

	favorited, err := posts.ListEngagedBy(ctx, models.EngagementFavorite, bob.ID)
	require.NoError(t, err)
	require.Len(t, favorited, 1)
	assert.Equal(t, p2.ID, favorited[0].ID)
	require.NotNil(t, favorited[0].User)
	assert.Equal(t, "alice", favorited[0].User.Username)
}

package service

import (
	"context"
	"testing"

	"sphere/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphService_FollowScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u1 := f.register(t, "alice")
	u2 := f.register(t, "bob")

	require.NoError(t, f.graph.Follow(ctx, u1.ID, u2.ID))
	assert.Equal(t, 1, f.reload(t, u2.ID).FollowersCount)
	assert.Equal(t, 1, f.reload(t, u1.ID).FollowingCount)

	following, err := f.graph.IsFollowing(ctx, u1.ID, u2.ID)
	require.NoError(t, err)
	assert.True(t, following)

	err = f.graph.Follow(ctx, u1.ID, u2.ID)
	assert.ErrorIs(t, err, models.ErrAlreadyFollowing)
	assert.Equal(t, 1, f.reload(t, u2.ID).FollowersCount)
	assert.Equal(t, 1, f.reload(t, u1.ID).FollowingCount)
}

func TestGraphService_CounterConservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.register(t, "alice")
	b := f.register(t, "bob")

	beforeA, beforeB := f.reload(t, a.ID), f.reload(t, b.ID)

	steps := []struct {
		follow bool
		want   error
	}{
		{true, nil},
		{true, models.ErrAlreadyFollowing},
		{false, nil},
		{false, models.ErrNotFollowing},
		{true, nil},
		{false, nil},
	}
	for i, step := range steps {
		var err error
		if step.follow {
			err = f.graph.Follow(ctx, a.ID, b.ID)
		} else {
			err = f.graph.Unfollow(ctx, a.ID, b.ID)
		}
		if step.want == nil {
			require.NoError(t, err, "step %d", i)
		} else {
			require.ErrorIs(t, err, step.want, "step %d", i)
		}
	}

	assert.Equal(t, beforeA.FollowingCount, f.reload(t, a.ID).FollowingCount)
	assert.Equal(t, beforeB.FollowersCount, f.reload(t, b.ID).FollowersCount)
}

func TestGraphService_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	assert.ErrorIs(t, f.graph.Follow(ctx, alice.ID, alice.ID), models.ErrSelfFollow)
	assert.ErrorIs(t, f.graph.Unfollow(ctx, alice.ID, alice.ID), models.ErrSelfFollow)
	assert.ErrorIs(t, f.graph.Follow(ctx, alice.ID, 404), models.ErrUserNotFound)

	_, err := f.graph.IsFollowing(ctx, alice.ID, 404)
	assert.ErrorIs(t, err, models.ErrUserNotFound)

	self, err := f.graph.IsFollowing(ctx, alice.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, self)
}

package repository

import (
	"context"
	"testing"

	"kindred/internal/models"
	"kindred/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwipeRepository(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewSwipeRepository(db)
	ctx := context.Background()

	alice := testutil.CreateUser(t, db, "Alice")
	bob := testutil.CreateUser(t, db, "Bob")
	carol := testutil.CreateUser(t, db, "Carol")

	t.Run("Create and duplicate", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, &models.Swipe{SwiperID: alice.ID, SwipedID: bob.ID, Direction: models.SwipeLike}))

		err := repo.Create(ctx, &models.Swipe{SwiperID: alice.ID, SwipedID: bob.ID, Direction: models.SwipePass})
		assert.ErrorIs(t, err, models.ErrDuplicateSwipe)
	})

	t.Run("Exists is directional", func(t *testing.T) {
		ok, err := repo.Exists(ctx, alice.ID, bob.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.Exists(ctx, bob.ID, alice.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("HasLiked ignores passes", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, &models.Swipe{SwiperID: carol.ID, SwipedID: alice.ID, Direction: models.SwipePass}))

		liked, err := repo.HasLiked(ctx, carol.ID, alice.ID)
		require.NoError(t, err)
		assert.False(t, liked)

		liked, err = repo.HasLiked(ctx, alice.ID, bob.ID)
		require.NoError(t, err)
		assert.True(t, liked)
	})

	t.Run("DeleteBetween removes both directions", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, &models.Swipe{SwiperID: bob.ID, SwipedID: alice.ID, Direction: models.SwipeLike}))
		require.NoError(t, repo.DeleteBetween(db, bob.ID, alice.ID))

		var count int64
		db.Model(&models.Swipe{}).
			Where("(swiper_id = ? AND swiped_id = ?) OR (swiper_id = ? AND swiped_id = ?)", alice.ID, bob.ID, bob.ID, alice.ID).
			Count(&count)
		assert.Zero(t, count)

		ok, err := repo.Exists(ctx, carol.ID, alice.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("DeleteBySwiper", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, &models.Swipe{SwiperID: carol.ID, SwipedID: bob.ID, Direction: models.SwipeLike}))

		n, err := repo.DeleteBySwiper(ctx, carol.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		n, err = repo.DeleteBySwiper(ctx, carol.ID)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

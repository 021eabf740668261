package seed

import (
	"context"
	"testing"
	"time"

	"kindred/internal/models"
	"kindred/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildUser_AdultNearCity(t *testing.T) {
	city := City{Name: "Leeds", Latitude: 53.8008, Longitude: -1.5491}
	f := NewFactory(nil, 7, []City{city})
	now := time.Now().UTC()

	for i := 0; i < 50; i++ {
		u := f.BuildUser()
		assert.GreaterOrEqual(t, u.Age(now), 18)
		assert.Contains(t, genders, u.Gender)
		require.True(t, u.HasLocation())
		assert.InDelta(t, city.Latitude, *u.Latitude, 0.25)
		assert.InDelta(t, city.Longitude, *u.Longitude, 0.25)
		assert.NotEmpty(t, u.DisplayName)
	}
}

func TestBuildUser_RepeatableWithSeed(t *testing.T) {
	a := NewFactory(nil, 42, nil).BuildUser()
	b := NewFactory(nil, 42, nil).BuildUser()
	assert.Equal(t, a.DisplayName, b.DisplayName)
	assert.Equal(t, a.Phone, b.Phone)
	assert.Equal(t, *a.Latitude, *b.Latitude)
}

func TestPick(t *testing.T) {
	f := NewFactory(nil, 1, nil)
	got := f.Pick(10, 4, 3)
	assert.Len(t, got, 4)
	assert.NotContains(t, got, 3)

	seen := map[int]bool{}
	for _, i := range got {
		assert.False(t, seen[i])
		seen[i] = true
	}
	assert.Len(t, f.Pick(3, 10, 0), 2)
}

func TestSeed_MatchesFollowMutualLikes(t *testing.T) {
	db := testutil.NewSQLiteDB(t)

	res, err := Seed(context.Background(), db, Options{
		Users:         12,
		SwipesPerUser: 8,
		LikePercent:   80,
		RandomSeed:    99,
	})
	require.NoError(t, err)
	assert.Len(t, res.Users, 12)
	assert.Equal(t, 12*8, res.Swipes)

	var swipes int64
	require.NoError(t, db.Model(&models.Swipe{}).Count(&swipes).Error)
	assert.EqualValues(t, res.Swipes, swipes)

	var matches []models.Match
	require.NoError(t, db.Preload("Room").Find(&matches).Error)
	assert.Len(t, matches, res.Matches)
	for _, m := range matches {
		assert.Less(t, m.User1ID, m.User2ID)
		require.NotNil(t, m.Room)

		var likes int64
		require.NoError(t, db.Model(&models.Swipe{}).
			Where("direction = ? AND ((swiper_id = ? AND swiped_id = ?) OR (swiper_id = ? AND swiped_id = ?))",
				models.SwipeLike, m.User1ID, m.User2ID, m.User2ID, m.User1ID).
			Count(&likes).Error)
		assert.EqualValues(t, 2, likes)
	}
}

func TestClearData(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	a := testutil.CreateUser(t, db, "Ana")
	b := testutil.CreateUser(t, db, "Bea")
	testutil.CreateMatch(t, db, a.ID, b.ID)

	require.NoError(t, clearData(db))

	var users, matches int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	require.NoError(t, db.Model(&models.Match{}).Count(&matches).Error)
	assert.Zero(t, users)
	assert.Zero(t, matches)
}

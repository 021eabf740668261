package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedProfile struct {
	Name string `json:"name"`
}

func TestAside_FetchesOnceThenServesFromRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer SetClient(nil)

	ctx := context.Background()
	calls := 0
	fetch := func(dest *cachedProfile) func() error {
		return func() error {
			calls++
			dest.Name = "Ada"
			return nil
		}
	}

	var first cachedProfile
	require.NoError(t, Aside(ctx, ProfileKey(1), &first, ProfileTTL, fetch(&first)))
	var second cachedProfile
	require.NoError(t, Aside(ctx, ProfileKey(1), &second, ProfileTTL, fetch(&second)))

	assert.Equal(t, 1, calls)
	assert.Equal(t, "Ada", second.Name)
	assert.Equal(t, ProfileTTL, mr.TTL(ProfileKey(1)))

	Invalidate(ctx, ProfileKey(1))
	assert.False(t, mr.Exists(ProfileKey(1)))
}

func TestAside_WithoutRedisAlwaysFetches(t *testing.T) {
	SetClient(nil)
	var dest cachedProfile
	err := Aside(context.Background(), ProfileKey(2), &dest, time.Minute, func() error {
		return errors.New("db down")
	})
	assert.EqualError(t, err, "db down")
}

func TestInvalidateMatchLists(t *testing.T) {
	mr := miniredis.RunT(t)
	SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer SetClient(nil)

	require.NoError(t, mr.Set(MatchListKey(1), "[]"))
	require.NoError(t, mr.Set(MatchListKey(2), "[]"))

	InvalidateMatchLists(context.Background(), 1, 2)
	assert.False(t, mr.Exists(MatchListKey(1)))
	assert.False(t, mr.Exists(MatchListKey(2)))
}

package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	ProfileKeyPrefix = "profile:%d"
	MatchListPrefix  = "matches:user:%d"
)

const (
	ProfileTTL   = 5 * time.Minute
	MatchListTTL = time.Minute
)

func ProfileKey(userID uint) string {
	return fmt.Sprintf(ProfileKeyPrefix, userID)
}

func MatchListKey(userID uint) string {
	return fmt.Sprintf(MatchListPrefix, userID)
}

func Invalidate(ctx context.Context, keys ...string) {
	if client != nil && len(keys) > 0 {
		client.Del(ctx, keys...)
	}
}

// InvalidateMatchLists drops the cached match lists of both participants.
func InvalidateMatchLists(ctx context.Context, userIDs ...uint) {
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, MatchListKey(id))
	}
	Invalidate(ctx, keys...)
}

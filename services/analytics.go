package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Analytics tracks lightweight per-content counters in Redis. Counters are
// best effort; losing one is acceptable, blocking a request is not.
type Analytics struct {
	rdb   *redis.Client
	orgID uuid.UUID
}

func (s *Analytics) viewKey(contentID uuid.UUID) string {
	return fmt.Sprintf("analytics:%s:content:%s:views", s.orgID, contentID)
}

// TrackView increments the view counter for a content item.
func (s *Analytics) TrackView(ctx context.Context, contentID uuid.UUID) error {
	return s.rdb.Incr(ctx, s.viewKey(contentID)).Err()
}

// Views returns the view counter for a content item.
func (s *Analytics) Views(ctx context.Context, contentID uuid.UUID) (int64, error) {
	n, err := s.rdb.Get(ctx, s.viewKey(contentID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

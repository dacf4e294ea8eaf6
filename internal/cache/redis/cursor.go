package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// CursorStore persists stream read positions so consumers resume where
// they stopped.
type CursorStore struct {
	rdb *redis.Client
}

// NewCursorStore creates a CursorStore.
func NewCursorStore(c *Client) *CursorStore {
	return &CursorStore{rdb: c.Underlying()}
}

func cursorKey(name string) string { return "cursor:" + name }

// Get returns the saved position for name, or "0" when none is saved.
func (cs *CursorStore) Get(ctx context.Context, name string) (string, error) {
	id, err := cs.rdb.Get(ctx, cursorKey(name)).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis: get cursor %s: %w", name, err)
	}
	return id, nil
}

// Set saves the position for name.
func (cs *CursorStore) Set(ctx context.Context, name, id string) error {
	if err := cs.rdb.Set(ctx, cursorKey(name), id, 0).Err(); err != nil {
		return fmt.Errorf("redis: set cursor %s: %w", name, err)
	}
	return nil
}

package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"gighop/internal/domain"
)

// cache keys
const (
	keyAllObjects    = "objects:all"
	keyUsersByPoints = "users:by_points"
)

// List caches are versioned: the stored key is "<base>:<generation>" and an
// invalidation moves the generation instead of deleting the list. A reader
// that loaded the store before a write then saves under a generation nobody
// reads any more.
const (
	genObjects = "objects:gen"
	genUsers   = "users:gen"
	genTTLSec  = 7 * 24 * 60 * 60
)

// listKey resolves base to its current versioned key. A missing generation is
// created before the caller reads the store, so a later bump always wins.
func listKey(ctx context.Context, c domain.Cache, gen, base string) string {
	var g string
	if ok, _ := c.Get(ctx, gen, &g); !ok || g == "" {
		g = uuid.NewString()
		_ = c.Set(ctx, gen, g, genTTLSec)
	}
	return base + ":" + g
}

func bumpGeneration(ctx context.Context, c domain.Cache, gen string) {
	_ = c.Set(ctx, gen, uuid.NewString(), genTTLSec)
}

func keyObject(id string) string { return fmt.Sprintf("object:%s", id) }
func keyUser(id string) string   { return fmt.Sprintf("user:%s", id) }

type noCache struct{}

func (noCache) Get(context.Context, string, any) (bool, error) { return false, nil }
func (noCache) Set(context.Context, string, any, int) error    { return nil }
func (noCache) Del(context.Context, string) error              { return nil }

func orNoCache(c domain.Cache) domain.Cache {
	if c == nil {
		return noCache{}
	}
	return c
}

// an object change shows up in the object view and the full listing
func invalidateObject(ctx context.Context, c domain.Cache, id string) {
	_ = c.Del(ctx, keyObject(id))
	bumpGeneration(ctx, c, genObjects)
}

// a user change shows up in the profile and the leaderboard
func invalidateUser(ctx context.Context, c domain.Cache, id string) {
	if id != "" {
		_ = c.Del(ctx, keyUser(id))
	}
	bumpGeneration(ctx, c, genUsers)
}

package cache

import (
	"context"
	"testing"
	"time"

	"backoffice/internal/policy"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache[string, int]()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, 0)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)

	v, ok = c.Get("b")
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	c.Clear()
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestMemoryActorCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryActorCache(time.Minute)
	actor := policy.NewActor(uuid.New(), []policy.RoleRef{{Name: policy.RoleAdmin, Level: 90}}, []string{"invoice.view"})

	_, ok := c.Get(ctx, actor.UserID)
	assert.False(t, ok)

	c.Set(ctx, actor, c.Stamp(ctx, actor.UserID))
	got, ok := c.Get(ctx, actor.UserID)
	assert.True(t, ok)
	assert.True(t, got.HasPermission("invoice.view"))

	c.Invalidate(ctx, actor.UserID)
	_, ok = c.Get(ctx, actor.UserID)
	assert.False(t, ok)

	c.Set(ctx, actor, c.Stamp(ctx, actor.UserID))
	c.Clear(ctx)
	_, ok = c.Get(ctx, actor.UserID)
	assert.False(t, ok)
}

func TestMemoryActorCacheDropsStaleWrites(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryActorCache(time.Minute)
	actor := policy.NewActor(uuid.New(), []policy.RoleRef{{Name: policy.RoleManager, Level: 80}}, []string{"invoice.edit"})
	other := policy.NewActor(uuid.New(), nil, nil)

	stamp := c.Stamp(ctx, actor.UserID)
	c.Invalidate(ctx, actor.UserID)
	c.Set(ctx, actor, stamp)
	_, ok := c.Get(ctx, actor.UserID)
	assert.False(t, ok, "write loaded before Invalidate is dropped")

	stamp = c.Stamp(ctx, actor.UserID)
	otherStamp := c.Stamp(ctx, other.UserID)
	c.Clear(ctx)
	c.Set(ctx, actor, stamp)
	c.Set(ctx, other, otherStamp)
	_, ok = c.Get(ctx, actor.UserID)
	assert.False(t, ok, "write loaded before Clear is dropped")
	_, ok = c.Get(ctx, other.UserID)
	assert.False(t, ok)

	stamp = c.Stamp(ctx, actor.UserID)
	c.Invalidate(ctx, other.UserID)
	c.Set(ctx, actor, stamp)
	_, ok = c.Get(ctx, actor.UserID)
	assert.True(t, ok, "invalidating another user leaves the stamp valid")
}

func TestActorKeyIncludesGeneration(t *testing.T) {
	id := uuid.MustParse("3f9b8f0e-3d1c-4a43-9d0c-1d4c2c0f0a11")
	assert.Equal(t, "backoffice:actor:0:3f9b8f0e-3d1c-4a43-9d0c-1d4c2c0f0a11", actorKey(0, id))
	assert.NotEqual(t, actorKey(0, id), actorKey(1, id))
	assert.Equal(t, "backoffice:actor:ver:3f9b8f0e-3d1c-4a43-9d0c-1d4c2c0f0a11", versionKey(id))
}

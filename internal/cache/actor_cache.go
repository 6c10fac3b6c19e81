package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"backoffice/internal/logger"
	"backoffice/internal/policy"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Stamp is the cache state observed before an actor is loaded from the database.
type Stamp struct {
	Generation int64
	Version    int64
}

// ActorCache keeps resolved actors (roles and permissions) between requests.
// Callers take a Stamp before loading an actor and hand it to Set, which drops
// the actor when Clear or Invalidate ran in between.
type ActorCache interface {
	Get(ctx context.Context, userID uuid.UUID) (policy.Actor, bool)
	Stamp(ctx context.Context, userID uuid.UUID) Stamp
	Set(ctx context.Context, actor policy.Actor, stamp Stamp)
	Invalidate(ctx context.Context, userID uuid.UUID)
	Clear(ctx context.Context)
}

type memoryActorCache struct {
	mu       sync.Mutex
	items    *TTLCache[uuid.UUID, policy.Actor]
	ttl      time.Duration
	gen      int64
	versions map[uuid.UUID]int64
}

func NewMemoryActorCache(ttl time.Duration) ActorCache {
	return &memoryActorCache{
		items:    NewTTLCache[uuid.UUID, policy.Actor](),
		ttl:      ttl,
		versions: make(map[uuid.UUID]int64),
	}
}

func (c *memoryActorCache) Get(_ context.Context, userID uuid.UUID) (policy.Actor, bool) {
	return c.items.Get(userID)
}

func (c *memoryActorCache) Stamp(_ context.Context, userID uuid.UUID) Stamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stamp{Generation: c.gen, Version: c.versions[userID]}
}

func (c *memoryActorCache) Set(_ context.Context, actor policy.Actor, stamp Stamp) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if stamp.Generation != c.gen || stamp.Version != c.versions[actor.UserID] {
		return
	}
	c.items.Set(actor.UserID, actor, c.ttl)
}

func (c *memoryActorCache) Invalidate(_ context.Context, userID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[userID]++
	c.items.Delete(userID)
}

func (c *memoryActorCache) Clear(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.versions = make(map[uuid.UUID]int64)
	c.items.Clear()
}

const (
	redisPrefix = "backoffice:actor"
	genKey      = redisPrefix + ":gen"
)

// redisActorCache namespaces keys with a generation counter so Clear is a single INCR.
// Invalidate bumps a per-user version; Set only writes while both still match the stamp.
// Redis failures degrade to cache misses.
type redisActorCache struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

func NewRedisActorCache(client *redis.Client, ttl time.Duration) ActorCache {
	return &redisActorCache{client: client, ttl: ttl, log: logger.WithComponent("actor-cache")}
}

// ConnectRedis parses the URL and pings the server.
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

var errStaleStamp = errors.New("actor cache changed since stamp")

func (c *redisActorCache) generation(ctx context.Context) int64 {
	gen, err := c.client.Get(ctx, genKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.log.Warn().Err(err).Msg("read cache generation")
	}
	return gen
}

func versionKey(userID uuid.UUID) string {
	return fmt.Sprintf("%s:ver:%s", redisPrefix, userID)
}

func counter(v interface{}) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func (c *redisActorCache) Stamp(ctx context.Context, userID uuid.UUID) Stamp {
	vals, err := c.client.MGet(ctx, genKey, versionKey(userID)).Result()
	if err != nil || len(vals) != 2 {
		c.log.Warn().Err(err).Msg("read cache stamp")
		// -1 never matches a stored counter, so the following Set is skipped.
		return Stamp{Generation: -1, Version: -1}
	}
	return Stamp{Generation: counter(vals[0]), Version: counter(vals[1])}
}

func (c *redisActorCache) key(ctx context.Context, userID uuid.UUID) string {
	return actorKey(c.generation(ctx), userID)
}

func actorKey(gen int64, userID uuid.UUID) string {
	return fmt.Sprintf("%s:%d:%s", redisPrefix, gen, userID)
}

func (c *redisActorCache) Get(ctx context.Context, userID uuid.UUID) (policy.Actor, bool) {
	raw, err := c.client.Get(ctx, c.key(ctx, userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn().Err(err).Msg("read cached actor")
		}
		return policy.Actor{}, false
	}
	var actor policy.Actor
	if err := json.Unmarshal(raw, &actor); err != nil {
		return policy.Actor{}, false
	}
	return actor, true
}

func (c *redisActorCache) Set(ctx context.Context, actor policy.Actor, stamp Stamp) {
	raw, err := json.Marshal(actor)
	if err != nil {
		return
	}
	verKey := versionKey(actor.UserID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		vals, err := tx.MGet(ctx, genKey, verKey).Result()
		if err != nil {
			return err
		}
		if counter(vals[0]) != stamp.Generation || counter(vals[1]) != stamp.Version {
			return errStaleStamp
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, actorKey(stamp.Generation, actor.UserID), raw, c.ttl)
			return nil
		})
		return err
	}, genKey, verKey)
	if err != nil && !errors.Is(err, errStaleStamp) && !errors.Is(err, redis.TxFailedErr) {
		c.log.Warn().Err(err).Msg("store cached actor")
	}
}

func (c *redisActorCache) Invalidate(ctx context.Context, userID uuid.UUID) {
	key := c.key(ctx, userID)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKey(userID))
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("invalidate cached actor")
	}
}

func (c *redisActorCache) Clear(ctx context.Context) {
	if err := c.client.Incr(ctx, genKey).Err(); err != nil {
		c.log.Warn().Err(err).Msg("bump cache generation")
	}
}

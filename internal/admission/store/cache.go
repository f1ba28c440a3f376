package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"admission-workers/internal/common/logger"
	"admission-workers/internal/models"

	"github.com/redis/go-redis/v9"
)

const draftKeyPrefix = "admission:draft:"

// Each key is a hash. A live entry carries the snapshot in "data" and its UpdatedAt (unix
// micros) in "ver". An evicted entry carries only "tomb" until the ttl runs out.
const (
	fieldData = "data"
	fieldVer  = "ver"
	fieldTomb = "tomb"
)

// setSnapshot refuses to write over a tombstone or a newer snapshot.
var setSnapshot = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], 'tomb') == 1 then
	return 0
end
local cur = redis.call('HGET', KEYS[1], 'ver')
if cur and tonumber(cur) > tonumber(ARGV[2]) then
	return 0
end
redis.call('HSET', KEYS[1], 'data', ARGV[1], 'ver', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// DraftCache is a read-through cache of draft snapshots. Postgres stays the source of truth;
// every cache failure degrades to a miss.
type DraftCache struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

// NewDraftCache returns nil when ttl is not positive, which disables caching.
func NewDraftCache(client *redis.Client, ttl time.Duration, log logger.Logger) *DraftCache {
	if client == nil || ttl <= 0 {
		return nil
	}
	return &DraftCache{client: client, ttl: ttl, logger: log}
}

func draftKey(applicationID string) string {
	return draftKeyPrefix + applicationID
}

func (c *DraftCache) Get(ctx context.Context, applicationID string) (*models.ApplicationDraft, bool) {
	if c == nil {
		return nil, false
	}
	val, err := c.client.HGet(ctx, draftKey(applicationID), fieldData).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("draft cache read failed", map[string]interface{}{
				"applicationId": applicationID,
				"error":         err.Error(),
			})
		}
		return nil, false
	}

	var draft models.ApplicationDraft
	if err := json.Unmarshal([]byte(val), &draft); err != nil {
		c.logger.Warn("draft cache entry corrupt", map[string]interface{}{
			"applicationId": applicationID,
			"error":         err.Error(),
		})
		return nil, false
	}
	return &draft, true
}

// Set stores the snapshot unless the draft was evicted or a newer snapshot is already cached.
func (c *DraftCache) Set(ctx context.Context, draft *models.ApplicationDraft) {
	if c == nil {
		return
	}
	data, err := json.Marshal(draft)
	if err != nil {
		return
	}
	ver := strconv.FormatInt(draft.UpdatedAt.UnixMicro(), 10)
	err = setSnapshot.Run(ctx, c.client, []string{draftKey(draft.ApplicationID)},
		string(data), ver, c.ttl.Milliseconds()).Err()
	if err != nil {
		c.logger.Warn("draft cache write failed", map[string]interface{}{
			"applicationId": draft.ApplicationID,
			"error":         err.Error(),
		})
	}
}

// Evict replaces the cached snapshots with tombstones, so a read that loaded a draft before
// it was deleted cannot put it back.
func (c *DraftCache) Evict(ctx context.Context, applicationIDs ...string) {
	if c == nil || len(applicationIDs) == 0 {
		return
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range applicationIDs {
			key := draftKey(id)
			pipe.Del(ctx, key)
			pipe.HSet(ctx, key, fieldTomb, "1")
			pipe.PExpire(ctx, key, c.ttl)
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("draft cache evict failed", map[string]interface{}{
			"keys":  len(applicationIDs),
			"error": err.Error(),
		})
	}
}

package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roniherschmann/shorty-redirect/internal/store"
)

const redisKeyPrefix = "link_stats:"

// putScript writes the counters hash and its TTL unless the stored total is
// already higher.
var putScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'total')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'total', ARGV[1], 'unique', ARGV[2], 'last', ARGV[3])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return 1
`)

// Redis keeps stats snapshots in a hash per link so several service
// instances share one view.
type Redis struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

// DialRedis parses a redis:// URL and verifies the connection.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func redisKey(linkID int64) string {
	return redisKeyPrefix + strconv.FormatInt(linkID, 10)
}

func (r *Redis) Get(ctx context.Context, linkID int64) (store.Counters, bool, error) {
	fields, err := r.client.HGetAll(ctx, redisKey(linkID)).Result()
	if err != nil {
		return store.Counters{}, false, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(fields) == 0 {
		return store.Counters{}, false, nil
	}

	var out store.Counters
	if out.TotalClicks, err = strconv.ParseInt(fields["total"], 10, 64); err != nil {
		return store.Counters{}, false, fmt.Errorf("decode total: %w", err)
	}
	if out.UniqueClicks, err = strconv.ParseInt(fields["unique"], 10, 64); err != nil {
		return store.Counters{}, false, fmt.Errorf("decode unique: %w", err)
	}
	if last := fields["last"]; last != "" && last != "0" {
		nanos, err := strconv.ParseInt(last, 10, 64)
		if err != nil {
			return store.Counters{}, false, fmt.Errorf("decode last click: %w", err)
		}
		t := time.Unix(0, nanos).UTC()
		out.LastClickAt = &t
	}
	return out, true, nil
}

func (r *Redis) Put(ctx context.Context, linkID int64, c store.Counters, ttl time.Duration) error {
	var last int64
	if c.LastClickAt != nil {
		last = c.LastClickAt.UnixNano()
	}
	ms := ttl.Milliseconds()
	if ms <= 0 {
		ms = 1
	}
	err := putScript.Run(ctx, r.client, []string{redisKey(linkID)},
		c.TotalClicks, c.UniqueClicks, last, ms).Err()
	if err != nil {
		return fmt.Errorf("redis put stats: %w", err)
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

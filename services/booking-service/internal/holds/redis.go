package holds

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares holds across booking-service replicas. Redis expires the keys.
type RedisStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

var releaseScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if not v then
  return 0
end
local h = cjson.decode(v)
if h["token"] == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func (s *RedisStore) Place(ctx context.Context, h Hold) error {
	ttl := h.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return errors.New("hold already expired")
	}
	body, err := json.Marshal(h)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, key(h.ProviderID, h.Date, h.StartTime), body, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrTaken
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context, providerID, date string) ([]Hold, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, key(providerID, date, "*"), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Hold, 0, len(vals))
	for _, v := range vals {
		// keys can expire between SCAN and MGET
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var h Hold
		if err := json.Unmarshal([]byte(raw), &h); err != nil {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (s *RedisStore) Release(ctx context.Context, providerID, date, startTime, token string) error {
	return releaseScript.Run(ctx, s.client, []string{key(providerID, date, startTime)}, token).Err()
}

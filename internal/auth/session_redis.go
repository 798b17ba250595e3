package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "auth:refresh:"

// consumeScript atomically moves a live session to the "used" marker set.
// Returns {1, payload} on success, {2} when the session was already used and {0} otherwise.
var consumeScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if v then
  local ttl = redis.call('PTTL', KEYS[1])
  if ttl < 1 then ttl = tonumber(ARGV[1]) end
  redis.call('DEL', KEYS[1])
  redis.call('SET', KEYS[2], '1', 'PX', ttl)
  return {1, v}
end
if redis.call('EXISTS', KEYS[2]) == 1 then
  return {2}
end
return {0}
`)

// RedisSessionStore keeps refresh sessions in Redis with TTLs matching token expiry.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// RedisOptions captures connection options.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisSessionStore connects and pings Redis.
func NewRedisSessionStore(ctx context.Context, opts RedisOptions) (*RedisSessionStore, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis address required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisSessionStore{client: client, prefix: prefix, now: time.Now}, nil
}

func (s *RedisSessionStore) sessionKey(id string) string { return s.prefix + "session:" + id }
func (s *RedisSessionStore) usedKey(id string) string    { return s.prefix + "used:" + id }
func (s *RedisSessionStore) userKey(uid string) string   { return s.prefix + "user:" + uid }

func (s *RedisSessionStore) Create(ctx context.Context, sess *RefreshSession) error {
	if sess == nil || sess.ID == "" || sess.UserID == "" {
		return errors.New("session id and user id are required")
	}
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return errors.New("session already expired")
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, s.sessionKey(sess.ID), data, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, s.userKey(sess.UserID), sess.ID)
	pipe.Expire(ctx, s.userKey(sess.UserID), ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisSessionStore) Consume(ctx context.Context, id string) (*RefreshSession, error) {
	res, err := consumeScript.Run(ctx, s.client,
		[]string{s.sessionKey(id), s.usedKey(id)},
		time.Hour.Milliseconds(),
	).Slice()
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, ErrNotFound
	}
	code, _ := res[0].(int64)
	switch code {
	case 1:
	case 2:
		return nil, ErrReplayDetected
	default:
		return nil, ErrNotFound
	}
	raw, _ := res[1].(string)
	var sess RefreshSession
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	now := s.now().UTC()
	sess.ConsumedAt = &now
	_ = s.client.SRem(ctx, s.userKey(sess.UserID), id).Err()
	return &sess, nil
}

func (s *RedisSessionStore) Revoke(ctx context.Context, id string) error {
	raw, err := s.client.GetDel(ctx, s.sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return err
	}
	var sess RefreshSession
	if err := json.Unmarshal(raw, &sess); err == nil {
		_ = s.client.SRem(ctx, s.userKey(sess.UserID), id).Err()
	}
	return nil
}

func (s *RedisSessionStore) RevokeAllForUser(ctx context.Context, userID string) error {
	members, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(members)+1)
	for _, id := range members {
		keys = append(keys, s.sessionKey(id))
	}
	keys = append(keys, s.userKey(userID))
	return s.client.Del(ctx, keys...).Err()
}

// Close releases the Redis connection pool.
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}

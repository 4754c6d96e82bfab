// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	compareAndSwapScript = redis.NewScript(`
		local current = redis.call('GET', KEYS[1])
		if current ~= ARGV[1] then
			return 0
		end
		if tonumber(ARGV[3]) > 0 then
			redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
		else
			redis.call('SET', KEYS[1], ARGV[2])
		end
		return 1
	`)

	setAddScript = redis.NewScript(`
		redis.call('SADD', KEYS[1], ARGV[1])
		if tonumber(ARGV[2]) > 0 then
			redis.call('PEXPIRE', KEYS[1], ARGV[2])
		end
		return 1
	`)

	setRemoveScript = redis.NewScript(`
		redis.call('SREM', KEYS[1], ARGV[1])
		return redis.call('SCARD', KEYS[1])
	`)
)

// RedisStore implements Store on top of a Redis server.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the Redis server at url (redis://host:port/db)
// and verifies the connection.
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis store: parse url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis store: ping: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis store: get: %w", err)
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis store: set: %w", err)
	}
	return nil
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis store: del: %w", err)
	}
	return nil
}

func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis store: ttl: %w", err)
	}
	switch ttl {
	case -2:
		return 0, ErrNotFound
	case -1:
		return NoExpiry, nil
	}
	return ttl, nil
}

func (s *RedisStore) GetDel(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.GetDel(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis store: getdel: %w", err)
	}
	return val, nil
}

func (s *RedisStore) CompareAndSwap(ctx context.Context, key string, prev, next []byte, ttl time.Duration) (bool, error) {
	n, err := compareAndSwapScript.Run(ctx, s.client, []string{key}, prev, next, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("redis store: compare and swap: %w", err)
	}
	return n == 1, nil
}

func (s *RedisStore) SetAdd(ctx context.Context, key, member string, ttl time.Duration) error {
	if err := setAddScript.Run(ctx, s.client, []string{key}, member, ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("redis store: set add: %w", err)
	}
	return nil
}

func (s *RedisStore) SetRemove(ctx context.Context, key, member string) (int64, error) {
	n, err := setRemoveScript.Run(ctx, s.client, []string{key}, member).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis store: set remove: %w", err)
	}
	return n, nil
}

func (s *RedisStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis store: set members: %w", err)
	}
	return members, nil
}

// Package redisdb stores forum items in Redis.
//
// Layout per item (pk, sk):
//
//	forum:item:{pk}\x00{sk}  hash of item attributes; counters are integer fields
//	forum:keys:{pk}          sorted set of sk, all score 0, scanned with ZRANGEBYLEX
//	forum:gsi:{gsi1pk}       sorted set of "{gsi1sk}\x00{pk}\x00{sk}"
//
// Conditional writes run as Lua scripts so the existence check and the write
// are a single step on the server.
package redisdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lalith-99/echoforum/internal/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	sep       = "\x00"
	gsiPrefix = "forum:gsi:"
)

var writeScript = redis.NewScript(`
local exists = redis.call('EXISTS', KEYS[1]) == 1
if ARGV[1] == 'new' and exists then
	return 0
end
if exists then
	local old = redis.call('HMGET', KEYS[1], 'gsi1pk', 'gsi1sk')
	if old[1] then
		redis.call('ZREM', ARGV[3] .. old[1], old[2] .. ARGV[4])
	end
	redis.call('DEL', KEYS[1])
end
redis.call('HSET', KEYS[1], unpack(ARGV, 7))
redis.call('ZADD', KEYS[2], 0, ARGV[2])
if ARGV[5] ~= '' then
	redis.call('ZADD', ARGV[3] .. ARGV[5], 0, ARGV[6] .. ARGV[4])
end
return 1
`)

var updateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

var addScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return -1
end
local delta = tonumber(ARGV[2])
if delta < 0 then
	local cur = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
	if cur + delta < 0 then
		return -2
	end
end
redis.call('HINCRBY', KEYS[1], ARGV[1], delta)
return 1
`)

var deleteScript = redis.NewScript(`
local old = redis.call('HMGET', KEYS[1], 'gsi1pk', 'gsi1sk')
if old[1] then
	redis.call('ZREM', ARGV[2] .. old[1], old[2] .. ARGV[3])
end
redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[2], ARGV[1])
return 1
`)

type ItemStore struct {
	client *redis.Client
	logger *zap.Logger
}

func New(client *redis.Client, logger *zap.Logger) *ItemStore {
	return &ItemStore{client: client, logger: logger}
}

// Connect parses a redis:// URL, dials and pings the server.
func Connect(ctx context.Context, url string, logger *zap.Logger) (*ItemStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	logger.Info("redis item store connected", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
	return New(client, logger), nil
}

func (s *ItemStore) Close() error {
	return s.client.Close()
}

func itemKey(k repository.Key) string {
	return "forum:item:" + k.PK + sep + k.SK
}

func keysKey(pk string) string {
	return "forum:keys:" + pk
}

// memberTail is the part of an index member after gsi1sk.
func memberTail(k repository.Key) string {
	return sep + k.PK + sep + k.SK
}

func (s *ItemStore) Get(ctx context.Context, key repository.Key) (*repository.Item, error) {
	fields, err := s.client.HGetAll(ctx, itemKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall item: %w", err)
	}
	if len(fields) == 0 {
		return nil, repository.ErrNotFound
	}
	return fromFields(fields)
}

func (s *ItemStore) BatchGet(ctx context.Context, keys []repository.Key) ([]*repository.Item, error) {
	return s.load(ctx, keys)
}

// load fetches many hashes in one pipeline, skipping missing ones.
func (s *ItemStore) load(ctx context.Context, keys []repository.Key) ([]*repository.Item, error) {
	items := make([]*repository.Item, 0, len(keys))
	if len(keys) == 0 {
		return items, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = pipe.HGetAll(ctx, itemKey(k))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline hgetall: %w", err)
	}

	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		it, err := fromFields(fields)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

func (s *ItemStore) Put(ctx context.Context, item *repository.Item) error {
	_, err := s.write(ctx, "put", item)
	return err
}

func (s *ItemStore) PutIfAbsent(ctx context.Context, item *repository.Item) error {
	written, err := s.write(ctx, "new", item)
	if err != nil {
		return err
	}
	if !written {
		return repository.ErrAlreadyExists
	}
	return nil
}

func (s *ItemStore) write(ctx context.Context, mode string, item *repository.Item) (bool, error) {
	fields, err := toFields(item)
	if err != nil {
		return false, err
	}
	key := item.Key()
	args := []any{mode, item.SK, gsiPrefix, memberTail(key), item.GSI1PK, item.GSI1SK}
	args = append(args, fields...)

	n, err := writeScript.Run(ctx, s.client, []string{itemKey(key), keysKey(item.PK)}, args...).Int()
	if err != nil {
		return false, fmt.Errorf("write item: %w", err)
	}
	return n == 1, nil
}

func (s *ItemStore) Update(ctx context.Context, key repository.Key, attrs map[string]string) error {
	if err := repository.CheckUpdate(attrs); err != nil {
		return err
	}
	args := make([]any, 0, len(attrs)*2)
	for name, value := range attrs {
		args = append(args, name, value)
	}

	n, err := updateScript.Run(ctx, s.client, []string{itemKey(key)}, args...).Int()
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (s *ItemStore) Add(ctx context.Context, key repository.Key, attr string, delta int) error {
	if err := repository.CheckCounter(attr); err != nil {
		return err
	}
	n, err := addScript.Run(ctx, s.client, []string{itemKey(key)}, attr, delta).Int()
	if err != nil {
		return fmt.Errorf("add counter: %w", err)
	}
	switch n {
	case -1:
		return repository.ErrNotFound
	case -2:
		return repository.ErrGuardFailed
	}
	return nil
}

func (s *ItemStore) Delete(ctx context.Context, keys ...repository.Key) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range keys {
			deleteScript.Eval(ctx, pipe, []string{itemKey(k), keysKey(k.PK)}, k.SK, gsiPrefix, memberTail(k))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete items: %w", err)
	}
	return nil
}

func (s *ItemStore) Query(ctx context.Context, pk, skPrefix string) ([]*repository.Item, error) {
	rng := &redis.ZRangeBy{Min: "-", Max: "+"}
	if skPrefix != "" {
		rng.Min = "[" + skPrefix
		if end := repository.PrefixEnd(skPrefix); end != "" {
			rng.Max = "(" + end
		}
	}
	sks, err := s.client.ZRangeByLex(ctx, keysKey(pk), rng).Result()
	if err != nil {
		return nil, fmt.Errorf("range keys: %w", err)
	}

	keys := make([]repository.Key, len(sks))
	for i, sk := range sks {
		keys[i] = repository.Key{PK: pk, SK: sk}
	}
	return s.load(ctx, keys)
}

func (s *ItemStore) QueryIndex(ctx context.Context, gsiPK string, limit int) ([]*repository.Item, error) {
	rng := &redis.ZRangeBy{Min: "-", Max: "+"}
	if limit > 0 {
		rng.Count = int64(limit)
	}
	members, err := s.client.ZRevRangeByLex(ctx, gsiPrefix+gsiPK, rng).Result()
	if err != nil {
		return nil, fmt.Errorf("range index: %w", err)
	}

	keys := make([]repository.Key, 0, len(members))
	for _, m := range members {
		parts := strings.SplitN(m, sep, 3)
		if len(parts) != 3 {
			s.logger.Warn("malformed index member", zap.String("member", m))
			continue
		}
		keys = append(keys, repository.Key{PK: parts[1], SK: parts[2]})
	}

	// load drops missing items but keeps order
	return s.load(ctx, keys)
}

// toFields flattens an item into HSET field/value pairs. Empty attributes
// are omitted, mirroring the item's omitempty tags.
func toFields(it *repository.Item) ([]any, error) {
	data, err := json.Marshal(it)
	if err != nil {
		return nil, fmt.Errorf("encode item: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("flatten item: %w", err)
	}

	fields := make([]any, 0, len(m)*2)
	for name, v := range m {
		switch v := v.(type) {
		case string:
			fields = append(fields, name, v)
		case json.Number:
			fields = append(fields, name, v.String())
		default:
			return nil, fmt.Errorf("unsupported attribute %q of type %T", name, v)
		}
	}
	return fields, nil
}

func fromFields(fields map[string]string) (*repository.Item, error) {
	m := make(map[string]any, len(fields))
	for name, v := range fields {
		if name == repository.AttrLikeCount || name == repository.AttrReplyCount {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("counter %s: %w", name, err)
			}
			m[name] = n
			continue
		}
		m[name] = v
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode hash: %w", err)
	}
	var it repository.Item
	if err := json.Unmarshal(data, &it); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	if it.PK == "" && it.SK == "" {
		return nil, errors.New("item hash without key attributes")
	}
	return &it, nil
}

package blob

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisValuePrefix = "blob:"
	redisMetaPrefix  = "blobmeta:"
)

// Redis stores object bytes under blob:<key> with a metadata hash alongside.
type Redis struct {
	rdb *redis.Client
}

func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func (s *Redis) List(ctx context.Context, prefix string) ([]Object, error) {
	var objs []Object
	iter := s.rdb.Scan(ctx, 0, redisValuePrefix+prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()[len(redisValuePrefix):]
		meta, err := s.rdb.HGetAll(ctx, redisMetaPrefix+key).Result()
		if err != nil {
			return nil, err
		}
		obj := Object{Key: key}
		if v, err := strconv.ParseInt(meta["size"], 10, 64); err == nil {
			obj.Size = v
		}
		if t, err := time.Parse(time.RFC3339Nano, meta["last_modified"]); err == nil {
			obj.LastModified = t
		}
		objs = append(objs, obj)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i].Key < objs[j].Key })
	return objs, nil
}

func (s *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.rdb.Get(ctx, redisValuePrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *Redis) Put(ctx context.Context, key string, data []byte, contentType string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, redisValuePrefix+key, data, 0)
	pipe.HSet(ctx, redisMetaPrefix+key,
		"content_type", contentType,
		"size", strconv.Itoa(len(data)),
		"last_modified", time.Now().UTC().Format(time.RFC3339Nano),
	)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Redis) Delete(ctx context.Context, key string) error {
	n, err := s.rdb.Del(ctx, redisValuePrefix+key).Result()
	if err != nil {
		return err
	}
	_ = s.rdb.Del(ctx, redisMetaPrefix+key).Err()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

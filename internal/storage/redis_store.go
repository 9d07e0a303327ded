package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ghost-publish/internal/model"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore returns a history store. ttl <= 0 keeps records forever.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

const historyZKey = "ghost:publish:history"

func recordKey(postID string) string {
	return fmt.Sprintf("ghost:publish:post:%s", postID)
}

func noteKey(notePath string) string {
	return fmt.Sprintf("ghost:publish:note:%s", notePath)
}

// Record stores the latest publish of a post and indexes it by time and note path.
func (s *RedisStore) Record(ctx context.Context, rec model.PublishRecord) error {
	if rec.PostID == "" {
		return fmt.Errorf("record: empty post id")
	}
	if rec.PublishedAt.IsZero() {
		rec.PublishedAt = time.Now().UTC()
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, recordKey(rec.PostID), b, s.ttl)
	if rec.NotePath != "" {
		pipe.Set(ctx, noteKey(rec.NotePath), rec.PostID, s.ttl)
	}
	pipe.ZAdd(ctx, historyZKey, redis.Z{Score: float64(rec.PublishedAt.UnixMilli()), Member: rec.PostID})
	_, err = pipe.Exec(ctx)
	return err
}

// Recent returns up to n records, newest first. Expired records are pruned from the index.
func (s *RedisStore) Recent(ctx context.Context, n int) ([]model.PublishRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	ids, err := s.rdb.ZRevRange(ctx, historyZKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]model.PublishRecord, 0, len(ids))
	for _, id := range ids {
		b, err := s.rdb.Get(ctx, recordKey(id)).Bytes()
		if err == redis.Nil {
			_ = s.rdb.ZRem(ctx, historyZKey, id).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		var rec model.PublishRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// PostIDForNote returns the post last published from notePath, or "" if unknown.
func (s *RedisStore) PostIDForNote(ctx context.Context, notePath string) (string, error) {
	id, err := s.rdb.Get(ctx, noteKey(notePath)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

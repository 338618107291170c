package leadlag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisStorage is the primary Storage implementation, backed by Redis.
//
// Schema:
//   - "leadlag:group:{key}"       -> JSON-serialized Group
//   - "leadlag:group:index" (ZSET) -> score LastRotationAt/LastFailoverAt
//     (whichever is most recent), member groupKey
//
// Store uses WATCH/MULTI/EXEC keyed on Group.Version to detect concurrent
// writers; callers retry on VersionMismatchError.
type RedisStorage struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisStorage creates a Redis-backed group store, verifying
// connectivity before returning.
func NewRedisStorage(ctx context.Context, client *redis.Client, logger *slog.Logger) (*RedisStorage, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &RedisStorage{client: client, logger: logger}
	if err := s.Ping(ctx); err != nil {
		return nil, fmt.Errorf("redis connectivity check failed: %w", err)
	}
	return s, nil
}

func (r *RedisStorage) Store(ctx context.Context, group *Group) error {
	if group == nil {
		return NewStorageError("store", errNilGroup)
	}

	redisKey := groupKeyPrefix + string(group.Key)

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		existingData, err := tx.Get(ctx, redisKey).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("get current version: %w", err)
		}

		if !errors.Is(err, redis.Nil) {
			var existing Group
			if unmarshalErr := json.Unmarshal(existingData, &existing); unmarshalErr != nil {
				return fmt.Errorf("unmarshal existing group: %w", unmarshalErr)
			}
			if existing.Version != group.Version {
				return NewVersionMismatchError(group.Key, group.Version, existing.Version)
			}
		}

		group.Version++
		data, err := json.Marshal(group)
		if err != nil {
			return fmt.Errorf("marshal group: %w", err)
		}

		score := float64(group.LastRotationAt.Unix())
		if group.LastFailoverAt.After(group.LastRotationAt) {
			score = float64(group.LastFailoverAt.Unix())
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, redisKey, data, groupTTLDefault)
			pipe.ZAdd(ctx, groupIndexKey, redis.Z{Score: score, Member: string(group.Key)})
			return nil
		})
		return err
	}, redisKey)

	if err != nil {
		var vmErr *VersionMismatchError
		if errors.As(err, &vmErr) {
			r.logger.Warn("lead-lag group version conflict",
				"group_key", group.Key, "expected", vmErr.ExpectedVersion, "actual", vmErr.ActualVersion)
			return vmErr
		}
		return NewStorageError("store", err)
	}

	return nil
}

func (r *RedisStorage) Load(ctx context.Context, key GroupKey) (*Group, error) {
	redisKey := groupKeyPrefix + string(key)

	data, err := r.client.Get(ctx, redisKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, NewGroupNotFoundError(key)
		}
		return nil, NewStorageError("load", err)
	}

	var group Group
	if err := json.Unmarshal(data, &group); err != nil {
		return nil, NewStorageError("load", err)
	}
	return &group, nil
}

func (r *RedisStorage) Delete(ctx context.Context, key GroupKey) error {
	redisKey := groupKeyPrefix + string(key)

	pipe := r.client.Pipeline()
	pipe.Del(ctx, redisKey)
	pipe.ZRem(ctx, groupIndexKey, string(key))

	if _, err := pipe.Exec(ctx); err != nil {
		return NewStorageError("delete", err)
	}
	return nil
}

func (r *RedisStorage) ListKeys(ctx context.Context) ([]GroupKey, error) {
	keys, err := r.client.ZRange(ctx, groupIndexKey, 0, -1).Result()
	if err != nil {
		return nil, NewStorageError("list_keys", err)
	}

	groupKeys := make([]GroupKey, len(keys))
	for i, k := range keys {
		groupKeys[i] = GroupKey(k)
	}
	return groupKeys, nil
}

func (r *RedisStorage) Size(ctx context.Context) (int, error) {
	count, err := r.client.ZCard(ctx, groupIndexKey).Result()
	if err != nil {
		return 0, NewStorageError("size", err)
	}
	return int(count), nil
}

// LoadAll restores every group at site start, loading up to 50 keys
// concurrently.
func (r *RedisStorage) LoadAll(ctx context.Context) ([]*Group, error) {
	keys, err := r.ListKeys(ctx)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []*Group{}, nil
	}

	const maxConcurrency = 50
	sem := make(chan struct{}, maxConcurrency)
	results := make(chan *Group, len(keys))
	loadErrs := make(chan error, len(keys))

	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		sem <- struct{}{}
		go func(k GroupKey) {
			defer wg.Done()
			defer func() { <-sem }()

			g, loadErr := r.Load(ctx, k)
			if loadErr != nil {
				loadErrs <- loadErr
				return
			}
			results <- g
		}(key)
	}
	wg.Wait()
	close(results)
	close(loadErrs)

	groups := make([]*Group, 0, len(keys))
	for g := range results {
		groups = append(groups, g)
	}

	var failed int
	for range loadErrs {
		failed++
	}
	if failed > 0 {
		r.logger.Warn("some lead-lag groups failed to restore",
			"total", len(keys), "loaded", len(groups), "failed", failed)
	}

	return groups, nil
}

func (r *RedisStorage) StoreAll(ctx context.Context, groups []*Group) error {
	if len(groups) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for _, g := range groups {
		if g == nil {
			continue
		}
		data, err := json.Marshal(g)
		if err != nil {
			r.logger.Error("failed to serialize lead-lag group", "group_key", g.Key, "error", err)
			continue
		}
		score := float64(g.LastRotationAt.Unix())
		if g.LastFailoverAt.After(g.LastRotationAt) {
			score = float64(g.LastFailoverAt.Unix())
		}
		pipe.Set(ctx, groupKeyPrefix+string(g.Key), data, groupTTLDefault)
		pipe.ZAdd(ctx, groupIndexKey, redis.Z{Score: score, Member: string(g.Key)})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return NewStorageError("store_all", err)
	}
	return nil
}

func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

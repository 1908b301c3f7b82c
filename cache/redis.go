package cache

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"sync/atomic"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-aggregator/types"
)

const (
	frameRaw    byte = 0
	frameBrotli byte = 1

	frameHeaderSize = 1 + 8 + 8

	defaultKeyPrefix         = "sai-aggregator"
	defaultCompressThreshold = 4 * 1024
	redisOpTimeout           = 2 * time.Second
)

// RedisStore shares cached result sets between processes. It keeps the same
// contract as MemoryStore: lazy expiry, bounded size, faults degrade to misses.
type RedisStore struct {
	ctx               context.Context
	logger            types.Logger
	clock             types.Clock
	codec             types.CacheCodec
	client            redis.UniversalClient
	prefix            string
	indexKey          string
	maxEntries        int
	defaultTTL        time.Duration
	compressThreshold int
	opTimeout         time.Duration
	hits              uint64
	misses            uint64
}

func NewRedisStore(ctx context.Context, config *types.CacheConfig, clock types.Clock, codec types.CacheCodec, logger types.Logger) (*RedisStore, error) {
	if config == nil || config.Redis == nil {
		return nil, types.Errorf(types.ErrCacheOperationFailed, "redis config is missing")
	}

	redisConfig := config.Redis
	client := redis.NewClient(&redis.Options{
		Addr:         redisConfig.Addr,
		Password:     redisConfig.Password,
		DB:           redisConfig.DB,
		PoolSize:     redisConfig.PoolSize,
		DialTimeout:  redisConfig.DialTimeout,
		ReadTimeout:  redisConfig.ReadTimeout,
		WriteTimeout: redisConfig.WriteTimeout,
	})

	store := newRedisStore(ctx, client, config, clock, codec, logger)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, types.WrapError(err, "failed to connect to redis")
	}

	logger.Info("Redis cache connected",
		zap.String("addr", redisConfig.Addr),
		zap.Int("db", redisConfig.DB),
		zap.String("prefix", store.prefix))

	return store, nil
}

func newRedisStore(ctx context.Context, client redis.UniversalClient, config *types.CacheConfig, clock types.Clock, codec types.CacheCodec, logger types.Logger) *RedisStore {
	prefix := defaultKeyPrefix
	threshold := defaultCompressThreshold
	if config.Redis != nil {
		if config.Redis.KeyPrefix != "" {
			prefix = config.Redis.KeyPrefix
		}
		if config.Redis.CompressThreshold > 0 {
			threshold = config.Redis.CompressThreshold
		}
	}

	maxEntries := config.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	defaultTTL := config.TTL.Medium
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}

	return &RedisStore{
		ctx:               ctx,
		logger:            logger,
		clock:             clock,
		codec:             codec,
		client:            client,
		prefix:            prefix,
		indexKey:          prefix + ":__index",
		maxEntries:        maxEntries,
		defaultTTL:        defaultTTL,
		compressThreshold: threshold,
		opTimeout:         redisOpTimeout,
	}
}

func (r *RedisStore) Get(key string) (interface{}, bool) {
	value, err := r.get(key)
	if err != nil {
		if !types.IsError(err, redis.Nil) {
			r.logger.Error("Redis cache get failed, treating as miss", zap.String("key", key), zap.Error(err))
		}
		atomic.AddUint64(&r.misses, 1)
		return nil, false
	}

	atomic.AddUint64(&r.hits, 1)
	return value, true
}

func (r *RedisStore) get(key string) (interface{}, error) {
	ctx, cancel := context.WithTimeout(r.ctx, r.opTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.fullKey(key)).Bytes()
	if err != nil {
		return nil, err
	}

	now := r.clock.Now()

	storedAt, ttl, payload, err := decodeFrame(data)
	if err != nil {
		r.remove(ctx, key)
		return nil, err
	}

	if now.Sub(storedAt) > ttl {
		r.remove(ctx, key)
		return nil, redis.Nil
	}

	value, err := r.codec.Decode(payload)
	if err != nil {
		r.remove(ctx, key)
		return nil, types.WrapError(types.ErrCacheEntryCorrupt, err.Error())
	}

	if err := r.client.ZAdd(ctx, r.indexKey, redis.Z{Score: float64(now.UnixNano()), Member: key}).Err(); err != nil {
		r.logger.Debug("Failed to refresh cache recency", zap.String("key", key), zap.Error(err))
	}

	return value, nil
}

func (r *RedisStore) Put(key string, value interface{}, ttl time.Duration) {
	if key == "" {
		r.logger.Error("Attempted to put cache entry with empty key", zap.Error(types.ErrCacheKeyEmpty))
		return
	}

	if ttl <= 0 {
		ttl = r.defaultTTL
	}

	if err := r.put(key, value, ttl); err != nil {
		r.logger.Error("Redis cache put failed, entry dropped", zap.String("key", key), zap.Error(err))
	}
}

func (r *RedisStore) put(key string, value interface{}, ttl time.Duration) error {
	payload, err := r.codec.Encode(value)
	if err != nil {
		return types.WrapError(err, "failed to encode cache entry")
	}

	now := r.clock.Now()
	frame, err := encodeFrame(now, ttl, payload, r.compressThreshold)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(r.ctx, r.opTimeout)
	defer cancel()

	_, err = r.client.ZScore(ctx, r.indexKey, key).Result()
	switch {
	case types.IsError(err, redis.Nil):
		size, cardErr := r.client.ZCard(ctx, r.indexKey).Result()
		if cardErr != nil {
			return cardErr
		}
		if int(size) >= r.maxEntries {
			r.cleanup(ctx, int(size))
		}
	case err != nil:
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.fullKey(key), frame, ttl)
		pipe.ZAdd(ctx, r.indexKey, redis.Z{Score: float64(now.UnixNano()), Member: key})
		return nil
	})
	return err
}

func (r *RedisStore) Clear() {
	ctx, cancel := context.WithTimeout(r.ctx, 10*r.opTimeout)
	defer cancel()

	cleared := 0
	iter := r.client.Scan(ctx, 0, r.prefix+":*", 500).Iterator()
	batch := make([]string, 0, 500)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			cleared += r.deleteKeys(ctx, batch)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		r.logger.Error("Redis cache scan failed during clear", zap.Error(err))
	}
	cleared += r.deleteKeys(ctx, batch)

	atomic.StoreUint64(&r.hits, 0)
	atomic.StoreUint64(&r.misses, 0)

	r.logger.Info("Redis cache cleared", zap.Int("cleared_keys", cleared))
}

func (r *RedisStore) Stats() types.CacheStats {
	hits := atomic.LoadUint64(&r.hits)
	misses := atomic.LoadUint64(&r.misses)

	stats := types.CacheStats{
		Hits:    hits,
		Misses:  misses,
		HitRate: hitRate(hits, misses),
		MaxSize: r.maxEntries,
	}

	ctx, cancel := context.WithTimeout(r.ctx, 5*r.opTimeout)
	defer cancel()

	members, err := r.client.ZRange(ctx, r.indexKey, 0, -1).Result()
	if err != nil {
		r.logger.Error("Redis cache stats failed", zap.Error(err))
		return stats
	}

	stats.Size = len(members)
	stats.ExpiredEntries = len(r.missingMembers(ctx, members))

	return stats
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// cleanup mirrors MemoryStore: drop the oldest ~10% of the index, then prune
// index members whose value redis has already expired.
func (r *RedisStore) cleanup(ctx context.Context, size int) {
	evictCount := evictionCount(size)

	oldest, err := r.client.ZRange(ctx, r.indexKey, 0, int64(evictCount-1)).Result()
	if err != nil {
		r.logger.Error("Redis cache eviction failed", zap.Error(err))
		return
	}

	if len(oldest) > 0 {
		keys := make([]string, len(oldest))
		for i, member := range oldest {
			keys[i] = r.fullKey(member)
		}
		if _, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, keys...)
			pipe.ZRem(ctx, r.indexKey, toInterfaces(oldest)...)
			return nil
		}); err != nil {
			r.logger.Error("Redis cache eviction failed", zap.Error(err))
			return
		}
	}

	remaining, err := r.client.ZRange(ctx, r.indexKey, 0, -1).Result()
	if err != nil {
		r.logger.Error("Redis cache sweep failed", zap.Error(err))
		return
	}

	expired := r.missingMembers(ctx, remaining)
	if len(expired) > 0 {
		if err := r.client.ZRem(ctx, r.indexKey, toInterfaces(expired)...).Err(); err != nil {
			r.logger.Error("Redis cache sweep failed", zap.Error(err))
		}
	}

	r.logger.Debug("Redis cache cleanup completed",
		zap.Int("evicted_oldest", len(oldest)),
		zap.Int("evicted_expired", len(expired)))
}

func (r *RedisStore) missingMembers(ctx context.Context, members []string) []string {
	if len(members) == 0 {
		return nil
	}

	cmds := make([]*redis.IntCmd, len(members))
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, member := range members {
			cmds[i] = pipe.Exists(ctx, r.fullKey(member))
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Redis cache existence check failed", zap.Error(err))
		return nil
	}

	missing := make([]string, 0)
	for i, cmd := range cmds {
		if cmd.Val() == 0 {
			missing = append(missing, members[i])
		}
	}
	return missing
}

func (r *RedisStore) remove(ctx context.Context, key string) {
	if _, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.fullKey(key))
		pipe.ZRem(ctx, r.indexKey, key)
		return nil
	}); err != nil {
		r.logger.Debug("Failed to remove cache entry", zap.String("key", key), zap.Error(err))
	}
}

func (r *RedisStore) deleteKeys(ctx context.Context, keys []string) int {
	if len(keys) == 0 {
		return 0
	}
	deleted, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		r.logger.Error("Redis cache delete failed", zap.Error(err))
		return 0
	}
	return int(deleted)
}

func (r *RedisStore) fullKey(key string) string {
	return r.prefix + ":" + key
}

func toInterfaces(values []string) []interface{} {
	result := make([]interface{}, len(values))
	for i, v := range values {
		result[i] = v
	}
	return result
}

// encodeFrame lays out [flag][storedAt unix-nanos][ttl nanos][payload],
// brotli-compressing the payload once it crosses threshold bytes.
func encodeFrame(storedAt time.Time, ttl time.Duration, payload []byte, threshold int) ([]byte, error) {
	flag := frameRaw
	if threshold > 0 && len(payload) >= threshold {
		var buf bytes.Buffer
		writer := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
		if _, err := writer.Write(payload); err != nil {
			return nil, types.WrapError(err, "failed to compress cache entry")
		}
		if err := writer.Close(); err != nil {
			return nil, types.WrapError(err, "failed to compress cache entry")
		}
		if buf.Len() < len(payload) {
			payload = buf.Bytes()
			flag = frameBrotli
		}
	}

	frame := make([]byte, frameHeaderSize+len(payload))
	frame[0] = flag
	binary.BigEndian.PutUint64(frame[1:9], uint64(storedAt.UnixNano()))
	binary.BigEndian.PutUint64(frame[9:17], uint64(ttl))
	copy(frame[frameHeaderSize:], payload)

	return frame, nil
}

func decodeFrame(frame []byte) (time.Time, time.Duration, []byte, error) {
	if len(frame) < frameHeaderSize {
		return time.Time{}, 0, nil, types.Errorf(types.ErrCacheEntryCorrupt, "frame too short: %d bytes", len(frame))
	}

	storedAt := time.Unix(0, int64(binary.BigEndian.Uint64(frame[1:9])))
	ttl := time.Duration(binary.BigEndian.Uint64(frame[9:17]))
	payload := frame[frameHeaderSize:]

	switch frame[0] {
	case frameRaw:
		return storedAt, ttl, payload, nil
	case frameBrotli:
		decoded, err := io.ReadAll(brotli.NewReader(bytes.NewReader(payload)))
		if err != nil {
			return time.Time{}, 0, nil, types.Errorf(types.ErrCacheEntryCorrupt, "decompress: %v", err)
		}
		return storedAt, ttl, decoded, nil
	default:
		return time.Time{}, 0, nil, types.Errorf(types.ErrCacheEntryCorrupt, "unknown frame flag %d", frame[0])
	}
}

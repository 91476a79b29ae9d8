package cache

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/stamp-next/internal/config"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix          = "stamp"
	pingTimeout            = 2 * time.Second
	versionedWriteAttempts = 3
)

var (
	redisClient *redis.Client
	redisPrefix = defaultPrefix
)

// InitRedis 初始化 Redis 客户端，连通性检查失败时仍保留客户端，调用方按需降级
func InitRedis(cfg *config.RedisConfig) error {
	_ = Close()
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 6379
	}
	redisPrefix = strings.TrimSpace(cfg.Prefix)
	if redisPrefix == "" {
		redisPrefix = defaultPrefix
	}
	redisClient = redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(host, strconv.Itoa(port)),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return redisClient.Ping(ctx).Err()
}

// Enabled 判断缓存是否启用
func Enabled() bool {
	return redisClient != nil
}

// Client 获取 Redis 客户端，未启用时返回 nil
func Client() *redis.Client {
	return redisClient
}

// Prefix 当前键前缀
func Prefix() string {
	return redisPrefix
}

// Close 关闭 Redis 客户端
func Close() error {
	if redisClient == nil {
		return nil
	}
	err := redisClient.Close()
	redisClient = nil
	return err
}

// GetJSON 读取 JSON 缓存，未命中返回 false
func GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !Enabled() {
		return false, nil
	}
	raw, err := redisClient.Get(ctx, buildKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		// 损坏的缓存直接丢弃，按未命中处理
		_ = redisClient.Del(ctx, buildKey(key)).Err()
		return false, nil
	}
	return true, nil
}

// SetJSON 写入 JSON 缓存
func SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !Enabled() {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return redisClient.Set(ctx, buildKey(key), payload, ttl).Err()
}

// SetJSONIfNewer 仅当缓存中没有更高版本时写入，返回是否写入
// value 序列化后需带 version 字段；WATCH 冲突时重试，仍冲突则放弃
func SetJSONIfNewer(ctx context.Context, key string, value interface{}, version uint64, ttl time.Duration) (bool, error) {
	if !Enabled() {
		return false, nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	fullKey := buildKey(key)
	for attempt := 0; attempt < versionedWriteAttempts; attempt++ {
		written := false
		err = redisClient.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, fullKey).Bytes()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if err == nil && !replaceable(raw, version) {
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, fullKey, payload, ttl)
				return nil
			})
			written = err == nil
			return err
		}, fullKey)
		if !errors.Is(err, redis.TxFailedErr) {
			return written, err
		}
	}
	return false, err
}

// replaceable 已缓存内容的版本不高于 version 时可覆盖，无法解析的内容总是可覆盖
func replaceable(raw []byte, version uint64) bool {
	var cached struct {
		Version uint64 `json:"version"`
	}
	if err := json.Unmarshal(raw, &cached); err != nil {
		return true
	}
	return cached.Version <= version
}

// Del 删除缓存
func Del(ctx context.Context, key string) error {
	if !Enabled() {
		return nil
	}
	return redisClient.Del(ctx, buildKey(key)).Err()
}

// Claim 抢占一次性标记，返回 false 表示已被占用；缓存关闭时总是抢占成功
func Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if !Enabled() {
		return true, nil
	}
	return redisClient.SetNX(ctx, buildKey(key), time.Now().UTC().Unix(), ttl).Result()
}

// Release 释放 Claim 占用的标记
func Release(ctx context.Context, key string) error {
	return Del(ctx, key)
}

func buildKey(key string) string {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return redisPrefix
	}
	return redisPrefix + ":" + trimmed
}

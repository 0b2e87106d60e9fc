// Package cache 提供带过期时间的键值缓存,用于记录最近抓取过的URL
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store 抓取缓存接口
type Store interface {
	// Get 返回键值,键不存在或已过期时 ok 为 false
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// SetWithExpiry 写入键值并设置过期时间
	SetWithExpiry(ctx context.Context, key string, ttl time.Duration, value string) error
}

// RedisConfig Redis连接配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RedisStore 基于Redis的缓存实现
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore 包装已有的Redis客户端
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Connect 创建Redis客户端并检查连通性
func Connect(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接Redis失败 [%s]: %w", cfg.Addr, err)
	}
	return NewRedisStore(client), nil
}

// Get 实现 Store 接口
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("读取缓存失败: %w", err)
	}
	return val, true, nil
}

// SetWithExpiry 实现 Store 接口
func (s *RedisStore) SetWithExpiry(ctx context.Context, key string, ttl time.Duration, value string) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("写入缓存失败: %w", err)
	}
	return nil
}

// Close 关闭Redis连接
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// NopStore 不缓存任何内容,每次都视为未命中
type NopStore struct{}

// Get 总是未命中
func (NopStore) Get(context.Context, string) (string, bool, error) {
	return "", false, nil
}

// SetWithExpiry 丢弃写入
func (NopStore) SetWithExpiry(context.Context, string, time.Duration, string) error {
	return nil
}

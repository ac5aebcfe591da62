package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "Superio-Chain/internal/errors"
)

// Config 描述 Redis 缓存的连接参数。
type Config struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

// Cache 实现 gateway.Cache，过期交给 Redis 处理。
type Cache struct {
	client redis.Cmdable
	closer func() error
	prefix string
}

// Open 连接 Redis 并返回缓存实例。
func Open(ctx context.Context, cfg Config) (*Cache, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 Redis 失败")
	}
	c := New(client, cfg.Prefix)
	c.closer = client.Close
	return c, nil
}

// New 基于已有客户端创建缓存。prefix 为空时使用 superio:cache:。
func New(client redis.Cmdable, prefix string) *Cache {
	if prefix == "" {
		prefix = "superio:cache:"
	}
	return &Cache{client: client, prefix: prefix}
}

// Get 读取缓存。
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取 Redis 缓存失败")
	}
	return value, true, nil
}

// Set 写入缓存。
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < time.Second {
		ttl = time.Second
	}
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入 Redis 缓存失败")
	}
	return nil
}

// Close 关闭由 Open 创建的连接。
func (c *Cache) Close() error {
	if c == nil || c.closer == nil {
		return nil
	}
	return c.closer()
}

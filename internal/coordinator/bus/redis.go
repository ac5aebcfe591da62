package bus

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "Superio-Chain/internal/errors"
	"Superio-Chain/pkg/logger"
)

// RedisConfig 描述 Redis 总线的连接参数。
type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	Prefix    string
	BlockWait time.Duration
}

// RedisBus 使用 Redis list 实现总线，每个主题对应一个 list。
type RedisBus struct {
	client redis.Cmdable
	closer func() error
	prefix string
	wait   time.Duration
}

// OpenRedis 连接 Redis 并返回总线实例。
func OpenRedis(ctx context.Context, cfg RedisConfig) (*RedisBus, error) {
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
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "连接 Redis 失败")
	}
	b := NewRedis(client, cfg.Prefix, cfg.BlockWait)
	b.closer = client.Close
	return b, nil
}

// NewRedis 基于已有客户端创建总线。prefix 为空时使用 superio:bus:。
func NewRedis(client redis.Cmdable, prefix string, wait time.Duration) *RedisBus {
	if prefix == "" {
		prefix = "superio:bus:"
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisBus{client: client, prefix: prefix, wait: wait}
}

// Publish 将消息写入主题对应的 list。
func (b *RedisBus) Publish(ctx context.Context, topic string, env Envelope) error {
	raw, err := encode(env)
	if err != nil {
		return err
	}
	if err := b.client.LPush(ctx, b.prefix+topic, raw).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "Redis 发布消息失败", xerrors.WithMetadata("topic", topic))
	}
	return nil
}

// Subscribe 通过 BRPOP 消费主题。可重试的处理失败会把消息放回队首。
func (b *RedisBus) Subscribe(parent context.Context, topic string, workers int, handler Handler) error {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	key := b.prefix + topic
	log := logger.Named("bus").With("topic", topic)
	errCh := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if ctx.Err() != nil {
					return
				}
				values, err := b.client.BRPop(ctx, b.wait, key).Result()
				if err != nil {
					if errors.Is(err, redis.Nil) {
						continue
					}
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return
					}
					errCh <- xerrors.Wrap(xerrors.CodeQueueFailure, err, "Redis 取消息失败", xerrors.WithMetadata("topic", topic))
					return
				}
				if len(values) != 2 {
					continue
				}
				env, err := decode([]byte(values[1]))
				if err != nil {
					log.Warn("丢弃无法解析的消息", "error", err)
					continue
				}
				if handlerErr := handler(ctx, env); handlerErr != nil && xerrors.RetryableError(handlerErr) {
					_ = b.client.RPush(ctx, key, values[1]).Err()
				}
			}
		}()
	}
	var err error
	select {
	case <-parent.Done():
		err = parent.Err()
	case err = <-errCh:
	}
	cancel()
	wg.Wait()
	return err
}

// Close 关闭由 OpenRedis 创建的连接。
func (b *RedisBus) Close() error {
	if b == nil || b.closer == nil {
		return nil
	}
	return b.closer()
}

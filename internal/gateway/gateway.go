// Package gateway 汇总外部数据源的公共约定：缓存接口、调用观测与错误吞没。
//
// 各数据源位于子包中。对外方法返回 (value, ok)，错误在网关边界内记录并计数，
// 不会传递给调用方。
package gateway

import (
	"context"
	"encoding/json"
	"time"

	xerrors "Superio-Chain/internal/errors"
	"Superio-Chain/internal/observability/metrics"
	"Superio-Chain/pkg/logger"
)

// Cache 是网关响应缓存。实现方需要自行处理过期。
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// NopCache 不缓存任何内容。
type NopCache struct{}

// Get 总是未命中。
func (NopCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

// Set 丢弃写入。
func (NopCache) Set(context.Context, string, []byte, time.Duration) error { return nil }

// Try 执行一次上游调用并记录指标，错误原样返回。
func Try[T any](ctx context.Context, upstream, operation string, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	value, err := fn(ctx)
	if err != nil {
		metrics.ObserveGatewayCall(upstream, operation, "error", time.Since(start))
		logger.FromContext(ctx, logger.Named("gateway")).Warn("上游调用失败",
			"upstream", upstream, "operation", operation,
			"code", xerrors.CodeOf(err), "error", err)
		var zero T
		return zero, err
	}
	metrics.ObserveGatewayCall(upstream, operation, "ok", time.Since(start))
	return value, nil
}

// Call 与 Try 相同，但吞掉错误：失败时返回零值与 false。
func Call[T any](ctx context.Context, upstream, operation string, fn func(context.Context) (T, error)) (T, bool) {
	value, err := Try(ctx, upstream, operation, fn)
	return value, err == nil
}

// Cached 先查缓存，未命中时执行 Call 并把成功结果写回缓存。
func Cached[T any](ctx context.Context, cache Cache, key string, ttl time.Duration, upstream, operation string, fn func(context.Context) (T, error)) (T, bool) {
	if cache == nil || ttl <= 0 {
		return Call(ctx, upstream, operation, fn)
	}
	log := logger.FromContext(ctx, logger.Named("gateway"))
	if raw, hit, err := cache.Get(ctx, key); err != nil {
		log.Debug("读取缓存失败", "key", key, "error", err)
	} else if hit {
		var cached T
		if err := json.Unmarshal(raw, &cached); err == nil {
			metrics.ObserveGatewayCall(upstream, operation, "cache_hit", 0)
			return cached, true
		}
	}

	value, ok := Call(ctx, upstream, operation, fn)
	if !ok {
		return value, false
	}
	if raw, err := json.Marshal(value); err == nil {
		if err := cache.Set(ctx, key, raw, ttl); err != nil {
			log.Debug("写入缓存失败", "key", key, "error", err)
		}
	}
	return value, true
}

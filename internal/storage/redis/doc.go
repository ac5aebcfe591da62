// Package redis 提供基于 Redis 的网关响应缓存。
package redis

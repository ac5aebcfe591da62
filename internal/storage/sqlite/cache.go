// Package sqlite 提供基于 SQLite 的网关响应缓存。
//
// 多个进程可以共享同一个库文件：读走 WAL，写入通过文件锁串行化。
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	xerrors "Superio-Chain/internal/errors"
)

const lockTimeout = 5 * time.Second

// Cache 实现 gateway.Cache。
type Cache struct {
	db   *sql.DB
	lock *flock.Flock
	now  func() time.Time
}

// Entry 是一条缓存记录的读取结果。
type Entry struct {
	Value []byte
	Age   time.Duration
	Stale bool
}

// Open 打开或创建缓存库。lockPath 为空时使用 path + ".lock"。
func Open(path, lockPath string) (*Cache, error) {
	if lockPath == "" {
		lockPath = path + ".lock"
	}
	for _, dir := range []string{filepath.Dir(path), filepath.Dir(lockPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建缓存目录失败")
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "打开 SQLite 缓存失败")
	}
	schema := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"CREATE TABLE IF NOT EXISTS gateway_cache (key TEXT PRIMARY KEY, value BLOB NOT NULL, created_at INTEGER NOT NULL, ttl_seconds INTEGER NOT NULL);",
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化缓存表失败")
		}
	}

	c := &Cache{db: db, lock: flock.New(lockPath), now: time.Now}
	_ = c.Prune(context.Background())
	return c, nil
}

// Close 关闭数据库。
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Prune 删除已经过期的记录。
func (c *Cache) Prune(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM gateway_cache WHERE created_at + ttl_seconds < ?", c.now().UTC().Unix()); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "清理缓存失败")
	}
	return nil
}

// Lookup 读取记录，过期记录也会返回并标记 Stale。
func (c *Cache) Lookup(ctx context.Context, key string) (Entry, bool, error) {
	var (
		value       []byte
		createdUnix int64
		ttlSeconds  int64
	)
	err := c.db.QueryRowContext(ctx, "SELECT value, created_at, ttl_seconds FROM gateway_cache WHERE key = ?", key).
		Scan(&value, &createdUnix, &ttlSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取缓存失败")
	}
	age := c.now().UTC().Sub(time.Unix(createdUnix, 0).UTC())
	if age < 0 {
		age = 0
	}
	return Entry{Value: value, Age: age, Stale: age > time.Duration(ttlSeconds)*time.Second}, true, nil
}

// Get 只返回未过期的记录。
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, ok, err := c.Lookup(ctx, key)
	if err != nil || !ok || entry.Stale {
		return nil, false, err
	}
	return entry.Value, true, nil
}

// Set 写入记录。ttl 不足一秒时按一秒处理。
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	locked, err := c.lock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取缓存写锁失败")
	}
	if !locked {
		return xerrors.New(xerrors.CodeStorageFailure, "获取缓存写锁超时")
	}
	defer func() { _ = c.lock.Unlock() }()

	seconds := int64(ttl.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO gateway_cache (key, value, created_at, ttl_seconds)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value=excluded.value,
			created_at=excluded.created_at,
			ttl_seconds=excluded.ttl_seconds
	`, key, value, c.now().UTC().Unix(), seconds)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入缓存失败")
	}
	return nil
}

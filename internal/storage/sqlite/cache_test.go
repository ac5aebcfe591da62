package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	dir := t.TempDir()
	c, err := Open(filepath.Join(dir, "cache.db"), "")
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSetGetAndExpiry(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	if err := c.Set(ctx, "coingecko:coin:bitcoin", []byte(`{"price":1}`), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	value, ok, err := c.Get(ctx, "coingecko:coin:bitcoin")
	if err != nil || !ok || string(value) != `{"price":1}` {
		t.Fatalf("expected fresh hit, got %q ok=%v err=%v", value, ok, err)
	}

	now = now.Add(2 * time.Minute)
	if _, ok, _ := c.Get(ctx, "coingecko:coin:bitcoin"); ok {
		t.Fatalf("expired entry must not be served")
	}
	entry, ok, err := c.Lookup(ctx, "coingecko:coin:bitcoin")
	if err != nil || !ok || !entry.Stale {
		t.Fatalf("expected stale entry, got %+v ok=%v err=%v", entry, ok, err)
	}

	if err := c.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}
	if _, ok, _ := c.Lookup(ctx, "coingecko:coin:bitcoin"); ok {
		t.Fatalf("expected entry to be pruned")
	}
}

func TestMissingKey(t *testing.T) {
	c := openTestCache(t)
	if _, ok, err := c.Get(context.Background(), "missing"); ok || err != nil {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}
}

func TestConcurrentWriters(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.db")

	const workers = 8
	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c, err := Open(path, "")
			if err != nil {
				errCh <- fmt.Errorf("worker %d open: %w", id, err)
				return
			}
			defer c.Close()
			for i := 0; i < 20; i++ {
				key := fmt.Sprintf("w%d-%d", id, i)
				if err := c.Set(context.Background(), key, []byte("1"), time.Minute); err != nil {
					errCh <- fmt.Errorf("worker %d set: %w", id, err)
					return
				}
				if _, ok, err := c.Get(context.Background(), key); err != nil || !ok {
					errCh <- fmt.Errorf("worker %d get %s: ok=%v err=%v", id, key, ok, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatal(err)
	}
}

package bus

import (
	"context"
	"sync"

	xerrors "Superio-Chain/internal/errors"
)

// MemoryBus 使用 channel 模拟消息总线，用于单进程部署与测试。
type MemoryBus struct {
	mu     sync.Mutex
	size   int
	topics map[string]chan Envelope
	closed bool
}

// NewMemoryBus 创建内存总线，size 为每个主题的缓冲长度。
func NewMemoryBus(size int) *MemoryBus {
	if size <= 0 {
		size = 64
	}
	return &MemoryBus{size: size, topics: make(map[string]chan Envelope)}
}

func (b *MemoryBus) topic(name string) (chan Envelope, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, xerrors.New(xerrors.CodeQueueFailure, "总线已关闭")
	}
	ch, ok := b.topics[name]
	if !ok {
		ch = make(chan Envelope, b.size)
		b.topics[name] = ch
	}
	return ch, nil
}

// Publish 将消息投递到主题。
func (b *MemoryBus) Publish(ctx context.Context, topic string, env Envelope) error {
	ch, err := b.topic(topic)
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case ch <- env:
		return nil
	}
}

// Subscribe 启动指定数量的协程消费主题。
func (b *MemoryBus) Subscribe(ctx context.Context, topic string, workers int, handler Handler) error {
	ch, err := b.topic(topic)
	if err != nil {
		return err
	}
	if workers <= 0 {
		workers = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case env, ok := <-ch:
					if !ok {
						return
					}
					_ = handler(ctx, env)
				}
			}
		}()
	}
	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// Close 关闭所有主题。
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for _, ch := range b.topics {
		close(ch)
	}
	return nil
}

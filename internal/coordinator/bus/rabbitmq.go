package bus

import (
	"context"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	xerrors "Superio-Chain/internal/errors"
	"Superio-Chain/pkg/logger"
)

// RabbitMQConfig 描述 RabbitMQ 总线的连接参数。
type RabbitMQConfig struct {
	URL      string
	Prefetch int
	Durable  bool
}

// RabbitMQBus 使用默认交换机按队列名路由，每个主题对应一个队列。
type RabbitMQBus struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	durable  bool
	mu       sync.Mutex
	declared map[string]bool
}

// OpenRabbitMQ 连接 RabbitMQ 并返回总线实例。
func OpenRabbitMQ(cfg RabbitMQConfig) (*RabbitMQBus, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "RabbitMQ URL 不能为空")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "连接 RabbitMQ 失败")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "创建 RabbitMQ channel 失败")
	}
	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			ch.Close()
			conn.Close()
			return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "设置 RabbitMQ QOS 失败")
		}
	}
	return &RabbitMQBus{conn: conn, ch: ch, durable: cfg.Durable, declared: make(map[string]bool)}, nil
}

// declare 按需声明队列。回复队列在消费者断开后自动删除。
func (b *RabbitMQBus) declare(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.declared[topic] {
		return nil
	}
	autoDelete := !b.durable
	if _, err := b.ch.QueueDeclare(topic, b.durable, autoDelete, false, false, nil); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "声明 RabbitMQ 队列失败", xerrors.WithMetadata("topic", topic))
	}
	b.declared[topic] = true
	return nil
}

// Publish 将消息投递到主题队列。
func (b *RabbitMQBus) Publish(ctx context.Context, topic string, env Envelope) error {
	if b == nil || b.ch == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "RabbitMQ 总线未初始化")
	}
	if err := b.declare(topic); err != nil {
		return err
	}
	raw, err := encode(env)
	if err != nil {
		return err
	}
	err = b.ch.PublishWithContext(ctx, "", topic, false, false, amqp.Publishing{
		ContentType:   "application/json",
		MessageId:     env.ID,
		CorrelationId: env.CorrelationID,
		ReplyTo:       env.ReplyTo,
		Type:          string(env.Kind),
		Body:          raw,
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "RabbitMQ 发布消息失败", xerrors.WithMetadata("topic", topic))
	}
	return nil
}

// Subscribe 以手动确认模式消费主题队列。可重试的失败会 Nack 并重新入队。
func (b *RabbitMQBus) Subscribe(ctx context.Context, topic string, workers int, handler Handler) error {
	if b == nil || b.ch == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "RabbitMQ 总线未初始化")
	}
	if err := b.declare(topic); err != nil {
		return err
	}
	if workers <= 0 {
		workers = 1
	}
	msgs, err := b.ch.Consume(topic, "", false, false, false, false, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "订阅 RabbitMQ 队列失败", xerrors.WithMetadata("topic", topic))
	}
	log := logger.Named("bus").With("topic", topic)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-msgs:
					if !ok {
						return
					}
					env, err := decode(msg.Body)
					if err != nil {
						log.Warn("丢弃无法解析的消息", "error", err)
						_ = msg.Ack(false)
						continue
					}
					if err := handler(ctx, env); err != nil && xerrors.RetryableError(err) && !msg.Redelivered {
						_ = msg.Nack(false, true)
						continue
					}
					_ = msg.Ack(false)
				}
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// Close 关闭 RabbitMQ 连接。
func (b *RabbitMQBus) Close() error {
	if b == nil {
		return nil
	}
	if b.ch != nil {
		_ = b.ch.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

// Package bus 是协调器与数据代理之间的消息总线。消息以 JSON 信封传输，
// 支持进程内 channel、Redis list 与 RabbitMQ 三种实现。
package bus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	xerrors "Superio-Chain/internal/errors"
)

// Kind 是信封中的消息类型。
type Kind string

const (
	KindCoinRequest   Kind = "coin_request"
	KindCoinResponse  Kind = "coin_response"
	KindFGIRequest    Kind = "fgi_request"
	KindFGIResponse   Kind = "fgi_response"
	KindError         Kind = "error"
	KindHealthRequest Kind = "health_request"
)

// 默认主题。回复主题由协调器实例自行生成。
const (
	TopicCoin      = "superio.coin"
	TopicSentiment = "superio.fgi"
)

// Envelope 是总线上传输的一条消息。CorrelationID 关联同一次聚合请求。
type Envelope struct {
	ID            string          `json:"id"`
	CorrelationID string          `json:"correlation_id"`
	Kind          Kind            `json:"kind"`
	ReplyTo       string          `json:"reply_to,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	SentAt        time.Time       `json:"sent_at"`
}

// NewEnvelope 编码 payload 并生成消息 ID。
func NewEnvelope(kind Kind, correlationID, replyTo string, payload any) (Envelope, error) {
	env := Envelope{
		ID:            uuid.NewString(),
		CorrelationID: correlationID,
		Kind:          kind,
		ReplyTo:       replyTo,
		SentAt:        time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码消息失败")
		}
		env.Payload = raw
	}
	return env, nil
}

// Decode 解析消息体。
func (e Envelope) Decode(out any) error {
	if len(e.Payload) == 0 {
		return xerrors.New(xerrors.CodeInvalidArgument, "消息体为空", xerrors.WithMetadata("kind", string(e.Kind)))
	}
	if err := json.Unmarshal(e.Payload, out); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析消息体失败", xerrors.WithMetadata("kind", string(e.Kind)))
	}
	return nil
}

// Handler 处理一条消息。
type Handler func(ctx context.Context, env Envelope) error

// Publisher 负责向主题投递消息。
type Publisher interface {
	Publish(ctx context.Context, topic string, env Envelope) error
}

// Subscriber 负责消费主题上的消息，阻塞直到 ctx 结束。
type Subscriber interface {
	Subscribe(ctx context.Context, topic string, workers int, handler Handler) error
}

// Bus 同时具备发布与订阅能力。
type Bus interface {
	Publisher
	Subscriber
	Close() error
}

func encode(env Envelope) ([]byte, error) {
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "编码信封失败")
	}
	return raw, nil
}

func decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, xerrors.Wrap(xerrors.CodeQueueFailure, err, "解析信封失败")
	}
	return env, nil
}

package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "Superio-Chain/internal/errors"
)

type coinPayload struct {
	CoinID string `json:"coin_id"`
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope(KindCoinRequest, "req-1", "replies", coinPayload{CoinID: "bitcoin"})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if env.ID == "" || env.SentAt.IsZero() {
		t.Fatalf("expected id and timestamp: %+v", env)
	}
	var out coinPayload
	if err := env.Decode(&out); err != nil || out.CoinID != "bitcoin" {
		t.Fatalf("decode: %v %+v", err, out)
	}
	if err := (Envelope{Kind: KindCoinResponse}).Decode(&out); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument for empty payload, got %v", err)
	}
}

func TestMemoryBusDelivers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	b := NewMemoryBus(8)
	received := make(chan Envelope, 1)
	go func() {
		_ = b.Subscribe(ctx, TopicCoin, 2, func(_ context.Context, env Envelope) error {
			received <- env
			return nil
		})
	}()

	env, _ := NewEnvelope(KindCoinRequest, "req-2", "", coinPayload{CoinID: "ethereum"})
	if err := b.Publish(ctx, TopicCoin, env); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case got := <-received:
		if got.CorrelationID != "req-2" {
			t.Fatalf("unexpected envelope: %+v", got)
		}
	case <-ctx.Done():
		t.Fatalf("message not delivered")
	}

	cancel()
	_ = b.Close()
	if err := b.Publish(context.Background(), TopicCoin, env); err == nil {
		t.Fatalf("expected publish on closed bus to fail")
	}
}

// stubRedis 只实现 LPush/BRPop/RPush。
type stubRedis struct {
	redis.Cmdable
	lists  map[string][]string
	pushed chan struct{}
}

func (s *stubRedis) LPush(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	for _, v := range values {
		s.lists[key] = append([]string{string(v.([]byte))}, s.lists[key]...)
	}
	return redis.NewIntResult(int64(len(s.lists[key])), nil)
}

func (s *stubRedis) RPush(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	for _, v := range values {
		s.lists[key] = append(s.lists[key], v.(string))
	}
	select {
	case s.pushed <- struct{}{}:
	default:
	}
	return redis.NewIntResult(int64(len(s.lists[key])), nil)
}

func (s *stubRedis) BRPop(ctx context.Context, _ time.Duration, keys ...string) *redis.StringSliceCmd {
	list := s.lists[keys[0]]
	if len(list) == 0 {
		<-ctx.Done()
		return redis.NewStringSliceResult(nil, ctx.Err())
	}
	last := list[len(list)-1]
	s.lists[keys[0]] = list[:len(list)-1]
	return redis.NewStringSliceResult([]string{keys[0], last}, nil)
}

func TestRedisBusRequeuesRetryableFailures(t *testing.T) {
	stub := &stubRedis{lists: map[string][]string{}, pushed: make(chan struct{}, 1)}
	b := NewRedis(stub, "test:", time.Second)

	env, _ := NewEnvelope(KindFGIRequest, "req-3", "", nil)
	if err := b.Publish(context.Background(), TopicSentiment, env); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(stub.lists["test:"+TopicSentiment]) != 1 {
		t.Fatalf("expected prefixed list, got %+v", stub.lists)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- b.Subscribe(ctx, TopicSentiment, 1, func(context.Context, Envelope) error {
			return xerrors.New(xerrors.CodeUpstreamUnavailable, "down")
		})
	}()

	select {
	case <-stub.pushed:
	case <-time.After(5 * time.Second):
		t.Fatalf("retryable failure was not requeued")
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

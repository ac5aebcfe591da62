package coordinator

import (
	"context"
	"log/slog"
	"sync"

	"Superio-Chain/internal/coordinator/bus"
	xerrors "Superio-Chain/internal/errors"
	"Superio-Chain/internal/gateway/coingecko"
	"Superio-Chain/internal/gateway/feargreed"
	"Superio-Chain/pkg/logger"
)

// MarketData 提供币种行情。
type MarketData interface {
	Coin(ctx context.Context, id string) (coingecko.Coin, bool)
}

// SentimentSource 提供恐惧贪婪指数。
type SentimentSource interface {
	Index(ctx context.Context, limit int) (feargreed.Index, bool)
}

// Worker 是行情与情绪两个数据代理，消费请求主题并把结果回复到 ReplyTo。
type Worker struct {
	bus       bus.Bus
	market    MarketData
	sentiment SentimentSource
	workers   int
	log       *slog.Logger
}

// WorkerOption 定义可选配置。
type WorkerOption func(*Worker)

// WithWorkerCount 设置每个主题的消费协程数量。
func WithWorkerCount(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.workers = n
		}
	}
}

// NewWorker 创建数据代理。
func NewWorker(b bus.Bus, market MarketData, sentiment SentimentSource, opts ...WorkerOption) *Worker {
	w := &Worker{bus: b, market: market, sentiment: sentiment, workers: 2, log: logger.Named("coordinator.worker")}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Start 同时消费行情与情绪主题，任一订阅退出即返回。
func (w *Worker) Start(ctx context.Context) error {
	if w.bus == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置消息总线")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	for topic, handler := range map[string]bus.Handler{
		bus.TopicCoin:      w.handleCoin,
		bus.TopicSentiment: w.handleSentiment,
	} {
		wg.Add(1)
		go func(topic string, handler bus.Handler) {
			defer wg.Done()
			errCh <- w.bus.Subscribe(ctx, topic, w.workers, handler)
		}(topic, handler)
	}
	w.log.Info("数据代理启动", "workers", w.workers)

	err := <-errCh
	cancel()
	wg.Wait()
	return err
}

func (w *Worker) handleCoin(ctx context.Context, env bus.Envelope) error {
	var req CoinRequest
	if err := env.Decode(&req); err != nil {
		return w.replyError(ctx, env, newErrorMessage(ErrorTypeBadRequest, err.Error(), subCoin))
	}
	if w.market == nil {
		return w.replyError(ctx, env, newErrorMessage(ErrorTypeUpstream, "market data source not configured", subCoin))
	}
	coin, ok := w.market.Coin(ctx, req.CoinID)
	if !ok {
		return w.replyError(ctx, env, newErrorMessage(ErrorTypeUpstream, "coin data unavailable for "+req.CoinID, subCoin))
	}
	if coin.ID == "" {
		coin.ID = req.CoinID
	}
	return w.reply(ctx, env, bus.KindCoinResponse, coin)
}

func (w *Worker) handleSentiment(ctx context.Context, env bus.Envelope) error {
	req := FGIRequest{Limit: 1}
	if len(env.Payload) > 0 {
		if err := env.Decode(&req); err != nil {
			return w.replyError(ctx, env, newErrorMessage(ErrorTypeBadRequest, err.Error(), subSentiment))
		}
	}
	if w.sentiment == nil {
		return w.replyError(ctx, env, newErrorMessage(ErrorTypeUpstream, "sentiment source not configured", subSentiment))
	}
	index, ok := w.sentiment.Index(ctx, req.Limit)
	if !ok {
		return w.replyError(ctx, env, newErrorMessage(ErrorTypeUpstream, "fear & greed index unavailable", subSentiment))
	}
	return w.reply(ctx, env, bus.KindFGIResponse, index)
}

func (w *Worker) replyError(ctx context.Context, env bus.Envelope, msg *ErrorMessage) error {
	w.log.Warn("子请求失败", "correlation_id", env.CorrelationID, "error_type", msg.ErrorType, "error", msg.Message)
	return w.reply(ctx, env, bus.KindError, msg)
}

func (w *Worker) reply(ctx context.Context, env bus.Envelope, kind bus.Kind, payload any) error {
	if env.ReplyTo == "" {
		w.log.Warn("消息缺少回复主题，丢弃结果", "correlation_id", env.CorrelationID, "kind", kind)
		return nil
	}
	out, err := bus.NewEnvelope(kind, env.CorrelationID, "", payload)
	if err != nil {
		return err
	}
	return w.bus.Publish(ctx, env.ReplyTo, out)
}

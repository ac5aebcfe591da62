package coordinator

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"Superio-Chain/internal/coordinator/bus"
	xerrors "Superio-Chain/internal/errors"
	"Superio-Chain/internal/gateway/coingecko"
	"Superio-Chain/internal/gateway/feargreed"
	"Superio-Chain/internal/intent"
	"Superio-Chain/internal/llm"
	"Superio-Chain/internal/observability/metrics"
	"Superio-Chain/pkg/logger"
)

// 子请求类型。
const (
	subCoin      = "coin"
	subSentiment = "fgi"
)

const (
	// DefaultTimeout 是单次聚合的默认等待时间。
	DefaultTimeout    = 10 * time.Second
	defaultLLMTimeout = 30 * time.Second
	replyTopicPrefix  = "superio.replies."
	replyWorkers      = 4
)

type outcome struct {
	response *AnalysisResponse
	err      error
}

// pending 是一次进行中的聚合。只在持有 Coordinator.mu 时读写。
type pending struct {
	sender      string
	query       string
	coinID      string
	coin        *coingecko.Coin
	sentiment   *feargreed.Index
	outstanding map[string]struct{}
	deadline    time.Time
	timer       *time.Timer
	done        chan outcome
}

func (p *pending) missing() []string {
	out := make([]string, 0, len(p.outstanding))
	for kind := range p.outstanding {
		out = append(out, kind)
	}
	sort.Strings(out)
	return out
}

// Coordinator 把一次币种分析拆成行情与情绪两个子请求并行发出，
// 在两者都返回或超时后合成结果。
type Coordinator struct {
	bus        bus.Bus
	llmClient  llm.Client
	classifier *Classifier
	replyTopic string
	timeout    time.Duration
	llmTimeout time.Duration
	log        *slog.Logger

	mu      sync.Mutex
	pending map[string]*pending

	started     time.Time
	processed   atomic.Int64
	lastRequest atomic.Int64
}

// Option 定义可选配置。
type Option func(*Coordinator)

// WithLLM 配置用于意图识别与分析的大模型。
func WithLLM(client llm.Client) Option { return func(c *Coordinator) { c.llmClient = client } }

// WithTimeout 设置单次聚合的等待时间。
func WithTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithLLMTimeout 设置大模型调用超时。
func WithLLMTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) {
		if timeout > 0 {
			c.llmTimeout = timeout
		}
	}
}

// WithReplyTopic 指定回复主题，默认每个实例生成独立主题。
func WithReplyTopic(topic string) Option {
	return func(c *Coordinator) {
		if topic = strings.TrimSpace(topic); topic != "" {
			c.replyTopic = topic
		}
	}
}

// New 创建协调器。调用 Run 之后才能收到子请求的回复。
func New(b bus.Bus, opts ...Option) *Coordinator {
	c := &Coordinator{
		bus:        b,
		replyTopic: replyTopicPrefix + uuid.NewString(),
		timeout:    DefaultTimeout,
		llmTimeout: defaultLLMTimeout,
		log:        logger.Named("coordinator"),
		pending:    make(map[string]*pending),
		started:    time.Now(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.classifier = NewClassifier(c.llmClient, c.llmTimeout)
	return c
}

// ReplyTopic 返回本实例的回复主题。
func (c *Coordinator) ReplyTopic() string { return c.replyTopic }

// Run 消费回复主题，阻塞直到 ctx 结束。
func (c *Coordinator) Run(ctx context.Context) error {
	if c.bus == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置消息总线")
	}
	c.log.Info("协调器启动", "reply_topic", c.replyTopic, "timeout", c.timeout)
	return c.bus.Subscribe(ctx, c.replyTopic, replyWorkers, c.handleReply)
}

// Handle 识别意图，DeFi 请求交给 Analyze，其余返回固定回复。
func (c *Coordinator) Handle(ctx context.Context, req Request) (*Response, error) {
	class := c.classifier.Classify(ctx, req.Query)
	c.log.Info("协调器识别意图", "intent", class.Intent, "confidence", class.Confidence, "method", class.Method)

	if class.Intent != IntentDeFi {
		c.markProcessed()
		return &Response{
			Query:      req.Query,
			Intent:     class.Intent,
			AgentUsed:  agentCoordinator,
			Response:   defaultGeneralAnswer,
			Confidence: class.Confidence,
			Timestamp:  time.Now().UTC(),
		}, nil
	}

	coinID, _ := intent.ExtractCoin(req.Query)
	analysis, err := c.Analyze(ctx, AnalysisRequest{CoinID: coinID, Query: req.Query, Sender: req.UserID})
	if err != nil {
		return nil, err
	}
	return &Response{
		Query:      req.Query,
		Intent:     class.Intent,
		AgentUsed:  agentDeFi,
		Response:   FormatResponse(analysis),
		Confidence: class.Confidence,
		Metadata:   map[string]any{"coin_id": analysis.CoinID, "recommendation": analysis.Recommendation},
		Partial:    analysis.Partial,
		Timestamp:  time.Now().UTC(),
	}, nil
}

// Analyze 并行发出子请求并等待聚合结果。超时且缺少行情时返回 *ErrorMessage。
func (c *Coordinator) Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResponse, error) {
	if c.bus == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置消息总线")
	}
	coinID := intent.CoinID(req.CoinID)
	if coinID == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "coin_id 不能为空")
	}
	includeFGI := req.IncludeFGI == nil || *req.IncludeFGI

	id := uuid.NewString()
	p := &pending{
		sender:      req.Sender,
		query:       req.Query,
		coinID:      coinID,
		outstanding: map[string]struct{}{subCoin: {}},
		deadline:    time.Now().Add(c.timeout),
		done:        make(chan outcome, 1),
	}
	if includeFGI {
		p.outstanding[subSentiment] = struct{}{}
	}
	log := logger.FromContext(ctx, c.log).With("correlation_id", id, "coin_id", coinID)

	c.mu.Lock()
	c.pending[id] = p
	p.timer = time.AfterFunc(c.timeout, func() { c.expire(id) })
	c.mu.Unlock()

	coinEnv, err := bus.NewEnvelope(bus.KindCoinRequest, id, c.replyTopic, CoinRequest{CoinID: coinID})
	if err == nil {
		err = c.bus.Publish(ctx, bus.TopicCoin, coinEnv)
	}
	if err != nil {
		c.abandon(id)
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "发布行情请求失败")
	}
	if includeFGI {
		fgiEnv, err := bus.NewEnvelope(bus.KindFGIRequest, id, c.replyTopic, FGIRequest{Limit: 1})
		if err == nil {
			err = c.bus.Publish(ctx, bus.TopicSentiment, fgiEnv)
		}
		if err != nil {
			log.Warn("发布情绪请求失败，不再等待情绪数据", "error", err)
			c.collect(ctx, id, subSentiment, nil)
		}
	}
	log.Info("已发出子请求", "include_fgi", includeFGI, "deadline", p.deadline)

	select {
	case out := <-p.done:
		return out.response, out.err
	case <-ctx.Done():
		c.abandon(id)
		return nil, xerrors.Wrap(xerrors.CodeTimeout, ctx.Err(), "等待分析结果时请求被取消")
	}
}

func (c *Coordinator) handleReply(ctx context.Context, env bus.Envelope) error {
	switch env.Kind {
	case bus.KindCoinResponse:
		var coin coingecko.Coin
		if err := env.Decode(&coin); err != nil {
			c.fail(env.CorrelationID, newErrorMessage(ErrorTypeAnalysis, err.Error(), subCoin))
			return nil
		}
		c.collect(ctx, env.CorrelationID, subCoin, func(p *pending) { p.coin = &coin })
	case bus.KindFGIResponse:
		var index feargreed.Index
		if err := env.Decode(&index); err != nil {
			c.collect(ctx, env.CorrelationID, subSentiment, nil)
			return nil
		}
		c.collect(ctx, env.CorrelationID, subSentiment, func(p *pending) { p.sentiment = &index })
	case bus.KindError:
		var msg ErrorMessage
		if err := env.Decode(&msg); err != nil {
			msg = *newErrorMessage(ErrorTypeAnalysis, err.Error(), "")
		}
		if msg.Source == subSentiment {
			// 情绪数据缺失不影响分析。
			c.collect(ctx, env.CorrelationID, subSentiment, nil)
			return nil
		}
		c.fail(env.CorrelationID, &msg)
	default:
		c.log.Warn("忽略未知的回复类型", "kind", env.Kind, "correlation_id", env.CorrelationID)
	}
	return nil
}

// collect 记录一个子请求的结果，outstanding 为空时立即合成。
func (c *Coordinator) collect(ctx context.Context, id, kind string, apply func(*pending)) {
	c.mu.Lock()
	p, ok := c.pending[id]
	if !ok {
		c.mu.Unlock()
		c.log.Debug("聚合已结束，丢弃迟到的回复", "correlation_id", id, "kind", kind)
		return
	}
	if apply != nil {
		apply(p)
	}
	delete(p.outstanding, kind)
	if len(p.outstanding) > 0 {
		c.mu.Unlock()
		return
	}
	delete(c.pending, id)
	p.timer.Stop()
	c.mu.Unlock()

	c.synthesize(ctx, id, p, false)
}

// expire 在截止时间到达时用已有数据强制合成。
func (c *Coordinator) expire(id string) {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	if p.coin == nil {
		c.log.Warn("聚合超时且缺少行情数据", "correlation_id", id, "missing", p.missing())
		metrics.ObserveCoordinator("timeout")
		p.done <- outcome{err: newErrorMessage(ErrorTypeTimeout, "timed out waiting for coin data", "")}
		return
	}
	c.log.Warn("聚合超时，使用部分数据合成", "correlation_id", id, "missing", p.missing())
	c.synthesize(context.Background(), id, p, true)
}

func (c *Coordinator) fail(id string, msg *ErrorMessage) {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
		p.timer.Stop()
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	c.log.Warn("子请求失败", "correlation_id", id, "error_type", msg.ErrorType, "error", msg.Message)
	metrics.ObserveCoordinator("error")
	p.done <- outcome{err: msg}
}

func (c *Coordinator) abandon(id string) {
	c.mu.Lock()
	if p, ok := c.pending[id]; ok {
		p.timer.Stop()
		delete(c.pending, id)
	}
	c.mu.Unlock()
}

// synthesize 在锁外运行，p 此时已从 pending 中移除。
func (c *Coordinator) synthesize(ctx context.Context, id string, p *pending, partial bool) {
	if p.coin == nil {
		metrics.ObserveCoordinator("error")
		p.done <- outcome{err: newErrorMessage(ErrorTypeAnalysis, "No coin data available", subCoin)}
		return
	}
	analysis, rec := c.analyze(ctx, *p.coin, p.sentiment, p.query)
	resp := &AnalysisResponse{
		RequestID:      id,
		CoinID:         p.coinID,
		Analysis:       analysis,
		Recommendation: rec,
		CoinData:       p.coin,
		FGIData:        p.sentiment,
		Partial:        partial,
		Timestamp:      time.Now().UTC(),
	}
	if partial {
		resp.Missing = p.missing()
		metrics.ObserveCoordinator("partial")
	} else {
		metrics.ObserveCoordinator("complete")
	}
	c.markProcessed()
	p.done <- outcome{response: resp}
}

func (c *Coordinator) markProcessed() {
	c.processed.Add(1)
	c.lastRequest.Store(time.Now().UnixNano())
}

// Health 返回运行状态。
func (c *Coordinator) Health() Health {
	c.mu.Lock()
	inflight := len(c.pending)
	c.mu.Unlock()
	h := Health{
		AgentName:         agentCoordinator,
		Status:            "HEALTHY",
		Uptime:            time.Since(c.started).Seconds(),
		RequestsProcessed: c.processed.Load(),
		Metadata:          map[string]any{"pending_requests": inflight, "reply_topic": c.replyTopic},
	}
	if c.bus == nil {
		h.Status = "DEGRADED"
	}
	if last := c.lastRequest.Load(); last > 0 {
		t := time.Unix(0, last).UTC()
		h.LastRequest = &t
	}
	return h
}

package router

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "Superio-Chain/internal/errors"
	"Superio-Chain/internal/gateway/blockscout"
	"Superio-Chain/internal/gateway/coingecko"
	"Superio-Chain/internal/gateway/defillama"
	"Superio-Chain/internal/gateway/feargreed"
	"Superio-Chain/internal/intent"
	"Superio-Chain/internal/knowledge"
	"Superio-Chain/internal/llm"
	"Superio-Chain/internal/observability/alerting"
	"Superio-Chain/internal/observability/metrics"
	"Superio-Chain/pkg/logger"
)

// tools_used 中 source 字段的取值。
const (
	SourceFunctionCall = "AI Function Call"
	SourceGeneral      = "ASI:One Mini"
	SourceKeyword      = "Keyword Fallback"
	SourceCoinGecko    = "CoinGecko API"
	SourceFearGreed    = "Alternative.me API"
	SourceChart        = "Chart-IMG API & AI Vision Analysis"
	SourceBlockscout   = "Blockscout MCP API"
	SourceDeFiLlama    = "DeFiLlama API"
	SourceSystem       = "System"
)

// ApologyText 是分发失败时返回给用户的固定文本。
const ApologyText = "Sorry, I encountered an error processing your request. Please try again."

const (
	classifyTemperature = 0.7
	classifyMaxTokens   = 600
	answerMaxTokens     = 400
	explainMaxTokens    = 500
	defaultLLMTimeout   = 60 * time.Second
	defaultPublicURL    = "http://localhost:5001"
)

// Request 是一条待路由的用户消息。Context 为之前的对话摘录。
type Request struct {
	Message string `json:"message"`
	UserID  string `json:"user_id,omitempty"`
	Context string `json:"context,omitempty"`
}

// ToolRecord 是 tools_used 中的一条来源记录。
type ToolRecord struct {
	Name           string            `json:"name"`
	Source         string            `json:"source"`
	Arguments      map[string]any    `json:"arguments,omitempty"`
	Type           string            `json:"type,omitempty"`
	ChainID        string            `json:"chain_id,omitempty"`
	ChartURL       string            `json:"chart_url,omitempty"`
	Recommendation string            `json:"recommendation,omitempty"`
	Filters        map[string]any    `json:"filters,omitempty"`
	ResultsCount   *int              `json:"results_count,omitempty"`
	Data           map[string]string `json:"data,omitempty"`
	Error          string            `json:"error,omitempty"`
}

// Reply 是路由结果。ToolsUsed 始终非空。
type Reply struct {
	Response        string                  `json:"response"`
	ToolsUsed       []ToolRecord            `json:"tools_used"`
	SendUI          *intent.SendUI          `json:"send_ui,omitempty"`
	SwapUI          *intent.SwapUI          `json:"swap_ui,omitempty"`
	YieldPools      []defillama.PoolView    `json:"yield_pools,omitempty"`
	ChartURL        string                  `json:"chart_url,omitempty"`
	ChartAnalysis   string                  `json:"chart_analysis,omitempty"`
	TransactionInfo json.RawMessage         `json:"transaction_info,omitempty"`
	AddressInfo     *blockscout.AddressInfo `json:"address_info,omitempty"`
	TokenCount      *int                    `json:"token_count,omitempty"`
	TxCount         *int                    `json:"transaction_count,omitempty"`
	MeTTaKnowledge  *knowledge.Summary      `json:"metta_knowledge,omitempty"`
	RequestID       string                  `json:"request_id,omitempty"`
}

func (rp *Reply) primary() *ToolRecord { return &rp.ToolsUsed[0] }

// MarketData 提供币种行情。
type MarketData interface {
	Coin(ctx context.Context, id string) (coingecko.Coin, bool)
}

// SentimentSource 提供恐惧贪婪指数。
type SentimentSource interface {
	Index(ctx context.Context, limit int) (feargreed.Index, bool)
}

// YieldSource 提供收益池列表。
type YieldSource interface {
	Pools(ctx context.Context) ([]defillama.Pool, bool)
}

// ChainExplorer 是链上数据查询能力。
type ChainExplorer interface {
	AddressInfo(ctx context.Context, chainID, address string) (blockscout.AddressInfo, bool)
	Tokens(ctx context.Context, chainID, address string) ([]blockscout.TokenHolding, bool)
	Transactions(ctx context.Context, chainID, address string, limit int) ([]blockscout.Transaction, bool)
	TokenTransfers(ctx context.Context, chainID, address string, limit int) ([]blockscout.TokenTransfer, bool)
	TransactionInfo(ctx context.Context, chainID, hash string) (blockscout.TransactionInfo, error)
	TransactionSummary(ctx context.Context, chainID, hash string) string
	ProbeChain(ctx context.Context, address string, candidates []blockscout.Chain) (blockscout.Chain, blockscout.AddressInfo, bool)
	NFTs(ctx context.Context, chainID, address string) ([]json.RawMessage, bool)
	ContractABI(ctx context.Context, chainID, address string) (json.RawMessage, bool)
	ResolveENS(ctx context.Context, name string) (string, bool)
}

// ChartRenderer 生成并读取 K 线图。
type ChartRenderer interface {
	Render(ctx context.Context, symbol, exchange, interval, indicator string) (string, error)
	Read(name string) ([]byte, error)
}

// BalanceProbe 通过节点 RPC 找出候选链中第一条有原生余额的链。
type BalanceProbe interface {
	FirstFunded(ctx context.Context, address string, candidates []blockscout.Chain) (blockscout.Chain, bool)
}

// Router 选择工具并组装带来源记录的回复。
type Router struct {
	llmClient   llm.Client
	market      MarketData
	sentiment   SentimentSource
	yields      YieldSource
	explorer    ChainExplorer
	charts      ChartRenderer
	knowledge   knowledge.Provider
	rater       intent.Rater
	fallback    *KeywordClassifier
	alerts      alerting.Dispatcher
	probeChains []blockscout.Chain
	balances    BalanceProbe
	llmTimeout  time.Duration
	publicURL   string
	visionModel string
	log         *slog.Logger
}

// Option 定义可选的 Router 配置。
type Option func(*Router)

// WithMarketData 配置行情数据源。
func WithMarketData(m MarketData) Option { return func(r *Router) { r.market = m } }

// WithSentiment 配置恐惧贪婪指数数据源。
func WithSentiment(s SentimentSource) Option { return func(r *Router) { r.sentiment = s } }

// WithYields 配置收益池数据源。
func WithYields(y YieldSource) Option { return func(r *Router) { r.yields = y } }

// WithExplorer 配置链上浏览器。
func WithExplorer(e ChainExplorer) Option { return func(r *Router) { r.explorer = e } }

// WithCharts 配置图表服务。
func WithCharts(c ChartRenderer) Option { return func(r *Router) { r.charts = c } }

// WithKnowledgeProvider 配置知识库，用于解释类问题。
func WithKnowledgeProvider(p knowledge.Provider) Option { return func(r *Router) { r.knowledge = p } }

// WithRater 配置兑换汇率解析器。
func WithRater(rater intent.Rater) Option { return func(r *Router) { r.rater = rater } }

// WithAlerts 配置告警分发器。
func WithAlerts(d alerting.Dispatcher) Option { return func(r *Router) { r.alerts = d } }

// WithProbeChains 设置地址分析时依次探测的链。
func WithProbeChains(chains []blockscout.Chain) Option {
	return func(r *Router) {
		if len(chains) > 0 {
			r.probeChains = chains
		}
	}
}

// WithBalanceProbe 配置 RPC 余额探测，命中的链会排到探测顺序最前。
func WithBalanceProbe(p BalanceProbe) Option { return func(r *Router) { r.balances = p } }

// WithLLMTimeout 设置调用大模型的超时时间，非正数表示不限制。
func WithLLMTimeout(timeout time.Duration) Option {
	return func(r *Router) {
		if timeout <= 0 {
			r.llmTimeout = 0
			return
		}
		r.llmTimeout = timeout
	}
}

// WithPublicURL 设置拼接图表地址使用的对外地址。
func WithPublicURL(url string) Option {
	return func(r *Router) {
		if url = strings.TrimRight(strings.TrimSpace(url), "/"); url != "" {
			r.publicURL = url
		}
	}
}

// WithVisionModel 指定图表分析使用的视觉模型。
func WithVisionModel(model string) Option { return func(r *Router) { r.visionModel = strings.TrimSpace(model) } }

// New 创建路由器。
func New(llmClient llm.Client, opts ...Option) *Router {
	r := &Router{
		llmClient:   llmClient,
		rater:       intent.StaticRater{},
		probeChains: blockscout.DefaultProbeChains(),
		llmTimeout:  defaultLLMTimeout,
		publicURL:   defaultPublicURL,
		log:         logger.Named("router"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.knowledge == nil {
		r.knowledge = knowledge.DefaultProvider(knowledge.DefaultMaxSnippets)
	}
	r.fallback = NewKeywordClassifier(r.rater)
	return r
}

type handlerFunc func(r *Router, ctx context.Context, req Request, raw json.RawMessage, reply *Reply) error

var handlers = map[Tool]handlerFunc{
	ToolSendToken:              (*Router).handleSend,
	ToolSwapToken:              (*Router).handleSwap,
	ToolAnalyzeChart:           (*Router).handleChart,
	ToolLookupTransaction:      (*Router).handleLookupTransaction,
	ToolAnalyzeAddress:         (*Router).handleAnalyzeAddress,
	ToolGetAddressTokens:       (*Router).handleAddressTokens,
	ToolGetAddressTransactions: (*Router).handleAddressTransactions,
	ToolGetCryptoInfo:          (*Router).handleCryptoInfo,
	ToolGetYieldPools:          (*Router).handleYieldPools,
	ToolExplainTransaction:     (*Router).handleExplain,
}

// Handle 对一条消息执行一次完整路由。任何分发错误或 panic 都被转换成致歉回复。
func (r *Router) Handle(ctx context.Context, req Request) (reply *Reply) {
	requestID := logger.RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = logger.WithRequestID(ctx, requestID)
	}
	log := logger.FromContext(ctx, r.log)
	tool := ToolGeneral

	defer func() {
		if p := recover(); p != nil {
			log.Error("工具分发发生 panic", "tool", tool, "panic", p, "stack", string(debug.Stack()))
			reply = r.fail(ctx, tool, xerrors.New(xerrors.CodeUnknown, fmt.Sprintf("panic: %v", p)), nil)
		}
		reply.RequestID = requestID
	}()

	if strings.TrimSpace(req.Message) == "" {
		return r.fail(ctx, tool, xerrors.New(xerrors.CodeInvalidArgument, "消息不能为空"), nil)
	}

	resp, err := r.classify(ctx, req)
	if err != nil {
		log.Warn("意图识别失败，改用关键字兜底", "error", err)
		metrics.ObserveToolDispatch("classifier", "fallback")
		return r.handleFallback(ctx, req)
	}

	if len(resp.ToolCalls) == 0 {
		metrics.ObserveToolDispatch(string(ToolGeneral), "ok")
		return &Reply{
			Response:  resp.Content,
			ToolsUsed: []ToolRecord{{Name: "General Conversation", Source: SourceGeneral, Type: "direct_response"}},
		}
	}

	call := resp.ToolCalls[0]
	tool = Tool(call.Name)
	out, err := r.dispatch(ctx, req, call.Name, call.Arguments, SourceFunctionCall)
	if err != nil {
		return r.fail(ctx, tool, err, out)
	}
	return out
}

// classify 让模型在工具清单中做选择。
func (r *Router) classify(ctx context.Context, req Request) (*llm.Response, error) {
	user := req.Message
	if strings.TrimSpace(req.Context) != "" {
		user = fmt.Sprintf("Previous conversation:\n%s\n\nCurrent message: %s", req.Context, req.Message)
	}
	resp, err := r.complete(ctx, llm.Request{
		Messages:    []llm.Message{llm.System(systemPrompt), llm.User(user)},
		Tools:       menu,
		ToolChoice:  "auto",
		Temperature: llm.Temperature(classifyTemperature),
		MaxTokens:   classifyMaxTokens,
	})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeClassificationFailure, err, "工具选择失败")
	}
	return resp, nil
}

// dispatch 校验工具名并调用对应处理器。
// 处理器出错或 panic 时仍返回已记录的工具条目，供 fail 标注错误。
func (r *Router) dispatch(ctx context.Context, req Request, name string, raw json.RawMessage, source string) (reply *Reply, err error) {
	tool, err := ParseTool(name)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeClassificationFailure, err, "模型选择了未知工具")
	}
	args, err := argumentMap(raw)
	if err != nil {
		return &Reply{ToolsUsed: []ToolRecord{{Name: name, Source: source}}}, err
	}
	log := logger.FromContext(ctx, r.log)
	log.Info("分发工具", "tool", tool, "source", source, "arguments", args)

	reply = &Reply{ToolsUsed: []ToolRecord{{Name: name, Source: source, Arguments: args}}}
	defer func() {
		if p := recover(); p != nil {
			log.Error("工具执行发生 panic", "tool", tool, "panic", p, "stack", string(debug.Stack()))
			err = xerrors.New(xerrors.CodeUnknown, fmt.Sprintf("panic: %v", p))
		}
		if err != nil {
			metrics.ObserveToolDispatch(string(tool), "error")
			return
		}
		metrics.ObserveToolDispatch(string(tool), "ok")
	}()
	err = handlers[tool](r, ctx, req, raw, reply)
	return reply, err
}

// fail 记录错误并返回致歉回复，必要时触发告警。
// partial 携带分发前已记录的工具条目，错误标注在首条记录上。
func (r *Router) fail(ctx context.Context, tool Tool, err error, partial *Reply) *Reply {
	requestID := logger.RequestID(ctx)
	logger.FromContext(ctx, r.log).Error("请求处理失败", "tool", tool, "code", xerrors.CodeOf(err), "error", err)
	metrics.ObserveToolDispatch(string(tool), "failed")
	if r.alerts != nil {
		if event, ok := alerting.FromError(err, "router", requestID); ok {
			if event.Metadata == nil {
				event.Metadata = map[string]string{}
			}
			event.Metadata["tool"] = string(tool)
			if notifyErr := r.alerts.Notify(ctx, event); notifyErr != nil {
				r.log.Warn("告警发送失败", "error", notifyErr)
			}
		}
	}
	if partial != nil && len(partial.ToolsUsed) > 0 {
		record := partial.ToolsUsed[0]
		record.Error = userError(err)
		return &Reply{Response: ApologyText, ToolsUsed: []ToolRecord{record}}
	}
	return &Reply{
		Response:  ApologyText,
		ToolsUsed: []ToolRecord{{Name: "Error Handler", Source: SourceSystem, Error: userError(err)}},
	}
}

// userError 只暴露错误码与描述，不包含上游细节。
func userError(err error) string {
	if e, ok := xerrors.From(err); ok {
		return fmt.Sprintf("%s: %s", e.Code(), e.Message())
	}
	return "internal error"
}

// complete 调用大模型并统一超时与错误码。
func (r *Router) complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if r.llmClient == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置大模型客户端")
	}
	if r.llmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.llmTimeout)
		defer cancel()
	}
	resp, err := r.llmClient.Complete(ctx, req)
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "大模型推理超时")
		}
		if _, ok := xerrors.From(err); ok {
			return nil, err
		}
		return nil, xerrors.Wrap(xerrors.CodeExecutorFailure, err, "大模型推理失败")
	}
	if resp == nil {
		return nil, xerrors.New(xerrors.CodeExecutorFailure, "大模型返回空响应")
	}
	return resp, nil
}

// answer 是只需要文本结果的补全。
func (r *Router) answer(ctx context.Context, system, user string, maxTokens int) (string, error) {
	resp, err := r.complete(ctx, llm.Request{
		Messages:    []llm.Message{llm.System(system), llm.User(user)},
		Temperature: llm.Temperature(classifyTemperature),
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func intPtr(v int) *int { return &v }

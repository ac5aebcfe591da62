package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"Superio-Chain/internal/coordinator"
	"Superio-Chain/internal/gateway/coingecko"
	"Superio-Chain/internal/gateway/defillama"
	"Superio-Chain/internal/gateway/feargreed"
	"Superio-Chain/internal/history"
	"Superio-Chain/internal/observability/metrics"
	"Superio-Chain/internal/router"
	"Superio-Chain/pkg/logger"
)

const serviceName = "superio-chain"

// ChatRouter 处理自然语言聊天请求。
type ChatRouter interface {
	Handle(ctx context.Context, req router.Request) *router.Reply
}

// Analyzer 是多代理协调器的入口。
type Analyzer interface {
	Handle(ctx context.Context, req coordinator.Request) (*coordinator.Response, error)
	Analyze(ctx context.Context, req coordinator.AnalysisRequest) (*coordinator.AnalysisResponse, error)
	Health() coordinator.Health
}

// MarketData 提供币种行情。
type MarketData interface {
	Coin(ctx context.Context, id string) (coingecko.Coin, bool)
}

// SentimentSource 提供恐惧贪婪指数。
type SentimentSource interface {
	Index(ctx context.Context, limit int) (feargreed.Index, bool)
}

// DeFiData 提供协议 TVL 与收益池。
type DeFiData interface {
	Protocols(ctx context.Context) ([]defillama.ProtocolSummary, bool)
	Protocol(ctx context.Context, name string) (defillama.Protocol, bool)
	Pools(ctx context.Context) ([]defillama.Pool, bool)
}

// ChartStore 把图表文件名解析为磁盘路径。
type ChartStore interface {
	Open(name string) (string, error)
}

// ChainStatus 返回已配置链的最新区块信息。
type ChainStatus interface {
	Snapshots(ctx context.Context) map[string]any
}

// Deps 汇总 API 依赖，缺失的依赖会让对应接口返回 503。
type Deps struct {
	Router      ChatRouter
	Coordinator Analyzer
	History     *history.Service
	Market      MarketData
	Sentiment   SentimentSource
	DeFi        DeFiData
	Charts      ChartStore
	Chains      ChainStatus
}

// Server 负责暴露 REST 接口。
type Server struct {
	addr string
	deps Deps
	log  *slog.Logger
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, deps Deps) *Server {
	return &Server{addr: addr, deps: deps, log: logger.Named("api")}
}

// Handler 返回挂载了全部路由与中间件的处理器。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/chat/history", s.handleChatHistory)
	mux.HandleFunc("POST /api/chat/message", s.handleChatMessage)
	mux.HandleFunc("PUT /api/chat/summary", s.handleChatSummary)
	mux.HandleFunc("POST /api/defi/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /api/coin/{id}", s.handleCoin)
	mux.HandleFunc("GET /api/fgi", s.handleFGI)
	mux.HandleFunc("GET /api/protocols", s.handleProtocols)
	mux.HandleFunc("GET /api/protocol/{name}", s.handleProtocol)
	mux.HandleFunc("GET /api/yield/metta", s.handleYieldKnowledge)
	mux.HandleFunc("GET /api/chart/{file}", s.handleChart)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	return withCORS(s.instrument(mux))
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("API 服务已启动", "address", s.addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":    "healthy",
		"service":   serviceName,
		"timestamp": time.Now().UTC(),
	}
	if s.deps.Coordinator != nil {
		body["coordinator"] = s.deps.Coordinator.Health()
	}
	if s.deps.Chains != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		body["chains"] = s.deps.Chains.Snapshots(ctx)
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(out)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}

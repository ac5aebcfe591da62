package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"Superio-Chain/internal/coordinator"
	xerrors "Superio-Chain/internal/errors"
	"Superio-Chain/internal/gateway/defillama"
	"Superio-Chain/internal/knowledge"
	"Superio-Chain/pkg/logger"
)

// metta 接口最多纳入的安全池数量。
const knowledgePoolLimit = 20

type analyzeRequest struct {
	CoinID     string `json:"coin_id"`
	Query      string `json:"query,omitempty"`
	IncludeFGI *bool  `json:"include_fgi,omitempty"`
	UserID     string `json:"user_id,omitempty"`
}

// handleAnalyze 通过协调器执行行情与情绪的扇出聚合。
// 只给 query 时先做意图识别，给了 coin_id 则直接分析。
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.deps.Coordinator == nil {
		writeError(w, http.StatusServiceUnavailable, "coordinator not initialized")
		return
	}
	var req analyzeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.CoinID = strings.TrimSpace(req.CoinID)
	req.Query = strings.TrimSpace(req.Query)
	if req.CoinID == "" && req.Query == "" {
		writeError(w, http.StatusBadRequest, "coin_id or query is required")
		return
	}

	ctx := r.Context()
	if req.CoinID == "" {
		resp, err := s.deps.Coordinator.Handle(ctx, coordinator.Request{Query: req.Query, UserID: req.UserID})
		if err != nil {
			s.analysisError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp, err := s.deps.Coordinator.Analyze(ctx, coordinator.AnalysisRequest{
		CoinID:     req.CoinID,
		Query:      req.Query,
		IncludeFGI: req.IncludeFGI,
		Sender:     req.UserID,
	})
	if err != nil {
		s.analysisError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) analysisError(w http.ResponseWriter, r *http.Request, err error) {
	var msg *coordinator.ErrorMessage
	if errors.As(err, &msg) {
		status := http.StatusBadGateway
		switch msg.ErrorType {
		case coordinator.ErrorTypeTimeout:
			status = http.StatusGatewayTimeout
		case coordinator.ErrorTypeBadRequest:
			status = http.StatusBadRequest
		}
		writeJSON(w, status, msg)
		return
	}
	if xerrors.CodeOf(err) == xerrors.CodeInvalidArgument {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	logger.FromContext(r.Context(), s.log).Error("协调器分析失败", "error", err)
	writeError(w, http.StatusInternalServerError, "analysis failed")
}

func (s *Server) handleCoin(w http.ResponseWriter, r *http.Request) {
	if s.deps.Market == nil {
		writeError(w, http.StatusServiceUnavailable, "market data disabled")
		return
	}
	id := strings.ToLower(strings.TrimSpace(r.PathValue("id")))
	coin, ok := s.deps.Market.Coin(r.Context(), id)
	if !ok {
		writeError(w, http.StatusNotFound, "Failed to fetch coin data")
		return
	}
	writeJSON(w, http.StatusOK, coin)
}

func (s *Server) handleFGI(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sentiment == nil {
		writeError(w, http.StatusServiceUnavailable, "sentiment data disabled")
		return
	}
	limit := 1
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	index, ok := s.deps.Sentiment.Index(r.Context(), limit)
	if !ok {
		writeError(w, http.StatusBadGateway, "Failed to fetch Fear & Greed Index")
		return
	}
	writeJSON(w, http.StatusOK, index)
}

func (s *Server) handleProtocols(w http.ResponseWriter, r *http.Request) {
	if s.deps.DeFi == nil {
		writeError(w, http.StatusServiceUnavailable, "defi data disabled")
		return
	}
	protocols, ok := s.deps.DeFi.Protocols(r.Context())
	if !ok {
		writeError(w, http.StatusBadGateway, "Failed to fetch protocols")
		return
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 && limit < len(protocols) {
			protocols = protocols[:limit]
		}
	}
	writeJSON(w, http.StatusOK, protocols)
}

func (s *Server) handleProtocol(w http.ResponseWriter, r *http.Request) {
	if s.deps.DeFi == nil {
		writeError(w, http.StatusServiceUnavailable, "defi data disabled")
		return
	}
	protocol, ok := s.deps.DeFi.Protocol(r.Context(), r.PathValue("name"))
	if !ok {
		writeError(w, http.StatusNotFound, "Failed to fetch protocol data")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"protocol":    protocol,
		"current_tvl": protocol.CurrentTVL(),
	})
}

// handleYieldKnowledge 用安全收益池构建知识图谱并完整导出。
func (s *Server) handleYieldKnowledge(w http.ResponseWriter, r *http.Request) {
	if s.deps.DeFi == nil {
		writeError(w, http.StatusServiceUnavailable, "defi data disabled")
		return
	}
	pools, ok := s.deps.DeFi.Pools(r.Context())
	if !ok {
		writeError(w, http.StatusBadGateway, "Failed to fetch yield pools")
		return
	}
	c := knowledge.DefaultSafeCriteria
	safe := defillama.Safe(pools, c.MinAPY, c.MaxAPY, c.MinTVL)
	if len(safe) > knowledgePoolLimit {
		safe = safe[:knowledgePoolLimit]
	}
	graph := knowledge.Build(safe)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"pools_analyzed": len(safe),
		"knowledge":      graph.Export(),
	})
}

// handleChart 只提供图表目录下由渲染器生成的 PNG 文件。
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	if s.deps.Charts == nil {
		writeError(w, http.StatusServiceUnavailable, "charts disabled")
		return
	}
	path, err := s.deps.Charts.Open(r.PathValue("file"))
	if err != nil {
		switch xerrors.CodeOf(err) {
		case xerrors.CodeInvalidArgument:
			writeError(w, http.StatusBadRequest, "invalid chart name")
		default:
			writeError(w, http.StatusNotFound, "chart not found")
		}
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeFile(w, r, path)
}

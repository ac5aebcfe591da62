package coordinator

import (
	"fmt"
	"time"

	"Superio-Chain/internal/gateway/coingecko"
	"Superio-Chain/internal/gateway/feargreed"
)

// 错误消息的 error_type 取值。
const (
	ErrorTypeTimeout     = "TIMEOUT"
	ErrorTypeAnalysis    = "ANALYSIS_ERROR"
	ErrorTypeUpstream    = "UPSTREAM_UNAVAILABLE"
	ErrorTypeRouting     = "ROUTING_ERROR"
	ErrorTypeBadRequest  = "REQUEST_PROCESSING_ERROR"
	defaultGeneralAnswer = "I can help you with cryptocurrency and DeFi analysis. Try asking about Bitcoin, Ethereum, or other cryptocurrencies!"
)

// AnalysisRequest 请求一次币种分析。IncludeFGI 为空时默认包含恐惧贪婪指数。
type AnalysisRequest struct {
	CoinID     string `json:"coin_id"`
	Query      string `json:"query,omitempty"`
	IncludeFGI *bool  `json:"include_fgi,omitempty"`
	Sender     string `json:"sender,omitempty"`
}

// AnalysisResponse 是聚合后的分析结果。Partial 表示超时后用部分数据合成。
type AnalysisResponse struct {
	RequestID      string           `json:"request_id"`
	CoinID         string           `json:"coin_id"`
	Analysis       string           `json:"analysis"`
	Recommendation string           `json:"recommendation,omitempty"`
	CoinData       *coingecko.Coin  `json:"coin_data,omitempty"`
	FGIData        *feargreed.Index `json:"fgi_data,omitempty"`
	Partial        bool             `json:"partial"`
	Missing        []string         `json:"missing,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
}

// CoinRequest 请求币种行情。
type CoinRequest struct {
	CoinID string `json:"coin_id"`
}

// FGIRequest 请求恐惧贪婪指数。
type FGIRequest struct {
	Limit int `json:"limit"`
}

// ErrorMessage 是失败请求的错误消息，同时实现 error。
type ErrorMessage struct {
	Message   string    `json:"error"`
	ErrorType string    `json:"error_type"`
	Details   string    `json:"details,omitempty"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *ErrorMessage) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.ErrorType, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.ErrorType, e.Message)
}

func newErrorMessage(errorType, message, source string) *ErrorMessage {
	return &ErrorMessage{Message: message, ErrorType: errorType, Source: source, Timestamp: time.Now().UTC()}
}

// Request 是协调器的入口请求。
type Request struct {
	Query   string         `json:"query"`
	UserID  string         `json:"user_id,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// Response 是协调器的路由结果。
type Response struct {
	Query      string         `json:"query"`
	Intent     Intent         `json:"intent"`
	AgentUsed  string         `json:"agent_used"`
	Response   string         `json:"response"`
	Confidence float64        `json:"confidence"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Partial    bool           `json:"partial,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Health 是协调器的健康状态。
type Health struct {
	AgentName         string         `json:"agent_name"`
	Status            string         `json:"status"`
	Uptime            float64        `json:"uptime"`
	RequestsProcessed int64          `json:"requests_processed"`
	LastRequest       *time.Time     `json:"last_request_timestamp,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

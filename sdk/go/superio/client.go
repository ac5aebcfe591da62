// Package superio is a small client for the Superio chat and DeFi analysis API.
package superio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// DefaultHTTPTimeout covers a full chat round trip, which may include an LLM
// call and several upstream lookups.
const DefaultHTTPTimeout = 60 * time.Second

// Client wraps the HTTP interactions with the Superio REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// ChatRequest is the payload of POST /api/chat.
type ChatRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id,omitempty"`
	Context string `json:"context,omitempty"`
}

// ToolRecord is one provenance entry of a chat reply.
type ToolRecord struct {
	Name           string         `json:"name"`
	Source         string         `json:"source"`
	Arguments      map[string]any `json:"arguments,omitempty"`
	Type           string         `json:"type,omitempty"`
	ChainID        string         `json:"chain_id,omitempty"`
	ChartURL       string         `json:"chart_url,omitempty"`
	Recommendation string         `json:"recommendation,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// ChatReply is the router response. Structured attachments are kept raw so
// callers can decode only what they render.
type ChatReply struct {
	Response         string          `json:"response"`
	ToolsUsed        []ToolRecord    `json:"tools_used"`
	SendUI           json.RawMessage `json:"send_ui,omitempty"`
	SwapUI           json.RawMessage `json:"swap_ui,omitempty"`
	YieldPools       json.RawMessage `json:"yield_pools,omitempty"`
	ChartURL         string          `json:"chart_url,omitempty"`
	ChartAnalysis    string          `json:"chart_analysis,omitempty"`
	TransactionInfo  json.RawMessage `json:"transaction_info,omitempty"`
	AddressInfo      json.RawMessage `json:"address_info,omitempty"`
	TokenCount       *int            `json:"token_count,omitempty"`
	TransactionCount *int            `json:"transaction_count,omitempty"`
	MeTTaKnowledge   json.RawMessage `json:"metta_knowledge,omitempty"`
	RequestID        string          `json:"request_id,omitempty"`
}

// Message is a stored chat message.
type Message struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Conversation is the chat history of one wallet address.
type Conversation struct {
	WalletAddress string    `json:"wallet_address"`
	Summary       string    `json:"summary"`
	MessageCount  int       `json:"message_count"`
	Messages      []Message `json:"messages"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AnalysisRequest is the payload of POST /api/defi/analyze. Leave CoinID empty
// to let the coordinator classify Query first.
type AnalysisRequest struct {
	CoinID     string `json:"coin_id,omitempty"`
	Query      string `json:"query,omitempty"`
	IncludeFGI *bool  `json:"include_fgi,omitempty"`
	UserID     string `json:"user_id,omitempty"`
}

// AnalysisResponse is the aggregated coin and sentiment analysis. When the
// request carried only a query the server answers with the routing envelope,
// whose text lands in Response.
type AnalysisResponse struct {
	RequestID      string          `json:"request_id,omitempty"`
	CoinID         string          `json:"coin_id,omitempty"`
	Analysis       string          `json:"analysis,omitempty"`
	Recommendation string          `json:"recommendation,omitempty"`
	CoinData       json.RawMessage `json:"coin_data,omitempty"`
	FGIData        json.RawMessage `json:"fgi_data,omitempty"`
	Partial        bool            `json:"partial"`
	Missing        []string        `json:"missing,omitempty"`
	Intent         string          `json:"intent,omitempty"`
	Response       string          `json:"response,omitempty"`
}

// APIError represents server side validation, upstream or internal errors.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
	Type       string `json:"error_type,omitempty"`
	Source     string `json:"source,omitempty"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Type != "" {
		return fmt.Sprintf("superio api error (%d): %s - %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("superio api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the Superio API. When httpClient is nil,
// a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url: %q", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Chat sends a message to the tool router.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (ChatReply, error) {
	var reply ChatReply
	if err := c.send(ctx, http.MethodPost, "/api/chat", req, &reply); err != nil {
		return ChatReply{}, err
	}
	return reply, nil
}

// History returns the stored conversation of a wallet address.
func (c *Client) History(ctx context.Context, wallet string) (Conversation, error) {
	var conv Conversation
	endpoint := "/api/chat/history?wallet_address=" + url.QueryEscape(wallet)
	if err := c.send(ctx, http.MethodGet, endpoint, nil, &conv); err != nil {
		return Conversation{}, err
	}
	return conv, nil
}

// AppendMessage stores one message without going through the router and
// returns the new message count.
func (c *Client) AppendMessage(ctx context.Context, wallet string, msg Message) (int, error) {
	payload := map[string]any{
		"wallet_address": wallet,
		"role":           msg.Role,
		"content":        msg.Content,
		"metadata":       msg.Metadata,
	}
	var out struct {
		MessageCount int `json:"message_count"`
	}
	if err := c.send(ctx, http.MethodPost, "/api/chat/message", payload, &out); err != nil {
		return 0, err
	}
	return out.MessageCount, nil
}

// UpdateSummary overrides the conversation summary.
func (c *Client) UpdateSummary(ctx context.Context, wallet, summary string) error {
	payload := map[string]string{"wallet_address": wallet, "summary": summary}
	return c.send(ctx, http.MethodPut, "/api/chat/summary", payload, nil)
}

// AnalyzeDeFi runs the coordinator fan-out for one coin.
func (c *Client) AnalyzeDeFi(ctx context.Context, req AnalysisRequest) (AnalysisResponse, error) {
	var resp AnalysisResponse
	if err := c.send(ctx, http.MethodPost, "/api/defi/analyze", req, &resp); err != nil {
		return AnalysisResponse{}, err
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	rel, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	u := *c.baseURL
	u.Path = path.Join(c.baseURL.Path, rel.Path)
	u.RawQuery = rel.RawQuery
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		_ = json.Unmarshal(data, &apiErr)
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

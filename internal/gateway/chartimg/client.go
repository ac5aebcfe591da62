// Package chartimg 通过 Chart-IMG 渲染 TradingView 图表并保存为本地 PNG。
package chartimg

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	xerrors "Superio-Chain/internal/errors"
	"Superio-Chain/internal/gateway"
	"Superio-Chain/internal/gateway/httpx"
)

const (
	defaultBaseURL  = "https://api.chart-img.com"
	upstream        = "chart_img"
	placeholderKey  = "your_chart_img_api_key_here"
	DefaultExchange = "BINANCE"
	DefaultInterval = "1D"
	defaultWidth    = 640
	defaultHeight   = 480
)

// Config 描述客户端参数。
type Config struct {
	BaseURL string
	APIKey  string
	Dir     string
}

// Client 是 Chart-IMG 网关。
type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
	dir     string
}

// New 创建网关。Dir 为空时使用系统临时目录下的 superio-charts。
func New(httpClient *httpx.Client, cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	dir := cfg.Dir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "superio-charts")
	}
	return &Client{http: httpClient, baseURL: base, apiKey: strings.TrimSpace(cfg.APIKey), dir: dir}
}

// Configured 判断是否配置了可用的 API Key。
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.apiKey != placeholderKey
}

// Dir 返回图表目录。
func (c *Client) Dir() string { return c.dir }

// TradingViewSymbol 把代码与交易所拼成 TradingView 符号。
// 加密货币交易所默认以 USDT 计价。
func TradingViewSymbol(symbol, exchange string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	exchange = strings.ToUpper(strings.TrimSpace(exchange))
	if exchange == "" {
		exchange = DefaultExchange
	}
	switch exchange {
	case "BINANCE", "CRYPTO":
		return "BINANCE:" + symbol + "USDT"
	default:
		return exchange + ":" + symbol
	}
}

type study struct {
	Name      string         `json:"name"`
	Overrides map[string]any `json:"overrides"`
}

type renderRequest struct {
	Symbol          string  `json:"symbol"`
	Interval        string  `json:"interval"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	HideVolume      bool    `json:"hide_volume"`
	HideTopToolbar  bool    `json:"hide_top_toolbar"`
	HideSideToolbar bool    `json:"hide_side_toolbar"`
	Studies         []study `json:"studies,omitempty"`
}

var indicatorStudies = map[string]string{
	"RSI":  "RSI",
	"MACD": "MACD",
	"BB":   "Bollinger Bands",
}

// Render 渲染图表并保存到图表目录，返回文件名（不含目录）。
// indicator 可选 RSI、MACD、BB。
func (c *Client) Render(ctx context.Context, symbol, exchange, interval, indicator string) (string, error) {
	if !c.Configured() {
		return "", xerrors.New(xerrors.CodeUnauthorized, "Chart-IMG API key not configured")
	}
	if strings.TrimSpace(symbol) == "" {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "symbol is required")
	}
	if interval == "" {
		interval = DefaultInterval
	}
	tv := TradingViewSymbol(symbol, exchange)
	return gateway.Try(ctx, upstream, "render", func(ctx context.Context) (string, error) {
		payload := renderRequest{Symbol: tv, Interval: interval, Width: defaultWidth, Height: defaultHeight}
		if name, ok := indicatorStudies[strings.ToUpper(indicator)]; ok {
			payload.Studies = []study{{Name: name, Overrides: map[string]any{}}}
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码图表请求失败")
		}
		req, err := httpx.NewBodyRequest(ctx, http.MethodPost, c.baseURL+"/v2/tradingview/advanced-chart", body,
			map[string]string{"x-api-key": c.apiKey, "Accept": "image/png"})
		if err != nil {
			return "", err
		}
		img, _, err := c.http.Do(ctx, req)
		if err != nil {
			return "", err
		}
		return c.save(img)
	})
}

func (c *Client) save(img []byte) (string, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建图表目录失败")
	}
	name := "chart_" + uuid.NewString() + ".png"
	if err := os.WriteFile(filepath.Join(c.dir, name), img, 0o644); err != nil {
		return "", xerrors.Wrap(xerrors.CodeStorageFailure, err, "保存图表失败")
	}
	return name, nil
}

// Open 返回图表文件的完整路径。name 必须是 Render 生成的裸文件名，
// 任何目录成分都会被拒绝。
func (c *Client) Open(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "invalid chart name")
	}
	if !strings.EqualFold(filepath.Ext(name), ".png") {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "invalid chart name")
	}
	path := filepath.Join(c.dir, name)
	if _, err := os.Stat(path); err != nil {
		return "", xerrors.Wrap(xerrors.CodeNotFound, err, "chart not found")
	}
	return path, nil
}

// Read 读取图表内容。
func (c *Client) Read(name string) ([]byte, error) {
	path, err := c.Open(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取图表失败")
	}
	return data, nil
}

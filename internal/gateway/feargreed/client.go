// Package feargreed 访问 alternative.me 的恐惧贪婪指数。
package feargreed

import (
	"context"
	"strconv"
	"strings"
	"time"

	xerrors "Superio-Chain/internal/errors"
	"Superio-Chain/internal/gateway"
	"Superio-Chain/internal/gateway/httpx"
)

const defaultBaseURL = "https://api.alternative.me/fng/"

// Index 是一条指数记录。
type Index struct {
	Value               string  `json:"value"`
	ValueClassification string  `json:"value_classification"`
	Timestamp           string  `json:"timestamp"`
	TimeUntilUpdate     *string `json:"time_until_update,omitempty"`
}

// Client 是指数网关。
type Client struct {
	http    *httpx.Client
	cache   gateway.Cache
	baseURL string
	ttl     time.Duration
}

// New 创建网关。
func New(httpClient *httpx.Client, cache gateway.Cache, baseURL string, ttl time.Duration) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if cache == nil {
		cache = gateway.NopCache{}
	}
	return &Client{http: httpClient, cache: cache, baseURL: baseURL, ttl: ttl}
}

type envelope struct {
	Data []Index `json:"data"`
}

// Index 返回最新一条指数。limit 小于 1 时按 1 处理。
func (c *Client) Index(ctx context.Context, limit int) (Index, bool) {
	if limit < 1 {
		limit = 1
	}
	key := "feargreed:index:" + strconv.Itoa(limit)
	return gateway.Cached(ctx, c.cache, key, c.ttl, "feargreed", "index", func(ctx context.Context) (Index, error) {
		var env envelope
		if err := c.http.GetJSON(ctx, c.baseURL+"?limit="+strconv.Itoa(limit), nil, &env); err != nil {
			return Index{}, err
		}
		if len(env.Data) == 0 {
			return Index{}, xerrors.New(xerrors.CodeUpstreamUnavailable, "恐惧贪婪指数无数据")
		}
		return env.Data[0], nil
	})
}

package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"time"

	xerrors "Superio-Chain/internal/errors"
)

const maxErrorBody = 2048

// Client 是带重试与退避的上游 HTTP 客户端。
type Client struct {
	httpClient *http.Client
	retries    int
	userAgent  string
}

// New 创建客户端。retries 为额外重试次数。
func New(timeout time.Duration, retries int) *Client {
	if retries < 0 {
		retries = 0
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		retries:    retries,
		userAgent:  "superio-chain/1.0",
	}
}

// WithHTTPClient 替换底层 http.Client，主要用于测试。
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// Do 发送请求并返回成功响应的原始内容。429 与 5xx 会按退避重试。
func (c *Client) Do(ctx context.Context, req *http.Request) ([]byte, http.Header, error) {
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, nil, xerrors.Wrap(xerrors.CodeTimeout, ctx.Err(), "上游请求已取消")
			case <-time.After(backoff(attempt)):
			}
		}

		cloneReq := req.Clone(ctx)
		if req.Body != nil && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "复制请求体失败")
			}
			cloneReq.Body = body
		}

		resp, err := c.httpClient.Do(cloneReq)
		if err != nil {
			lastErr = mapNetError(err)
			if attempt < c.retries {
				continue
			}
			return nil, nil, lastErr
		}

		buf, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.Header, xerrors.Wrap(xerrors.CodeUpstreamUnavailable, readErr, "读取上游响应失败")
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = xerrors.New(xerrors.CodeRateLimited, "上游限流")
			if attempt < c.retries {
				continue
			}
			return nil, resp.Header, lastErr
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, resp.Header, xerrors.New(xerrors.CodeUnauthorized, "上游鉴权失败")
		case resp.StatusCode >= http.StatusInternalServerError:
			lastErr = xerrors.New(xerrors.CodeUpstreamUnavailable, fmt.Sprintf("上游不可用 (status %d)", resp.StatusCode))
			if attempt < c.retries {
				continue
			}
			return nil, resp.Header, lastErr
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return nil, resp.Header, xerrors.New(xerrors.CodeUpstreamUnavailable,
				fmt.Sprintf("上游返回非预期状态 %d: %s", resp.StatusCode, truncate(buf)))
		}
		return buf, resp.Header, nil
	}

	if lastErr != nil {
		return nil, nil, lastErr
	}
	return nil, nil, xerrors.New(xerrors.CodeUpstreamUnavailable, "上游请求失败")
}

// DoJSON 发送请求并把响应解码到 out。
func (c *Client) DoJSON(ctx context.Context, req *http.Request, out any) (http.Header, error) {
	buf, header, err := c.Do(ctx, req)
	if err != nil {
		return header, err
	}
	if out == nil {
		return header, nil
	}
	if len(bytes.TrimSpace(buf)) == 0 {
		return header, xerrors.New(xerrors.CodeUpstreamUnavailable, "上游返回空响应")
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return header, xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "解析上游 JSON 失败")
	}
	return header, nil
}

// GetJSON 是 GET + DoJSON 的简写。
func (c *Client) GetJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	_, err := DoBodyJSON(ctx, c, http.MethodGet, url, nil, headers, out)
	return err
}

// NewBodyRequest 构造可重放请求体的请求。
func NewBodyRequest(ctx context.Context, method, url string, body []byte, headers map[string]string) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "构造上游请求失败")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// DoBodyJSON 发送带 JSON 请求体的请求并解码响应。
func DoBodyJSON(ctx context.Context, c *Client, method, url string, body []byte, headers map[string]string, out any) (http.Header, error) {
	req, err := NewBodyRequest(ctx, method, url, body, headers)
	if err != nil {
		return nil, err
	}
	return c.DoJSON(ctx, req, out)
}

func mapNetError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return xerrors.Wrap(xerrors.CodeTimeout, err, "上游请求超时")
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return xerrors.Wrap(xerrors.CodeTimeout, err, "上游请求超时")
	}
	return xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "上游请求失败")
}

func backoff(attempt int) time.Duration {
	base := 120 * time.Millisecond
	d := base * time.Duration(1<<uint(attempt-1))
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	jitter := time.Duration(rand.Intn(75)) * time.Millisecond
	return d + jitter
}

func truncate(buf []byte) string {
	if len(buf) > maxErrorBody {
		buf = buf[:maxErrorBody]
	}
	return string(bytes.TrimSpace(buf))
}

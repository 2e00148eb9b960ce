// Package upstream 是通往生图服务的 HTTP 通道：注入鉴权头、限制超时、原样返回响应。
package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// RawResponse 上游返回的原始响应，非 2xx 也通过它返回
type RawResponse struct {
	StatusCode int
	Body       []byte
}

// OK 表示 2xx 响应
func (r *RawResponse) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

type Options struct {
	APIKey         string
	APIBase        string
	GenerationPath string
	Timeout        time.Duration
	UserAgent      string
}

// Client 复用 openai-go 的底层请求能力访问 DashScope 兼容接口
type Client struct {
	client         *openai.Client
	generationPath string
}

func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "text2image-service/1.0"
	}

	httpClient := &http.Client{Timeout: timeout}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithBaseURL(NormalizeBaseURL(opts.APIBase)),
		option.WithHeader("User-Agent", userAgent),
		// 生图请求不做自动重试，避免重复出图
		option.WithMaxRetries(0),
	}
	client := openai.NewClient(reqOpts...)

	return &Client{
		client:         &client,
		generationPath: opts.GenerationPath,
	}
}

// NormalizeBaseURL 去掉多余的路径分隔符并保证以 / 结尾
func NormalizeBaseURL(apiBase string) string {
	base := strings.TrimSpace(apiBase)
	if base == "" {
		base = "https://dashscope.aliyuncs.com"
	}
	return strings.TrimRight(base, "/") + "/"
}

// Post 发送 JSON 请求。只有在没有拿到 HTTP 响应时才返回 error
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*RawResponse, error) {
	path = strings.TrimLeft(path, "/")

	var respBytes []byte
	err := c.client.Post(ctx, path, body, &respBytes)
	if err == nil {
		return &RawResponse{StatusCode: http.StatusOK, Body: respBytes}, nil
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		raw := &RawResponse{StatusCode: apiErr.StatusCode, Body: errorBody(apiErr)}
		slog.Warn("上游返回错误状态", "status", apiErr.StatusCode, "path", path)
		return raw, nil
	}

	te := Classify(err)
	slog.Warn("上游请求失败", "kind", te.Kind, "path", path, "error", err)
	return nil, te
}

// Forward 把规范请求体原样转发到生图接口
func (c *Client) Forward(ctx context.Context, body []byte) (*RawResponse, error) {
	if c.generationPath == "" {
		return nil, fmt.Errorf("未配置生图接口路径")
	}
	return c.Post(ctx, c.generationPath, rawJSON(body))
}

// GenerationPath 生图接口路径
func (c *Client) GenerationPath() string {
	return c.generationPath
}

func errorBody(apiErr *openai.Error) []byte {
	if apiErr.Response != nil && apiErr.Response.Body != nil {
		if data, err := io.ReadAll(apiErr.Response.Body); err == nil && len(data) > 0 {
			apiErr.Response.Body = io.NopCloser(bytes.NewReader(data))
			return data
		}
	}
	return []byte(apiErr.RawJSON())
}

// rawJSON 让已编码的请求体不再被二次序列化
type rawJSON []byte

func (r rawJSON) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

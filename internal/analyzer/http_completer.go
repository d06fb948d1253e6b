package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Request 一次多模态补全请求
type Request struct {
	Model       string
	Prompt      string
	ImageURL    string // data:image/jpeg;base64,...
	Temperature float32
	MaxTokens   int
	TopP        float32
}

// Completer 发送请求并返回模型的文本回答
type Completer interface {
	Complete(ctx context.Context, req *Request) (string, error)
}

// HTTPCompleter 直接调用 OpenAI 兼容的 chat/completions 接口
type HTTPCompleter struct {
	url       string
	apiKey    string
	userAgent string
	client    *http.Client
}

// NewHTTPCompleter 创建 HTTP 客户端，url 为完整的 chat/completions 地址
func NewHTTPCompleter(url, apiKey, userAgent string, timeout time.Duration) *HTTPCompleter {
	return &HTTPCompleter{
		url:       url,
		apiKey:    apiKey,
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	TopP        float32       `json:"top_p,omitempty"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// Complete 发送图片和提示词，按已知的几种响应结构提取文本
func (c *HTTPCompleter) Complete(ctx context.Context, req *Request) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: req.Model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: req.Prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: req.ImageURL}},
			},
		}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request failed: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request failed: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	res, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("read body failed: %w", err)
	}

	if res.StatusCode != http.StatusOK {
		return "", &StatusError{Code: res.StatusCode, Body: truncate(string(body), 300)}
	}

	return extractText(body)
}

package analyzer

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// EinoCompleter 通过 eino ChatModel 调用多模态模型
type EinoCompleter struct {
	cm model.BaseChatModel
}

// NewEinoCompleter 创建 eino 客户端。eino 会自行拼接 /chat/completions，
// 因此 url 为完整接口地址时先去掉该后缀
func NewEinoCompleter(ctx context.Context, url, apiKey, modelName string, timeout time.Duration) (*EinoCompleter, error) {
	baseURL := strings.TrimSuffix(strings.TrimRight(url, "/"), "/chat/completions")
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		Model:      modelName,
		Timeout:    timeout,
		HTTPClient: &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("LLM 初始化失败: %w", err)
	}
	return &EinoCompleter{cm: chatModel}, nil
}

// NewEinoCompleterWithModel 使用已有的 ChatModel
func NewEinoCompleterWithModel(cm model.BaseChatModel) *EinoCompleter {
	return &EinoCompleter{cm: cm}
}

// Complete 实现 Completer
func (c *EinoCompleter) Complete(ctx context.Context, req *Request) (string, error) {
	messages := []*schema.Message{{
		Role: schema.User,
		MultiContent: []schema.ChatMessagePart{
			{Type: schema.ChatMessagePartTypeText, Text: req.Prompt},
			{Type: schema.ChatMessagePartTypeImageURL, ImageURL: &schema.ChatMessageImageURL{URL: req.ImageURL}},
		},
	}}

	resp, err := c.cm.Generate(ctx, messages,
		model.WithModel(req.Model),
		model.WithTemperature(req.Temperature),
		model.WithMaxTokens(req.MaxTokens),
		model.WithTopP(req.TopP),
	)
	if err != nil {
		if code, ok := statusFromError(err); ok {
			return "", &StatusError{Code: code, Body: truncate(err.Error(), 300)}
		}
		return "", err
	}
	if resp == nil {
		return "", fmt.Errorf("%w: 响应为空", ErrInvalidResponse)
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		var parts []string
		for _, p := range resp.MultiContent {
			if p.Type == schema.ChatMessagePartTypeText && p.Text != "" {
				parts = append(parts, p.Text)
			}
		}
		text = strings.TrimSpace(strings.Join(parts, "\n"))
	}
	if text == "" {
		return "", ErrEmptyContent
	}
	return text, nil
}

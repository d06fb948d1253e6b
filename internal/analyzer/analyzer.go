// Package analyzer 调用多模态大模型解析报纸头版
package analyzer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/iWorld-y/paper_radar/internal/config"
	"github.com/iWorld-y/paper_radar/internal/logger"
	"github.com/iWorld-y/paper_radar/internal/model"
)

// Options 分析器参数
type Options struct {
	APIKey         string
	Model          string
	PromptOverride string
	Temperature    float32
	MaxTokens      int
	TopP           float32
	MaxAttempts    int
	BaseDelay      time.Duration
	Limiter        *rate.Limiter // 为空时不限流
}

// Analyzer 检查调用条件、构造提示词并带重试地调用 Completer
type Analyzer struct {
	opts      Options
	completer Completer
	sleep     func(ctx context.Context, d time.Duration) error
}

// New 创建分析器
func New(c Completer, opts Options) *Analyzer {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 2 * time.Second
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Analyzer{opts: opts, completer: c, sleep: sleepCtx}
}

// NewFromConfig 按配置选择 http 或 eino 客户端
func NewFromConfig(ctx context.Context, cfg *config.Config) (*Analyzer, error) {
	timeout := time.Duration(cfg.LLM.Timeout) * time.Second

	var c Completer
	switch cfg.LLM.Client {
	case "eino":
		ec, err := NewEinoCompleter(ctx, cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, timeout)
		if err != nil {
			return nil, err
		}
		c = ec
	default:
		c = NewHTTPCompleter(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.UserAgent, timeout)
	}

	return New(c, Options{
		APIKey:         cfg.LLM.APIKey,
		Model:          cfg.LLM.Model,
		PromptOverride: cfg.LLM.Prompt,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		TopP:           cfg.LLM.TopP,
		MaxAttempts:    cfg.LLM.MaxAttempts,
		Limiter:        NewLimiter(cfg.Concurrency.RPM, cfg.Concurrency.QPS),
	}), nil
}

// NewLimiter 每分钟 rpm 次、突发 burst 次；rpm <= 0 时不限流
func NewLimiter(rpm, burst int) *rate.Limiter {
	if rpm <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)
}

// Analyze 将图片和提示词发送给模型，返回原始文本
func (a *Analyzer) Analyze(ctx context.Context, img *model.EncodedImage, newspaper, dateStr string) (*model.AnalysisResult, error) {
	if config.IsPlaceholderKey(a.opts.APIKey) {
		return nil, fmt.Errorf("%w: 未配置通义千问 API Key", ErrConfig)
	}
	if img == nil || img.Base64 == "" {
		return nil, fmt.Errorf("%w: 图片数据为空", ErrConfig)
	}
	prompt := BuildPrompt(a.opts.PromptOverride, newspaper == config.ForeignNewspaper, newspaper, dateStr)
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: 提示词为空", ErrConfig)
	}

	req := &Request{
		Model:       a.opts.Model,
		Prompt:      prompt,
		ImageURL:    img.DataURI(),
		Temperature: a.opts.Temperature,
		MaxTokens:   a.opts.MaxTokens,
		TopP:        a.opts.TopP,
	}

	logger.Log.Infof("正在调用大模型解析《%s》%s ...", newspaper, dateStr)

	var lastErr error
	for i := 0; i < a.opts.MaxAttempts; i++ {
		if i > 0 {
			delay := a.opts.BaseDelay * time.Duration(1<<(i-1))
			logger.Log.Warnf("AI 调用失败，%v 后重试 (%d/%d): %v", delay, i+1, a.opts.MaxAttempts, lastErr)
			if err := a.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
		if err := a.opts.Limiter.Wait(ctx); err != nil {
			return nil, err
		}

		text, err := a.completer.Complete(ctx, req)
		if err == nil {
			logger.Log.Infof("AI 解析完成，共 %d 字", len([]rune(text)))
			return &model.AnalysisResult{RawText: text}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w: 尝试 %d 次: %w", ErrExhausted, a.opts.MaxAttempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package analyzer

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
)

var (
	// ErrConfig 调用前检查未通过（API Key、图片、提示词），不会重试
	ErrConfig = errors.New("AI 调用参数无效")
	// ErrEmptyContent 响应结构正确，但提取到的文本为空
	ErrEmptyContent = errors.New("AI 返回空内容")
	// ErrInvalidResponse 响应无法按任何已知结构解析
	ErrInvalidResponse = errors.New("AI 返回格式异常")
	// ErrExhausted 重试次数用尽
	ErrExhausted = errors.New("AI 调用重试次数已用尽")
)

// StatusError 接口返回了非 200 状态
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("AI 接口返回 HTTP %d: %s", e.Code, e.Body)
}

// Permanent 鉴权失败和额度耗尽在同一次运行中重试不会成功
func (e *StatusError) Permanent() bool {
	switch e.Code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	}
	return false
}

// Hint 按状态码给出处理建议
func (e *StatusError) Hint() string {
	switch {
	case e.Code == http.StatusUnauthorized:
		return "请检查 .env 中的 TONGYI_API_KEY 是否正确，或是否已开通通义千问服务"
	case e.Code == http.StatusForbidden:
		return "API Key 无权访问该模型，请检查账号权限或更换模型"
	case e.Code == http.StatusTooManyRequests:
		return "免费调用次数已达上限，请明天再试（每日有免费额度）"
	case e.Code >= 500:
		return "AI 服务暂时不可用，请稍后重试"
	}
	return ""
}

// Hint 返回 err 对应的处理建议
func Hint(err error) string {
	var se *StatusError
	switch {
	case errors.As(err, &se):
		return se.Hint()
	case errors.Is(err, ErrConfig):
		return "请复制 .env.example 为 .env 并填写 TONGYI_API_KEY"
	case errors.Is(err, ErrEmptyContent), errors.Is(err, ErrInvalidResponse):
		return "下载的文件已保留，可稍后重新运行进行解析"
	case errors.Is(err, ErrExhausted):
		return "网络或服务繁忙，请稍后重试"
	}
	return ""
}

// retryable 网络错误、5xx 等重试；鉴权、额度以及响应内容问题不重试
func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return !se.Permanent()
	}
	if errors.Is(err, ErrConfig) || errors.Is(err, ErrEmptyContent) || errors.Is(err, ErrInvalidResponse) {
		return false
	}
	return true
}

var statusInErrRe = regexp.MustCompile(`status(?:\s*code)?[:=\s]+(\d{3})\b`)

// statusFromError 从 SDK 错误信息中识别 HTTP 状态码
func statusFromError(err error) (int, bool) {
	m := statusInErrRe.FindStringSubmatch(err.Error())
	if m == nil {
		return 0, false
	}
	code, _ := strconv.Atoi(m[1])
	return code, true
}

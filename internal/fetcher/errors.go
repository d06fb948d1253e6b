package fetcher

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

var (
	// ErrNoPDFLink 版面页中找不到 PDF 链接，通常是当天停刊或尚未发布
	ErrNoPDFLink = errors.New("版面页中未找到 PDF 链接")
	// ErrExhausted 可重试错误在用尽全部尝试次数后返回
	ErrExhausted = errors.New("重试次数已用尽")
	// ErrInvalidArtifact 下载内容无法通过校验
	ErrInvalidArtifact = errors.New("下载文件校验失败")

	errReadTimeout = errors.New("读取响应超时")
)

// StatusError 远端返回了非 200 状态，不会重试
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.Code, http.StatusText(e.Code), e.URL)
}

// Hint 根据状态码给出可能原因
func (e *StatusError) Hint() string {
	switch e.Code {
	case http.StatusNotFound:
		return "该日期的报纸可能未发布/停刊，建议选择「昨天」的日期重试"
	case http.StatusForbidden:
		return "访问被拒绝，可能是网站反爬限制，建议稍后再试"
	default:
		return "服务器返回异常状态，请稍后再试"
	}
}

// Hint 返回 err 对应的处理建议，没有建议时返回空串
func Hint(err error) string {
	var se *StatusError
	switch {
	case errors.As(err, &se):
		return se.Hint()
	case errors.Is(err, ErrNoPDFLink):
		return "该日期可能停刊或未发布，建议选择「昨天」的日期重试"
	case errors.Is(err, ErrExhausted):
		return "网络连接不稳定：可稍后重试、在配置中设置代理 (fetch.proxy)，或改用其他报纸"
	case errors.Is(err, ErrInvalidArtifact):
		return "下载内容不是有效的报纸文件，可使用 --force 重新下载"
	}
	return ""
}

// isTransient 判断错误是否值得重试：超时、TLS、代理以及其他意外的传输错误都会重试
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return false
	}
	if errors.Is(err, ErrNoPDFLink) || errors.Is(err, ErrInvalidArtifact) {
		return false
	}
	return true
}

// transientCause 给重试日志用的简短分类
func transientCause(err error) string {
	var (
		netErr  net.Error
		recErr  tls.RecordHeaderError
		certErr *tls.CertificateVerificationError
		unkErr  x509.UnknownAuthorityError
	)
	switch {
	case errors.Is(err, errReadTimeout):
		return "读超时"
	case errors.As(err, &netErr) && netErr.Timeout():
		if strings.Contains(err.Error(), "dial") {
			return "连接超时"
		}
		return "读超时"
	case errors.As(err, &recErr), errors.As(err, &certErr), errors.As(err, &unkErr),
		strings.Contains(err.Error(), "tls:"):
		return "TLS 错误"
	case strings.Contains(err.Error(), "proxyconnect"):
		return "代理错误"
	}
	return "网络异常"
}

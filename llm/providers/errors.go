package providers

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/BaSui01/voiceagent/llm"
)

// 529 部分服务商用来表示模型过载
const statusOverloaded = 529

// maxErrorBody 错误响应体最多读取的字节数
const maxErrorBody = 64 << 10

type statusRule struct {
	code      llm.ErrorCode
	retryable bool
}

// statusRules 有专门语义的状态码；其余 4xx 视为请求错误，5xx 可重试
var statusRules = map[int]statusRule{
	http.StatusUnauthorized:    {llm.ErrUnauthorized, false},
	http.StatusPaymentRequired: {llm.ErrQuotaExceeded, false},
	http.StatusForbidden:       {llm.ErrForbidden, false},
	http.StatusTooManyRequests: {llm.ErrRateLimited, true},
	http.StatusGatewayTimeout:  {llm.ErrUpstreamTimeout, true},
	statusOverloaded:           {llm.ErrModelOverloaded, true},
}

// MapHTTPError 把上游非 2xx 响应转换为 *llm.Error。
// 400 的消息里出现 quota / credit 时按额度耗尽处理。
func MapHTTPError(status int, msg string, provider string) *llm.Error {
	e := &llm.Error{Message: msg, HTTPStatus: status, Provider: provider}
	if rule, ok := statusRules[status]; ok {
		e.Code, e.Retryable = rule.code, rule.retryable
		return e
	}

	switch {
	case status == http.StatusBadRequest && mentionsQuota(msg):
		e.Code = llm.ErrQuotaExceeded
	case status == http.StatusBadRequest:
		e.Code = llm.ErrInvalidRequest
	default:
		e.Code = llm.ErrUpstreamError
		e.Retryable = status >= http.StatusInternalServerError
	}
	return e
}

func mentionsQuota(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "quota") || strings.Contains(lower, "credit")
}

// MapTransportError 把请求未得到响应的错误转换为 *llm.Error。
// 调用方主动取消不重试；超时与连接错误可重试。
func MapTransportError(err error, provider string) *llm.Error {
	e := &llm.Error{Message: err.Error(), Provider: provider, Code: llm.ErrUpstreamError}
	if errors.Is(err, context.Canceled) {
		return e
	}

	e.Retryable = true
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		e.Code = llm.ErrUpstreamTimeout
		e.HTTPStatus = http.StatusGatewayTimeout
		return e
	}
	e.HTTPStatus = http.StatusBadGateway
	return e
}

// errorBody 覆盖各服务商的错误体形状：
// OpenAI / Perplexity / Gemini 用 error.message，Murf 用 errorMessage，Deepgram 用 err_msg
type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Status  string `json:"status"`
	} `json:"error"`
	Message      string `json:"message"`
	ErrorMessage string `json:"errorMessage"`
	ErrMsg       string `json:"err_msg"`
}

func (b errorBody) text() string {
	if m := b.Error.Message; m != "" {
		kind := cmp.Or(b.Error.Type, b.Error.Status)
		if kind == "" {
			return m
		}
		return fmt.Sprintf("%s (type: %s)", m, kind)
	}
	return cmp.Or(b.ErrorMessage, b.ErrMsg, b.Message)
}

// ReadErrorMessage 从错误响应体提取可读消息，无法识别时返回原文
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil {
		return "failed to read error response"
	}

	var b errorBody
	if json.Unmarshal(data, &b) == nil {
		if msg := b.text(); msg != "" {
			return msg
		}
	}
	return strings.TrimSpace(string(data))
}

// SafeCloseBody 关闭响应体，忽略错误
func SafeCloseBody(body io.ReadCloser) {
	if body != nil {
		_ = body.Close()
	}
}

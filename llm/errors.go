package llm

import (
	"errors"
	"net/http"
)

// ErrorCode 上游错误分类。推理与语音服务共用同一套分类，
// 调度器据此决定立即重试、降级还是直接失败。
type ErrorCode string

const (
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized        ErrorCode = "UNAUTHORIZED"
	ErrForbidden           ErrorCode = "FORBIDDEN"
	ErrRateLimited         ErrorCode = "RATE_LIMITED"
	ErrQuotaExceeded       ErrorCode = "QUOTA_EXCEEDED"
	ErrModelOverloaded     ErrorCode = "OVERLOADED"
	ErrUpstreamTimeout     ErrorCode = "TIMEOUT"
	ErrUpstreamError       ErrorCode = "UPSTREAM"
	ErrMalformedResponse   ErrorCode = "MALFORMED_RESPONSE"
	ErrProviderUnavailable ErrorCode = "UNAVAILABLE" // 缺少密钥等本地配置问题
)

// Error 服务商返回的错误。
// Retryable 只对瞬时故障为 true：网络错误、超时、429 与 5xx。
type Error struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Retryable  bool
	Provider   string
}

func (e *Error) Error() string { return e.Message }

// asError 解开包装链取出 *Error
func asError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// IsRetryable 报告 err 是否值得立即再试一次
func IsRetryable(err error) bool {
	e, ok := asError(err)
	return ok && e.Retryable
}

// IsClientError 4xx（429 除外）说明请求本身有问题，重试无益
func IsClientError(err error) bool {
	e, ok := asError(err)
	if !ok || e.HTTPStatus == http.StatusTooManyRequests {
		return false
	}
	return e.HTTPStatus >= 400 && e.HTTPStatus < 500
}

// IsTimeout 报告 err 是否为上游超时
func IsTimeout(err error) bool {
	e, ok := asError(err)
	return ok && e.Code == ErrUpstreamTimeout
}

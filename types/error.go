package types

import (
	"errors"
	"fmt"
)

// ErrorCode 统一错误码
type ErrorCode string

// 流水线错误码
const (
	// ErrInputEmpty 规范化后用户文本为空，不创建轮次
	ErrInputEmpty ErrorCode = "INPUT_EMPTY"
	// ErrUpstreamReasoning 总是由兜底回复在本地恢复
	ErrUpstreamReasoning ErrorCode = "UPSTREAM_REASONING"
	// ErrUpstreamSynthesis 以省略音频的方式恢复，轮次照常完成
	ErrUpstreamSynthesis ErrorCode = "UPSTREAM_SYNTHESIS"
	// ErrUpstreamRecognition 语音请求失败，不创建轮次
	ErrUpstreamRecognition ErrorCode = "UPSTREAM_RECOGNITION"
	ErrUpstreamTimeout     ErrorCode = "UPSTREAM_TIMEOUT"
)

// 会话错误码
const (
	ErrSessionClosed ErrorCode = "SESSION_CLOSED"
	ErrNoSuchTurn    ErrorCode = "NO_SUCH_TURN"
	ErrTransport     ErrorCode = "TRANSPORT_CLOSED"
)

// API 错误码
const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrRateLimited    ErrorCode = "RATE_LIMITED"
	ErrNotConfigured  ErrorCode = "NOT_CONFIGURED"
	ErrInternalError  ErrorCode = "INTERNAL_ERROR"
)

// Error 结构化错误，携带错误码、消息与元数据
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层原因
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 按错误码匹配 *Error，经 WithCause/WithHTTPStatus 复制后
// 仍可用 errors.Is 与哨兵值比较
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError 创建错误
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause 返回附带原因的副本。哨兵是包级共享值，接收者不会被修改。
func (e *Error) WithCause(cause error) *Error {
	cp := *e
	cp.Cause = cause
	return &cp
}

// WithHTTPStatus 返回设置了 HTTP 状态码的副本
func (e *Error) WithHTTPStatus(status int) *Error {
	cp := *e
	cp.HTTPStatus = status
	return &cp
}

// WithRetryable 返回设置了可重试标记的副本
func (e *Error) WithRetryable(retryable bool) *Error {
	cp := *e
	cp.Retryable = retryable
	return &cp
}

// WithProvider 返回设置了提供商名称的副本
func (e *Error) WithProvider(provider string) *Error {
	cp := *e
	cp.Provider = provider
	return &cp
}

// IsRetryable 检查错误是否可重试
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode 提取错误码
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// AsError 从 err 提取 *Error，未知错误包装为 INTERNAL_ERROR
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewError(ErrInternalError, err.Error()).WithCause(err)
}

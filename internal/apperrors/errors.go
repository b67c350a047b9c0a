package apperrors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode 是返回给客户端的稳定错误码。
type ErrorCode string

const (
	CodeValidationFailed    ErrorCode = "VALIDATION_FAILED"
	CodeInvalidSignature    ErrorCode = "INVALID_SIGNATURE"
	CodePaymentNotCaptured  ErrorCode = "PAYMENT_NOT_CAPTURED"
	CodeUpstreamUnavailable ErrorCode = "UPSTREAM_UNAVAILABLE"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeInvalidStatus       ErrorCode = "INVALID_STATUS"
	CodeOrderInProgress     ErrorCode = "ORDER_IN_PROGRESS"
	CodeIdempotencyMismatch ErrorCode = "IDEMPOTENCY_KEY_MISMATCH"
	CodeRateLimited         ErrorCode = "RATE_LIMITED"
	CodeInternalError       ErrorCode = "INTERNAL_ERROR"
)

// AppError 是服务层统一的错误类型，handler 据此映射 HTTP 状态码与响应信封。
type AppError struct {
	Code     ErrorCode
	Message  string
	HTTPCode int
	Err      error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// Is 按错误码匹配，便于 errors.Is(err, apperrors.ErrNotFound) 这样的判断。
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !stderrors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func New(code ErrorCode, message string, httpCode int) *AppError {
	return &AppError{Code: code, Message: message, HTTPCode: httpCode}
}

func Wrap(err error, code ErrorCode, message string, httpCode int) *AppError {
	return &AppError{Code: code, Message: message, HTTPCode: httpCode, Err: err}
}

// As 是 errors.As 的薄封装。
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// 预定义错误，用于 errors.Is 比较。
var (
	ErrValidation       = New(CodeValidationFailed, "Validation failed", http.StatusBadRequest)
	ErrInvalidSignature = New(CodeInvalidSignature, "Payment verification failed: signature is invalid", http.StatusBadRequest)
	ErrNotCaptured      = New(CodePaymentNotCaptured, "Payment was not captured", http.StatusBadRequest)
	ErrUpstream         = New(CodeUpstreamUnavailable, "Could not reach the payment provider. Please try again later.", http.StatusBadGateway)
	ErrNotFound         = New(CodeNotFound, "Donation not found", http.StatusNotFound)
	ErrInvalidStatus    = New(CodeInvalidStatus, "Donation is already finalized", http.StatusConflict)
	ErrOrderInProgress  = New(CodeOrderInProgress, "An order for this request is already being created", http.StatusConflict)
	ErrIdemKeyReused    = New(CodeIdempotencyMismatch, "Idempotency-Key was already used with a different amount", http.StatusUnprocessableEntity)
	ErrInternal         = New(CodeInternalError, "Server error. Please try again later.", http.StatusInternalServerError)
)

func Validation(message string) *AppError {
	return New(CodeValidationFailed, message, http.StatusBadRequest)
}

func NotCaptured(status string) *AppError {
	return New(CodePaymentNotCaptured, fmt.Sprintf("Payment was not captured. Status: %s", status), http.StatusBadRequest)
}

func Upstream(err error) *AppError {
	return Wrap(err, CodeUpstreamUnavailable, ErrUpstream.Message, http.StatusBadGateway)
}

func NotFound(message string) *AppError {
	return New(CodeNotFound, message, http.StatusNotFound)
}

func InvalidStatus(message string) *AppError {
	return New(CodeInvalidStatus, message, http.StatusConflict)
}

func RateLimited(message string) *AppError {
	return New(CodeRateLimited, message, http.StatusTooManyRequests)
}

// Internal 包装未预期错误，message 是生产环境下对外展示的文案。
func Internal(err error, message string) *AppError {
	return Wrap(err, CodeInternalError, message, http.StatusInternalServerError)
}

// Resolve 把任意错误转换为 AppError；未知错误视为 500。
func Resolve(err error) *AppError {
	if appErr, ok := As(err); ok {
		return appErr
	}
	return Internal(err, ErrInternal.Message)
}

// PublicMessage 返回可以给客户端看的文案：5xx 只有在 debug 下才带上底层错误。
func PublicMessage(appErr *AppError, debug bool) string {
	if debug && appErr.HTTPCode >= http.StatusInternalServerError && appErr.Err != nil {
		return appErr.Err.Error()
	}
	return appErr.Message
}

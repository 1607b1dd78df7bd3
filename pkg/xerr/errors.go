package xerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误分类，决定对外的 HTTP 状态码
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInvalidSchema
	KindInvalidTimeFormat
	KindAPI
	KindConnection
	KindNotConfigured
)

// String 对外展示的前缀
func (k Kind) String() string {
	switch k {
	case KindInvalidSchema:
		return "Invalid schema"
	case KindInvalidTimeFormat:
		return "Invalid time format"
	case KindAPI:
		return "API error"
	case KindConnection:
		return "Connection error"
	case KindNotConfigured:
		return "Not configured"
	default:
		return "Internal error"
	}
}

// HTTPStatus 调用方错误 -> 4xx；上游失败 -> 502
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidSchema, KindInvalidTimeFormat:
		return http.StatusBadRequest
	case KindAPI, KindConnection:
		return http.StatusBadGateway
	case KindNotConfigured:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// ServiceError provider 层统一错误
type ServiceError struct {
	Kind   Kind
	Detail string
	cause  error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *ServiceError) Unwrap() error { return e.cause }

func (e *ServiceError) HTTPStatus() int { return e.Kind.HTTPStatus() }

func New(kind Kind, detail string) error {
	return &ServiceError{Kind: kind, Detail: detail}
}

func Newf(kind Kind, format string, args ...any) error {
	return &ServiceError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap 保留 cause，detail = msg: cause
func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	detail := err.Error()
	if msg != "" {
		detail = msg + ": " + detail
	}
	return &ServiceError{Kind: kind, Detail: detail, cause: err}
}

func InvalidSchema(format string, args ...any) error {
	return Newf(KindInvalidSchema, format, args...)
}

func InvalidTimeFormat(format string, args ...any) error {
	return Newf(KindInvalidTimeFormat, format, args...)
}

func APIError(format string, args ...any) error {
	return Newf(KindAPI, format, args...)
}

func ConnectionError(format string, args ...any) error {
	return Newf(KindConnection, format, args...)
}

func NotConfigured(format string, args ...any) error {
	return Newf(KindNotConfigured, format, args...)
}

// As 取出链上的 ServiceError
func As(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

func KindOf(err error) Kind {
	if se, ok := As(err); ok {
		return se.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool { return KindOf(err) == kind }

// HTTPStatus 非 ServiceError 一律 500
func HTTPStatus(err error) int {
	return KindOf(err).HTTPStatus()
}

// Upstream 是否属于上游失败（需要带细节打 error 日志）
func Upstream(err error) bool {
	k := KindOf(err)
	return k == KindAPI || k == KindConnection
}

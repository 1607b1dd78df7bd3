package common

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-Id"
	CtxKeyRequestID = "request_id"

	maxRequestIDLen = 64
)

// NewID 请求 id 和 ws 会话 id 共用
func NewID() string { return uuid.NewString() }

// AcceptRequestID 客户端带来的 id 会进日志，只接受短的 [A-Za-z0-9._:-]，否则重新生成
func AcceptRequestID(h string) string {
	if h == "" || len(h) > maxRequestIDLen {
		return NewID()
	}
	for i := 0; i < len(h); i++ {
		switch b := h[i]; {
		case 'a' <= b && b <= 'z', 'A' <= b && b <= 'Z', '0' <= b && b <= '9':
		case b == '-', b == '_', b == '.', b == ':':
		default:
			return NewID()
		}
	}
	return h
}

// RequestID ReqId 中间件之前调用返回空串
func RequestID(c *gin.Context) string {
	return c.GetString(CtxKeyRequestID)
}

package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"mdviewer.com/pkg/logger"
	"mdviewer.com/pkg/xerr"
)

// ErrorResponse 所有非 2xx 的 JSON body
type ErrorResponse struct {
	Error string `json:"error"`
	Code  uint16 `json:"code"`
}

func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Fail 按错误分类映射状态码；上游失败带细节打 error，调用方错误打 warn
func Fail(c *gin.Context, err error) {
	status := xerr.HTTPStatus(err)
	fields := []zap.Field{
		zap.String("request_id", RequestID(c)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", status),
		zap.Error(err),
	}
	switch {
	case xerr.Upstream(err), status >= http.StatusInternalServerError:
		logger.Error(c.Request.Context(), "http upstream error", fields...)
	default:
		logger.Warn(c.Request.Context(), "http request rejected", fields...)
	}
	FailStatus(c, status, err.Error())
}

// FailStatus 不经过错误分类直接返回
func FailStatus(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg, Code: uint16(status)})
}

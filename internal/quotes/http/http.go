package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	ginprom "github.com/zsais/go-gin-prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"mdviewer.com/internal/quotes/handler"
	"mdviewer.com/internal/quotes/http/router"
	"mdviewer.com/pkg/logger"
	"mdviewer.com/pkg/middleware"
)

type Options struct {
	Service string
	Addr    string

	ReadHeaderTimeout time.Duration
	// WriteTimeout 只约束普通请求；ws 会话升级后由自己设置 deadline
	WriteTimeout time.Duration

	// Metrics 暴露 /metrics
	Metrics bool
	// Tracing 挂 otelgin
	Tracing bool
}

func NewRouter(opts Options, h *handler.Quotes) *gin.Engine {
	r := gin.New()
	// 监控
	if opts.Metrics {
		p := ginprom.NewPrometheus("mdviewer")
		p.Use(r)
	}
	if opts.Tracing {
		r.Use(otelgin.Middleware(opts.Service))
	}
	r.Use(
		middleware.ReqId(),
		ginzap.Ginzap(logger.Named("access"), time.RFC3339, true),
		cors.Default(),
		middleware.Recover(),
	)
	router.Quotes(r, h)
	return r
}

func NewServer(opts Options, h *handler.Quotes) *http.Server {
	return &http.Server{
		Addr:              opts.Addr,
		Handler:           NewRouter(opts, h),
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
		WriteTimeout:      opts.WriteTimeout,
		MaxHeaderBytes:    1 << 20,
	}
}

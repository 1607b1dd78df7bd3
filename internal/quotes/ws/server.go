package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"mdviewer.com/internal/quotes/gateway"
	"mdviewer.com/internal/quotes/model"
	"mdviewer.com/internal/quotes/provider"
	"mdviewer.com/internal/quotes/wsmetrics"
	"mdviewer.com/pkg/common"
	"mdviewer.com/pkg/logger"
	"mdviewer.com/pkg/xerr"
)

// Server 每个 ws 连接对应一条独立的 LiveStream，不做跨连接 fanout
type Server struct {
	Provider provider.Provider
	// Mirror 可选，把写出的帧旁路到 broker
	Mirror   *gateway.Mirror
	Upgrader websocket.Upgrader

	ctx context.Context

	PongWait     time.Duration
	PingPeriod   time.Duration
	PingJitter   time.Duration
	WriteWait    time.Duration
	// MaxClientMsg 超过的上行帧直接丢弃，不断开连接
	MaxClientMsg int64
}

// NewServer ctx 结束时所有会话以 going away 关闭
func NewServer(ctx context.Context, p provider.Provider) *Server {
	return &Server{
		Provider: p,
		ctx:      ctx,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true }, // 没有鉴权，和 CORS 一样放开
		},
		PongWait:     60 * time.Second,
		PingPeriod:   30 * time.Second,
		PingJitter:   100 * time.Millisecond,
		WriteWait:    5 * time.Second,
		MaxClientMsg: 4 << 10,
	}
}

// ServeWS 阻塞到会话结束
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	symbols, schema := ParseQuery(r.URL.Query())

	conn, err := s.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrader 已经写了 HTTP 错误响应
		logger.Warn(r.Context(), "ws upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	if s.ctx != nil {
		stop := context.AfterFunc(s.ctx, cancel)
		defer stop()
	}

	id := common.NewID()
	fields := []zap.Field{
		zap.String("session", id),
		zap.String("remote", r.RemoteAddr),
		zap.Strings("symbols", symbols),
		zap.String("schema", schema),
	}
	opened := time.Now()
	wsmetrics.OnOpen()

	stream, err := s.Provider.SubscribeLive(ctx, symbols, schema)
	if err != nil {
		wsmetrics.OnReject(xerr.KindOf(err).String())
		logger.Warn(ctx, "live subscribe rejected", append(fields, zap.Error(err))...)
		s.reject(conn, err)
		wsmetrics.OnClose(websocket.CloseNormalClosure, "rejected", time.Since(opened))
		return
	}
	logger.Info(ctx, "live session opened", fields...)

	sess := &session{srv: s, conn: conn, stream: stream, id: id}
	code, reason := sess.run(ctx)

	wsmetrics.OnClose(code, reason, time.Since(opened))
	logger.Info(ctx, "live session closed", append(fields,
		zap.Int("code", code),
		zap.String("reason", reason),
		zap.Int64("frames", sess.frames),
		zap.Duration("lifetime", time.Since(opened)),
	)...)
}

// reject 订阅失败：一条 error 帧 + close 帧，不启动 pump
func (s *Server) reject(conn *websocket.Conn, err error) {
	defer conn.Close()

	deadline := time.Now().Add(s.WriteWait)
	if b, encErr := model.ErrorMessage(err.Error()).Encode(); encErr == nil {
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.WriteMessage(websocket.TextMessage, b)
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "subscribe failed"), deadline)
}

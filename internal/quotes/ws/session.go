package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"mdviewer.com/internal/quotes/model"
	"mdviewer.com/internal/quotes/provider"
	"mdviewer.com/internal/quotes/wsmetrics"
	"mdviewer.com/pkg/logger"
)

var (
	errStreamEnded = errors.New("live stream ended")
	errClientGone  = errors.New("client gone")
)

type session struct {
	srv    *Server
	conn   *websocket.Conn
	stream *provider.LiveStream
	id     string

	// 只由 writePump 写
	frames int64
}

// run 两个 pump 任意一个先结束都会取消整个会话：流关闭、socket 关闭
func (s *session) run(ctx context.Context) (code int, reason string) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.writePump(gctx) })
	g.Go(func() error { return s.readPump(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			// 服务退出
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
				time.Now().Add(s.srv.WriteWait))
		}
		s.stream.Close()
		_ = s.conn.Close()
		return nil
	})
	return closeStatus(g.Wait())
}

func closeStatus(err error) (int, string) {
	var ce *websocket.CloseError
	switch {
	case errors.Is(err, errStreamEnded):
		return websocket.CloseNormalClosure, "stream_end"
	case errors.As(err, &ce):
		return ce.Code, "client_close"
	case errors.Is(err, context.Canceled):
		return websocket.CloseGoingAway, "shutdown"
	case errors.Is(err, errClientGone):
		return websocket.CloseAbnormalClosure, "client_gone"
	default:
		return websocket.CloseAbnormalClosure, "write_error"
	}
}

// writePump 按顺序一条消息一帧，流结束发正常 close 帧
func (s *session) writePump(ctx context.Context) error {
	if s.srv.PingJitter > 0 {
		t := time.NewTimer(rand.N(s.srv.PingJitter))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
	ticker := time.NewTicker(s.srv.PingPeriod)
	defer ticker.Stop()

	msgs := s.stream.Messages()
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					// 流是被取消的，close 帧由 run 负责
					return ctx.Err()
				}
				_ = s.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream ended"),
					time.Now().Add(s.srv.WriteWait))
				return errStreamEnded
			}
			if err := s.write(ctx, msg); err != nil {
				return err
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.srv.WriteWait)); err != nil {
				wsmetrics.PingErrorsTotal.Inc()
				return fmt.Errorf("ping: %w", err)
			}
			wsmetrics.PingSentTotal.Inc()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *session) write(ctx context.Context, msg model.LiveMessage) error {
	b, err := msg.Encode()
	if err != nil {
		// 编码失败只跳过这一条
		logger.Error(ctx, "encode live message", zap.String("session", s.id), zap.Error(err))
		return nil
	}
	start := time.Now()
	_ = s.conn.SetWriteDeadline(start.Add(s.srv.WriteWait))
	err = s.conn.WriteMessage(websocket.TextMessage, b)
	wsmetrics.ObserveWrite(string(msg.Type), len(b), time.Since(start), err)
	if err != nil {
		return fmt.Errorf("write %s frame: %w", msg.Type, err)
	}
	s.frames++
	s.srv.Mirror.Publish(ctx, msg, b)
	return nil
}

// readPump 维持心跳，消费客户端上行帧；上行内容一律不算错误，
// 只有读错误（包括 close 帧）结束会话
func (s *session) readPump(ctx context.Context) error {
	_ = s.conn.SetReadDeadline(time.Now().Add(s.srv.PongWait))
	s.conn.SetPongHandler(func(string) error {
		wsmetrics.PongRecvTotal.Inc()
		return s.conn.SetReadDeadline(time.Now().Add(s.srv.PongWait))
	})

	for {
		typ, r, err := s.conn.NextReader()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return fmt.Errorf("read: %w", err)
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				wsmetrics.PongTimeoutTotal.Inc()
			}
			logger.Debug(ctx, "ws read error", zap.String("session", s.id), zap.Error(err))
			return fmt.Errorf("%w: %v", errClientGone, err)
		}
		if typ != websocket.TextMessage {
			_, _ = io.Copy(io.Discard, r)
			continue
		}
		b, err := io.ReadAll(io.LimitReader(r, s.srv.MaxClientMsg+1))
		if err != nil {
			// 连接层错误，下一次 NextReader 会返回
			continue
		}
		if int64(len(b)) > s.srv.MaxClientMsg {
			_, _ = io.Copy(io.Discard, r)
			wsmetrics.ClientMsgsTotal.WithLabelValues("oversize").Inc()
			continue
		}
		var msg ClientMsg
		if err := json.Unmarshal(b, &msg); err != nil {
			wsmetrics.ClientMsgsTotal.WithLabelValues("invalid").Inc()
			continue
		}
		wsmetrics.ClientMsgsTotal.WithLabelValues("control").Inc()
		logger.Debug(ctx, "client control message ignored",
			zap.String("session", s.id),
			zap.String("type", msg.Type),
		)
	}
}

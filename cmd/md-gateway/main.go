package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"mdviewer.com/internal/quotes/app"
)

func main() {
	// 1. 支持 Ctrl+C / kubernetes 停止信号的 context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. 初始化 App
	mdApp, err := app.New("md-gateway")
	if err != nil {
		log.Fatalf("init md-gateway error: %v", err)
	}
	cleanUp, err := mdApp.StartService(ctx)
	if err != nil {
		log.Fatalf("start md-gateway error: %v", err)
	}
	defer cleanUp()

	// 3. 启动 http + ws
	srv := mdApp.StartHttp()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("md-gateway ListenAndServe error: %v", err)
		}
	}()
	<-ctx.Done()

	// ws 会话跟随 ctx 以 going away 关闭；Shutdown 不等待被劫持的连接
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("md-gateway shutdown error: %v", err)
	}
	log.Println("md-gateway exit")
}

package safe

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
	"mdviewer.com/pkg/logger"
)

// GoCtx 安全启动携带 context 的协程；panic 只记录不扩散。
// fn 内部的 defer（比如关闭 channel）在 recover 之前执行。
func GoCtx(ctx context.Context, name string, fn func(ctx context.Context)) {
	if ctx == nil {
		ctx = context.Background()
	}

	go func() {
		defer Recover(ctx, name)
		fn(ctx)
	}()
}

// Recover 需要直接 defer 调用
func Recover(ctx context.Context, name string) {
	r := recover()
	if r == nil {
		return
	}
	stack := string(debug.Stack())
	if logger.Log != nil {
		logger.Error(ctx, "goroutine panic recovered",
			zap.String("goroutine", name),
			zap.Any("panic", r),
			zap.String("stack", stack),
		)
		return
	}
	fmt.Printf("goroutine %s panic: %v\nStack: %s\n", name, r, stack)
}

package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	quotesConfig "mdviewer.com/internal/quotes/config"
	"mdviewer.com/internal/quotes/datasource/databento"
	"mdviewer.com/internal/quotes/feed"
	"mdviewer.com/internal/quotes/gateway"
	"mdviewer.com/internal/quotes/handler"
	qhttp "mdviewer.com/internal/quotes/http"
	"mdviewer.com/internal/quotes/model"
	"mdviewer.com/internal/quotes/provider"
	"mdviewer.com/internal/quotes/synthetic"
	"mdviewer.com/internal/quotes/ws"
	vipConfig "mdviewer.com/pkg/config"
	"mdviewer.com/pkg/logger"
	"mdviewer.com/pkg/metrics"
	"mdviewer.com/pkg/ratelimit"
	"mdviewer.com/pkg/trace"
)

type App struct {
	ctx           context.Context
	cfg           *quotesConfig.Config
	provider      provider.Provider
	mirror        *gateway.Mirror
	traceShutdown func(context.Context) error
}

// New 加载 config/{configName}.yaml；paths 为空时在 ./config 和 . 下找
func New(configName string, paths ...string) (*App, error) {
	if configName == "" {
		configName = quotesConfig.ServiceName
	}
	app := &App{cfg: &quotesConfig.Config{}}
	_, err := vipConfig.LoadAndWatch(configName, app.cfg, vipConfig.Options{
		Defaults: quotesConfig.Defaults(),
		Bindings: quotesConfig.Bindings(),
		OnChange: app.onConfigChange,
		Paths:    paths,
	})
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return app, nil
}

func (app *App) Config() quotesConfig.Config { return *app.cfg }

func (app *App) Provider() provider.Provider { return app.provider }

// StartService 初始化日志、指标、trace、provider；返回的 cleanUp 在退出时调用
func (app *App) StartService(ctx context.Context) (func(), error) {
	app.ctx = ctx
	logger.InitWithFile(app.cfg.Name, app.cfg.Log.Level, app.cfg.Log.File)
	if logger.Level() > zapcore.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	metrics.MustRegister()

	// 启动trace
	if err := app.startTrace(); err != nil {
		return nil, err
	}
	p, err := app.newProvider()
	if err != nil {
		return nil, err
	}
	app.provider = p

	m, err := gateway.Open(app.cfg.Mirror.Kind, app.cfg.Mirror.NatsURL)
	if err != nil {
		return nil, fmt.Errorf("open mirror: %w", err)
	}
	app.mirror = m

	logger.Info(ctx, "service started",
		zap.String("provider", p.Name()),
		zap.String("addr", app.cfg.HTTP.Addr()),
		zap.String("mirror", app.cfg.Mirror.Kind),
	)

	cleanUp := func() {
		_ = app.mirror.Close()
		if app.traceShutdown != nil {
			_ = app.traceShutdown(context.Background())
		}
		logger.Sync()
	}
	return cleanUp, nil
}

func (app *App) StartHttp() *http.Server {
	wsSrv := ws.NewServer(app.ctx, app.provider)
	wsSrv.Mirror = app.mirror
	h := handler.NewQuotes(app.provider, wsSrv)

	return qhttp.NewServer(qhttp.Options{
		Service:           app.cfg.Name,
		Addr:              app.cfg.HTTP.Addr(),
		ReadHeaderTimeout: app.cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      app.cfg.HTTP.WriteTimeout,
		Metrics:           app.cfg.HTTP.Metrics,
		Tracing:           app.traceShutdown != nil,
	}, h)
}

func (app *App) startTrace() error {
	if app.cfg.Trace.Endpoint == "" {
		return nil
	}
	shutdown, err := trace.InitTrace(app.cfg.Name, app.cfg.Trace.Endpoint, app.cfg.Trace.SampleRatio)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	app.traceShutdown = shutdown
	return nil
}

// newProvider 启动时选一次：有 API key 走外部 feed，否则合成数据
func (app *App) newProvider() (provider.Provider, error) {
	pc := app.cfg.Provider
	dc := app.cfg.Databento

	if dc.APIKey == "" {
		opts := []synthetic.Option{
			synthetic.WithTickInterval(pc.TickMin, pc.TickMax),
			synthetic.WithStreamBuffer(pc.LiveBuffer),
		}
		if pc.BasePrice != "" {
			base, err := model.ParsePrice(pc.BasePrice)
			if err != nil {
				return nil, fmt.Errorf("provider.base_price: %w", err)
			}
			opts = append(opts, synthetic.WithBasePrice(base))
		}
		if pc.Seed != 0 {
			opts = append(opts, synthetic.WithSeed(pc.Seed))
		}
		return synthetic.New(opts...), nil
	}

	client, err := databento.New(databento.Config{
		APIKey:     dc.APIKey,
		Timeout:    dc.Timeout,
		RatePerSec: dc.RatePerSec,
		Burst:      dc.Burst,
	})
	if err != nil {
		return nil, err
	}
	return feed.New(client,
		feed.WithDataset(dc.Dataset),
		feed.WithStypeIn(dc.StypeIn),
		feed.WithStreamBuffer(pc.LiveBuffer),
		feed.WithBreaker(ratelimit.NewManager(app.cfg.Breaker.Rule(), nil)),
	), nil
}

// onConfigChange 热更新只处理日志级别，其他配置重启生效
func (app *App) onConfigChange() {
	logger.SetLevel(app.cfg.Log.Level)
	logger.Info(context.Background(), "log level reloaded", zap.String("level", app.cfg.Log.Level))
}

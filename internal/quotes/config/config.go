package config

import (
	"net"
	"strconv"
	"time"

	"mdviewer.com/pkg/ratelimit"
)

// ServiceName 也是配置文件名 config/md-gateway.yaml 和环境变量前缀 MD_GATEWAY_
const ServiceName = "md-gateway"

// 总配置
type Config struct {
	Name      string          `mapstructure:"name" yaml:"name"`
	HTTP      HTTPConfig      `mapstructure:"http" yaml:"http"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
	Provider  ProviderConfig  `mapstructure:"provider" yaml:"provider"`
	Databento DatabentoConfig `mapstructure:"databento" yaml:"databento"`
	Breaker   BreakerConfig   `mapstructure:"breaker" yaml:"breaker"`
	Mirror    MirrorConfig    `mapstructure:"mirror" yaml:"mirror"`
	Trace     TraceConfig     `mapstructure:"trace" yaml:"trace"`
}

// HTTP 配置
type HTTPConfig struct {
	Host              string        `mapstructure:"host" yaml:"host"`
	Port              int           `mapstructure:"port" yaml:"port"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	Metrics           bool          `mapstructure:"metrics" yaml:"metrics"`
}

func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	// File 空 = logs/{name}.log，"-" = 只打 stdout
	File string `mapstructure:"file" yaml:"file"`
}

// ProviderConfig 合成数据参数，也包括两种 provider 共用的 live 队列长度
type ProviderConfig struct {
	BasePrice  string        `mapstructure:"base_price" yaml:"base_price"`
	TickMin    time.Duration `mapstructure:"tick_min" yaml:"tick_min"`
	TickMax    time.Duration `mapstructure:"tick_max" yaml:"tick_max"`
	Seed       uint64        `mapstructure:"seed" yaml:"seed"`
	LiveBuffer int           `mapstructure:"live_buffer" yaml:"live_buffer"`
}

// DatabentoConfig api_key 非空时使用外部 feed
type DatabentoConfig struct {
	APIKey     string        `mapstructure:"api_key" yaml:"api_key"`
	Dataset    string        `mapstructure:"dataset" yaml:"dataset"`
	StypeIn    string        `mapstructure:"stype_in" yaml:"stype_in"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RatePerSec float64       `mapstructure:"rate_per_sec" yaml:"rate_per_sec"`
	Burst      int           `mapstructure:"burst" yaml:"burst"`
}

type BreakerConfig struct {
	MaxRequests             uint32        `mapstructure:"max_requests" yaml:"max_requests"`
	Interval                time.Duration `mapstructure:"interval" yaml:"interval"`
	BucketPeriod            time.Duration `mapstructure:"bucket_period" yaml:"bucket_period"`
	Timeout                 time.Duration `mapstructure:"timeout" yaml:"timeout"`
	TripConsecutiveFailures uint32        `mapstructure:"trip_consecutive_failures" yaml:"trip_consecutive_failures"`
	TripFailureRate         float64       `mapstructure:"trip_failure_rate" yaml:"trip_failure_rate"`
	TripMinRequests         uint32        `mapstructure:"trip_min_requests" yaml:"trip_min_requests"`
}

func (b BreakerConfig) Rule() ratelimit.Rule {
	return ratelimit.Rule{
		MaxRequests:             b.MaxRequests,
		Interval:                b.Interval,
		BucketPeriod:            b.BucketPeriod,
		Timeout:                 b.Timeout,
		TripConsecutiveFailures: b.TripConsecutiveFailures,
		TripFailureRate:         b.TripFailureRate,
		TripMinRequests:         b.TripMinRequests,
	}
}

// MirrorConfig kind: ""(关闭) | mem | nats
type MirrorConfig struct {
	Kind    string `mapstructure:"kind" yaml:"kind"`
	NatsURL string `mapstructure:"nats_url" yaml:"nats_url"`
}

// TraceConfig endpoint 为空不启用
type TraceConfig struct {
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio" yaml:"sample_ratio"`
}

// Defaults 每个 key 都要出现，环境变量覆盖才会生效
func Defaults() map[string]any {
	return map[string]any{
		"name": ServiceName,

		"http.host":                "0.0.0.0",
		"http.port":                8080,
		"http.read_header_timeout": "10s",
		"http.write_timeout":       "0s",
		"http.metrics":             true,

		"log.level": "info",
		"log.file":  "-",

		"provider.base_price":  "5000",
		"provider.tick_min":    "100ms",
		"provider.tick_max":    "500ms",
		"provider.seed":        0,
		"provider.live_buffer": 64,

		"databento.api_key":      "",
		"databento.dataset":      "GLBX.MDP3",
		"databento.stype_in":     "parent",
		"databento.timeout":      "30s",
		"databento.rate_per_sec": 5.0,
		"databento.burst":        10,

		"breaker.max_requests":              1,
		"breaker.interval":                  "1m",
		"breaker.bucket_period":             "0s",
		"breaker.timeout":                   "30s",
		"breaker.trip_consecutive_failures": 5,
		"breaker.trip_failure_rate":         0.0,
		"breaker.trip_min_requests":         10,

		"mirror.kind":     "",
		"mirror.nats_url": "nats://127.0.0.1:4222",

		"trace.endpoint":     "",
		"trace.sample_ratio": 1.0,
	}
}

// Bindings 兼容不带前缀的老环境变量
func Bindings() map[string]string {
	return map[string]string{
		"http.host":         "HOST",
		"http.port":         "PORT",
		"databento.api_key": "DATABENTO_API_KEY",
	}
}

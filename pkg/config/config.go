package config

import (
	"errors"
	"log"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Options 加载选项
type Options struct {
	// Defaults 所有 key 的默认值；AutomaticEnv 只对已知 key 生效，所以每个 key 都要有默认值
	Defaults map[string]any
	// Bindings 额外的环境变量绑定 key -> ENV（兼容老的 HOST/PORT 这类变量）
	Bindings map[string]string
	// OnChange 热更新成功后回调
	OnChange func()
	// Paths 配置文件搜索目录，默认 ./config 和 .
	Paths []string
}

// LoadAndWatch 约定 config/{service}.yaml，文件不存在时只用默认值 + 环境变量
//
// 环境变量覆盖，例如 MD_GATEWAY_HTTP_PORT 覆盖 http.port
func LoadAndWatch(service string, out interface{}, opts Options) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName(service)
	v.SetConfigType("yaml")
	paths := opts.Paths
	if len(paths) == 0 {
		paths = []string{"./config", "."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	for k, val := range opts.Defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix(service))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range opts.Bindings {
		// 带前缀的变量优先
		if err := v.BindEnv(key, EnvPrefix(service)+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, err
		}
	}

	fromFile := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fromFile = false
	}

	if err := v.Unmarshal(out); err != nil {
		return nil, err
	}

	if !fromFile {
		log.Printf("[%s] no config file, using defaults and environment", service)
		return v, nil
	}
	log.Printf("[%s] config loaded from %s", service, v.ConfigFileUsed())

	v.OnConfigChange(func(e fsnotify.Event) {
		log.Printf("[%s] config file changed: %s", service, e.Name)
		if err := v.Unmarshal(out); err != nil {
			log.Printf("[%s] reload config error: %v", service, err)
			return
		}
		if opts.OnChange != nil {
			opts.OnChange()
		}
		log.Printf("[%s] config reloaded OK", service)
	})
	v.WatchConfig()

	return v, nil
}

// EnvPrefix md-gateway -> MD_GATEWAY
func EnvPrefix(service string) string {
	return strings.ToUpper(strings.ReplaceAll(service, "-", "_"))
}

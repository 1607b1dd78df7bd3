package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vipConfig "mdviewer.com/pkg/config"
)

func load(t *testing.T, dir string) *Config {
	t.Helper()
	cfg := &Config{}
	_, err := vipConfig.LoadAndWatch(ServiceName, cfg, vipConfig.Options{
		Defaults: Defaults(),
		Bindings: Bindings(),
		Paths:    []string{dir},
	})
	require.NoError(t, err)
	return cfg
}

func TestDefaultsWithoutFile(t *testing.T) {
	cfg := load(t, t.TempDir())

	assert.Equal(t, ServiceName, cfg.Name)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
	assert.Equal(t, 10*time.Second, cfg.HTTP.ReadHeaderTimeout)
	assert.Equal(t, "5000", cfg.Provider.BasePrice)
	assert.Equal(t, 100*time.Millisecond, cfg.Provider.TickMin)
	assert.Equal(t, 64, cfg.Provider.LiveBuffer)
	assert.Equal(t, "GLBX.MDP3", cfg.Databento.Dataset)
	assert.Empty(t, cfg.Databento.APIKey)
	assert.Equal(t, uint32(5), cfg.Breaker.Rule().TripConsecutiveFailures)
	assert.Empty(t, cfg.Mirror.Kind)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9001")
	t.Setenv("DATABENTO_API_KEY", "db-legacy")
	t.Setenv("MD_GATEWAY_LOG_LEVEL", "debug")
	t.Setenv("MD_GATEWAY_PROVIDER_TICK_MAX", "2s")

	cfg := load(t, t.TempDir())
	assert.Equal(t, 9001, cfg.HTTP.Port)
	assert.Equal(t, "db-legacy", cfg.Databento.APIKey)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 2*time.Second, cfg.Provider.TickMax)

	// 带前缀的优先
	t.Setenv("MD_GATEWAY_HTTP_PORT", "9002")
	assert.Equal(t, 9002, load(t, t.TempDir()).HTTP.Port)
}

func TestFileOverrides(t *testing.T) {
	dir := t.TempDir()
	yaml := `
http:
  port: 7000
databento:
  api_key: db-file
  dataset: XNAS.ITCH
mirror:
  kind: mem
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ServiceName+".yaml"), []byte(yaml), 0o644))

	cfg := load(t, dir)
	assert.Equal(t, 7000, cfg.HTTP.Port)
	assert.Equal(t, "db-file", cfg.Databento.APIKey)
	assert.Equal(t, "XNAS.ITCH", cfg.Databento.Dataset)
	assert.Equal(t, "mem", cfg.Mirror.Kind)
	// 文件里没写的仍是默认值
	assert.Equal(t, "0.0.0.0", cfg.HTTP.Host)
}

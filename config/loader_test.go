// 配置加载器测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	// 不指定配置文件，应该返回默认值
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 10000, cfg.Engine.MaxNodeExecutions)
	assert.Equal(t, HistoryBackendMemory, cfg.History.Backend)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_LoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nodegraph.yaml")

	yamlContent := `
engine:
  max_node_executions: 500
  default_map_concurrency: 4
  event_buffer: 16

history:
  backend: redis
  key_prefix: "wf:"
  ttl: 1h
  redis:
    addr: "redis.example.com:6379"
    password: "secret"
    db: 1

log:
  level: "debug"
  format: "console"
  output_paths: ["stderr"]

metrics:
  namespace: "flows"
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	// 验证 YAML 值覆盖了默认值
	assert.Equal(t, 500, cfg.Engine.MaxNodeExecutions)
	assert.Equal(t, 4, cfg.Engine.DefaultMapConcurrency)
	assert.Equal(t, 16, cfg.Engine.EventBuffer)

	assert.Equal(t, HistoryBackendRedis, cfg.History.Backend)
	assert.Equal(t, "wf:", cfg.History.KeyPrefix)
	assert.Equal(t, time.Hour, cfg.History.TTL)
	assert.Equal(t, "redis.example.com:6379", cfg.History.Redis.Addr)
	assert.Equal(t, "secret", cfg.History.Redis.Password)
	assert.Equal(t, 1, cfg.History.Redis.DB)
	// 未出现在 YAML 中的字段保留默认值
	assert.Equal(t, 10, cfg.History.Redis.PoolSize)
	assert.True(t, cfg.History.Enabled)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, []string{"stderr"}, cfg.Log.OutputPaths)
	assert.Equal(t, "flows", cfg.Metrics.Namespace)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	envVars := map[string]string{
		"NODEGRAPH_ENGINE_MAX_NODE_EXECUTIONS": "42",
		"NODEGRAPH_ENGINE_EVENT_BUFFER":        "8",
		"NODEGRAPH_HISTORY_BACKEND":            "redis",
		"NODEGRAPH_HISTORY_TTL":                "30m",
		"NODEGRAPH_HISTORY_REDIS_ADDR":         "env-redis:6379",
		"NODEGRAPH_LOG_LEVEL":                  "warn",
		"NODEGRAPH_LOG_OUTPUT_PATHS":           "stdout, /var/log/nodegraph.log",
		"NODEGRAPH_METRICS_ENABLED":            "false",
		"NODEGRAPH_TELEMETRY_SAMPLE_RATE":      "0.5",
	}
	for k, v := range envVars {
		t.Setenv(k, v)
	}

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 42, cfg.Engine.MaxNodeExecutions)
	assert.Equal(t, 8, cfg.Engine.EventBuffer)
	assert.Equal(t, HistoryBackendRedis, cfg.History.Backend)
	assert.Equal(t, 30*time.Minute, cfg.History.TTL)
	assert.Equal(t, "env-redis:6379", cfg.History.Redis.Addr)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, []string{"stdout", "/var/log/nodegraph.log"}, cfg.Log.OutputPaths)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, 0.5, cfg.Telemetry.SampleRate)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nodegraph.yaml")

	yamlContent := `
engine:
  max_node_executions: 100
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	// 环境变量应该覆盖 YAML
	t.Setenv("NODEGRAPH_ENGINE_MAX_NODE_EXECUTIONS", "200")
	t.Setenv("NODEGRAPH_LOG_LEVEL", "error")

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	assert.Equal(t, 200, cfg.Engine.MaxNodeExecutions)
	assert.Equal(t, "error", cfg.Log.Level)
	// YAML 值应该保留（没有被环境变量覆盖）
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_ENGINE_MAX_NODE_EXECUTIONS", "7")
	t.Setenv("NODEGRAPH_ENGINE_MAX_NODE_EXECUTIONS", "9")

	cfg, err := NewLoader().
		WithEnvPrefix("MYAPP").
		Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Engine.MaxNodeExecutions)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("NODEGRAPH_HISTORY_TTL", "forever")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NODEGRAPH_HISTORY_TTL")
}

func TestLoader_WithValidator(t *testing.T) {
	t.Setenv("NODEGRAPH_HISTORY_BACKEND", "cassandra")

	_, err := NewLoader().
		WithValidator((*Config).Validate).
		Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cassandra")
}

func TestLoader_NonExistentFile(t *testing.T) {
	// 指定不存在的文件，应该使用默认值（不报错）
	cfg, err := NewLoader().
		WithConfigPath("/non/existent/path/nodegraph.yaml").
		Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultEngineConfig(), cfg.Engine)
}

func TestLoader_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
engine:
  max_node_executions: [invalid
  this is not valid yaml
`
	require.NoError(t, os.WriteFile(configPath, []byte(invalidYAML), 0644))

	_, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	assert.Error(t, err)
}

// --- Config 方法测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "zero max node executions",
			modify: func(c *Config) {
				c.Engine.MaxNodeExecutions = 0
			},
			wantErr: true,
		},
		{
			name: "negative map concurrency",
			modify: func(c *Config) {
				c.Engine.DefaultMapConcurrency = -1
			},
			wantErr: true,
		},
		{
			name: "zero event buffer",
			modify: func(c *Config) {
				c.Engine.EventBuffer = 0
			},
			wantErr: true,
		},
		{
			name: "redis backend without address",
			modify: func(c *Config) {
				c.History.Backend = HistoryBackendRedis
				c.History.Redis.Addr = ""
			},
			wantErr: true,
		},
		{
			name: "redis backend",
			modify: func(c *Config) {
				c.History.Backend = HistoryBackendRedis
			},
			wantErr: false,
		},
		{
			name: "unknown log level",
			modify: func(c *Config) {
				c.Log.Level = "verbose"
			},
			wantErr: true,
		},
		{
			name: "sample rate out of range",
			modify: func(c *Config) {
				c.Telemetry.SampleRate = 1.5
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// --- MustLoad 测试 ---

func TestMustLoad_Success(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nodegraph.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("engine:\n  event_buffer: 32\n"), 0644))

	assert.NotPanics(t, func() {
		cfg := MustLoad(configPath)
		assert.Equal(t, 32, cfg.Engine.EventBuffer)
	})
}

func TestMustLoad_InvalidFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("invalid: [yaml"), 0644))

	assert.Panics(t, func() {
		MustLoad(configPath)
	})
}

func TestLoadFromEnv_Function(t *testing.T) {
	t.Setenv("NODEGRAPH_TELEMETRY_SERVICE_NAME", "env-only")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "env-only", cfg.Telemetry.ServiceName)
}

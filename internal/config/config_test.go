package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name: "完整配置",
			content: `
server:
  port: 9090
mysql:
  host: db
  port: 3306
kafka:
  brokers: ["k1:9092", "k2:9092"]
  topic:
    point_changed: point_changed
point:
  lock_strategy: redis
  lock_wait_timeout_ms: 500
  worker_id: 7
business:
  max_retry_count: 3
  reconcile_interval_seconds: 10
`,
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9090, cfg.Server.Port)
				assert.Equal(t, "db", cfg.MySQL.Host)
				assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
				assert.Equal(t, "point_changed", cfg.Kafka.Topic.PointChanged)
				assert.Equal(t, "redis", cfg.Point.LockStrategy)
				assert.Equal(t, 500*time.Millisecond, cfg.Point.LockWaitTimeout())
				assert.Equal(t, int64(7), cfg.Point.WorkerID)
				assert.Equal(t, 3, cfg.Business.MaxRetryCount)
				assert.Equal(t, 10*time.Second, cfg.Business.ReconcileInterval())
			},
		},
		{
			name:    "使用默认值",
			content: "mysql:\n  host: db\n",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "row", cfg.Point.LockStrategy)
				assert.Equal(t, 3*time.Second, cfg.Point.LockWaitTimeout())
				assert.Equal(t, 5, cfg.Business.MaxRetryCount)
				assert.Equal(t, time.Minute, cfg.Business.ReconcileInterval())
			},
		},
		{
			name:    "锁等待时间非法",
			content: "point:\n  lock_wait_timeout_ms: -1\n",
			wantErr: true,
		},
		{
			name:    "对账间隔非法",
			content: "business:\n  reconcile_interval_seconds: 0\n",
			wantErr: true,
		},
		{
			name:    "对账间隔为负数",
			content: "business:\n  reconcile_interval_seconds: -5\n",
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadConfig(writeConfig(t, tc.content))
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tc.check(t, cfg)
		})
	}
}

func TestLoadConfig_FileMissing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

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
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  read_timeout: 15s

database:
  path: /tmp/approvalflow-test.db

engine:
  reject_policy: restart

logger:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "/tmp/approvalflow-test.db", cfg.Database.Path)
	assert.Equal(t, "restart", cfg.Engine.RejectPolicy)
	assert.Equal(t, "debug", cfg.Logger.Level)

	// Unset keys fall back to defaults
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, "json", cfg.Logger.Format)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("APPROVALFLOW_REJECT_POLICY", "restart")

	path := writeConfig(t, `
database:
  path: /tmp/approvalflow-test.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "restart", cfg.Engine.RejectPolicy)
}

func TestLoad_InvalidRejectPolicy(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /tmp/approvalflow-test.db

engine:
  reject_policy: bounce
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown reject policy")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Config{
		Server:   ServerConfig{Port: 8080},
		Database: DatabaseConfig{Path: "data/app.db"},
		Engine:   EngineConfig{RejectPolicy: "predecessor"},
	}
	assert.NoError(t, valid.Validate())

	badPort := valid
	badPort.Server.Port = 0
	assert.Error(t, badPort.Validate())

	noPath := valid
	noPath.Database.Path = ""
	assert.Error(t, noPath.Validate())
}

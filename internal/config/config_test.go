package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	cfg, err := Load("", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, GetConfig(), cfg)
}

func TestLoad_FileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "advisor.yaml")
	content := `
database:
  dialect: mysql
  host: db.internal
  port: 3306
profiler:
  sample_size: 50
  initial_backoff: 250ms
report:
  format: ddl
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("ADVISOR_DATABASE_USER", "reader")
	t.Setenv("ADVISOR_PROFILER_MAX_RETRIES", "7")
	t.Setenv("GEMINI_API_KEY", "key-from-env")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("host", "localhost", "")
	flags.Int("port", 5432, "")
	require.NoError(t, flags.Parse([]string{"--host", "override.internal"}))

	cfg, err := Load(path, flags, map[string]string{
		"database.host": "host",
		"database.port": "port",
	})
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Dialect)
	assert.Equal(t, "override.internal", cfg.Database.Host)
	assert.Equal(t, 3306, cfg.Database.Port, "unset flags must not override the file")
	assert.Equal(t, "reader", cfg.Database.User)
	assert.Equal(t, 50, cfg.Profiler.SampleSize)
	assert.Equal(t, 7, cfg.Profiler.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Profiler.InitialBackoff)
	assert.Equal(t, "ddl", cfg.Report.Format)
	assert.Equal(t, "key-from-env", cfg.GeminiAPIKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestValidate(t *testing.T) {
	cfg := GetConfig()
	cfg.Profiler.MaxConcurrency = 0
	assert.Error(t, cfg.Validate())

	cfg = GetConfig()
	cfg.Profiler.SampleSize = -1
	assert.Error(t, cfg.Validate())

	assert.NoError(t, GetConfig().Validate())
}

func TestSetConfigAndCurrent(t *testing.T) {
	SetConfig(nil)
	assert.Equal(t, GetConfig(), Current())

	cfg := GetConfig()
	cfg.Database.Dialect = "sqlite"
	SetConfig(cfg)
	defer SetConfig(nil)
	assert.Equal(t, "sqlite", Current().Database.Dialect)
}

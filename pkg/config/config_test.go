package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, 200, cfg.Generator.Records)
	assert.Equal(t, int64(42), cfg.Generator.Seed)
	assert.Equal(t, 0.20, cfg.Model.Contamination)
	assert.Equal(t, 100, cfg.Model.Estimators)
	assert.Equal(t, "dataset/cloud_logs.csv", cfg.Data.Activity)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cloudsentry.yaml")
	content := `
listen: ":9090"
generator:
  records: 500
model:
  contamination: 0.1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, 500, cfg.Generator.Records)
	assert.Equal(t, 0.1, cfg.Model.Contamination)
	// Untouched keys keep their defaults.
	assert.Equal(t, 100, cfg.Model.Estimators)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cloudsentry.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":9090\"\n"), 0o644))

	t.Setenv("CLOUDSENTRY_LISTEN", ":7070")
	t.Setenv("CLOUDSENTRY_MODEL_CONTAMINATION", "0.25")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Listen)
	assert.Equal(t, 0.25, cfg.Model.Contamination)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty listen", mutate: func(c *Config) { c.Listen = "" }},
		{name: "zero records", mutate: func(c *Config) { c.Generator.Records = 0 }},
		{name: "contamination too high", mutate: func(c *Config) { c.Model.Contamination = 0.6 }},
		{name: "zero estimators", mutate: func(c *Config) { c.Model.Estimators = 0 }},
		{name: "missing table path", mutate: func(c *Config) { c.Data.Threats = "" }},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "verbose" }},
		{name: "bad log format", mutate: func(c *Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}

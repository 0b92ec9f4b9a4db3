// Package config loads cloudsentry configuration from defaults, an
// optional YAML file and CLOUDSENTRY_* environment overrides, in that
// order of precedence (later wins).
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "CLOUDSENTRY_"

// Config is the full application configuration.
type Config struct {
	// Listen is the dashboard backend bind address.
	Listen string `koanf:"listen"`

	Log       Log       `koanf:"log"`
	Data      Data      `koanf:"data"`
	Generator Generator `koanf:"generator"`
	Model     Model     `koanf:"model"`
}

// Log controls zerolog output.
type Log struct {
	// Level: debug, info, warn or error.
	Level string `koanf:"level"`
	// Format: json or console.
	Format string `koanf:"format"`
}

// Data locates the persisted tables and model. Paths are handed to the
// pipeline explicitly; nothing reads them from globals.
type Data struct {
	Activity string `koanf:"activity"`
	Threats  string `koanf:"threats"`
	Model    string `koanf:"model"`
}

// Generator controls the synthetic activity generator.
type Generator struct {
	Records int   `koanf:"records"`
	Seed    int64 `koanf:"seed"`
}

// Model controls anomaly model training.
type Model struct {
	Contamination float64 `koanf:"contamination"`
	Estimators    int     `koanf:"estimators"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen: ":8080",
		Log: Log{
			Level:  "info",
			Format: "console",
		},
		Data: Data{
			Activity: "dataset/cloud_logs.csv",
			Threats:  "dataset/detected_threats.csv",
			Model:    "dataset/model.gob",
		},
		Generator: Generator{
			Records: 200,
			Seed:    42,
		},
		Model: Model{
			Contamination: 0.20,
			Estimators:    100,
		},
	}
}

// Load builds the configuration. path may be empty to skip the file layer.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("config: loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("config: loading %s: %w", path, err)
		}
	}

	// CLOUDSENTRY_MODEL_CONTAMINATION=0.1 -> model.contamination
	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "_", ".")
	}), nil)
	if err != nil {
		return Config{}, fmt.Errorf("config: loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshaling: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline or server cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Listen == "":
		return errors.New("config: listen address is required")
	case c.Generator.Records <= 0:
		return errors.New("config: generator.records must be positive")
	case c.Model.Contamination <= 0 || c.Model.Contamination > 0.5:
		return errors.New("config: model.contamination must be in (0, 0.5]")
	case c.Model.Estimators <= 0:
		return errors.New("config: model.estimators must be positive")
	case c.Data.Activity == "" || c.Data.Threats == "":
		return errors.New("config: data.activity and data.threats are required")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}

// Package config loads the global srcsec configuration.
//
// The file is YAML. It is converted to JSON and validated against an
// embedded JSON schema before being decoded, so unknown keys and wrong types
// are reported with the offending path.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
	k8syaml "sigs.k8s.io/yaml"
)

// FileName is the configuration file looked up by FindConfigFile.
const FileName = "srcsec.yml"

// ErrInvalidConfig wraps every schema or value validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// GlobalConfig holds the process-wide settings.
type GlobalConfig struct {
	Workers   int           `yaml:"workers" json:"workers"`
	WorkDir   string        `yaml:"workDir" json:"workDir"`
	Database  string        `yaml:"database" json:"database"`
	OutputDir string        `yaml:"outputDir" json:"outputDir"`
	Probe     ProbeConfig   `yaml:"probe" json:"probe"`
	Ingest    IngestConfig  `yaml:"ingest" json:"ingest"`
	Logging   LoggingConfig `yaml:"logging" json:"logging"`
}

// ProbeConfig tunes the network probe pass.
type ProbeConfig struct {
	TimeoutSeconds int    `yaml:"timeoutSeconds" json:"timeoutSeconds"`
	UserAgent      string `yaml:"userAgent" json:"userAgent"`
}

// IngestConfig tunes recipe ingestion.
type IngestConfig struct {
	// Pkglist is a "repository name" file. When set, only listed packages
	// are ingested.
	Pkglist string `yaml:"pkglist" json:"pkglist"`
}

// LoggingConfig holds the log settings.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

// DefaultGlobalConfig returns the built-in defaults.
func DefaultGlobalConfig() *GlobalConfig {
	return &GlobalConfig{
		Workers:   runtime.NumCPU(),
		WorkDir:   "./workspace",
		Database:  "srcsec.db",
		OutputDir: "./reports",
		Probe: ProbeConfig{
			TimeoutSeconds: 10,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

const globalConfigSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "workers":   {"type": "integer", "minimum": 1, "maximum": 256},
    "workDir":   {"type": "string"},
    "database":  {"type": "string", "minLength": 1},
    "outputDir": {"type": "string"},
    "probe": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "timeoutSeconds": {"type": "integer", "minimum": 1, "maximum": 300},
        "userAgent":      {"type": "string"}
      }
    },
    "ingest": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "pkglist": {"type": "string"}
      }
    },
    "logging": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "level": {"type": "string", "enum": ["debug", "info", "warn", "warning", "error"]}
      }
    }
  }
}`

var schema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	s, err := jsonschema.CompileString("srcsec-config.schema.json", globalConfigSchema)
	if err != nil {
		return nil, fmt.Errorf("compiling config schema: %w", err)
	}
	return s, nil
})

// ValidateGlobalConfigYAML validates raw YAML against the config schema.
func ValidateGlobalConfigYAML(data []byte) error {
	jsonData, err := k8syaml.YAMLToJSON(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if bytes.Equal(bytes.TrimSpace(jsonData), []byte("null")) {
		return nil
	}
	s, err := schema()
	if err != nil {
		return err
	}
	var doc any
	if err := k8syaml.Unmarshal(jsonData, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := s.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// ParseGlobalConfig decodes YAML over the defaults.
func ParseGlobalConfig(data []byte) (*GlobalConfig, error) {
	if err := ValidateGlobalConfigYAML(data); err != nil {
		return nil, err
	}
	cfg := DefaultGlobalConfig()
	if len(bytes.TrimSpace(data)) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadGlobalConfig reads path. An empty path falls back to FindConfigFile and
// then to the defaults.
func LoadGlobalConfig(path string) (*GlobalConfig, error) {
	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return DefaultGlobalConfig(), nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	cfg, err := ParseGlobalConfig(data)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return cfg, nil
}

// FindConfigFile returns the first existing config file in the working
// directory or in $HOME/.config/srcsec, or "".
func FindConfigFile() string {
	candidates := []string{FileName}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "srcsec", FileName))
	}
	for _, c := range candidates {
		if st, err := os.Stat(c); err == nil && !st.IsDir() {
			return c
		}
	}
	return ""
}

// Validate checks values the schema cannot express.
func (c *GlobalConfig) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.Database) == "" {
		return fmt.Errorf("%w: database path is empty", ErrInvalidConfig)
	}
	if c.Probe.TimeoutSeconds < 1 {
		return fmt.Errorf("%w: probe.timeoutSeconds must be positive", ErrInvalidConfig)
	}
	return nil
}

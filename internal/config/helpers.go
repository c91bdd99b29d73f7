package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ConfigHelpers provides convenient access to global configuration
type ConfigHelpers struct {
	config *GlobalConfig
}

// NewConfigHelpers creates a new config helpers instance
func NewConfigHelpers(config *GlobalConfig) *ConfigHelpers {
	return &ConfigHelpers{config: config}
}

// Workers returns the number of concurrent probe workers
func (c *ConfigHelpers) Workers() int {
	return c.config.Workers
}

// WorkDir returns the absolute path to the work directory
func (c *ConfigHelpers) WorkDir() (string, error) {
	return filepath.Abs(c.config.WorkDir)
}

// DatabasePath resolves the database file. Relative paths live in the work
// directory.
func (c *ConfigHelpers) DatabasePath() (string, error) {
	if filepath.IsAbs(c.config.Database) {
		return c.config.Database, nil
	}
	workDir, err := c.WorkDir()
	if err != nil {
		return "", fmt.Errorf("resolving work directory: %w", err)
	}
	return filepath.Join(workDir, c.config.Database), nil
}

// OutputDir returns the absolute report directory
func (c *ConfigHelpers) OutputDir() (string, error) {
	return filepath.Abs(c.config.OutputDir)
}

// ProbeTimeout returns the per-request probe timeout
func (c *ConfigHelpers) ProbeTimeout() time.Duration {
	return time.Duration(c.config.Probe.TimeoutSeconds) * time.Second
}

// UserAgent returns the configured probe user agent
func (c *ConfigHelpers) UserAgent() string {
	return c.config.Probe.UserAgent
}

// Pkglist returns the package list path, or ""
func (c *ConfigHelpers) Pkglist() string {
	return c.config.Ingest.Pkglist
}

// LogLevel returns the configured log level
func (c *ConfigHelpers) LogLevel() string {
	return c.config.Logging.Level
}

// CreateWorkDir ensures the work directory exists
func (c *ConfigHelpers) CreateWorkDir() error {
	workDir, err := c.WorkDir()
	if err != nil {
		return fmt.Errorf("resolving work directory: %w", err)
	}
	return createDirIfNotExists(workDir)
}

// CreateOutputDir ensures the report directory exists
func (c *ConfigHelpers) CreateOutputDir() (string, error) {
	dir, err := c.OutputDir()
	if err != nil {
		return "", fmt.Errorf("resolving output directory: %w", err)
	}
	return dir, createDirIfNotExists(dir)
}

// Helper function to create directories
func createDirIfNotExists(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}

// Package config defines the structures to configure where observation archives keep
// their external payloads and how they are read.
package config

import (
	"os"

	"github.com/pkg/errors"

	"go.viam.com/perception/logging"
	"go.viam.com/perception/payload"
	"go.viam.com/perception/serialization"
)

// BaseDirEnvVar overrides Storage.BaseDir when set.
const BaseDirEnvVar = "OBS_BASE_DIR"

// Config describes how observations are stored and logged.
type Config struct {
	Storage StorageConfig `json:"storage"`
	// MaxBufferBytes bounds any single buffer decoded from an archive or payload file.
	MaxBufferBytes uint64 `json:"max_buffer_bytes,omitempty"`
	LogLevel       string `json:"log_level,omitempty"`

	ConfigFilePath string `json:"-"`
}

// StorageConfig describes where external payload files live.
type StorageConfig struct {
	// BaseDir is the directory relative payload names are resolved against. Empty means
	// the working directory.
	BaseDir string `json:"base_dir"`
	// Compress gzips newly written payload files. Defaults to true.
	Compress *bool `json:"compress,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Storage.Compress == nil {
		compress := true
		c.Storage.Compress = &compress
	}
	if c.MaxBufferBytes == 0 {
		c.MaxBufferBytes = serialization.DefaultMaxBufferBytes
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if dir, ok := os.LookupEnv(BaseDirEnvVar); ok && dir != "" {
		c.Storage.BaseDir = dir
	}
}

// Ensure ensures all parts of the config are valid.
func (c *Config) Ensure() error {
	if _, err := logging.LevelFromString(c.LogLevel); err != nil {
		return errors.Wrap(err, "log_level")
	}
	if c.Storage.BaseDir != "" {
		info, err := os.Stat(c.Storage.BaseDir)
		switch {
		case os.IsNotExist(err):
			// created on first offload
		case err != nil:
			return errors.Wrap(err, "storage.base_dir")
		case !info.IsDir():
			return errors.Errorf("storage.base_dir %q is not a directory", c.Storage.BaseDir)
		}
	}
	return nil
}

// Level returns the configured log level.
func (c *Config) Level() logging.Level {
	level, err := logging.LevelFromString(c.LogLevel)
	if err != nil {
		return logging.INFO
	}
	return level
}

// NewStore returns the payload store this config describes.
func (c *Config) NewStore(logger logging.Logger) *payload.Store {
	store := payload.NewStore(c.Storage.BaseDir, logger)
	store.Compress = c.Storage.Compress == nil || *c.Storage.Compress
	store.MaxBufferBytes = c.MaxBufferBytes
	return store
}

// ArchiveOptions returns the options archives read under this config should use.
func (c *Config) ArchiveOptions() []serialization.Option {
	return []serialization.Option{serialization.WithMaxBufferBytes(c.MaxBufferBytes)}
}

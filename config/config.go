// Package config loads the gojostore YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sushant-115/gojostore/core/optimizer/statistics"
	"github.com/sushant-115/gojostore/core/security/encryption"
	"github.com/sushant-115/gojostore/core/write_engine/bufferpool"
	"github.com/sushant-115/gojostore/pkg/logger"
	"github.com/sushant-115/gojostore/pkg/telemetry"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// StorageConfig selects where table pages are persisted.
type StorageConfig struct {
	// Driver is "memory" or "sqlite".
	Driver string `yaml:"driver"`
	// Path is the SQLite database file. Ignored by the memory driver.
	Path string `yaml:"path"`
	// SlotsPerPage is the tuple capacity of a heap page.
	SlotsPerPage int `yaml:"slots_per_page"`
	// EncryptionKey, when set, is a hex AES key that seals pages at rest.
	EncryptionKey string `yaml:"encryption_key"`
}

// Config is the top level configuration document.
type Config struct {
	BufferPool bufferpool.Config `yaml:"buffer_pool"`
	Statistics statistics.Config `yaml:"statistics"`
	Storage    StorageConfig     `yaml:"storage"`
	Logger     logger.Config     `yaml:"logger"`
	Telemetry  telemetry.Config  `yaml:"telemetry"`
}

func Default() Config {
	return Config{
		BufferPool: bufferpool.DefaultConfig(),
		Statistics: statistics.DefaultConfig(),
		Storage:    StorageConfig{Driver: DriverMemory, SlotsPerPage: 64},
		Logger:     logger.Default(),
		Telemetry:  telemetry.Config{ServiceName: "gojostore", TraceSampleRatio: 1},
	}
}

// Load reads path over the defaults and validates the result. Unknown keys
// are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := Parse(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes raw into cfg, keeping fields the document does not set.
func Parse(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse yaml: %w", err)
	}
	return cfg.Validate()
}

func (c Config) Validate() error {
	var errs error
	if c.BufferPool.Capacity <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("buffer_pool.capacity must be positive, got %d", c.BufferPool.Capacity))
	}
	if c.BufferPool.LockTimeout <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("buffer_pool.lock_timeout must be positive, got %s", c.BufferPool.LockTimeout))
	}
	if c.BufferPool.LockRetryMin < 0 || c.BufferPool.LockRetryMax < c.BufferPool.LockRetryMin {
		errs = multierr.Append(errs, fmt.Errorf("buffer_pool.lock_retry_min/max out of order: %s > %s", c.BufferPool.LockRetryMin, c.BufferPool.LockRetryMax))
	}
	if c.BufferPool.LockRetryMax > c.BufferPool.LockTimeout && c.BufferPool.LockTimeout > 0 {
		errs = multierr.Append(errs, fmt.Errorf("buffer_pool.lock_retry_max %s exceeds lock_timeout %s", c.BufferPool.LockRetryMax, c.BufferPool.LockTimeout))
	}
	if c.Statistics.Buckets <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("statistics.buckets must be positive, got %d", c.Statistics.Buckets))
	}
	if c.Statistics.IOCostPerPage <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("statistics.io_cost_per_page must be positive, got %g", c.Statistics.IOCostPerPage))
	}
	if c.Statistics.Parallelism <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("statistics.parallelism must be positive, got %d", c.Statistics.Parallelism))
	}
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.Path == "" {
			errs = multierr.Append(errs, errors.New("storage.path is required for the sqlite driver"))
		}
	default:
		errs = multierr.Append(errs, fmt.Errorf("storage.driver must be %q or %q, got %q", DriverMemory, DriverSQLite, c.Storage.Driver))
	}
	if c.Storage.EncryptionKey != "" {
		if _, err := encryption.ParseKey(c.Storage.EncryptionKey); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("storage.encryption_key: %w", err))
		}
	}
	if c.Storage.SlotsPerPage <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("storage.slots_per_page must be positive, got %d", c.Storage.SlotsPerPage))
	}
	return errs
}

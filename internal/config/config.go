package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openmined/metasync/internal/metacache"
	"github.com/openmined/metasync/internal/storage"
	"github.com/openmined/metasync/internal/utils"
)

const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

var (
	home, _           = os.UserHomeDir()
	DefaultConfigDir  = filepath.Join(home, ".metasync")
	DefaultConfigName = "config"
)

type Config struct {
	// CacheDir is the root of the metadata cache. Empty means a temporary
	// directory removed when the process exits.
	CacheDir            string        `mapstructure:"cache_dir"`
	ConcurrentDownloads int           `mapstructure:"concurrent_downloads"`
	Journal             bool          `mapstructure:"journal"`
	MetricsFile         string        `mapstructure:"metrics_file"`
	LogFile             string        `mapstructure:"log_file"`
	Storage             StorageConfig `mapstructure:"storage"`
	Path                string        `mapstructure:"-"`
}

type StorageConfig struct {
	Backend string           `mapstructure:"backend"`
	Local   LocalConfig      `mapstructure:"local"`
	S3      storage.S3Config `mapstructure:"s3"`
}

type LocalConfig struct {
	Dir string `mapstructure:"dir"`
}

// Validate checks the config and resolves its paths.
func (c *Config) Validate() error {
	if c.ConcurrentDownloads == 0 {
		c.ConcurrentDownloads = metacache.DefaultConcurrentDownloads
	}
	if c.ConcurrentDownloads < 0 {
		return fmt.Errorf("concurrent_downloads must be positive, got %d", c.ConcurrentDownloads)
	}

	var err error
	if c.CacheDir != "" {
		if c.CacheDir, err = utils.ResolvePath(c.CacheDir); err != nil {
			return fmt.Errorf("cache_dir: %w", err)
		}
	}
	if c.MetricsFile != "" {
		if c.MetricsFile, err = utils.ResolvePath(c.MetricsFile); err != nil {
			return fmt.Errorf("metrics_file: %w", err)
		}
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	return nil
}

func (c *StorageConfig) Validate() error {
	switch c.Backend {
	case BackendLocal:
		if c.Local.Dir == "" {
			return fmt.Errorf("local.dir required")
		}
		dir, err := utils.ResolvePath(c.Local.Dir)
		if err != nil {
			return fmt.Errorf("local.dir: %w", err)
		}
		c.Local.Dir = dir
	case BackendS3:
		if err := c.S3.Validate(); err != nil {
			return fmt.Errorf("s3: %w", err)
		}
	case "":
		return fmt.Errorf("backend required")
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	return nil
}

// OpenStorage returns the backup storage the config points at.
func (c *StorageConfig) OpenStorage(ctx context.Context) (storage.BackupStorage, error) {
	switch c.Backend {
	case BackendLocal:
		return storage.NewLocalFs(c.Local.Dir), nil
	case BackendS3:
		s3, err := storage.NewS3StorageWithConfig(ctx, &c.S3)
		if err != nil {
			return nil, err
		}
		return s3, nil
	}
	return nil, fmt.Errorf("unknown backend %q", c.Backend)
}

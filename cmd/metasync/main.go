package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/metasync/internal/config"
	"github.com/openmined/metasync/internal/metacache"
	"github.com/openmined/metasync/internal/utils"
	"github.com/openmined/metasync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "metasync",
		Short:         "Sync and inspect backup metadata",
		Version:       version.Detailed(),
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.SortFlags = false
	flags.StringP("config", "c", filepath.Join(config.DefaultConfigDir, config.DefaultConfigName+".yaml"), "metasync config file")
	flags.String("cache-dir", "", "metadata cache directory (default: temporary, removed on exit)")
	flags.IntP("concurrent-downloads", "j", metacache.DefaultConcurrentDownloads, "metadata files downloaded in parallel")
	flags.String("backend", config.BackendLocal, "backup storage backend (local, s3)")
	flags.String("local-dir", "", "backup storage directory for the local backend")
	flags.String("log-file", "", "also write logs to this file")
	flags.String("metrics-file", "", "write prometheus metrics to this file after each sync")

	rootCmd.AddCommand(
		newSyncCmd(),
		newViewCmd(),
		newCacheCmd(),
		newIdentityCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func main() {
	handler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	slog.SetDefault(slog.New(handler))

	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	closeLogFile()
	if err != nil {
		slog.Error("metasync", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads flags, METASYNC_* environment variables and the config
// file, in that order of precedence.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := viper.New()

	if f := cmd.Flag("config"); f != nil && f.Changed {
		v.SetConfigFile(f.Value.String())
	} else {
		v.AddConfigPath(config.DefaultConfigDir)
		v.SetConfigName(config.DefaultConfigName)
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	// every key needs a default for AutomaticEnv to reach it through Unmarshal
	v.SetDefault("cache_dir", "")
	v.SetDefault("concurrent_downloads", metacache.DefaultConcurrentDownloads)
	v.SetDefault("journal", true)
	v.SetDefault("metrics_file", "")
	v.SetDefault("log_file", "")
	v.SetDefault("storage.backend", config.BackendLocal)
	v.SetDefault("storage.local.dir", "")
	for _, key := range []string{"bucket_name", "region", "access_key", "secret_key", "endpoint", "prefix"} {
		v.SetDefault("storage.s3."+key, "")
	}
	v.SetDefault("storage.s3.use_accelerate", false)

	for key, flag := range map[string]string{
		"cache_dir":            "cache-dir",
		"concurrent_downloads": "concurrent-downloads",
		"storage.backend":      "backend",
		"storage.local.dir":    "local-dir",
		"log_file":             "log-file",
		"metrics_file":         "metrics-file",
	} {
		if f := cmd.Flag(flag); f != nil {
			v.BindPFlag(key, f)
		}
	}

	v.SetEnvPrefix("METASYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	cfg.Path = v.ConfigFileUsed()
	return &cfg, nil
}

var logFile *os.File

// setupLogFile adds a text handler writing to path next to the console one.
func setupLogFile(path string) error {
	if path == "" || logFile != nil {
		return nil
	}
	if err := utils.EnsureParent(path); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	logFile = file

	fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(utils.NewMultiLogHandler(slog.Default().Handler(), fileHandler)))
	return nil
}

func closeLogFile() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

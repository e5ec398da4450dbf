package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/openmined/metasync/internal/config"
	"github.com/openmined/metasync/internal/metadata"
	"github.com/openmined/metasync/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("METASYNC_CACHE_DIR", "/tmp/metasync-test")
	t.Setenv("METASYNC_CONCURRENT_DOWNLOADS", "3")
	t.Setenv("METASYNC_JOURNAL", "false")
	t.Setenv("METASYNC_STORAGE_BACKEND", "s3")
	t.Setenv("METASYNC_STORAGE_S3_BUCKET_NAME", "test-bucket")
	t.Setenv("METASYNC_STORAGE_S3_REGION", "test-region")
	t.Setenv("METASYNC_STORAGE_S3_ENDPOINT", "http://test-endpoint")
	t.Setenv("METASYNC_STORAGE_S3_ACCESS_KEY", "test-access-key")
	t.Setenv("METASYNC_STORAGE_S3_SECRET_KEY", "test-secret-key")
	t.Setenv("METASYNC_STORAGE_S3_PREFIX", "chain-1")

	cfg, err := loadConfig(newRootCmd())
	require.NoError(t, err)

	assert.Equal(t, "/tmp/metasync-test", cfg.CacheDir)
	assert.Equal(t, 3, cfg.ConcurrentDownloads)
	assert.False(t, cfg.Journal)
	assert.Equal(t, config.BackendS3, cfg.Storage.Backend)
	assert.Equal(t, "test-bucket", cfg.Storage.S3.BucketName)
	assert.Equal(t, "test-region", cfg.Storage.S3.Region)
	assert.Equal(t, "http://test-endpoint", cfg.Storage.S3.Endpoint)
	assert.Equal(t, "test-access-key", cfg.Storage.S3.AccessKey)
	assert.Equal(t, "test-secret-key", cfg.Storage.S3.SecretKey)
	assert.Equal(t, "chain-1", cfg.Storage.S3.Prefix)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigYAML(t *testing.T) {
	dummyConfig := `
cache_dir: /tmp/metasync-yaml
concurrent_downloads: 4
metrics_file: /tmp/metasync.prom
storage:
  backend: local
  local:
    dir: /backups
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(dummyConfig), 0o644))

	cmd := newRootCmd()
	require.NoError(t, cmd.PersistentFlags().Set("config", path))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, "/tmp/metasync-yaml", cfg.CacheDir)
	assert.Equal(t, 4, cfg.ConcurrentDownloads)
	assert.True(t, cfg.Journal)
	assert.Equal(t, "/tmp/metasync.prom", cfg.MetricsFile)
	assert.Equal(t, config.BackendLocal, cfg.Storage.Backend)
	assert.Equal(t, "/backups", cfg.Storage.Local.Dir)
}

func TestLoadConfigPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("concurrent_downloads: 4\ncache_dir: /from/file\n"), 0o644))
	t.Setenv("METASYNC_CONCURRENT_DOWNLOADS", "5")

	cmd := newRootCmd()
	require.NoError(t, cmd.PersistentFlags().Set("config", path))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.ConcurrentDownloads, "env over file")
	assert.Equal(t, "/from/file", cfg.CacheDir)

	require.NoError(t, cmd.PersistentFlags().Set("concurrent-downloads", "2"))
	cfg, err = loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.ConcurrentDownloads, "flag over env")
}

func TestLoadConfigBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage: [unclosed"), 0o644))

	cmd := newRootCmd()
	require.NoError(t, cmd.PersistentFlags().Set("config", path))

	_, err := loadConfig(cmd)
	assert.ErrorContains(t, err, "config read")
}

// seedBackups writes metadata records into a local backup storage.
func seedBackups(t *testing.T, dir string, records ...metadata.Metadata) {
	t.Helper()
	store := storage.NewLocalFs(dir)
	for _, m := range records {
		line, err := m.TextLine()
		require.NoError(t, err)
		_, err = store.SaveMetadataLine(context.Background(), m.Name(), line)
		require.NoError(t, err)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSyncCmd(t *testing.T) {
	backups := t.TempDir()
	cacheDir := t.TempDir()
	metricsFile := filepath.Join(t.TempDir(), "metasync.prom")
	seedBackups(t, backups,
		metadata.NewTransactionBackup(0, 99, "txn_0"),
		metadata.NewStateSnapshotBackup(1, 50, "snap_50"),
	)

	out, err := execute(t, "sync", "--local-dir", backups, "--cache-dir", cacheDir, "--metrics-file", metricsFile)
	require.NoError(t, err)
	assert.Contains(t, out, "remote files: 2")
	assert.Contains(t, out, "downloaded:   2")

	entries, err := os.ReadDir(filepath.Join(cacheDir, "cache"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.FileExists(t, filepath.Join(cacheDir, "journal.db"))

	metrics, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "metasync_metadata_cache_files 2")

	out, err = execute(t, "sync", "--local-dir", backups, "--cache-dir", cacheDir)
	require.NoError(t, err)
	assert.Contains(t, out, "up to date:   2")
	assert.Contains(t, out, "downloaded:   0")

	out, err = execute(t, "cache", "ls", "--cache-dir", cacheDir)
	require.NoError(t, err)
	assert.Contains(t, out, "metadata/transaction_0-99.meta")
	assert.Contains(t, out, "metadata/state_snapshot_ver_50.meta")
}

func TestSyncCmd_BootstrapsEmptyStorage(t *testing.T) {
	backups := t.TempDir()

	out, err := execute(t, "sync", "--local-dir", backups)
	require.NoError(t, err)
	assert.Contains(t, out, "identity written")

	metas, err := os.ReadDir(filepath.Join(backups, storage.MetadataDir))
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.True(t, strings.HasPrefix(metas[0].Name(), "identity_"))
}

func TestSyncCmd_InvalidConfig(t *testing.T) {
	_, err := execute(t, "sync", "--backend", "s3")
	assert.ErrorContains(t, err, "bucket_name required")
}

func TestViewCmd(t *testing.T) {
	backups := t.TempDir()
	seedBackups(t, backups,
		metadata.NewTransactionBackup(0, 99, "txn_0"),
		metadata.NewTransactionBackup(100, 199, "txn_100"),
		metadata.NewEpochEndingBackup(0, 1, 0, 150, "epoch_0"),
	)

	out, err := execute(t, "view", "--local-dir", backups, "--kind", "transaction", "-o", "json")
	require.NoError(t, err)

	var records []metadata.Metadata
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 2)
	for _, m := range records {
		assert.Equal(t, metadata.KindTransactionBackup, m.Kind())
	}

	out, err = execute(t, "view", "--local-dir", backups, "--state", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "latest_transaction_version: 199")
	assert.Contains(t, out, "latest_epoch_ending_epoch: 1")

	out, err = execute(t, "view", "--local-dir", backups)
	require.NoError(t, err)
	assert.Contains(t, out, "KIND")
	assert.Contains(t, out, "epoch_ending_0-1")

	_, err = execute(t, "view", "--local-dir", backups, "--kind", "bogus")
	assert.ErrorContains(t, err, "unknown kind")
	_, err = execute(t, "view", "--local-dir", backups, "-o", "xml")
	assert.ErrorContains(t, err, "unknown output format")
}

func TestIdentityInitCmd(t *testing.T) {
	backups := t.TempDir()

	out, err := execute(t, "identity", "init", "--local-dir", backups)
	require.NoError(t, err)
	assert.Contains(t, out, "identity written")

	out, err = execute(t, "identity", "init", "--local-dir", backups)
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to do")
}

func TestCacheLsCmd_NeedsCacheDir(t *testing.T) {
	_, err := execute(t, "cache", "ls")
	assert.ErrorIs(t, err, errNoCacheDir)
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "metasync "))
}

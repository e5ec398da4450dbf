package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/openmined/metasync/internal/config"
	"github.com/openmined/metasync/internal/metacache"
	"github.com/openmined/metasync/internal/metadata"
	"github.com/openmined/metasync/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// session holds what one command needs to talk to the storage and the cache.
type session struct {
	cfg      *config.Config
	store    storage.BackupStorage
	root     string
	journal  *metacache.Journal
	syncer   *metacache.Syncer
	registry *prometheus.Registry
	tempRoot bool
}

// newSession loads and validates the config of cmd and opens the storage.
func newSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := setupLogFile(cfg.LogFile); err != nil {
		return nil, err
	}
	cmd.SilenceUsage = true

	store, err := cfg.Storage.OpenStorage(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("open backup storage: %w", err)
	}
	return &session{cfg: cfg, store: store}, nil
}

// openCache prepares the cache root, the journal and the syncer.
func (s *session) openCache() error {
	s.root = s.cfg.CacheDir
	if s.root == "" {
		dir, err := os.MkdirTemp("", "metasync-*")
		if err != nil {
			return fmt.Errorf("create temporary cache root: %w", err)
		}
		s.root = dir
		s.tempRoot = true
		slog.Debug("using temporary cache root", "dir", dir)
	}

	if s.cfg.Journal {
		journal, err := metacache.OpenJournal(filepath.Join(s.root, metacache.JournalFileName))
		if err != nil {
			return err
		}
		s.journal = journal
	}

	syncer, err := metacache.New(s.store, metacache.Options{
		Root:                s.root,
		ConcurrentDownloads: s.cfg.ConcurrentDownloads,
		Journal:             s.journal,
		OnProgress: func(completed, total int) {
			slog.Debug("download progress", "completed", completed, "total", total)
		},
	})
	if err != nil {
		return err
	}
	s.syncer = syncer

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(syncer.Metrics()...)
	return nil
}

// sync runs one pass and exports metrics whether it failed or not.
func (s *session) sync(ctx context.Context) (*metadata.View, *metacache.Report, error) {
	view, report, err := s.syncer.SyncAndLoad(ctx)

	if s.cfg.MetricsFile != "" {
		if werr := prometheus.WriteToTextfile(s.cfg.MetricsFile, s.registry); werr != nil {
			slog.Warn("failed to write metrics file", "path", s.cfg.MetricsFile, "error", werr)
		}
	}
	return view, report, err
}

func (s *session) Close() {
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			slog.Warn("failed to close journal", "error", err)
		}
	}
	if s.tempRoot {
		if err := os.RemoveAll(s.root); err != nil {
			slog.Warn("failed to remove temporary cache root", "dir", s.root, "error", err)
		}
	}
}

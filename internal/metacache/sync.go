package metacache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openmined/metasync/internal/metadata"
	"github.com/openmined/metasync/internal/storage"
	"github.com/spf13/afero"
)

const DefaultConcurrentDownloads = 8

var (
	ErrNoRoot             = errors.New("metacache: root directory required")
	ErrInvalidConcurrency = errors.New("metacache: concurrent downloads must be positive")
)

// Options configure a Syncer.
type Options struct {
	// Root holds the cache directory (Root/cache). Required.
	Root string

	// ConcurrentDownloads caps downloads in flight; twice as many are queued.
	// Zero means DefaultConcurrentDownloads.
	ConcurrentDownloads int

	// Fs is the filesystem Root lives on. Defaults to the OS filesystem.
	Fs afero.Fs

	// Journal, if set, records the handle behind each downloaded file.
	Journal *Journal

	// OnProgress, if set, is called after every completed download.
	OnProgress ProgressFunc
}

// State is a step of one sync pass.
type State int

const (
	StateInitialized State = iota
	StateListed
	StateBootstrapped
	StateDiffed
	StateEvicted
	StateDownloaded
	StateLoaded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateListed:
		return "listed"
	case StateBootstrapped:
		return "bootstrapped"
	case StateDiffed:
		return "diffed"
	case StateEvicted:
		return "evicted"
	case StateDownloaded:
		return "downloaded"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Report describes one sync pass. On failure State is StateFailed and
// FailedAfter is the last state reached.
type Report struct {
	State        State
	FailedAfter  State
	Bootstrapped bool
	RemoteFiles  int
	UpToDate     int
	Evicted      int
	Downloaded   int
	Records      int
	// OrphanedTemp lists keys with a temporary file left by an interrupted
	// download. Such a file makes the next download of its key fail.
	OrphanedTemp []CacheKey
	Duration     time.Duration
}

// Syncer mirrors the metadata files of a backup storage into a local cache
// directory and loads them. It keeps no state between calls beyond the
// directory itself; concurrent calls on one directory are not supported.
type Syncer struct {
	store      storage.BackupStorage
	dir        *CacheDir
	workers    int
	journal    *Journal
	onProgress ProgressFunc
	metrics    metrics
}

func New(store storage.BackupStorage, opts Options) (*Syncer, error) {
	if opts.Root == "" {
		return nil, ErrNoRoot
	}
	if opts.ConcurrentDownloads < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidConcurrency, opts.ConcurrentDownloads)
	}
	if opts.ConcurrentDownloads == 0 {
		opts.ConcurrentDownloads = DefaultConcurrentDownloads
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}

	return &Syncer{
		store:      store,
		dir:        NewCacheDir(opts.Fs, opts.Root),
		workers:    opts.ConcurrentDownloads,
		journal:    opts.Journal,
		onProgress: opts.OnProgress,
		metrics:    newMetrics(),
	}, nil
}

// Dir returns the cache directory the syncer works on.
func (s *Syncer) Dir() *CacheDir {
	return s.dir
}

// SyncAndLoad brings the cache in line with the remote listing and returns
// every record of every remote metadata file. Any error aborts the pass; the
// cache is then in an unspecified but consistent-per-file state and the call
// can simply be repeated. The Report is returned in both cases.
func (s *Syncer) SyncAndLoad(ctx context.Context) (*metadata.View, *Report, error) {
	start := time.Now()
	report := &Report{State: StateInitialized}

	view, err := s.syncAndLoad(ctx, report)

	report.Duration = time.Since(start)
	s.metrics.SyncDuration.Observe(report.Duration.Seconds())

	if err != nil {
		report.FailedAfter = report.State
		report.State = StateFailed
		slog.Error("metadata cache sync failed", "after", report.FailedAfter, "error", err)
		return nil, report, err
	}

	slog.Info("metadata cache loaded",
		"files", report.RemoteFiles,
		"downloaded", report.Downloaded,
		"evicted", report.Evicted,
		"records", report.Records,
		"took", report.Duration)
	return view, report, nil
}

func (s *Syncer) syncAndLoad(ctx context.Context, report *Report) (*metadata.View, error) {
	if err := s.dir.Ensure(); err != nil {
		return nil, ioErr("create cache dir", s.dir.Path(), err)
	}

	// local
	localKeys, orphans, err := s.dir.List()
	if err != nil {
		return nil, ioErr("list cache dir", s.dir.Path(), err)
	}
	report.OrphanedTemp = orphans
	if len(orphans) > 0 {
		slog.Warn("temporary files from interrupted downloads found in cache, downloads of these keys will fail until they are removed",
			"dir", s.dir.Path(), "keys", orphans)
	}

	// remote
	handles, err := s.store.ListMetadataFiles(ctx)
	if err != nil {
		return nil, storageErr("list metadata files", "", err)
	}
	report.State = StateListed

	if len(handles) == 0 {
		slog.Info("backup storage has no metadata files, writing identity")
		if handles, err = bootstrap(ctx, s.store); err != nil {
			return nil, err
		}
		report.Bootstrapped = true
		report.State = StateBootstrapped
	}

	handleByKey := make(map[CacheKey]storage.FileHandle, len(handles))
	for _, h := range handles {
		handleByKey[KeyOf(h)] = h
	}
	remote := newKeySet()
	for key := range handleByKey {
		remote.Add(key)
	}
	report.RemoteFiles = remote.Cardinality()
	s.metrics.Files.Set(float64(report.RemoteFiles))
	slog.Info("metadata files listed", "remote", report.RemoteFiles, "local", len(localKeys))

	// diff
	part := Diff(newKeySet(localKeys...), remote)
	stale := sortedKeys(part.Stale)
	missing := sortedKeys(part.Missing)
	current := sortedKeys(part.Current)
	report.UpToDate = len(current)
	s.metrics.Missing.Set(float64(len(missing)))
	s.metrics.Downloaded.Set(0)
	report.State = StateDiffed
	slog.Debug("metadata cache diff", "stale", len(stale), "missing", len(missing), "current", len(current))

	// evict
	report.Evicted, err = s.evict(stale)
	if err != nil {
		return nil, err
	}
	report.State = StateEvicted

	// download
	jobs := make([]downloadJob, 0, len(missing))
	for _, key := range missing {
		jobs = append(jobs, downloadJob{key: key, handle: handleByKey[key]})
	}
	dl := &downloader{
		store:      s.store,
		dir:        s.dir,
		workers:    s.workers,
		journal:    s.journal,
		metrics:    &s.metrics,
		onProgress: s.onProgress,
	}
	report.Downloaded, err = dl.run(ctx, jobs)
	if err != nil {
		return nil, err
	}
	report.State = StateDownloaded

	// load
	slog.Info("loading all metadata files to memory")
	records, err := s.load(ctx, append(missing, current...))
	if err != nil {
		return nil, err
	}
	report.Records = len(records)
	report.State = StateLoaded

	return metadata.NewView(records), nil
}

package metacache

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/openmined/metasync/internal/storage"
	"golang.org/x/sync/errgroup"
)

// ProgressFunc observes completed downloads. It is called from download
// workers, possibly concurrently.
type ProgressFunc func(completed, total int)

type downloadJob struct {
	key    CacheKey
	handle storage.FileHandle
}

type downloader struct {
	store      storage.BackupStorage
	dir        *CacheDir
	workers    int
	journal    *Journal
	metrics    *metrics
	onProgress ProgressFunc
}

// run fetches every job with at most d.workers in flight and up to
// 2*d.workers queued behind them. The first failure cancels the rest and is
// returned; files already committed stay.
func (d *downloader) run(ctx context.Context, jobs []downloadJob) (int, error) {
	if len(jobs) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	queue := make(chan downloadJob, 2*d.workers)
	total := len(jobs)
	var completed atomic.Int64

	// feed the queue
	g.Go(func() error {
		defer close(queue)
		for _, job := range jobs {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case queue <- job:
			}
		}
		return nil
	})

	for range min(d.workers, total) {
		g.Go(func() error {
			for job := range queue {
				if err := gctx.Err(); err != nil {
					return err
				}
				size, err := d.fetch(gctx, job)
				if err != nil {
					return err
				}

				done := int(completed.Add(1))
				d.metrics.Downloaded.Inc()
				slog.Info("metadata file downloaded",
					"handle", job.handle,
					"key", job.key,
					"size", humanize.Bytes(uint64(size)),
					"processed", done,
					"total", total)
				if d.onProgress != nil {
					d.onProgress(done, total)
				}
			}
			return nil
		})
	}

	err := g.Wait()
	return int(completed.Load()), err
}

// fetch downloads one file into its temporary name and renames it into place.
// A temporary file left by a failure is not removed.
func (d *downloader) fetch(ctx context.Context, job downloadJob) (int64, error) {
	src, err := d.store.OpenForRead(ctx, job.handle)
	if err != nil {
		return 0, storageErr("open", job.handle.String(), err)
	}
	defer src.Close()

	tmpPath := d.dir.TempPath(job.key)
	tmp, err := d.dir.CreateTemp(job.key)
	if err != nil {
		return 0, ioErr("create temp file", tmpPath, err)
	}

	r := &trackingReader{r: src}
	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		if r.err != nil {
			return n, storageErr("read", job.handle.String(), err)
		}
		return n, ioErr("write", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return n, ioErr("close", tmpPath, err)
	}

	if err := d.dir.Commit(job.key); err != nil {
		return n, ioErr("rename", tmpPath, err)
	}

	if d.journal != nil {
		entry := JournalEntry{Key: job.key, Handle: job.handle.String(), Size: n, DownloadedAt: time.Now()}
		if err := d.journal.Record(entry); err != nil {
			slog.Warn("journal record failed", "key", job.key, "error", err)
		}
	}
	return n, nil
}

// trackingReader remembers read errors so a failed copy can be blamed on
// the source or the destination.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		t.err = err
	}
	return n, err
}

package metacache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openmined/metasync/internal/metadata"
	"github.com/openmined/metasync/internal/storage"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// putRecords stores records under handle, one line each.
func putRecords(t *testing.T, store *storage.MemStorage, handle storage.FileHandle, records ...metadata.Metadata) {
	t.Helper()
	var buf bytes.Buffer
	for _, m := range records {
		line, err := m.TextLine()
		require.NoError(t, err)
		buf.WriteString(line)
	}
	store.Put(handle, buf.Bytes())
}

func txn(first, last uint64) metadata.Metadata {
	return metadata.NewTransactionBackup(first, last, "transaction.manifest")
}

// committedKeys lists the final file names in the cache directory, sorted.
func committedKeys(t *testing.T, dir *CacheDir) []CacheKey {
	t.Helper()
	keys, _, err := dir.List()
	require.NoError(t, err)
	slices.Sort(keys)
	return keys
}

func keysOf(handles ...storage.FileHandle) []CacheKey {
	keys := make([]CacheKey, 0, len(handles))
	for _, h := range handles {
		keys = append(keys, KeyOf(h))
	}
	slices.Sort(keys)
	return keys
}

func newTestSyncer(t *testing.T, store storage.BackupStorage, opts Options) *Syncer {
	t.Helper()
	if opts.Root == "" {
		opts.Root = t.TempDir()
	}
	s, err := New(store, opts)
	require.NoError(t, err)
	return s
}

// failingFs fails selected operations of the wrapped filesystem.
type failingFs struct {
	afero.Fs
	renameErr error
	removeErr error
}

func (f *failingFs) Rename(oldname, newname string) error {
	if f.renameErr != nil {
		return f.renameErr
	}
	return f.Fs.Rename(oldname, newname)
}

func (f *failingFs) Remove(name string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	return f.Fs.Remove(name)
}

// brokenStreamStore serves some bytes of a handle and then fails the read.
type brokenStreamStore struct {
	*storage.MemStorage
	broken storage.FileHandle
}

var errConnReset = errors.New("connection reset by peer")

func (b *brokenStreamStore) OpenForRead(ctx context.Context, h storage.FileHandle) (io.ReadCloser, error) {
	if h != b.broken {
		return b.MemStorage.OpenForRead(ctx, h)
	}
	partial := bytes.NewReader([]byte(`{"TransactionBackup":{"first_ver`))
	return io.NopCloser(io.MultiReader(partial, errReader{errConnReset})), nil
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }

// emptyAfterSaveStore accepts saves but never lists anything.
type emptyAfterSaveStore struct {
	*storage.MemStorage
}

func (e *emptyAfterSaveStore) ListMetadataFiles(context.Context) ([]storage.FileHandle, error) {
	return nil, nil
}

// inFlightStore tracks how many streams are open at once.
type inFlightStore struct {
	*storage.MemStorage
	delay    time.Duration
	current  atomic.Int32
	mu       sync.Mutex
	maxSeen  int32
	openings atomic.Int32
}

func (s *inFlightStore) OpenForRead(ctx context.Context, h storage.FileHandle) (io.ReadCloser, error) {
	n := s.current.Add(1)
	s.openings.Add(1)
	s.mu.Lock()
	s.maxSeen = max(s.maxSeen, n)
	s.mu.Unlock()

	time.Sleep(s.delay)
	r, err := s.MemStorage.OpenForRead(ctx, h)
	if err != nil {
		s.current.Add(-1)
		return nil, err
	}
	return &closeHook{ReadCloser: r, onClose: func() { s.current.Add(-1) }}, nil
}

func (s *inFlightStore) peak() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.maxSeen)
}

type closeHook struct {
	io.ReadCloser
	onClose func()
	once    sync.Once
}

func (c *closeHook) Close() error {
	c.once.Do(c.onClose)
	return c.ReadCloser.Close()
}

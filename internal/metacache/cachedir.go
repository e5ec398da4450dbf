package metacache

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// CacheSubDir is the directory below the configured root holding cache files.
// Anything else kept under the root (the journal) stays out of it.
const CacheSubDir = "cache"

// CacheDir is the directory of cached metadata files. Committed files are
// named by their key, in-flight downloads by key.TempName().
type CacheDir struct {
	fs   afero.Fs
	path string
}

func NewCacheDir(fs afero.Fs, root string) *CacheDir {
	return &CacheDir{fs: fs, path: filepath.Join(root, CacheSubDir)}
}

func (d *CacheDir) Path() string {
	return d.path
}

func (d *CacheDir) FinalPath(key CacheKey) string {
	return filepath.Join(d.path, string(key))
}

func (d *CacheDir) TempPath(key CacheKey) string {
	return filepath.Join(d.path, key.TempName())
}

// Ensure creates the directory if it does not exist.
func (d *CacheDir) Ensure() error {
	return d.fs.MkdirAll(d.path, 0o755)
}

// List returns the names of committed files and the keys of temporary files
// left behind by interrupted downloads. Every regular file not starting with
// the temp prefix counts as committed, including names that are not valid
// keys; such files are never in the remote set and so get evicted.
func (d *CacheDir) List() (committed []CacheKey, orphans []CacheKey, err error) {
	entries, err := afero.ReadDir(d.fs, d.path)
	if err != nil {
		return nil, nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, tempPrefix) {
			if key := CacheKey(strings.TrimPrefix(name, tempPrefix)); key.Valid() {
				orphans = append(orphans, key)
			}
			continue
		}
		committed = append(committed, CacheKey(name))
	}
	return committed, orphans, nil
}

// CreateTemp creates the temporary file for key. It fails if one exists.
func (d *CacheDir) CreateTemp(key CacheKey) (afero.File, error) {
	return d.fs.OpenFile(d.TempPath(key), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
}

// Commit renames the temporary file of key to its final name.
func (d *CacheDir) Commit(key CacheKey) error {
	return d.fs.Rename(d.TempPath(key), d.FinalPath(key))
}

func (d *CacheDir) Remove(key CacheKey) error {
	return d.fs.Remove(d.FinalPath(key))
}

// Open opens the committed file of key for reading.
func (d *CacheDir) Open(key CacheKey) (io.ReadCloser, error) {
	return d.fs.Open(d.FinalPath(key))
}

func (d *CacheDir) ReadFile(key CacheKey) ([]byte, error) {
	return afero.ReadFile(d.fs, d.FinalPath(key))
}

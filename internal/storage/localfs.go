package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// LocalFs keeps backups in a directory. Metadata files live in
// <root>/metadata and handles are paths relative to root using forward slashes.
type LocalFs struct {
	fs   afero.Fs
	root string
}

func NewLocalFs(root string) *LocalFs {
	return NewLocalFsWithFs(afero.NewOsFs(), root)
}

// NewLocalFsWithFs is NewLocalFs on top of an arbitrary afero filesystem.
func NewLocalFsWithFs(fsys afero.Fs, root string) *LocalFs {
	return &LocalFs{fs: fsys, root: filepath.Clean(root)}
}

func (l *LocalFs) Root() string {
	return l.root
}

func (l *LocalFs) ListMetadataFiles(ctx context.Context) ([]FileHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := filepath.Join(l.root, MetadataDir)
	entries, err := afero.ReadDir(l.fs, dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	handles := make([]FileHandle, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		handles = append(handles, FileHandle(metadataKey("", entry.Name())))
	}
	return handles, nil
}

func (l *LocalFs) OpenForRead(ctx context.Context, handle FileHandle) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := l.resolve(handle)
	if err != nil {
		return nil, err
	}

	f, err := l.fs.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, handle)
	} else if err != nil {
		return nil, fmt.Errorf("open %s: %w", handle, err)
	}
	return f, nil
}

func (l *LocalFs) SaveMetadataLine(ctx context.Context, name string, line string) (FileHandle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fileName, err := metadataFileName(name)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(l.root, MetadataDir)
	if err := l.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}

	p := filepath.Join(dir, fileName)
	f, err := l.fs.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return "", fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	} else if err != nil {
		return "", fmt.Errorf("create %s: %w", p, err)
	}

	if _, err := io.WriteString(f, line); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", p, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", p, err)
	}

	handle := FileHandle(metadataKey("", fileName))
	slog.Debug("local storage saved metadata", "handle", handle)
	return handle, nil
}

// resolve maps a handle to a path below root, rejecting handles that escape it.
func (l *LocalFs) resolve(handle FileHandle) (string, error) {
	rel := path.Clean(string(handle))
	if rel == "." || path.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%w: bad handle %q", ErrNotFound, handle)
	}
	return filepath.Join(l.root, filepath.FromSlash(rel)), nil
}

var _ BackupStorage = (*LocalFs)(nil)

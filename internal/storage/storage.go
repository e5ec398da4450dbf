package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

const (
	// MetadataDir is the directory (or key prefix) that holds metadata files.
	MetadataDir = "metadata"

	// MetadataExt is appended to the record name when saving.
	MetadataExt = ".meta"
)

var (
	ErrNotFound      = errors.New("storage: file not found")
	ErrAlreadyExists = errors.New("storage: file already exists")
	ErrInvalidName   = errors.New("storage: invalid metadata name")
)

// FileHandle locates one file in backup storage. It is opaque to callers and
// only meaningful to the backend that produced it.
type FileHandle string

func (h FileHandle) String() string {
	return string(h)
}

// BackupStorage is the remote catalog the metadata cache mirrors.
type BackupStorage interface {
	// ListMetadataFiles returns handles for every metadata file in storage.
	ListMetadataFiles(ctx context.Context) ([]FileHandle, error)

	// OpenForRead opens a stream over the content of a file. The caller closes it.
	OpenForRead(ctx context.Context, handle FileHandle) (io.ReadCloser, error)

	// SaveMetadataLine stores a new metadata file named after name holding a
	// single line. It fails if a file with that name already exists.
	SaveMetadataLine(ctx context.Context, name string, line string) (FileHandle, error)
}

// metadataFileName validates a record name and returns the file name it is saved under.
func metadataFileName(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return name + MetadataExt, nil
}

// metadataKey is the slash separated location of a metadata file below the storage root.
func metadataKey(prefix, fileName string) string {
	return path.Join(prefix, MetadataDir, fileName)
}

package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
)

// MemStorage is an in-memory BackupStorage. Besides serving tests it counts
// calls and can be told to fail individual operations.
type MemStorage struct {
	mu    sync.Mutex
	files map[FileHandle][]byte

	listErr error
	saveErr error
	openErr map[FileHandle]error

	lists int
	opens int
	saves int
}

func NewMemStorage() *MemStorage {
	return &MemStorage{
		files:   make(map[FileHandle][]byte),
		openErr: make(map[FileHandle]error),
	}
}

// Put stores content under an arbitrary handle, replacing any previous content.
func (m *MemStorage) Put(handle FileHandle, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[handle] = bytes.Clone(content)
}

func (m *MemStorage) Delete(handle FileHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, handle)
}

// SetListError makes ListMetadataFiles fail with err until reset with nil.
func (m *MemStorage) SetListError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
}

// SetSaveError makes SaveMetadataLine fail with err until reset with nil.
func (m *MemStorage) SetSaveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

// SetOpenError makes OpenForRead(handle) fail with err until reset with nil.
func (m *MemStorage) SetOpenError(handle FileHandle, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.openErr, handle)
		return
	}
	m.openErr[handle] = err
}

// Calls returns how many list, open and save calls were made.
func (m *MemStorage) Calls() (lists, opens, saves int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lists, m.opens, m.saves
}

func (m *MemStorage) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

func (m *MemStorage) ListMetadataFiles(ctx context.Context) ([]FileHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	if m.listErr != nil {
		return nil, m.listErr
	}

	handles := make([]FileHandle, 0, len(m.files))
	for h := range m.files {
		handles = append(handles, h)
	}
	slices.Sort(handles)
	return handles, nil
}

func (m *MemStorage) OpenForRead(ctx context.Context, handle FileHandle) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens++
	if err, ok := m.openErr[handle]; ok {
		return nil, err
	}

	content, ok := m.files[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, handle)
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}

func (m *MemStorage) SaveMetadataLine(ctx context.Context, name string, line string) (FileHandle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fileName, err := metadataFileName(name)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return "", m.saveErr
	}

	handle := FileHandle(metadataKey("", fileName))
	if _, exists := m.files[handle]; exists {
		return "", fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}
	m.files[handle] = []byte(line)
	return handle, nil
}

var _ BackupStorage = (*MemStorage)(nil)

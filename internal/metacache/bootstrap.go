package metacache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openmined/metasync/internal/metadata"
	"github.com/openmined/metasync/internal/storage"
)

var errStillEmpty = errors.New("no metadata files listed after writing identity")

// bootstrap puts an identity record into empty backup storage and lists it
// again. Storage that cannot take a write is not worth syncing against.
func bootstrap(ctx context.Context, store storage.BackupStorage) ([]storage.FileHandle, error) {
	identity := metadata.NewRandomIdentity()
	line, err := identity.TextLine()
	if err != nil {
		return nil, consistencyErr("encode identity", identity.Name(), err)
	}

	handle, err := store.SaveMetadataLine(ctx, identity.Name(), line)
	if err != nil {
		return nil, consistencyErr("save identity", identity.Name(),
			fmt.Errorf("backup storage appears empty and rejected the identity record, check authentication: %w", err))
	}
	slog.Info("backup storage initialized with identity", "handle", handle, "id", identity.Identity.ID)

	handles, err := store.ListMetadataFiles(ctx)
	if err != nil {
		return nil, storageErr("list metadata files", "", err)
	}
	if len(handles) == 0 {
		return nil, consistencyErr("verify identity", identity.Name(), errStillEmpty)
	}
	return handles, nil
}

// EnsureIdentity writes an identity record if store lists no metadata files.
// It reports whether one was written.
func EnsureIdentity(ctx context.Context, store storage.BackupStorage) (bool, error) {
	handles, err := store.ListMetadataFiles(ctx)
	if err != nil {
		return false, storageErr("list metadata files", "", err)
	}
	if len(handles) > 0 {
		return false, nil
	}
	if _, err := bootstrap(ctx, store); err != nil {
		return false, err
	}
	return true, nil
}

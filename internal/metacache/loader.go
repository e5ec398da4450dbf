package metacache

import (
	"context"

	"github.com/openmined/metasync/internal/metadata"
)

// load parses the committed files of keys, in order, into one record slice.
func (s *Syncer) load(ctx context.Context, keys []CacheKey) ([]metadata.Metadata, error) {
	var records []metadata.Metadata
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := s.dir.FinalPath(key)
		data, err := s.dir.ReadFile(key)
		if err != nil {
			return nil, ioErr("read cached file", path, err)
		}

		parsed, err := metadata.DecodeLines(data)
		if err != nil {
			return nil, parseErr("parse cached file", path, err)
		}
		records = append(records, parsed...)
	}
	return records, nil
}

package metacache

import (
	"log/slog"
)

// evict deletes the cache files of stale keys. It stops at the first failure.
func (s *Syncer) evict(keys []CacheKey) (int, error) {
	for i, key := range keys {
		if err := s.dir.Remove(key); err != nil {
			return i, ioErr("delete stale file", s.dir.FinalPath(key), err)
		}
		s.metrics.Evicted.Inc()
		slog.Info("deleted stale metadata file in cache", "key", key)

		if s.journal != nil {
			if err := s.journal.Remove(key); err != nil {
				slog.Warn("journal remove failed", "key", key, "error", err)
			}
		}
	}
	return len(keys), nil
}

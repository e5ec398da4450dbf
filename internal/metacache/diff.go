package metacache

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// Partition splits local and remote keys into what to delete, what to
// fetch and what is already in place.
type Partition struct {
	Stale   mapset.Set[CacheKey] // local only
	Missing mapset.Set[CacheKey] // remote only
	Current mapset.Set[CacheKey] // both
}

func Diff(local, remote mapset.Set[CacheKey]) Partition {
	return Partition{
		Stale:   local.Difference(remote),
		Missing: remote.Difference(local),
		Current: local.Intersect(remote),
	}
}

func newKeySet(keys ...CacheKey) mapset.Set[CacheKey] {
	return mapset.NewThreadUnsafeSet(keys...)
}

// sortedKeys gives sets a stable order for logs and loading.
func sortedKeys(s mapset.Set[CacheKey]) []CacheKey {
	return mapset.Sorted(s)
}

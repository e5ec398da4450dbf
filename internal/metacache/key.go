package metacache

import (
	"encoding/hex"

	"github.com/openmined/metasync/internal/storage"
	"github.com/zeebo/blake3"
)

// KeyLen is the length of every CacheKey in hex characters.
const KeyLen = 32

// tempPrefix marks an in-flight download. Keys are hex only, so a prefixed
// name can never be mistaken for a key.
const tempPrefix = "."

// CacheKey names the local cache file of one remote metadata file.
type CacheKey string

// KeyOf derives the cache key of a handle: the first 16 bytes of its BLAKE3
// digest, hex encoded. Equal handles always produce equal keys.
func KeyOf(handle storage.FileHandle) CacheKey {
	sum := blake3.Sum256([]byte(handle))
	return CacheKey(hex.EncodeToString(sum[:KeyLen/2]))
}

// Valid reports whether k has the shape of a key produced by KeyOf.
func (k CacheKey) Valid() bool {
	if len(k) != KeyLen {
		return false
	}
	for i := 0; i < len(k); i++ {
		c := k[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func (k CacheKey) String() string {
	return string(k)
}

// TempName is the file name used while k is being downloaded.
func (k CacheKey) TempName() string {
	return tempPrefix + string(k)
}

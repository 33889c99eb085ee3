package util

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// CacheKey builds the storage key for a caller-supplied key. When hash is
// set the key is replaced by its xxhash digest (hex) to bound key length;
// the prefix stays readable in front of it. Tag names never pass through
// here.
func CacheKey(prefix, key string, hash bool) string {
	if hash {
		key = strconv.FormatUint(xxhash.Sum64String(key), 16)
	}
	if prefix == "" {
		return key
	}
	return prefix + ":" + key
}

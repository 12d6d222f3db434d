package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"os"
	"sync"
)

// fingerprint derives the cache key for a file from its size, modification
// time, and content, so an edited file is recounted while an untouched one
// reuses its cached count.
func fingerprint(info os.FileInfo, data []byte) string {
	hasher := sha256.New()
	var header [16]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(info.Size()))
	binary.LittleEndian.PutUint64(header[8:], uint64(info.ModTime().UnixNano()))
	hasher.Write(header[:])
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil))
}

type fingerprintCache struct {
	mutex  sync.Mutex
	counts map[string]int
}

func newFingerprintCache() *fingerprintCache {
	return &fingerprintCache{counts: make(map[string]int)}
}

func (c *fingerprintCache) lookup(key string) (int, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	tokens, found := c.counts[key]
	return tokens, found
}

func (c *fingerprintCache) store(key string, tokens int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.counts[key] = tokens
}

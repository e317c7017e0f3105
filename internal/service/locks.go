package service

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const lockStripes = 256

// keyLocks serializes operations on the same document key using a fixed set
// of striped mutexes. Unrelated keys may share a stripe; that only costs
// some parallelism.
type keyLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *keyLocks) Lock(key string) (unlock func()) {
	m := &l.stripes[xxhash.Sum64String(key)%lockStripes]
	m.Lock()
	return m.Unlock
}

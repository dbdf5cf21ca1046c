package controller

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 64

// stripedLock provides per-key mutual exclusion without a lock per photo.
// Keys hash onto a fixed set of stripes; a collision only costs spurious
// contention, never correctness.
type stripedLock struct {
	stripes [lockStripes]sync.Mutex
}

// lock acquires the stripe for key and returns its release func
func (l *stripedLock) lock(key string) func() {
	h := fnv.New32a()
	h.Write([]byte(key))
	m := &l.stripes[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}

package callseq

import (
	"hash"
	"hash/fnv"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrGroupLimitCPU returns an errgroup limited to NumCPU.
func ErrGroupLimitCPU() *errgroup.Group {
	errGroup := &errgroup.Group{}
	errGroup.SetLimit(runtime.NumCPU())
	return errGroup
}

func newDefaultStripedMutex() *stripedMutex {
	return newStripedMutex(1021) // prime number provides better distributions
}

// newStripedMutex creates a new mutex with the given concurrency.
func newStripedMutex(stripes uint) *stripedMutex {
	m := &stripedMutex{
		make([]*sync.Mutex, stripes),
		&sync.Pool{New: func() interface{} { return fnv.New64() }},
	}
	for i := range m.locks {
		m.locks[i] = &sync.Mutex{}
	}
	return m
}

type stripedMutex struct {
	locks []*sync.Mutex
	pool  *sync.Pool
}

// Lock acquire lock for a given key, returning the mutex for an easy unlock.
func (m *stripedMutex) Lock(key string) *sync.Mutex {
	l := m.getLock(key)
	l.Lock()
	return l
}

func (m *stripedMutex) getLock(key string) *sync.Mutex {
	h := m.pool.Get().(hash.Hash64)
	defer m.pool.Put(h)
	h.Reset()
	_, _ = h.Write([]byte(key))
	return m.locks[h.Sum64()%uint64(len(m.locks))]
}

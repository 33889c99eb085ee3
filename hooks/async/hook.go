// Package asynchook decouples hook sinks from the cache hot path: events are
// queued and replayed by workers, and dropped when the queue is full.
package asynchook

import (
	"sync"

	"github.com/unkn0wn-root/tagcache"
)

type Hooks struct {
	inner tagcache.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ tagcache.Hooks = (*Hooks)(nil)

func New(inner tagcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) SelfHeal(k, r string)       { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) LockWaitExhausted(k string) { h.try(func() { h.inner.LockWaitExhausted(k) }) }
func (h *Hooks) BloomSkip(k string)         { h.try(func() { h.inner.BloomSkip(k) }) }
func (h *Hooks) RefreshFailed(k string, err error) {
	h.try(func() { h.inner.RefreshFailed(k, err) })
}
func (h *Hooks) LevelSetFailed(level, k string, err error) {
	h.try(func() { h.inner.LevelSetFailed(level, k, err) })
}
func (h *Hooks) AdapterSetRejected(k string) {
	h.try(func() { h.inner.AdapterSetRejected(k) })
}

package tagstore

import (
	"context"
	"sync"
	"time"
)

type localEntry struct {
	Version   int64
	UpdatedAt time.Time
}

// Local keeps tag versions in-process. Suitable for single-replica setups
// and in-memory backends; an optional cleanup loop prunes tags that have not
// been touched within the retention window.
type Local struct {
	mu     sync.RWMutex
	tags   map[string]localEntry
	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup

	retention time.Duration
}

var _ TagStore = (*Local)(nil)

func NewLocal(cleanupInterval, retention time.Duration) *Local {
	s := &Local{
		tags:      make(map[string]localEntry),
		retention: retention,
	}
	if cleanupInterval > 0 && retention > 0 {
		s.ticker = time.NewTicker(cleanupInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.Cleanup(retention)
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s
}

// Versions acquires the read lock once and reads all requested names.
func (s *Local) Versions(_ context.Context, names []string) (map[string]int64, error) {
	out := make(map[string]int64, len(names))
	s.mu.RLock()
	for _, n := range names {
		out[n] = s.tags[n].Version // zero value (0) if missing
	}
	s.mu.RUnlock()
	return out, nil
}

func (s *Local) Touch(_ context.Context, names []string, version int64) error {
	now := time.Now()
	s.mu.Lock()
	for _, n := range names {
		e := s.tags[n]
		if version > e.Version {
			e.Version = version
		}
		e.UpdatedAt = now
		s.tags[n] = e
	}
	s.mu.Unlock()
	return nil
}

func (s *Local) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-retention)

	s.mu.Lock()
	for n, e := range s.tags {
		if !e.UpdatedAt.IsZero() && e.UpdatedAt.Before(cutoff) {
			delete(s.tags, n)
		}
	}
	s.mu.Unlock()
}

func (s *Local) Close(_ context.Context) error {
	if s.stopCh != nil {
		close(s.stopCh)
		if s.ticker != nil {
			s.ticker.Stop() // stop ticker before waiting
		}
		s.wg.Wait()
		s.stopCh = nil
	}
	return nil
}

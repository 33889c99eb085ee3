package adapter

import (
	"sync"
	"sync/atomic"
)

// ConnState tracks adapter connectivity from operation outcomes and fires
// OnConnect callbacks on the disconnected -> connected transition.
type ConnState struct {
	status atomic.Int32

	mu  sync.Mutex
	cbs []func()
}

func NewConnState(initial Status) *ConnState {
	s := &ConnState{}
	s.status.Store(int32(initial))
	return s
}

func (s *ConnState) Status() Status { return Status(s.status.Load()) }

func (s *ConnState) OnConnect(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.cbs = append(s.cbs, fn)
	s.mu.Unlock()
}

// MarkConnected records a successful operation. Callbacks run synchronously
// and only when the state actually transitions.
func (s *ConnState) MarkConnected() {
	if !s.status.CompareAndSwap(int32(StatusDisconnected), int32(StatusConnected)) {
		return
	}
	s.mu.Lock()
	cbs := make([]func(), len(s.cbs))
	copy(cbs, s.cbs)
	s.mu.Unlock()
	for _, fn := range cbs {
		fn()
	}
}

func (s *ConnState) MarkDisconnected() {
	s.status.Store(int32(StatusDisconnected))
}

package topo

import (
	"reflect"
	"sync"
)

// pool recycles the two per-Call allocations on the hot path — a
// scopeState and the frame that publishes it — using one sync.Pool for
// each, plus one small metrics struct counting acquisitions of both. A
// tight loop doing CallInSlot per iteration (see S4) is exactly the
// case this amortizes.
type pool struct {
	scopeStates sync.Pool
	frames      sync.Pool
	metrics     poolMetrics
}

// poolMetrics counts hits behind a mutex. Every Get against a Pool
// with New set "hits" from the caller's point of view — sync.Pool does
// not expose whether it handed back a recycled object or ran New — so
// this counts acquisitions, not genuine reuse; it is still useful as a
// coarse "is this pool being exercised at all" signal.
type poolMetrics struct {
	mu                sync.Mutex
	scopeStateAcquire uint64
	frameAcquire      uint64
}

func newPool() *pool {
	p := &pool{}
	p.scopeStates.New = func() any {
		return &scopeState{counts: make(map[Callsite]int, 4)}
	}
	p.frames.New = func() any {
		return &frame{}
	}
	return p
}

func (p *pool) acquireScopeState(id CallId, cs Callsite) *scopeState {
	s := p.scopeStates.Get().(*scopeState)
	s.id = id
	s.callsite = cs
	for k := range s.counts {
		delete(s.counts, k)
	}

	p.metrics.mu.Lock()
	p.metrics.scopeStateAcquire++
	p.metrics.mu.Unlock()
	return s
}

func (p *pool) releaseScopeState(s *scopeState) {
	if s == nil {
		return
	}
	p.scopeStates.Put(s)
}

func (p *pool) acquireFrame(prev *frame, typ reflect.Type, value any, hidden bool) *frame {
	f := p.frames.Get().(*frame)
	f.prev = prev
	f.typ = typ
	f.value = value
	f.hidden = hidden

	p.metrics.mu.Lock()
	p.metrics.frameAcquire++
	p.metrics.mu.Unlock()
	return f
}

func (p *pool) releaseFrame(f *frame) {
	if f == nil {
		return
	}
	f.prev = nil
	f.typ = nil
	f.value = nil
	f.hidden = false
	p.frames.Put(f)
}

// Metrics returns a snapshot of pool acquisition counters.
func (p *pool) Metrics() poolMetrics {
	p.metrics.mu.Lock()
	defer p.metrics.mu.Unlock()
	return poolMetrics{
		scopeStateAcquire: p.metrics.scopeStateAcquire,
		frameAcquire:      p.metrics.frameAcquire,
	}
}

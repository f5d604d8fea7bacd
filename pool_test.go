package topo

import "testing"

func TestPoolAcquireScopeStateResetsCounts(t *testing.T) {
	p := newPool()
	s := p.acquireScopeState(5, Callsite{})
	s.counts[Callsite{pc: 1}] = 3
	p.releaseScopeState(s)

	s2 := p.acquireScopeState(6, Callsite{})
	if len(s2.counts) != 0 {
		t.Fatalf("expected a recycled scopeState to have its counts cleared, got %v", s2.counts)
	}
	if s2.id != 6 {
		t.Fatalf("expected id 6, got %v", s2.id)
	}
}

func TestPoolAcquireFrameResetsFields(t *testing.T) {
	p := newPool()
	prev := &frame{}
	f := p.acquireFrame(prev, nil, 42, false)
	if f.prev != prev || f.value != 42 || f.hidden {
		t.Fatalf("unexpected acquired frame: %+v", f)
	}
	p.releaseFrame(f)

	f2 := p.acquireFrame(nil, nil, nil, true)
	if f2.prev != nil || f2.value != nil || !f2.hidden {
		t.Fatalf("unexpected reused frame: %+v", f2)
	}
}

func TestPoolMetricsCountsAcquisitions(t *testing.T) {
	p := newPool()
	p.acquireScopeState(1, Callsite{})
	p.acquireScopeState(2, Callsite{})
	p.acquireFrame(nil, nil, nil, false)

	m := p.Metrics()
	if m.scopeStateAcquire != 2 {
		t.Fatalf("expected 2 scope state acquisitions, got %d", m.scopeStateAcquire)
	}
	if m.frameAcquire != 1 {
		t.Fatalf("expected 1 frame acquisition, got %d", m.frameAcquire)
	}
}

package topo

import "sync"

// depNode is one entry in a cache's dependency graph: the bookkeeping
// needed to decide, at GC time, whether the entry is still reachable.
// (Cache keeps the entry's value in its slot and leaves value here at
// its zero value.) A node is reachable if either it was itself looked
// up by a GetOrInit this revision (hasRoot), or one of its
// dependents (the entries whose initializers read it while running)
// is reachable — reachability is transitive upward through the
// dependents edge, not just one hop.
//
// mu guards hasRoot/dependents/dead against concurrent GetOrInit calls
// on unrelated keys racing a GC pass. Caches that don't admit that kind
// of concurrency (Local, SharedLocal, Multi) skip locking it — see each
// field accessor's guard parameter — so the mutex costs nothing beyond
// its own zero value there; only SharedMulti's GetOrInit/GC actually
// acquire it.
type depNode[V any] struct {
	key        CallId
	value      V
	hasRoot    bool
	dependents []*Dependent[V]
	dead       bool
	mu         sync.Mutex
}

// Dependent is a handle one depNode holds on another node that
// consumed it. Go's garbage collector already reclaims reference
// cycles on its own, so Dependent does not need a true weak pointer
// the way the original's Arc-based graph did; dead marks a node that
// sweep has already evicted from its cache, so upgrade can still
// report "gone" to a stale handle instead of resurrecting it.
type Dependent[V any] struct {
	node *depNode[V]
}

func asDependent[V any](n *depNode[V]) *Dependent[V] {
	return &Dependent[V]{node: n}
}

// upgrade returns the referenced node if it is still live, or nil if
// it has been swept. guard requests the same locked read that
// SharedMulti's mark pass uses elsewhere; other variants pass false
// since nothing else can be mutating dead concurrently for them.
func (d *Dependent[V]) upgrade(guard bool) *depNode[V] {
	if d == nil || d.node == nil {
		return nil
	}
	if !guard {
		if d.node.dead {
			return nil
		}
		return d.node
	}
	d.node.mu.Lock()
	dead := d.node.dead
	d.node.mu.Unlock()
	if dead {
		return nil
	}
	return d.node
}

func newDepNode[V any](key CallId, value V) *depNode[V] {
	return &depNode[V]{key: key, value: value}
}

// setRoot, clearRoot and markDead toggle hasRoot/dead under n's own
// mutex when guard is set, and directly otherwise — see the guard
// parameter note on the depNode type.
func (n *depNode[V]) setRoot(guard bool) {
	if !guard {
		n.hasRoot = true
		return
	}
	n.mu.Lock()
	n.hasRoot = true
	n.mu.Unlock()
}

func (n *depNode[V]) clearRoot(guard bool) {
	if !guard {
		n.hasRoot = false
		return
	}
	n.mu.Lock()
	n.hasRoot = false
	n.mu.Unlock()
}

func (n *depNode[V]) markDead(guard bool) {
	if !guard {
		n.dead = true
		return
	}
	n.mu.Lock()
	n.dead = true
	n.mu.Unlock()
}

// addDependent records that consumer read n while consumer's own
// initializer was running. A node may be read by the same consumer
// more than once across its lifetime (e.g. an initializer that looks up
// the same key twice); duplicates are
// harmless for mark, since mark only cares whether at least one
// recorded dependent is reachable, so no dedup is attempted here.
func (n *depNode[V]) addDependent(consumer *depNode[V], guard bool) {
	if !guard {
		n.dependents = append(n.dependents, asDependent(consumer))
		return
	}
	n.mu.Lock()
	n.dependents = append(n.dependents, asDependent(consumer))
	n.mu.Unlock()
}

// snapshotDependents returns n's dependents list, copied under n's own
// mutex when guard is set so a concurrent addDependent can't be
// observed mid-append.
func (n *depNode[V]) snapshotDependents(guard bool) []*Dependent[V] {
	if !guard {
		return n.dependents
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*Dependent[V](nil), n.dependents...)
}

// nodeSnapshot is the hasRoot/dependents view of one node taken while
// holding its mutex (when guard is set), so the DFS below walks a
// consistent picture of the graph even while unrelated GetOrInit calls
// keep mutating other nodes' dependents lists concurrently.
type nodeSnapshot[V any] struct {
	hasRoot    bool
	dependents []*Dependent[V]
}

// snapshot reads nodes in the given order, acquiring each node's own
// mutex only for the instant it takes to copy its fields (when guard
// is set — unguarded caches read directly, since nothing else can be
// mutating concurrently for them). Locking one node at a time in
// iteration order, rather than holding every lock for the whole pass,
// is what lets a SharedMulti GC proceed while an unrelated insert is
// in flight.
func snapshot[V any](nodes []*depNode[V], guard bool) map[*depNode[V]]nodeSnapshot[V] {
	snaps := make(map[*depNode[V]]nodeSnapshot[V], len(nodes))
	for _, n := range nodes {
		if !guard {
			snaps[n] = nodeSnapshot[V]{hasRoot: n.hasRoot, dependents: n.snapshotDependents(false)}
			continue
		}
		n.mu.Lock()
		hasRoot := n.hasRoot
		n.mu.Unlock()
		snaps[n] = nodeSnapshot[V]{hasRoot: hasRoot, dependents: n.snapshotDependents(true)}
	}
	return snaps
}

// mark decides whether each node is still reachable. A node is
// reachable if it was itself rooted this revision (hasRoot), or if any
// node in its own dependents list (the consumers that read it) is
// reachable: reach(n) = n.hasRoot OR OR-of(reach(c) for c in
// n.dependents). That recurrence is a DFS over each node's own forward
// pointers, computed here with an explicit stack and three-colour
// visited state instead of Go call recursion, so neither a long
// dependency chain nor a dependency cycle can misbehave: white is
// unvisited, gray is an ancestor currently being computed (a back-edge
// to gray is not followed), black is finished. A node on a cycle can
// finish before its gray ancestor's reach is known, so a final pass
// propagates reach along dependents edges until nothing changes.
// Nodes are identified by pointer, not by CallId, since one cache's
// scope (CallId) commonly holds several entries under distinct
// sub-keys. guard selects the locked snapshot path for SharedMulti;
// see snapshot.
func mark[V any](nodes []*depNode[V], guard bool) map[*depNode[V]]bool {
	const (
		white = iota
		gray
		black
	)
	color := make(map[*depNode[V]]int, len(nodes))
	reach := make(map[*depNode[V]]bool, len(nodes))
	snaps := snapshot(nodes, guard)

	type frame struct {
		n   *depNode[V]
		idx int
	}

	for _, start := range nodes {
		if color[start] != white {
			continue
		}
		stack := []*frame{{n: start}}
		color[start] = gray

		for len(stack) > 0 {
			top := stack[len(stack)-1]
			if top.idx == 0 && snaps[top.n].hasRoot {
				reach[top.n] = true
			}

			pushed := false
			deps := snaps[top.n].dependents
			for top.idx < len(deps) {
				dep := deps[top.idx]
				top.idx++
				c := dep.upgrade(guard)
				if c == nil {
					continue
				}
				switch color[c] {
				case black:
					if reach[c] {
						reach[top.n] = true
					}
				case white:
					color[c] = gray
					stack = append(stack, &frame{n: c})
					pushed = true
				}
				if pushed {
					break
				}
			}
			if pushed {
				continue
			}

			color[top.n] = black
			stack = stack[:len(stack)-1]
			if len(stack) > 0 && reach[top.n] {
				parent := stack[len(stack)-1]
				reach[parent.n] = true
			}
		}
	}

	for changed := true; changed; {
		changed = false
		for n, s := range snaps {
			for _, dep := range s.dependents {
				if c := dep.upgrade(guard); !reach[n] && c != nil && reach[c] {
					reach[n], changed = true, true
				}
			}
		}
	}

	return reach
}

package topo

import "sync"

// cacheKey identifies one entry within a cache: the enclosing scope
// plus an arbitrary, caller-chosen sub-key distinguishing entries
// memoized under the same scope (e.g. by argument). The sub-key is
// boxed into an interface at the storage layer so one cache instance
// (parameterized only by V) can serve every GetOrInit[Q, V] call
// regardless of Q; Q's comparable constraint is what makes boxing it
// into a map key via == safe.
type cacheKey struct {
	scope CallId
	sub   any
}

// slot is the unit of storage inside every cache variant: the depNode
// tracking the entry's place in the dependency graph, the value once
// it is known, and a WaitGroup whose counter stays at one until the
// build finishes.
// A second caller that finds an existing slot waits on wg rather than
// racing its own init — wg.Wait returns immediately once the build
// (successful or not) has already completed, and blocks until then
// otherwise, which is what gives every cache variant the "at most one
// build per fingerprint" guarantee, the same resolving-flag-plus-
// WaitGroup coordination pkg/core/scope.go's resolveExecutor uses.
type slot[V any] struct {
	node  *depNode[V]
	value V
	err   error
	wg    sync.WaitGroup
}

func newSlot[V any](scope CallId) *slot[V] {
	s := &slot[V]{node: newDepNode[V](scope, *new(V))}
	s.wg.Add(1)
	return s
}

// producer is the ambient value published on a Runtime's context stack
// while an entry's initializer runs. A nested GetOrInit made from
// inside that initializer, against the same cache instance, reads it
// to record itself as that entry's dependent — the mechanism behind
// "A's initializer looks up B" keeping B alive through the edge from
// A even when B itself goes untouched in a later revision.
type producer[V any] struct {
	owner *Cache[V]
	node  *depNode[V]
}

// storage is the map plus whatever locking discipline a cache variant
// layers over it. All four public cache shapes share this interface
// and the engine built on it; they differ only in which storage they
// construct, matching the "two orthogonal capability choices rather
// than four separate types" shape. loadOrCreate is the one operation
// that must be atomic per key: exactly one caller may see created ==
// true for a given key, and that caller is the one responsible for
// running init and completing the slot's WaitGroup.
type storage[V any] interface {
	loadOrCreate(cacheKey) (s *slot[V], created bool)
	each(func(cacheKey, *slot[V]))
	remove(cacheKey)
}

// plainStorage backs Local: a bare map with no locking of its own,
// relying on the caller confining the cache to one goroutine.
type plainStorage[V any] struct {
	m map[cacheKey]*slot[V]
}

func newPlainStorage[V any]() *plainStorage[V] {
	return &plainStorage[V]{m: make(map[cacheKey]*slot[V])}
}

func (s *plainStorage[V]) loadOrCreate(k cacheKey) (*slot[V], bool) {
	if existing, ok := s.m[k]; ok {
		return existing, false
	}
	fresh := newSlot[V](k.scope)
	s.m[k] = fresh
	return fresh, true
}

func (s *plainStorage[V]) remove(k cacheKey) { delete(s.m, k) }
func (s *plainStorage[V]) each(fn func(cacheKey, *slot[V])) {
	for k, e := range s.m {
		fn(k, e)
	}
}

// mutexStorage backs SharedLocal: plainStorage behind a sync.Mutex, so
// several handles confined to the same goroutine-affine owner can
// share one map without racing each other's writes. The mutex guards
// only the map operations, not whatever an initializer itself does.
type mutexStorage[V any] struct {
	mu   sync.Mutex
	base plainStorage[V]
}

func newMutexStorage[V any]() *mutexStorage[V] {
	return &mutexStorage[V]{base: plainStorage[V]{m: make(map[cacheKey]*slot[V])}}
}

func (s *mutexStorage[V]) loadOrCreate(k cacheKey) (*slot[V], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base.loadOrCreate(k)
}

func (s *mutexStorage[V]) remove(k cacheKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.base.remove(k)
}

func (s *mutexStorage[V]) each(fn func(cacheKey, *slot[V])) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.base.each(fn)
}

// syncMapStorage backs Multi and SharedMulti: a sync.Map, the same
// backend TypeSafeCache[T] uses, safe for concurrent use from multiple
// goroutines without an external lock. loadOrCreate
// builds a candidate slot eagerly and hands it to LoadOrStore, which
// is what makes the claim atomic; a candidate that loses the race is
// simply discarded.
type syncMapStorage[V any] struct {
	m sync.Map
}

func newSyncMapStorage[V any]() *syncMapStorage[V] {
	return &syncMapStorage[V]{}
}

func (s *syncMapStorage[V]) loadOrCreate(k cacheKey) (*slot[V], bool) {
	candidate := newSlot[V](k.scope)
	actual, loaded := s.m.LoadOrStore(k, candidate)
	return actual.(*slot[V]), !loaded
}

func (s *syncMapStorage[V]) remove(k cacheKey) { s.m.Delete(k) }
func (s *syncMapStorage[V]) each(fn func(cacheKey, *slot[V])) {
	s.m.Range(func(k, v any) bool {
		fn(k.(cacheKey), v.(*slot[V]))
		return true
	})
}

// Cache is one of the four incremental cache variants: Local,
// SharedLocal, Multi and SharedMulti. Every variant exposes the same
// GetOrInit/GC surface; they differ only in the storage they wrap and
// in whether guardNodes is set. guardNodes is SharedMulti's promise
// that a GC pass may run concurrently with unrelated inserts: when
// set, every depNode field touched by GetOrInit/recordDependent/GC is
// read and written under that node's own mutex (see depnode.go);
// when clear, those same operations touch the fields directly, since
// Local/SharedLocal are confined to one goroutine by contract and
// Multi's contract leaves GC serialized against inserts to the caller.
type Cache[V any] struct {
	store      storage[V]
	guardNodes bool
	hook       Hook
}

func newCache[V any](s storage[V], guardNodes bool, opts []CacheOption[V]) *Cache[V] {
	c := &Cache[V]{store: s, guardNodes: guardNodes, hook: noopHook{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CacheOption configures a Cache at construction time, using the same
// functional-options style as RuntimeOption, rather than a config
// struct.
type CacheOption[V any] func(*Cache[V])

// WithCacheHook attaches h at construction time. Equivalent to calling
// WithHook afterward; provided so hook wiring can be expressed
// alongside other options in one constructor call.
func WithCacheHook[V any](h Hook) CacheOption[V] {
	return func(c *Cache[V]) { c.WithHook(h) }
}

// Local creates a single-owner cache: no internal locking, not safe
// for concurrent use, matching the "confined to one goroutine" model
// the rest of the runtime uses.
func Local[V any](opts ...CacheOption[V]) *Cache[V] {
	return newCache[V](newPlainStorage[V](), false, opts)
}

// SharedLocal creates a cache whose map is safe to share between
// several handles within one goroutine-affine owner, without making
// the cache safe for concurrent use from more than one goroutine.
func SharedLocal[V any](opts ...CacheOption[V]) *Cache[V] {
	return newCache[V](newMutexStorage[V](), false, opts)
}

// Multi creates a cache safe for concurrent GetOrInit calls from many
// goroutines, including several racing the same (scope, subKey): only
// one of them runs init, the rest wait for it and share its result. A
// GC pass still assumes no concurrent GC on the same cache, and that
// callers serialize GC against new inserts themselves, per the
// "GC passes are not themselves reentrant" contract.
func Multi[V any](opts ...CacheOption[V]) *Cache[V] {
	return newCache[V](newSyncMapStorage[V](), false, opts)
}

// SharedMulti is Multi with guardNodes set: a GC pass may run
// concurrently with unrelated GetOrInit calls on the same cache,
// because every depNode mutation both sides make goes through that
// node's own mutex.
func SharedMulti[V any](opts ...CacheOption[V]) *Cache[V] {
	return newCache[V](newSyncMapStorage[V](), true, opts)
}

// WithHook attaches an observability hook to the cache, returning the
// same cache for chaining at construction time.
func (c *Cache[V]) WithHook(h Hook) *Cache[V] {
	if h != nil {
		c.hook = h
	}
	return c
}

// GetOrInit returns the cached value for subKey under the enclosing
// scope, computing and storing it via init on a miss. Every successful
// call — hit or miss — roots the entry's depNode for this revision.
// While init runs, the node being built is published as the ambient
// producer so a nested GetOrInit against this same cache, called from
// inside init, records itself as this entry's dependent.
//
// Exactly one caller per (scope, subKey) runs init, even when several
// goroutines call GetOrInit concurrently on a Multi/SharedMulti cache
// with the same key: storage.loadOrCreate hands out a fresh slot to
// only one of them (created == true); every other caller waits on that
// slot's WaitGroup and then shares its result, success or failure,
// rather than building its own. A failed build removes its entry, so a
// caller that arrives after that removal starts a fresh build.
func GetOrInit[Q comparable, V any](rt *Runtime, c *Cache[V], subKey Q, init func() (V, error)) (V, error) {
	key := cacheKey{scope: CurrentID(rt), sub: subKey}

	s, created := c.store.loadOrCreate(key)
	if !created {
		s.wg.Wait()
		s.node.setRoot(c.guardNodes)
		c.recordDependent(rt, s.node)
		if s.err != nil {
			return s.value, s.err
		}
		c.hook.OnCacheHit(CurrentScope(rt))
		return s.value, nil
	}

	c.hook.OnCacheMiss(CurrentScope(rt))
	s.node.setRoot(c.guardNodes)
	c.recordDependent(rt, s.node)

	var value V
	var err error
	with(rt, producer[V]{owner: c, node: s.node}, func() {
		value, err = init()
	})

	if err != nil {
		wrapped := wrapInit(key.scope, err)
		s.err = wrapped
		c.store.remove(key)
		s.wg.Done()
		return s.value, wrapped
	}

	s.value = value
	s.wg.Done()
	return value, nil
}

// recordDependent links node as the dependent of whichever entry on
// this same cache is currently initializing, if any.
func (c *Cache[V]) recordDependent(rt *Runtime, node *depNode[V]) {
	outer, ok := Get[producer[V]](rt)
	if !ok || outer.owner != c || outer.node == node {
		return
	}
	node.addDependent(outer.node, c.guardNodes)
}

// DependencyGraph returns a snapshot of the producer-to-consumer edges
// currently held by the cache, keyed by each entry's scope CallId, for
// diagnostics such as the graphdebug Hook. Entries that share a scope
// (distinct sub-keys) share one key, holding all of their consumers.
func (c *Cache[V]) DependencyGraph() map[CallId][]CallId {
	graph := make(map[CallId][]CallId)
	c.store.each(func(_ cacheKey, s *slot[V]) {
		var consumers []CallId
		for _, dep := range s.node.snapshotDependents(c.guardNodes) {
			if n := dep.upgrade(c.guardNodes); n != nil {
				consumers = append(consumers, n.key)
			}
		}
		graph[s.node.key] = append(graph[s.node.key], consumers...)
	})
	return graph
}

// GC performs one mark-and-sweep pass: entries not reachable this
// revision are removed, and every surviving entry's hasRoot flag is
// cleared so the cache is ready for the next revision. It returns the
// number of entries removed.
func (c *Cache[V]) GC(rt *Runtime) int {
	var nodes []*depNode[V]
	keys := make(map[*depNode[V]]cacheKey)
	c.store.each(func(k cacheKey, s *slot[V]) {
		nodes = append(nodes, s.node)
		keys[s.node] = k
	})

	reach := mark(nodes, c.guardNodes)
	removed := 0
	for _, n := range nodes {
		if reach[n] {
			n.clearRoot(c.guardNodes)
			continue
		}
		n.markDead(c.guardNodes)
		c.store.remove(keys[n])
		removed++
	}

	if removed > 0 {
		c.hook.OnGC(CurrentScope(rt), removed)
	}
	return removed
}

package topo

import (
	"fmt"
	"hash/maphash"
)

// CallId is a hash-derived fingerprint of (parent CallId, callsite,
// slot). Equal CallIds denote the same logical scope across repeated
// runs of the same process. CallId is copyable, equality-comparable
// and hashable by construction (it is a plain uint64).
type CallId uint64

func (id CallId) String() string {
	return fmt.Sprintf("%016x", uint64(id))
}

// RootID is the distinguished CallId of the process-wide root scope.
const RootID CallId = 0

var hashSeed = maphash.MakeSeed()

// deriveCallId hashes (parent, callsite, slot) in a fixed field order
// so that CallId derivation is deterministic for any given sequence of
// (callsite, slot) descents from the same root, per the stability
// invariant.
func deriveCallId(parent CallId, cs Callsite, slot slotKey) CallId {
	var h maphash.Hash
	h.SetSeed(hashSeed)
	var buf [8]byte
	putUint64(buf[:], uint64(parent))
	_, _ = h.Write(buf[:])
	cs.writeHash(&h)
	slot.writeHash(&h)
	return CallId(h.Sum64())
}

// scopeState is the runtime state of the currently executing
// identified call: its CallId, its originating callsite, and a count
// of how many times each child callsite has been entered, used to
// compute default slots. scopeState is not persisted across
// revisions — only the CallId it captured is stable.
type scopeState struct {
	id       CallId
	callsite Callsite
	counts   map[Callsite]int
}

func newRootScopeState() *scopeState {
	return &scopeState{id: RootID, counts: make(map[Callsite]int)}
}

// Scope is a snapshot of the currently executing call, returned by
// CurrentScope for diagnostics and by hooks observing scope entry.
type Scope struct {
	ID       CallId
	Callsite Callsite
}

func currentState(rt *Runtime) *scopeState {
	if s, ok := Get[*scopeState](rt); ok {
		return s
	}
	return rt.root
}

// CurrentID returns the CallId of the enclosing scope, or RootID if
// called outside any scope.
func CurrentID(rt *Runtime) CallId {
	return currentState(rt).id
}

// CurrentScope returns a snapshot of the enclosing scope.
func CurrentScope(rt *Runtime) Scope {
	s := currentState(rt)
	return Scope{ID: s.id, Callsite: s.callsite}
}

// enterChild computes the child CallId for (parent, cs, slot), pushes
// a fresh scopeState for it, runs fn with that scope current, and
// pops on return — including when fn panics.
func enterChild(rt *Runtime, parent CallId, cs Callsite, slot slotKey, fn func()) {
	child := rt.pool.acquireScopeState(deriveCallId(parent, cs, slot), cs)
	defer rt.pool.releaseScopeState(child)

	snap := Scope{ID: child.id, Callsite: cs}
	rt.hook.OnEnter(snap)
	defer rt.hook.OnExit(snap)
	Offer(rt, child).Enter(fn)
}

// Call enters a child scope whose slot is the enclosing scope's count
// of prior entries at this callsite, runs op, and restores the parent
// scope on return — even if op panics. The callsite is the source
// line of this call to Call.
func Call[R any](rt *Runtime, op func() R) R {
	cs := site(1)
	parent := currentState(rt)
	count := parent.counts[cs]
	parent.counts[cs] = count + 1

	var result R
	enterChild(rt, parent.id, cs, defaultSlot(count), func() {
		result = op()
	})
	return result
}

// CallE is Call for operations that can fail. The parent scope is
// always restored, including when op returns an error.
func CallE[R any](rt *Runtime, op func() (R, error)) (R, error) {
	cs := site(1)
	parent := currentState(rt)
	count := parent.counts[cs]
	parent.counts[cs] = count + 1

	var result R
	var err error
	enterChild(rt, parent.id, cs, defaultSlot(count), func() {
		result, err = op()
	})
	return result, err
}

// CallInSlot is Call with an explicit slot instead of the
// auto-incrementing default, for disambiguating repeated entries by a
// caller-supplied key (e.g. a list index or a stable identity) rather
// than by call order.
func CallInSlot[S comparable, R any](rt *Runtime, slot S, op func() R) R {
	cs := site(1)
	parent := currentState(rt)

	var result R
	enterChild(rt, parent.id, cs, explicitSlot(slot), func() {
		result = op()
	})
	return result
}

// CallInSlotE is CallInSlot for operations that can fail.
func CallInSlotE[S comparable, R any](rt *Runtime, slot S, op func() (R, error)) (R, error) {
	cs := site(1)
	parent := currentState(rt)

	var result R
	var err error
	enterChild(rt, parent.id, cs, explicitSlot(slot), func() {
		result, err = op()
	})
	return result, err
}

// Root hides any enclosing scope and enters a child scope as if
// called from the process-wide root, using a fixed slot rather than
// Call's auto-incrementing one. This is what makes Root(op) called
// twice at the same source position produce the same CallId (root
// invariance): the slot must not depend on how many times this line
// has run, only on where it is.
func Root[R any](rt *Runtime, op func() R) R {
	cs := site(1)
	var result R
	withHidden[*scopeState](rt, func() {
		enterChild(rt, RootID, cs, rootSlot, func() {
			result = op()
		})
	})
	return result
}

// RootE is Root for operations that can fail.
func RootE[R any](rt *Runtime, op func() (R, error)) (R, error) {
	cs := site(1)
	var result R
	var err error
	withHidden[*scopeState](rt, func() {
		enterChild(rt, RootID, cs, rootSlot, func() {
			result, err = op()
		})
	})
	return result, err
}

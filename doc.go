// Package topo provides an incremental call-topology runtime: stable
// per-callsite identifiers across repeated runs of the same process,
// an ambient context stack for publishing per-call state without
// threading it through every signature, and a mark-and-sweep
// incremental cache keyed by the resulting call identity.
//
// # Overview
//
// A Runtime owns one ambient context stack and tracks the current
// scope — the enclosing Call/Root invocation — on top of it. Every
// Call descends into a fresh child scope identified by a CallId: a
// hash of (parent CallId, callsite, slot) that is stable for the
// lifetime of one process and reproducible across repeated revisions
// of the same call graph.
//
//	rt := topo.NewRuntime()
//
//	topo.Call(rt, func() int {
//	    id := topo.CurrentID(rt)
//	    return len(id.String())
//	})
//
// # Callsites and slots
//
// Call, CallInSlot and Root each capture their own call location via
// runtime.Caller, so two textually distinct call sites never collide.
// Call assigns slots by counting how many times the enclosing scope
// has entered that callsite so far (the nth iteration of a loop gets
// slot n); CallInSlot lets the caller supply a slot explicitly, for
// disambiguating by something other than call order:
//
//	for _, item := range items {
//	    topo.CallInSlot(rt, item.ID, func() int {
//	        process(item)
//	        return 0
//	    })
//	}
//
// # Root
//
// Root hides the enclosing scope and re-enters as if called fresh
// from the process root, using a fixed slot rather than an
// incrementing one. Calling the same Root-wrapped function twice from
// the same source position always yields the same CallId, even though
// the surrounding call stack differs:
//
//	func requestID(rt *topo.Runtime) topo.CallId {
//	    return topo.Root(rt, func() topo.CallId {
//	        return topo.CurrentID(rt)
//	    })
//	}
//
// # Context stack
//
// Offer publishes a typed value for the duration of a Frame; Get
// retrieves the nearest visible value of that type; Hide stops
// lookups of a type at the current frame even if an outer frame holds
// one. The scope runtime is itself built on this: the current
// scopeState is just another Offer'd value.
//
//	frame := topo.Offer(rt, requestContext{UserID: "u1"})
//	frame.Enter(func() {
//	    ctx, ok := topo.Get[requestContext](rt)
//	    _ = ctx
//	    _ = ok
//	})
//
// # Incremental cache
//
// GetOrInit memoizes a value per (enclosing scope, sub-key), running
// init only on a miss. An entry created or refreshed while another
// entry's initializer is running records that enclosing entry as its
// dependent, so it survives a later GC as long as anything that reads
// it survives — even if it goes untouched itself that revision:
//
//	cache := topo.Local[int]()
//
//	topo.Root(rt, func() int {
//	    v, _ := topo.GetOrInit(rt, cache, "key", func() (int, error) {
//	        return expensiveCompute(), nil
//	    })
//	    return v
//	})
//
//	cache.GC(rt) // removes anything not reached this revision
//
// Four cache variants cover the single-owner/multi-owner and
// local/shareable cross-product:
//
//   - Local — no internal locking; confined to one goroutine.
//   - SharedLocal — mutex-guarded map, shareable within one
//     goroutine-affine owner.
//   - Multi — sync.Map-backed, safe for concurrent GetOrInit from many
//     goroutines.
//   - SharedMulti — Multi with its nodes flagged for concurrent
//     mutation, so insertion and GC can proceed together.
//
// # Hooks
//
// A Hook observes scope entry/exit and cache activity without being
// able to intercept it. Attach one to a Runtime or a Cache at
// construction:
//
//	rt := topo.NewRuntime().WithHook(extensions.NewLoggingHook(nil))
//	cache := topo.Local[int]().WithHook(extensions.NewLoggingHook(nil))
//
// # Error handling
//
// GetOrInit's initializer failing returns a wrapped *topo.InitError
// and leaves no entry behind — a retry sees a clean miss. Misuse of
// the frame stack (releasing out of LIFO order) panics with a
// *topo.MisuseError, since there is no recoverable path once stack
// discipline is broken.
//
// # Concurrency
//
// A Runtime is confined to one goroutine, documented rather than
// enforced by the type system — the same trade-off as bufio.Writer.
// Local and SharedLocal caches share that confinement. Multi and
// SharedMulti are safe for concurrent GetOrInit across goroutines; on a
// Multi cache, callers serialize GC against inserts themselves, while
// SharedMulti lets GC run alongside unrelated GetOrInit calls.
package topo

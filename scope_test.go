package topo

import "testing"

// S1: reading CurrentID three times from the same source line inside one
// Call gives the same id; wrapping each reading in its own Call makes
// them pairwise distinct.
func TestCurrentIDStableWithinOneScope(t *testing.T) {
	rt := NewRuntime()
	var ids [3]CallId
	Call(rt, func() int {
		for i := range ids {
			ids[i] = CurrentID(rt)
		}
		return 0
	})
	if ids[0] != ids[1] || ids[1] != ids[2] {
		t.Fatalf("repeated reads within one scope diverged: %v", ids)
	}
}

func TestCurrentIDDistinctAcrossNestedCalls(t *testing.T) {
	rt := NewRuntime()
	var ids [3]CallId
	Call(rt, func() int {
		for i := range ids {
			ids[i] = Call(rt, func() CallId {
				return CurrentID(rt)
			})
		}
		return 0
	})
	if ids[0] == ids[1] || ids[1] == ids[2] || ids[0] == ids[2] {
		t.Fatalf("nested calls from the same line did not produce distinct ids: %v", ids)
	}
}

// S2: a 5-element list fed through CallInSlot yields 5 distinct ids, and
// running the same list twice yields the same set both times.
func TestCallInSlotDistinctPerSlotStableAcrossRuns(t *testing.T) {
	items := []string{"first", "second", "third", "fourth", "fifth"}

	run := func() []CallId {
		rt := NewRuntime()
		var ids []CallId
		Call(rt, func() int {
			for _, item := range items {
				ids = append(ids, CallInSlot(rt, item, func() CallId {
					return CurrentID(rt)
				}))
			}
			return 0
		})
		return ids
	}

	first := run()
	seen := make(map[CallId]bool)
	for _, id := range first {
		if seen[id] {
			t.Fatalf("duplicate id %v among slots: %v", id, first)
		}
		seen[id] = true
	}
	if len(seen) != len(items) {
		t.Fatalf("expected %d distinct ids, got %d", len(items), len(seen))
	}

	second := run()
	if len(second) != len(first) {
		t.Fatalf("second run produced a different count: %d vs %d", len(second), len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("slot %d diverged across runs: %v vs %v", i, first[i], second[i])
		}
	}
}

// S3: root invariance. f wraps CurrentID in Root and is itself called via
// Call twice: both calls yield the same id. g calls CurrentID directly
// under Call with no Root: two calls to g yield different ids.
func TestRootInvarianceAcrossRepeatedCalls(t *testing.T) {
	rt := NewRuntime()
	f := func() CallId {
		return Root(rt, func() CallId {
			return CurrentID(rt)
		})
	}

	a := Call(rt, f)
	b := Call(rt, f)
	if a != b {
		t.Fatalf("Root-wrapped function did not produce a stable id: %v != %v", a, b)
	}

	g := func() CallId {
		return Call(rt, func() CallId {
			return CurrentID(rt)
		})
	}
	c := Call(rt, g)
	d := Call(rt, g)
	if c == d {
		t.Fatalf("plain Call-wrapped function unexpectedly produced a stable id: %v", c)
	}
}

func TestRootHidesEnclosingScope(t *testing.T) {
	rt := NewRuntime()
	rootID := func() CallId {
		return Root(rt, func() CallId {
			return CurrentID(rt)
		})
	}
	var outer, inner CallId
	Call(rt, func() int {
		outer = CurrentID(rt)
		inner = rootID()
		return 0
	})
	if outer == inner {
		t.Fatalf("Root did not descend from RootID: outer %v == inner %v", outer, inner)
	}

	// Calling the same Root body from a different enclosing scope must
	// still produce the same id, since the enclosing scope is hidden.
	var innerFromElsewhere CallId
	CallInSlot(rt, "elsewhere", func() int {
		innerFromElsewhere = rootID()
		return 0
	})
	if inner != innerFromElsewhere {
		t.Fatalf("Root result depended on the enclosing scope: %v != %v", inner, innerFromElsewhere)
	}
}

func TestCurrentIDOutsideAnyScopeIsRootID(t *testing.T) {
	rt := NewRuntime()
	if id := CurrentID(rt); id != RootID {
		t.Fatalf("expected RootID outside any scope, got %v", id)
	}
}

// S6: a scope body failing restores the enclosing scope exactly.
func TestCallERestoresParentScopeOnError(t *testing.T) {
	rt := NewRuntime()
	before := CurrentID(rt)

	_, err := CallE(rt, func() (int, error) {
		return 0, errBoom
	})
	if err == nil {
		t.Fatalf("expected an error from CallE")
	}

	after := CurrentID(rt)
	if before != after {
		t.Fatalf("scope not restored after failure: before %v after %v", before, after)
	}
}

func TestCallPanicStillRestoresParentScope(t *testing.T) {
	rt := NewRuntime()
	before := CurrentID(rt)

	func() {
		defer func() { recover() }()
		Call(rt, func() int {
			panic("boom")
		})
	}()

	after := CurrentID(rt)
	if before != after {
		t.Fatalf("scope not restored after panic: before %v after %v", before, after)
	}
}

type boomError struct{}

func (boomError) Error() string { return "boom" }

var errBoom = boomError{}

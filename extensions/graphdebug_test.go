package extensions

import (
	"strings"
	"testing"

	topo "github.com/calltopo/topo"
)

func TestGraphDebugHookRendersOnlyWhenEntriesRemoved(t *testing.T) {
	rt := topo.NewRuntime()
	cache := topo.Local[int]()

	var rendered []string
	h := NewGraphDebugHook(cache, func(s string) { rendered = append(rendered, s) })
	cache.WithHook(h)

	topo.Root(rt, func() int {
		topo.CallInSlot(rt, 0, func() int {
			v, _ := topo.GetOrInit(rt, cache, "item", func() (int, error) { return 1, nil })
			return v
		})
		return 0
	})
	if n := cache.GC(rt); n != 0 {
		t.Fatalf("expected nothing removed, removed %d", n)
	}
	if len(rendered) != 0 {
		t.Fatalf("did not expect a render when nothing was removed, got %v", rendered)
	}

	topo.Root(rt, func() int { return 0 })
	if n := cache.GC(rt); n != 1 {
		t.Fatalf("expected 1 entry removed, removed %d", n)
	}
	if len(rendered) != 1 {
		t.Fatalf("expected exactly one render after a non-empty gc pass, got %d", len(rendered))
	}
	if !strings.Contains(rendered[0], "gc removed 1 entries") {
		t.Fatalf("expected the render to report the removed count, got:\n%s", rendered[0])
	}
}

func TestGraphDebugHookRenderShowsDependencyEdge(t *testing.T) {
	rt := topo.NewRuntime()
	cache := topo.Local[int]()
	h := NewGraphDebugHook(cache, nil)

	var scope topo.CallId
	topo.Root(rt, func() int {
		topo.CallInSlot(rt, "root-entry", func() int {
			scope = topo.CurrentID(rt)
			v, _ := topo.GetOrInit(rt, cache, "A", func() (int, error) {
				bv, _ := topo.GetOrInit(rt, cache, "B", func() (int, error) { return 2, nil })
				return bv + 1, nil
			})
			return v
		})
		return 0
	})

	out := h.Render()
	if out == "(empty)" {
		t.Fatalf("expected a non-empty dependency graph render")
	}
	// A and B share one scope, so the B-to-A edge draws that scope's id
	// as both parent and child.
	if strings.Count(out, scope.String()) < 2 {
		t.Fatalf("expected the render to show the dependency edge, got:\n%s", out)
	}
}

func TestDumpGraphMatchesHookRender(t *testing.T) {
	rt := topo.NewRuntime()
	cache := topo.Local[int]()

	topo.Root(rt, func() int {
		v, _ := topo.GetOrInit(rt, cache, "k", func() (int, error) { return 1, nil })
		return v
	})

	got := DumpGraph(cache)
	if got == "(empty)" {
		t.Fatalf("expected a non-empty dump for a populated cache")
	}
	if want := NewGraphDebugHook(cache, nil).Render(); got != want {
		t.Fatalf("DumpGraph and the hook's Render disagree:\n%s\nvs\n%s", got, want)
	}
}

func TestGraphDebugHookRenderEmptyGraph(t *testing.T) {
	cache := topo.Local[int]()
	h := NewGraphDebugHook(cache, nil)
	if got := h.Render(); got != "(empty)" {
		t.Fatalf("expected (empty) for a cache with no entries, got %q", got)
	}
}

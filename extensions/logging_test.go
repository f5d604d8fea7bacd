package extensions

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	topo "github.com/calltopo/topo"
)

func TestNewLoggingHookDefaultsToSlogDefault(t *testing.T) {
	h := NewLoggingHook(nil)
	if h.log == nil {
		t.Fatalf("expected a non-nil logger when nil is passed")
	}
}

func TestLoggingHookEmitsEnterExit(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := NewLoggingHook(logger)

	rt := topo.NewRuntime().WithHook(h)
	topo.Call(rt, func() int { return 0 })

	out := buf.String()
	if !strings.Contains(out, "scope enter") {
		t.Fatalf("expected a scope enter log line, got:\n%s", out)
	}
	if !strings.Contains(out, "scope exit") {
		t.Fatalf("expected a scope exit log line, got:\n%s", out)
	}
}

func TestLoggingHookEmitsCacheActivity(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := NewLoggingHook(logger)

	rt := topo.NewRuntime()
	cache := topo.Local[int]().WithHook(h)

	// One Root call line for both revisions, so they share a scope.
	for i := 0; i < 2; i++ {
		topo.Root(rt, func() int {
			v, _ := topo.GetOrInit(rt, cache, "k", func() (int, error) { return 1, nil })
			return v
		})
	}

	out := buf.String()
	if !strings.Contains(out, "cache miss") {
		t.Fatalf("expected a cache miss log line, got:\n%s", out)
	}
	if !strings.Contains(out, "cache hit") {
		t.Fatalf("expected a cache hit log line, got:\n%s", out)
	}
}

func TestLoggingHookEmitsGCOnlyWhenSomethingRemoved(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := NewLoggingHook(logger)

	rt := topo.NewRuntime()
	cache := topo.Local[int]().WithHook(h)

	topo.Root(rt, func() int {
		topo.CallInSlot(rt, 0, func() int {
			v, _ := topo.GetOrInit(rt, cache, "item", func() (int, error) { return 1, nil })
			return v
		})
		return 0
	})
	if n := cache.GC(rt); n != 0 {
		t.Fatalf("expected nothing removed on the first pass, removed %d", n)
	}
	if strings.Contains(buf.String(), "gc pass") {
		t.Fatalf("did not expect a gc log line when nothing was removed")
	}

	// Next revision touches nothing, so the one entry above is dropped.
	topo.Root(rt, func() int { return 0 })
	if n := cache.GC(rt); n != 1 {
		t.Fatalf("expected exactly 1 entry removed, removed %d", n)
	}
	if !strings.Contains(buf.String(), "gc pass") {
		t.Fatalf("expected a gc pass log line once an entry was removed")
	}
}

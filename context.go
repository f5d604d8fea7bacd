package topo

import (
	"reflect"
)

// Runtime owns one ambient context stack and the scope-runtime state
// layered on top of it (see scope.go). A Runtime is confined to a
// single goroutine: the context stack and current-scope cell carry no
// internal locking, matching the "thread-local, single-threaded,
// cooperative" model in §5. Go has no enforced thread-locals, so
// confinement is a documented contract rather than something the type
// checker can verify — the same trade-off bufio.Writer and
// bytes.Buffer make. What the runtime does enforce cheaply is strict
// LIFO release of frames, since that only needs a pointer comparison,
// not a lock.
type Runtime struct {
	top  *frame
	root *scopeState
	hook Hook
	pool *pool
}

// RuntimeOption configures a Runtime at construction time, using the
// functional-options style also used by CacheOption, rather than a
// config struct.
type RuntimeOption func(*Runtime)

// WithRuntimeHook attaches h at construction time. Equivalent to
// calling WithHook afterward; provided so hook wiring can be expressed
// alongside other options in one NewRuntime call.
func WithRuntimeHook(h Hook) RuntimeOption {
	return func(rt *Runtime) { rt.WithHook(h) }
}

// NewRuntime creates a Runtime with an empty context stack and a fresh
// process-wide root scope.
func NewRuntime(opts ...RuntimeOption) *Runtime {
	rt := &Runtime{root: newRootScopeState(), hook: noopHook{}, pool: newPool()}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// WithHook attaches an observability hook to the runtime, returning
// the same Runtime for chaining at construction time.
func (rt *Runtime) WithHook(h Hook) *Runtime {
	if h != nil {
		rt.hook = h
	}
	return rt
}

// frame is one layer of the context stack: a single typed value, or a
// hiding marker that stops lookups for its type at this layer.
type frame struct {
	prev   *frame
	typ    reflect.Type
	value  any
	hidden bool
}

// Frame is a handle returned by Offer or Hide. Release pops exactly
// this frame; releasing anything other than the current top of the
// stack is a LIFO violation and panics with a MisuseError, matching
// the "frames must nest strictly" invariant.
type Frame struct {
	rt       *Runtime
	f        *frame
	released bool
}

// Offer pushes a new frame layering value on top of the context
// stack, keyed by T's type. Lookups of T via Get see value until the
// returned Frame is released.
func Offer[T any](rt *Runtime, value T) *Frame {
	f := rt.pool.acquireFrame(rt.top, reflect.TypeOf((*T)(nil)).Elem(), value, false)
	rt.top = f
	return &Frame{rt: rt, f: f}
}

// Hide pushes a frame that makes lookups of T stop here, returning
// "not present" even if an outer frame holds a T. Root uses this to
// hide the enclosing scope.
func Hide[T any](rt *Runtime) *Frame {
	f := rt.pool.acquireFrame(rt.top, reflect.TypeOf((*T)(nil)).Elem(), nil, true)
	rt.top = f
	return &Frame{rt: rt, f: f}
}

// Release pops this frame. It must be the current top of the stack;
// releasing out of order is a programming error and panics.
func (fr *Frame) Release() {
	if fr == nil || fr.released {
		return
	}
	if fr.rt.top != fr.f {
		panic(misuse("Frame.Release", "frames must be released in strict LIFO order"))
	}
	fr.rt.top = fr.f.prev
	fr.released = true
	fr.rt.pool.releaseFrame(fr.f)
}

// Enter runs op with the frame pushed, releasing it on return,
// including when op panics.
func (fr *Frame) Enter(op func()) {
	defer fr.Release()
	op()
}

// EnterE is Enter for operations that return an error.
func (fr *Frame) EnterE(op func() error) error {
	defer fr.Release()
	return op()
}

// Get retrieves the nearest non-hidden value of type T from the top
// of the stack, walking downward and stopping at the first matching
// or hiding frame.
func Get[T any](rt *Runtime) (T, bool) {
	var zero T
	target := reflect.TypeOf((*T)(nil)).Elem()
	for f := rt.top; f != nil; f = f.prev {
		if f.typ != target {
			continue
		}
		if f.hidden {
			return zero, false
		}
		return f.value.(T), true
	}
	return zero, false
}

// with pushes value, runs fn with it visible, and pops it afterward —
// the helper behind every scope/cache operation that needs a
// short-lived ambient binding.
func with[T any](rt *Runtime, value T, fn func()) {
	Offer(rt, value).Enter(fn)
}

func withHidden[T any](rt *Runtime, fn func()) {
	Hide[T](rt).Enter(fn)
}

package topo

import (
	"fmt"
	"hash/maphash"
	"runtime"
	"sync"
)

// Callsite identifies a single syntactic call location in the program.
// Two Callsites compare equal iff they denote the same location; Go has
// no build-time rewrite step to mint a unique token per call, so a
// Callsite is synthesized from the source position (file and line) of
// the frame that invoked Call/CallInSlot/Root, represented by the first
// program counter seen for that position. It is stable for the lifetime
// of one process run, shared by every inlined copy of the same line,
// and distinct across source lines.
type Callsite struct {
	pc uintptr
}

// sitePCs maps each "file:line" source position to the first program
// counter site saw for it.
var sitePCs sync.Map

// site captures the caller's callsite. skip counts frames above site
// itself: skip=1 means "the function that called the function that
// called site", matching runtime.Caller's convention once site's own
// frame is discounted.
func site(skip int) Callsite {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return Callsite{pc: 0}
	}
	first, _ := sitePCs.LoadOrStore(fmt.Sprintf("%s:%d", file, line), pc)
	return Callsite{pc: first.(uintptr)}
}

// Site returns the Callsite of its caller. It exists so that client
// code which cannot go through Call/CallInSlot directly (for example a
// hand-rolled wrapper) can still mint a callsite token consistent with
// the rest of the runtime.
func Site() Callsite {
	return site(1)
}

func (c Callsite) String() string {
	if c.pc == 0 {
		return "<unknown>"
	}
	fn := runtime.FuncForPC(c.pc)
	if fn == nil {
		return fmt.Sprintf("pc:%#x", c.pc)
	}
	file, line := fn.FileLine(c.pc)
	return fmt.Sprintf("%s:%d", file, line)
}

func (c Callsite) writeHash(h *maphash.Hash) {
	var buf [8]byte
	putUint64(buf[:], uint64(c.pc))
	_, _ = h.Write(buf[:])
}

// slotKey is the hashable, owned form a Slot is converted into before
// entering a CallId's fingerprint. Any comparable Go value can be used
// as an explicit slot; its dynamic type and a textual representation
// are both folded into the hash so that e.g. int(1) and "1" never
// collide.
type slotKey struct {
	typ  string
	repr string
}

// rootSlot is the fixed, invocation-count-independent slot used by
// Root: unlike Call's default slot, it never increments, which is what
// lets Root(op) called twice at the same position produce equal
// CallIds (root invariance, see Root).
var rootSlot = slotKey{typ: "topo.root", repr: "root"}

func defaultSlot(count int) slotKey {
	return slotKey{typ: "topo.count", repr: fmt.Sprintf("%d", count)}
}

func explicitSlot[S comparable](slot S) slotKey {
	return slotKey{typ: fmt.Sprintf("%T", slot), repr: fmt.Sprintf("%v", slot)}
}

func (s slotKey) writeHash(h *maphash.Hash) {
	_, _ = h.WriteString(s.typ)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(s.repr)
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

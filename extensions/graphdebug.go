package extensions

import (
	"fmt"
	"sort"
	"strings"

	"github.com/m1gwings/treedrawer/tree"

	topo "github.com/calltopo/topo"
)

// graphSource is whatever a Cache[V] instantiation looks like once its
// value type is erased away — all graphdebug needs is the producer-to
// -consumer edge snapshot.
type graphSource interface {
	DependencyGraph() map[topo.CallId][]topo.CallId
}

// GraphDebugHook renders a cache's dependency graph as an ASCII tree
// on every GC pass that actually removed entries, for diagnosing why
// something did or didn't survive a sweep.
type GraphDebugHook struct {
	topo.BaseHook
	source graphSource
	out    func(string)
}

// NewGraphDebugHook renders source's graph through out whenever OnGC
// fires with removed > 0.
func NewGraphDebugHook(source graphSource, out func(string)) *GraphDebugHook {
	return &GraphDebugHook{source: source, out: out}
}

// DumpGraph renders source's current dependency graph on demand, for a
// one-off debug print outside of any GC pass — e.g. from a debug
// endpoint or an interactive shell, rather than only on sweep.
func DumpGraph(source graphSource) string {
	return (&GraphDebugHook{source: source}).Render()
}

func (h *GraphDebugHook) OnGC(s topo.Scope, removed int) {
	if removed == 0 || h.out == nil {
		return
	}
	h.out(fmt.Sprintf("gc removed %d entries\n%s", removed, h.Render()))
}

// Render draws the current dependency graph as a forest, one tree per
// node with no incoming edge (a root of the producer-to-consumer
// graph, not to be confused with topo.Root).
func (h *GraphDebugHook) Render() string {
	graph := h.source.DependencyGraph()
	if len(graph) == 0 {
		return "(empty)"
	}

	hasIncoming := make(map[topo.CallId]bool, len(graph))
	for _, consumers := range graph {
		for _, c := range consumers {
			hasIncoming[c] = true
		}
	}

	var roots []topo.CallId
	for id := range graph {
		if !hasIncoming[id] {
			roots = append(roots, id)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].String() < roots[j].String() })
	if len(roots) == 0 {
		// every node has an incoming edge: a pure cycle with no
		// producer-side entry point. Fall back to listing all nodes.
		for id := range graph {
			roots = append(roots, id)
		}
		sort.Slice(roots, func(i, j int) bool { return roots[i].String() < roots[j].String() })
	}

	var sb strings.Builder
	for i, root := range roots {
		t := buildGraphTree(root, graph, make(map[topo.CallId]bool))
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(t.String())
	}
	return sb.String()
}

// buildGraphTree recursively copies each producer node across as the
// parent of the consumer nodes recorded in its dependents list, with a
// visited set breaking cycles.
func buildGraphTree(id topo.CallId, graph map[topo.CallId][]topo.CallId, visited map[topo.CallId]bool) *tree.Tree {
	t := tree.NewTree(tree.NodeString(id.String()))
	if visited[id] {
		return t
	}
	visited[id] = true

	children := append([]topo.CallId(nil), graph[id]...)
	sort.Slice(children, func(i, j int) bool { return children[i].String() < children[j].String() })
	for _, c := range children {
		addSubtree(t, buildGraphTree(c, graph, visited))
	}
	return t
}

// addSubtree attaches child as a new child of parent, copying its own
// children along with it.
func addSubtree(parent *tree.Tree, child *tree.Tree) {
	node := parent.AddChild(child.Val())
	for _, grandchild := range child.Children() {
		addSubtree(node, grandchild)
	}
}
